// Package graph builds a declaration reference graph and computes PageRank.
package graph

import (
	"math"
	"sort"
	"strings"

	"github.com/phobologic/declsync/internal/model"
)

// Edge records that Source refers to symbols defined by Target.
type Edge struct {
	Source  string
	Target  string
	Symbols []string
}

// Build creates reference edges between declarations from their symbols.
// A symbol matches a declaration by full name or, for qualified names such as
// "Server.Start", by the part after the last dot.
func Build(decls []*model.Declaration) []Edge {
	defines := defineIndex(decls)

	type edgeKey struct{ src, tgt string }
	edgeSymbols := make(map[edgeKey][]string)

	for _, d := range decls {
		src := d.ID()
		for _, sym := range d.Symbols {
			for _, tgt := range sortedKeys(defines[sym]) {
				if tgt == src {
					continue // no self-edges
				}
				key := edgeKey{src, tgt}
				if !contains(edgeSymbols[key], sym) {
					edgeSymbols[key] = append(edgeSymbols[key], sym)
				}
			}
		}
	}

	edges := make([]Edge, 0, len(edgeSymbols))
	for key, syms := range edgeSymbols {
		edges = append(edges, Edge{Source: key.src, Target: key.tgt, Symbols: syms})
	}

	// Sort for deterministic output
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}

// Dependents returns the identities of declarations in decls that refer to id.
func Dependents(decls []*model.Declaration, id string) []string {
	var out []string
	for _, e := range Build(decls) {
		if e.Target == id && !contains(out, e.Source) {
			out = append(out, e.Source)
		}
	}
	sort.Strings(out)
	return out
}

// Referrers returns the identities of declarations in decls whose symbols name
// any of names. Unlike Dependents it does not need the named declarations to
// be present, so it can report damage after they were removed.
func Referrers(decls []*model.Declaration, names []string) []string {
	wanted := make(map[string]struct{}, len(names)*2)
	for _, n := range names {
		wanted[n] = struct{}{}
		wanted[shortName(n)] = struct{}{}
	}
	var out []string
	for _, d := range decls {
		for _, sym := range d.Symbols {
			if _, ok := wanted[sym]; ok {
				out = append(out, d.ID())
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Rank applies PageRank over the reference graph and returns decls ordered
// by rank descending, ties broken by identity.
func Rank(decls []*model.Declaration) []*model.Declaration {
	out := append([]*model.Declaration(nil), decls...)
	if len(out) == 0 {
		return out
	}

	nodes := make(map[string]struct{}, len(out))
	for _, d := range out {
		nodes[d.ID()] = struct{}{}
	}

	// Edge from source to target means source references target.
	outEdges := make(map[string][]string)
	outDegree := make(map[string]int)
	for _, e := range Build(out) {
		// Each symbol is an edge
		for range e.Symbols {
			outEdges[e.Source] = append(outEdges[e.Source], e.Target)
			outDegree[e.Source]++
		}
	}

	ranks := pageRank(nodes, outEdges, outDegree, 0.85, 100, 1e-6)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := ranks[out[i].ID()], ranks[out[j].ID()]
		if ri != rj {
			return ri > rj
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

func defineIndex(decls []*model.Declaration) map[string]map[string]struct{} {
	defines := make(map[string]map[string]struct{})
	add := func(name, id string) {
		if defines[name] == nil {
			defines[name] = make(map[string]struct{})
		}
		defines[name][id] = struct{}{}
	}
	for _, d := range decls {
		add(d.Name, d.ID())
		if short := shortName(d.Name); short != d.Name {
			add(short, d.ID())
		}
	}
	return defines
}

func shortName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

func pageRank(
	nodes map[string]struct{},
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	if n == 0 {
		return nil
	}

	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for node := range nodes {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Dangling node contribution (nodes with no outgoing edges)
		var danglingSum float64
		for node := range nodes {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for node := range nodes {
			newRank[node] = teleport + danglingContrib
		}

		for src, targets := range outEdges {
			deg := float64(outDegree[src])
			contrib := alpha * rank[src] / deg
			for _, tgt := range targets {
				newRank[tgt] += contrib
			}
		}

		var diff float64
		for node := range nodes {
			diff += math.Abs(newRank[node] - rank[node])
		}

		rank = newRank

		if diff < tol {
			break
		}
	}

	return rank
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
