// Package ranking narrows ranked declaration listings.
package ranking

import (
	"sort"
	"strings"

	"github.com/phobologic/declsync/internal/graph"
	"github.com/phobologic/declsync/internal/model"
)

// Top returns the first max declarations of a ranked list.
// If max is <= 0 or >= len(decls), all declarations are returned.
func Top(decls []*model.Declaration, max int) []*model.Declaration {
	if max <= 0 || max >= len(decls) {
		return decls
	}
	return decls[:max]
}

// FilterBySymbol returns the declarations whose name contains substr
// (case-insensitive), plus their direct callers and callees. The input order
// is kept, so a ranked list stays ranked.
func FilterBySymbol(decls []*model.Declaration, substr string) []*model.Declaration {
	lower := strings.ToLower(substr)
	matched := make(map[string]struct{})
	for _, d := range decls {
		if strings.Contains(strings.ToLower(d.Name), lower) {
			matched[d.ID()] = struct{}{}
		}
	}
	if len(matched) == 0 {
		return nil
	}

	keep := make(map[string]struct{}, len(matched))
	for id := range matched {
		keep[id] = struct{}{}
	}
	for _, e := range graph.Build(decls) {
		if _, ok := matched[e.Source]; ok {
			keep[e.Target] = struct{}{}
		}
		if _, ok := matched[e.Target]; ok {
			keep[e.Source] = struct{}{}
		}
	}

	var out []*model.Declaration
	for _, d := range decls {
		if _, ok := keep[d.ID()]; ok {
			out = append(out, d)
		}
	}
	return out
}

// FilterByKind returns the declarations of the given kinds, keeping order.
func FilterByKind(decls []*model.Declaration, kinds ...model.Kind) []*model.Declaration {
	if len(kinds) == 0 {
		return decls
	}
	var out []*model.Declaration
	for _, d := range decls {
		for _, k := range kinds {
			if d.Kind == k {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// ParseKinds maps a comma-separated list such as "type,method" to kinds.
// Unknown names are returned separately, sorted.
func ParseKinds(list string) ([]model.Kind, []string) {
	var kinds []model.Kind
	var unknown []string
	for _, part := range strings.Split(list, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
		case "type":
			kinds = append(kinds, model.Type)
		case "method":
			kinds = append(kinds, model.Method)
		case "test":
			kinds = append(kinds, model.Test)
		default:
			unknown = append(unknown, strings.TrimSpace(part))
		}
	}
	sort.Strings(unknown)
	return kinds, unknown
}
