// Package codebase computes the removed/added declaration sets between two
// states of an edited document.
package codebase

import (
	"sort"

	"github.com/phobologic/declsync/internal/model"
	"github.com/phobologic/declsync/internal/scope"
)

// Codebase is a non-owning view over a declaration set, pruned of entries
// that are visible unchanged through an ancestor scope.
type Codebase struct {
	decls map[string]*model.Declaration
}

// New builds a Codebase from decls, dropping every declaration whose identity
// resolves in one of the ancestor scopes to a byte-identical declaration.
func New(decls []*model.Declaration, ancestors ...*scope.Scope) *Codebase {
	cb := &Codebase{decls: make(map[string]*model.Declaration, len(decls))}
	for _, d := range decls {
		if inherited(d, ancestors) {
			continue
		}
		cb.decls[d.ID()] = d
	}
	return cb
}

func inherited(d *model.Declaration, ancestors []*scope.Scope) bool {
	for _, s := range ancestors {
		if s == nil {
			continue
		}
		if other, ok := s.Lookup(d.ID()); ok && other.Fingerprint() == d.Fingerprint() {
			return true
		}
	}
	return false
}

// Len returns the number of declarations in the view.
func (c *Codebase) Len() int {
	if c == nil {
		return 0
	}
	return len(c.decls)
}

// Has reports whether id is in the view.
func (c *Codebase) Has(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.decls[id]
	return ok
}

// Declarations returns the declarations in the view sorted by identity.
func (c *Codebase) Declarations() []*model.Declaration {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.decls))
	for id := range c.decls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*model.Declaration, len(ids))
	for i, id := range ids {
		out[i] = c.decls[id]
	}
	return out
}

// Catalog groups decls the way a catalog view lists them. Names are sorted;
// method protos are grouped under their name.
func Catalog(decls []*model.Declaration) model.Catalog {
	var cat model.Catalog
	protos := make(map[string][]string)
	for _, d := range decls {
		switch d.Kind {
		case model.Type:
			cat.Types = append(cat.Types, d.Name)
		case model.Test:
			cat.Tests = append(cat.Tests, d.Name)
		case model.Method:
			protos[d.Name] = append(protos[d.Name], d.Proto)
		}
	}
	sort.Strings(cat.Types)
	sort.Strings(cat.Tests)

	names := make([]string, 0, len(protos))
	for name := range protos {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := protos[name]
		sort.Strings(p)
		cat.Methods = append(cat.Methods, model.MethodProto{Name: name, Protos: p})
	}
	return cat
}
