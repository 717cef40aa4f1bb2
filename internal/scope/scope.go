// Package scope implements the hierarchical declaration registry: a root
// library scope and child scopes whose lookups fall back to their parent.
package scope

import (
	"errors"
	"fmt"
	"sort"

	"github.com/phobologic/declsync/internal/diag"
	"github.com/phobologic/declsync/internal/model"
)

var (
	// ErrDuplicateDeclaration is returned when an identity is registered twice
	// in the same scope. Callers must unregister before re-registering.
	ErrDuplicateDeclaration = errors.New("duplicate declaration")

	// ErrNotRegistered is returned when unregistering an identity the scope
	// does not hold.
	ErrNotRegistered = errors.New("declaration not registered")
)

// Scope is a namespace of declarations keyed by identity.
// A Scope is not safe for concurrent use; it is owned by a single goroutine.
type Scope struct {
	parent   *Scope
	decls    map[string]*model.Declaration
	listener diag.Listener
}

// New returns a root scope with no parent.
func New() *Scope {
	return &Scope{decls: make(map[string]*model.Declaration)}
}

// NewChild returns an empty scope whose lookups fall back to s. Registering
// into the child never touches s.
func (s *Scope) NewChild() *Scope {
	c := New()
	c.parent = s
	return c
}

// Parent returns the enclosing scope, or nil for a root.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Register inserts d into this scope.
func (s *Scope) Register(d *model.Declaration) error {
	id := d.ID()
	if _, ok := s.decls[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDeclaration, id)
	}
	s.decls[id] = d
	return nil
}

// Unregister removes the declaration with d's identity from this scope.
func (s *Scope) Unregister(d *model.Declaration) error {
	id := d.ID()
	if _, ok := s.decls[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	delete(s.decls, id)
	return nil
}

// Lookup resolves id in this scope, then in its ancestors.
func (s *Scope) Lookup(id string) (*model.Declaration, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if d, ok := cur.decls[id]; ok {
			return d, true
		}
	}
	return nil, false
}

// LookupLocal resolves id in this scope only.
func (s *Scope) LookupLocal(id string) (*model.Declaration, bool) {
	d, ok := s.decls[id]
	return d, ok
}

// LookupName returns a visible declaration named name, preferring types and
// tests, then the method proto with the smallest identity.
func (s *Scope) LookupName(name string) (*model.Declaration, bool) {
	if d, ok := s.Lookup(name); ok {
		return d, true
	}
	protos := s.Protos(name)
	if len(protos) == 0 {
		return nil, false
	}
	return s.Lookup(model.Identity(name, model.Method, protos[0]))
}

// Protos returns the sorted protos visible for the method name.
func (s *Scope) Protos(name string) []string {
	seen := make(map[string]struct{})
	for cur := s; cur != nil; cur = cur.parent {
		for _, d := range cur.decls {
			if d.Kind.Overloadable() && d.Name == name {
				seen[d.Proto] = struct{}{}
			}
		}
	}
	protos := make([]string, 0, len(seen))
	for p := range seen {
		protos = append(protos, p)
	}
	sort.Strings(protos)
	return protos
}

// Catalog returns every declaration visible from this scope, local entries
// shadowing ancestors, sorted by identity.
func (s *Scope) Catalog() []*model.Declaration {
	visible := make(map[string]*model.Declaration)
	for cur := s; cur != nil; cur = cur.parent {
		for id, d := range cur.decls {
			if _, shadowed := visible[id]; !shadowed {
				visible[id] = d
			}
		}
	}
	return sortedDecls(visible)
}

// LocalCatalog returns this scope's own declarations, sorted by identity.
func (s *Scope) LocalCatalog() []*model.Declaration {
	return sortedDecls(s.decls)
}

// Len returns the number of local declarations.
func (s *Scope) Len() int {
	return len(s.decls)
}

// Reset drops every local declaration.
func (s *Scope) Reset() {
	s.decls = make(map[string]*model.Declaration)
}

// Replace swaps oldDecls for newDecls as a single unit: identities from
// either list that are registered locally are unregistered, then newDecls are
// registered. The new list is validated first, so on error the scope is
// unchanged.
//
// Unlike Unregister, Replace skips identities that are not registered. Old
// declarations come from a baseline that may never have been registered (text
// loaded with SetContent) or that was already detached by a destroy, and new
// declarations are usually absent.
func (s *Scope) Replace(oldDecls, newDecls []*model.Declaration) error {
	ids := make(map[string]struct{}, len(newDecls))
	for _, d := range newDecls {
		id := d.ID()
		if _, dup := ids[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateDeclaration, id)
		}
		ids[id] = struct{}{}
	}

	for _, list := range [][]*model.Declaration{oldDecls, newDecls} {
		for _, d := range list {
			delete(s.decls, d.ID())
		}
	}
	for _, d := range newDecls {
		s.decls[d.ID()] = d
	}
	return nil
}

// Listener returns the problem listener of the nearest scope that has one.
func (s *Scope) Listener() diag.Listener {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.listener != nil {
			return cur.listener
		}
	}
	return diag.Discard
}

// WithListener installs l as this scope's problem listener for the duration
// of fn. The previous listener is restored on every exit path, panics included.
func (s *Scope) WithListener(l diag.Listener, fn func()) {
	saved := s.listener
	s.listener = l
	defer func() { s.listener = saved }()
	fn()
}

func sortedDecls(m map[string]*model.Declaration) []*model.Declaration {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*model.Declaration, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}
