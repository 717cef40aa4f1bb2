package codebase

import (
	"github.com/phobologic/declsync/internal/model"
	"github.com/phobologic/declsync/internal/scope"
)

// Delta is the pair of declaration sets an edit removed and added.
type Delta struct {
	Removed *Codebase
	Added   *Codebase
}

// NewDelta returns a Delta over the given views; nil views are treated as empty.
func NewDelta(removed, added *Codebase) *Delta {
	if removed == nil {
		removed = New(nil)
	}
	if added == nil {
		added = New(nil)
	}
	return &Delta{Removed: removed, Added: added}
}

// FilterOutDuplicates drops identities present on both sides with the same
// serialized form and returns how many distinct identities remain on either
// side: 0 means nothing changed, 1 a single add, remove or edit, 2 a possible
// rename.
func (d *Delta) FilterOutDuplicates() int {
	for id, removed := range d.Removed.decls {
		added, ok := d.Added.decls[id]
		if ok && added.Fingerprint() == removed.Fingerprint() {
			delete(d.Removed.decls, id)
			delete(d.Added.decls, id)
		}
	}
	changed := make(map[string]struct{}, len(d.Removed.decls)+len(d.Added.decls))
	for id := range d.Removed.decls {
		changed[id] = struct{}{}
	}
	for id := range d.Added.decls {
		changed[id] = struct{}{}
	}
	return len(changed)
}

// AdjustForMovingProtos re-derives both sides against s after it has been
// updated. A removed identity that is still visible (its proto moved back, or
// only its body changed) is no longer reported as removed, and an added
// identity that is not visible is dropped, so the content reflects final
// signatures.
func (d *Delta) AdjustForMovingProtos(s *scope.Scope) {
	for id := range d.Removed.decls {
		if _, ok := s.Lookup(id); ok {
			delete(d.Removed.decls, id)
		}
	}
	for id := range d.Added.decls {
		current, ok := s.Lookup(id)
		if !ok {
			delete(d.Added.decls, id)
			continue
		}
		d.Added.decls[id] = current
	}
}

// Empty reports whether neither side holds anything.
func (d *Delta) Empty() bool {
	return d.Removed.Len() == 0 && d.Added.Len() == 0
}

// Content renders the delta for a catalog view.
func (d *Delta) Content() *model.CatalogDelta {
	return &model.CatalogDelta{
		Removed: Catalog(d.Removed.Declarations()),
		Added:   Catalog(d.Added.Declarations()),
	}
}
