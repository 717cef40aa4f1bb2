package repository

import (
	"fmt"

	"github.com/phobologic/declsync/internal/codebase"
	"github.com/phobologic/declsync/internal/diag"
	"github.com/phobologic/declsync/internal/graph"
	"github.com/phobologic/declsync/internal/model"
)

// SetContent loads text as the document contents without touching the
// registry. The text is checked against the project scope; on a clean parse
// it becomes the baseline for the next EditContent. Syntax problems are
// returned and leave the baseline untouched.
func (r *Repository) SetContent(text, dialect string) (diag.List, error) {
	decls, problems, err := r.parse(text, dialect)
	if err != nil || problems != nil {
		return problems, err
	}
	problems = r.check(decls)
	r.lastSuccess, r.lastDialect = text, dialect
	return problems, nil
}

// EditContent reconciles the registry with the edited text. It returns the
// catalog change, or nil when nothing changed, along with every diagnostic
// found. When the text does not parse the registry, the status table and the
// baseline are left as they were.
func (r *Repository) EditContent(text, dialect string) (*model.CatalogDelta, diag.List, error) {
	newDecls, problems, err := r.parse(text, dialect)
	if err != nil || problems != nil {
		return nil, problems, err
	}
	if problems := duplicates(newDecls); problems != nil {
		return nil, problems, nil
	}

	var oldDecls []*model.Declaration
	if r.lastSuccess != "" {
		oldDecls, err = r.parser.Parse(r.lastSuccess, r.lastDialect)
		if err != nil {
			r.logger.Warn("baseline no longer parses, diffing against nothing", "error", err)
			oldDecls = nil
		}
	}

	delta := codebase.NewDelta(
		codebase.New(oldDecls, r.libraries),
		codebase.New(newDecls, r.libraries),
	)
	n := delta.FilterOutDuplicates()
	if n == 0 {
		r.lastSuccess, r.lastDialect = text, dialect
		return nil, r.check(newDecls), nil
	}

	if err := r.project.Replace(oldDecls, newDecls); err != nil {
		r.logger.Error("registry consistency violation", "error", err)
		return nil, nil, err
	}
	r.lastSuccess, r.lastDialect = text, dialect

	if n == 2 && len(oldDecls) > 0 && len(oldDecls) == len(newDecls) {
		if err := r.reconcileRename(oldDecls, newDecls); err != nil {
			r.logger.Debug("falling back to dirty marking", "error", err)
		}
	}
	for _, d := range newDecls {
		if !r.inLibrary(d) {
			r.markDirty(d)
		}
	}

	delta.AdjustForMovingProtos(r.project)
	content := delta.Content()
	content.Affected = r.affected(delta.Removed.Declarations())
	if len(newDecls) == 1 {
		content.Select = newDecls[0].ID()
	}
	return content, r.check(newDecls), nil
}

// reconcileRename treats a one-for-one identity change as a rename: the
// status entry of the vanished identity moves to the new one, so its
// persisted ids survive and no create/delete pair reaches the store.
func (r *Repository) reconcileRename(oldDecls, newDecls []*model.Declaration) error {
	kept := make(map[string]struct{}, len(newDecls))
	for _, d := range newDecls {
		kept[d.ID()] = struct{}{}
	}

	var gone []*model.Declaration
	for _, d := range oldDecls {
		if _, ok := kept[d.ID()]; !ok {
			gone = append(gone, d)
		}
	}
	var fresh []*model.Declaration
	for _, d := range newDecls {
		if _, ok := r.statuses[d.ID()]; !ok {
			fresh = append(fresh, d)
		}
	}
	if len(gone) != 1 || len(fresh) != 1 {
		return fmt.Errorf("%w: %d vanished, %d untracked", ErrUnresolvedRename, len(gone), len(fresh))
	}
	if _, ok := r.statuses[gone[0].ID()]; !ok {
		return fmt.Errorf("%w: %s is not tracked", ErrUnresolvedRename, gone[0].ID())
	}
	r.rekey(gone[0].ID(), fresh[0])
	r.logger.Debug("rename reconciled", "from", gone[0].ID(), "to", fresh[0].ID())
	return nil
}

// Destroy removes the declaration id in two steps. The first call on a
// persisted declaration only marks it DELETED; the second unregisters it and
// returns the catalog change. A declaration never committed is dropped at
// once. A nil delta means the catalog did not change.
func (r *Repository) Destroy(id string) (*model.CatalogDelta, error) {
	e, ok := r.statuses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDeclaration, id)
	}

	switch e.Status {
	case model.Clean, model.Dirty:
		e.Status = model.Deleted
		e.Revision++
		return nil, nil
	case model.Deleted:
		if e.Detached {
			return nil, nil
		}
		e.Detached = true
	default:
		r.forget(e)
	}

	d, ok := r.project.LookupLocal(id)
	if !ok {
		return nil, nil
	}
	if err := r.project.Unregister(d); err != nil {
		r.logger.Error("registry consistency violation", "id", id, "error", err)
		return nil, err
	}
	return r.removalDelta([]*model.Declaration{d}), nil
}

// removalDelta reports decls as removed, except those still visible
// unchanged through the library scope. It returns nil when nothing is left.
func (r *Repository) removalDelta(decls []*model.Declaration) *model.CatalogDelta {
	if len(decls) == 0 {
		return nil
	}
	delta := codebase.NewDelta(codebase.New(decls, r.libraries), nil)
	if delta.FilterOutDuplicates() == 0 {
		return nil
	}
	content := delta.Content()
	content.Affected = r.affected(delta.Removed.Declarations())
	return content
}

// affected lists project declarations that refer to any of removed.
func (r *Repository) affected(removed []*model.Declaration) []string {
	if len(removed) == 0 {
		return nil
	}
	names := make([]string, 0, len(removed))
	for _, d := range removed {
		if _, ok := r.project.LookupName(d.Name); ok {
			// another proto of the same name is still declared
			continue
		}
		names = append(names, d.Name)
	}
	if len(names) == 0 {
		return nil
	}
	return graph.Referrers(r.project.LocalCatalog(), names)
}

func (r *Repository) inLibrary(d *model.Declaration) bool {
	lib, ok := r.libraries.Lookup(d.ID())
	return ok && lib.Fingerprint() == d.Fingerprint()
}

// parse separates syntax problems, returned as diagnostics, from failures
// such as an unknown dialect.
func (r *Repository) parse(text, dialect string) ([]*model.Declaration, diag.List, error) {
	decls, err := r.parser.Parse(text, dialect)
	if err == nil {
		return decls, nil, nil
	}
	if problems, ok := syntaxProblems(err); ok {
		return nil, problems, nil
	}
	return nil, nil, fmt.Errorf("parsing %s content: %w", dialect, err)
}

// check runs the checker in a throwaway child of the project scope with a
// collector installed as the project listener for the duration of the run.
func (r *Repository) check(decls []*model.Declaration) diag.List {
	var c diag.Collector
	child := r.project.NewChild()
	r.project.WithListener(&c, func() {
		r.checker.Check(decls, child)
	})
	return c.Problems
}

// duplicates reports identities declared more than once in decls.
func duplicates(decls []*model.Declaration) diag.List {
	seen := make(map[string]struct{}, len(decls))
	var problems diag.List
	for _, d := range decls {
		if _, dup := seen[d.ID()]; dup {
			line := d.Line
			if line == 0 {
				line = 1
			}
			problems = append(problems, diag.Diagnostic{
				Kind:    diag.Semantic,
				Line:    line,
				Column:  1,
				Message: fmt.Sprintf("duplicate declaration %s", d.ID()),
			})
			continue
		}
		seen[d.ID()] = struct{}{}
	}
	return problems
}
