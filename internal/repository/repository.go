// Package repository keeps an in-memory mirror of a project's declarations,
// tracks their edit status and computes catalog deltas and commit batches.
//
// A Repository owns two scopes: the library scope holding shared code and a
// project scope whose lookups fall back to it. Every edit is parsed, diffed
// against the last successfully parsed text and applied to the project scope
// and to the status table in one step.
//
// A Repository is not safe for concurrent use. It is meant to be owned by a
// single goroutine that serializes edits and commits (see package session).
package repository

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phobologic/declsync/internal/codebase"
	"github.com/phobologic/declsync/internal/diag"
	"github.com/phobologic/declsync/internal/graph"
	"github.com/phobologic/declsync/internal/model"
	"github.com/phobologic/declsync/internal/scope"
)

var (
	// ErrUnknownDeclaration is returned for identities with no status entry.
	ErrUnknownDeclaration = errors.New("unknown declaration")

	// ErrUnresolvedRename explains why an edit that changed two identities
	// was not treated as a rename. It is logged, never returned to callers.
	ErrUnresolvedRename = errors.New("rename not resolved")
)

// Parser turns source text into declarations. Malformed text fails with a
// *diag.Error.
type Parser interface {
	Parse(text, dialect string) ([]*model.Declaration, error)
}

// Checker reports semantic problems through the listener of the scope it is
// given. It may register into that scope, so it is always given a child.
type Checker interface {
	Check(decls []*model.Declaration, s *scope.Scope)
}

// Config holds optional Repository settings.
type Config struct {
	// Dialect is the dialect of the initial, empty baseline.
	Dialect string

	// Logger receives registry consistency and rename diagnostics.
	// If nil, logging is discarded.
	Logger *slog.Logger

	// NewKey generates status entry surrogate keys. Defaults to uuid.NewString.
	NewKey func() string
}

// Repository is the declaration registry and change tracker.
type Repository struct {
	libraries *scope.Scope
	project   *scope.Scope
	parser    Parser
	checker   Checker
	logger    *slog.Logger
	newKey    func() string

	moduleID    string
	lastSuccess string
	lastDialect string

	statuses map[string]*model.StatusEntry
	byKey    map[string]*model.StatusEntry
	seq      uint64
}

// New returns an empty Repository.
func New(parser Parser, checker Checker, cfg Config) *Repository {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	newKey := cfg.NewKey
	if newKey == nil {
		newKey = uuid.NewString
	}
	libraries := scope.New()
	return &Repository{
		libraries:   libraries,
		project:     libraries.NewChild(),
		parser:      parser,
		checker:     checker,
		logger:      logger,
		newKey:      newKey,
		lastDialect: cfg.Dialect,
		statuses:    make(map[string]*model.StatusEntry),
		byKey:       make(map[string]*model.StatusEntry),
	}
}

// RegisterLibraryCode parses text and registers its declarations in the
// library scope.
func (r *Repository) RegisterLibraryCode(text, dialect string) error {
	decls, err := r.parser.Parse(text, dialect)
	if err != nil {
		return fmt.Errorf("parsing library code: %w", err)
	}
	return r.register(r.libraries, decls)
}

// RegisterLibraryRecords registers persisted library declarations.
func (r *Repository) RegisterLibraryRecords(records []model.Record) error {
	for _, rec := range records {
		if err := r.RegisterLibraryCode(rec.Value.Body, rec.Value.Dialect); err != nil {
			return fmt.Errorf("library declaration %s: %w", rec.ID(), err)
		}
	}
	return nil
}

// RegisterProjectRecords registers the persisted declarations of module
// moduleID in the project scope and marks them clean.
func (r *Repository) RegisterProjectRecords(moduleID string, records []model.Record) error {
	r.moduleID = moduleID
	for _, rec := range records {
		decls, err := r.parser.Parse(rec.Value.Body, rec.Value.Dialect)
		if err != nil {
			return fmt.Errorf("project declaration %s: %w", rec.ID(), err)
		}
		if err := r.register(r.project, decls); err != nil {
			return err
		}
		rec = rec.Clone()
		if rec.Value.Module != nil {
			// keep only the module id, never its full payload
			rec.Value.Module = model.NewModuleRef(rec.Value.Module.Value.DbID)
		}
		r.registerClean(rec)
	}
	return nil
}

func (r *Repository) register(s *scope.Scope, decls []*model.Declaration) error {
	for _, d := range decls {
		if err := s.Register(d); err != nil {
			r.logger.Error("registry consistency violation", "id", d.ID(), "error", err)
			return err
		}
	}
	return nil
}

// PublishLibraries returns the full library catalog, used once at startup.
func (r *Repository) PublishLibraries() *model.CatalogDelta {
	return &model.CatalogDelta{
		Added: codebase.Catalog(r.libraries.Catalog()),
		Core:  true,
	}
}

// PublishProject returns what the project contributes on top of its libraries.
func (r *Repository) PublishProject() *model.CatalogDelta {
	return &model.CatalogDelta{
		Added: codebase.Catalog(r.project.LocalCatalog()),
	}
}

// UnpublishProject removes the project's declarations and resets all
// project state: scope, status table and baseline.
func (r *Repository) UnpublishProject() *model.CatalogDelta {
	delta := &model.CatalogDelta{
		Removed: codebase.Catalog(r.project.LocalCatalog()),
	}
	r.project.Reset()
	r.statuses = make(map[string]*model.StatusEntry)
	r.byKey = make(map[string]*model.StatusEntry)
	r.lastSuccess = ""
	return delta
}

// ModuleID returns the persisted id of the project module.
func (r *Repository) ModuleID() string {
	return r.moduleID
}

// Baseline returns the last successfully parsed text and its dialect.
func (r *Repository) Baseline() (text, dialect string) {
	return r.lastSuccess, r.lastDialect
}

// Declaration resolves id in the project scope, falling back to libraries.
func (r *Repository) Declaration(id string) (*model.Declaration, bool) {
	return r.project.Lookup(id)
}

// Catalog returns every declaration visible from the project.
func (r *Repository) Catalog() []*model.Declaration {
	return r.project.Catalog()
}

// ProjectDeclarations returns the project's own declarations.
func (r *Repository) ProjectDeclarations() []*model.Declaration {
	return r.project.LocalCatalog()
}

// LibraryDeclarations returns every library declaration.
func (r *Repository) LibraryDeclarations() []*model.Declaration {
	return r.libraries.Catalog()
}

// Dependents returns the visible declarations that refer to id.
func (r *Repository) Dependents(id string) []string {
	return graph.Dependents(r.project.Catalog(), id)
}

// Status returns the edit status of id.
func (r *Repository) Status(id string) (model.EditStatus, bool) {
	e, ok := r.statuses[id]
	if !ok {
		return "", false
	}
	return e.Status, true
}

// Entry returns a copy of the status entry for id.
func (r *Repository) Entry(id string) (model.StatusEntry, bool) {
	e, ok := r.statuses[id]
	if !ok {
		return model.StatusEntry{}, false
	}
	c := *e
	c.Record = e.Record.Clone()
	return c, true
}

// syntaxProblems extracts the diagnostics carried by a parse failure.
func syntaxProblems(err error) (diag.List, bool) {
	var derr *diag.Error
	if errors.As(err, &derr) {
		return derr.Problems, true
	}
	return nil, false
}
