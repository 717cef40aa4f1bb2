package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/declsync/internal/check"
	"github.com/phobologic/declsync/internal/config"
	"github.com/phobologic/declsync/internal/discover"
	"github.com/phobologic/declsync/internal/lang"
	"github.com/phobologic/declsync/internal/model"
	"github.com/phobologic/declsync/internal/parse"
	"github.com/phobologic/declsync/internal/repository"
	"github.com/phobologic/declsync/internal/session"
	"github.com/phobologic/declsync/internal/store"
)

var _ session.Transport = (*store.Store)(nil)

// app wires a loaded repository to its store behind a running session.
// Commands talk to the repository through the session; the read accessors
// they call directly are only used between messages.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	repo     *repository.Repository
	session  *session.Session
	registry *prometheus.Registry
	moduleID string
}

func openApp(ctx context.Context, opts *globalOptions, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	parser, err := parse.New(cfg.ParseCacheSize)
	if err != nil {
		return nil, err
	}

	storeCfg := store.Config{
		Path:       cfg.Store.Path,
		InMemory:   cfg.Store.InMemory,
		SyncWrites: !cfg.Store.InMemory,
		GCInterval: 5 * time.Minute,
	}
	if cfg.SlogLevel() <= slog.LevelDebug {
		storeCfg.Logger = logger.With("component", "badger")
	}
	st, err := store.Open(storeCfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: st, registry: newRegistry()}
	if err := a.load(ctx, parser); err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) load(ctx context.Context, parser *parse.Parser) error {
	moduleID, err := a.store.EnsureModule(ctx, a.cfg.Module)
	if err != nil {
		return err
	}
	a.moduleID = moduleID

	for _, dir := range a.cfg.Libraries {
		records, err := scanLibrary(ctx, dir, parser, a.logger)
		if err != nil {
			return fmt.Errorf("library %s: %w", dir, err)
		}
		if err := a.store.PutLibrary(ctx, filepath.Base(dir), records); err != nil {
			return err
		}
	}

	a.repo = repository.New(parser, check.New(), repository.Config{
		Dialect: a.cfg.Dialect,
		Logger:  a.logger.With("component", "repository"),
	})
	libs, err := a.store.LoadLibraries(ctx)
	if err != nil {
		return err
	}
	if err := a.repo.RegisterLibraryRecords(uniqueRecords(libs, a.logger)); err != nil {
		return err
	}
	project, err := a.store.LoadProject(ctx, moduleID)
	if err != nil {
		return err
	}
	if err := a.repo.RegisterProjectRecords(moduleID, project); err != nil {
		return err
	}

	a.session = session.New(a.repo, a.store, session.Config{
		Logger:     a.logger.With("component", "session"),
		Registerer: a.registry,
	})
	a.session.Start(ctx)
	a.logger.Debug("loaded", "module", a.cfg.Module, "libraries", len(libs), "declarations", len(project))
	return nil
}

func (a *app) Close() error {
	if a.session != nil {
		a.session.Close()
	}
	return a.store.Close()
}

// dialectFor picks the dialect of path: the --dialect flag, then the file
// extension, then the configured default.
func (a *app) dialectFor(opts *globalOptions, path string) string {
	if opts.dialect != "" {
		return opts.dialect
	}
	if d := lang.ForExtension(filepath.Ext(path)); d != "" {
		return d
	}
	return a.cfg.Dialect
}

// scanLibrary parses every non-test source file under dir concurrently.
// Files that do not parse are skipped with a warning.
func scanLibrary(ctx context.Context, dir string, parser *parse.Parser, logger *slog.Logger) ([]model.Record, error) {
	sources, err := discover.Sources(ctx, dir, discover.Options{SkipTests: true})
	if err != nil {
		return nil, err
	}
	files, err := discover.Read(ctx, dir, sources, runtime.GOMAXPROCS(0))
	if err != nil {
		return nil, err
	}

	parsed := make([][]*model.Declaration, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			decls, err := parser.Parse(f.Text, f.Dialect)
			if err != nil {
				logger.Warn("skipping library file", "path", f.Path, "error", err)
				return nil
			}
			parsed[i] = decls
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []model.Record
	for _, decls := range parsed {
		for _, d := range decls {
			records = append(records, model.NewRecord(d))
		}
	}
	return records, nil
}

// uniqueRecords keeps the first record of each identity.
func uniqueRecords(records []model.Record, logger *slog.Logger) []model.Record {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, rec := range records {
		id := rec.ID()
		if _, dup := seen[id]; dup {
			logger.Warn("duplicate library declaration ignored", "id", id)
			continue
		}
		seen[id] = struct{}{}
		out = append(out, rec)
	}
	return out
}
