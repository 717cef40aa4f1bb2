// Package store persists declaration records in an embedded BadgerDB and
// acts as the commit transport of a session.
//
// Keys:
//
//	module/<name>              -> module dbId
//	decl/<module dbId>/<dbId>  -> Record JSON
//	lib/<library>/<id>         -> Record JSON
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/phobologic/declsync/internal/model"
)

// ErrNoPath is returned when a persistent store is opened without a path.
var ErrNoPath = errors.New("path is required for a persistent store")

// Config configures a Store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	// SyncWrites makes every commit durable before it is acknowledged.
	SyncWrites bool

	// GCInterval is how often value log garbage collection runs. Zero disables it.
	GCInterval time.Duration

	// Logger receives BadgerDB's own log output. If nil, it is discarded.
	Logger *slog.Logger
}

// Store is a BadgerDB-backed declaration store. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	stop   chan struct{}
	done   chan struct{}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens the store described by cfg, creating its directory if needed.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, ErrNoPath
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.runGC(cfg.GCInterval)
	}
	return s, nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.stop != nil {
		close(s.stop)
		<-s.done
	}
	return s.db.Close()
}

func (s *Store) runGC(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.logger != nil {
				s.logger.Warn("value log gc failed", "error", err)
			}
		}
	}
}

// EnsureModule returns the dbId of the module called name, creating it on
// first use.
func (s *Store) EnsureModule(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := []byte("module/" + name)
	var id string
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case err == nil:
			return item.Value(func(v []byte) error {
				id = string(v)
				return nil
			})
		case errors.Is(err, badger.ErrKeyNotFound):
			id = uuid.NewString()
			return txn.Set(key, []byte(id))
		default:
			return err
		}
	})
	if err != nil {
		return "", fmt.Errorf("resolving module %s: %w", name, err)
	}
	return id, nil
}

// Commit applies a batch in one transaction. CREATED and DIRTY entries are
// written, assigning a dbId to records that have none; DELETED entries are
// removed. Every entry is acknowledged.
func (s *Store) Commit(ctx context.Context, batch []model.EditedEntry) ([]model.Ack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acks := make([]model.Ack, 0, len(batch))
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, e := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := e.Record.Clone()
			module := ""
			if rec.Value.Module != nil {
				module = rec.Value.Module.Value.DbID
			}

			if e.Status == model.Deleted {
				if rec.Value.DbID != "" {
					if err := txn.Delete(declKey(module, rec.Value.DbID)); err != nil {
						return fmt.Errorf("deleting %s: %w", e.ID, err)
					}
				}
				acks = append(acks, model.Ack{Key: e.Key, Revision: e.Revision, DbID: rec.Value.DbID})
				continue
			}

			if rec.Value.DbID == "" {
				rec.Value.DbID = uuid.NewString()
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encoding %s: %w", e.ID, err)
			}
			if err := txn.Set(declKey(module, rec.Value.DbID), data); err != nil {
				return fmt.Errorf("writing %s: %w", e.ID, err)
			}
			acks = append(acks, model.Ack{Key: e.Key, Revision: e.Revision, DbID: rec.Value.DbID})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("committing batch: %w", err)
	}
	return acks, nil
}

// LoadProject returns the records of a module sorted by identity.
func (s *Store) LoadProject(ctx context.Context, moduleID string) ([]model.Record, error) {
	return s.scan(ctx, "decl/"+moduleID+"/")
}

// PutLibrary replaces the stored records of the named library.
func (s *Store) PutLibrary(ctx context.Context, name string, records []model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix := []byte("lib/" + name + "/")
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for _, rec := range records {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encoding library record %s: %w", rec.ID(), err)
			}
			if err := txn.Set(append(append([]byte(nil), prefix...), rec.ID()...), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadLibraries returns every stored library record sorted by identity.
func (s *Store) LoadLibraries(ctx context.Context) ([]model.Record, error) {
	return s.scan(ctx, "lib/")
}

func (s *Store) scan(ctx context.Context, prefix string) ([]model.Record, error) {
	var records []model.Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: []byte(prefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var rec model.Record
			err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			})
			if err != nil {
				return fmt.Errorf("decoding %s: %w", item.Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", prefix, err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID() < records[j].ID() })
	return records, nil
}

func declKey(module, dbID string) []byte {
	return []byte("decl/" + module + "/" + dbID)
}
