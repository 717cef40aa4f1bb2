package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/phobologic/declsync/internal/session"
)

const defaultDebounce = 200 * time.Millisecond

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		debounce    time.Duration
		noCommit    bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Reconcile a file with the store every time it is saved",
		Long: `Watch a source file and send its content to the repository each time it
changes. Bursts of writes are coalesced into a single edit. Edits that do not
parse are reported and otherwise ignored, so the last good content stays in
effect until the file is fixed. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if metricsAddr != "" {
				addr, err := serveMetrics(cmd.Context(), metricsAddr, a.registry, a.logger)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "metrics: http://%s/metrics\n", addr)
			}

			w := &fileWatcher{
				app:      a,
				path:     path,
				dialect:  a.dialectFor(opts, path),
				debounce: debounce,
				commit:   !noCommit,
				out:      cmd.OutOrStdout(),
			}
			return w.run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "quiet period before a changed file is reconciled")
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "track changes without committing them")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (for example :9464)")
	return cmd
}

// fileWatcher feeds one file's content to a session whenever it changes.
type fileWatcher struct {
	app      *app
	path     string
	dialect  string
	debounce time.Duration
	commit   bool
	out      io.Writer
}

// run watches the file's directory rather than the file, so editors that save
// by renaming a temporary file over the original keep being followed.
func (w *fileWatcher) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}

	if err := w.sync(ctx); err != nil {
		return err
	}

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.app.logger.Warn("watcher error", "error", err)
		case <-timerC:
			timer, timerC = nil, nil
			if err := w.sync(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// sync sends the current file content as an edit and commits the result.
// Content the repository rejects is logged; only session failures are returned.
func (w *fileWatcher) sync(ctx context.Context) error {
	text, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		w.app.logger.Info("file is gone, waiting for it to come back", "path", w.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.path, err)
	}

	reply, err := w.app.session.Send(ctx, session.Message{
		Kind:    session.EditContent,
		Text:    string(text),
		Dialect: w.dialect,
	})
	if err != nil {
		return err
	}
	if err := writeReply(w.out, reply); err != nil {
		w.app.logger.Warn("edit rejected", "path", w.path, "error", err)
		return nil
	}
	if !w.commit || reply.Delta == nil {
		return nil
	}

	ack, err := w.app.session.Send(ctx, session.Message{Kind: session.Commit})
	if err != nil {
		w.app.logger.Warn("commit failed, changes stay pending", "error", err)
		return nil
	}
	if ack.Batch != nil {
		_, _ = fmt.Fprintf(w.out, "committed: %d\n", len(ack.Acks))
	}
	return nil
}
