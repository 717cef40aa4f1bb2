// Package discover finds and reads library source files.
package discover

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/declsync/internal/lang"
)

// Source is a discovered source file.
type Source struct {
	Path    string // Relative to the library root
	Dialect string
}

// File is a source file with its contents.
type File struct {
	Source
	Text string
}

// Options narrows what Sources returns.
type Options struct {
	// Dialects limits results to these dialects. Empty means all.
	Dialects []string
	// SkipTests drops files that only hold tests.
	SkipTests bool
}

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	"vendor":        {},
	".git":          {},
	"venv":          {},
	".venv":         {},
	"build":         {},
	"dist":          {},
	".tox":          {},
	".mypy_cache":   {},
	".pytest_cache": {},
	"egg-info":      {},
}

// Sources returns the files under root whose extension maps to a dialect,
// sorted by path. Inside a git work tree only tracked and unignored files
// are considered; elsewhere a top-level .gitignore is honored.
func Sources(ctx context.Context, root string, opts Options) ([]Source, error) {
	dialects := make(map[string]struct{}, len(opts.Dialects))
	for _, d := range opts.Dialects {
		dialects[d] = struct{}{}
	}
	tracked := gitLsFiles(ctx, root)
	var gi *ignore.GitIgnore
	if tracked == nil {
		gi = loadGitignore(root)
	}

	var out []Source
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if tracked != nil {
			if _, ok := tracked[filepath.ToSlash(rel)]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		dialect := lang.ForExtension(filepath.Ext(name))
		if dialect == "" {
			return nil
		}
		if len(dialects) > 0 {
			if _, ok := dialects[dialect]; !ok {
				return nil
			}
		}
		if opts.SkipTests && IsTestFile(rel) {
			return nil
		}
		out = append(out, Source{Path: rel, Dialect: dialect})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Read loads the contents of sources relative to root, at most limit files
// at a time. Results keep the order of sources.
func Read(ctx context.Context, root string, sources []Source, limit int) ([]File, error) {
	files := make([]File, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(root, src.Path))
			if err != nil {
				return fmt.Errorf("reading %s: %w", src.Path, err)
			}
			files[i] = File{Source: src, Text: string(data)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

var testDirs = map[string]struct{}{
	"test":      {},
	"tests":     {},
	"spec":      {},
	"__tests__": {},
}

// IsTestFile reports whether path looks like a test file, either by living
// under a test directory or by its file name.
func IsTestFile(path string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, dir := range parts[:len(parts)-1] {
		if _, ok := testDirs[dir]; ok {
			return true
		}
	}
	name := parts[len(parts)-1]
	base := strings.TrimSuffix(name, filepath.Ext(name))
	switch {
	case strings.HasSuffix(base, "_test"), strings.HasSuffix(base, "_spec"):
		return true
	case strings.HasPrefix(base, "test_"):
		return true
	case strings.HasSuffix(base, ".test"), strings.HasSuffix(base, ".spec"):
		return true
	}
	return false
}

func gitLsFiles(ctx context.Context, root string) map[string]struct{} {
	info, err := os.Stat(filepath.Join(root, ".git"))
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
