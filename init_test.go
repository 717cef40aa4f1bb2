package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/declsync/internal/config"
)

// TestInitialConfigDefaults verifies that unset flags fall back to the defaults
// and that the module is named after the working directory.
func TestInitialConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := initialConfig("", "", "", false, nil)

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Module != filepath.Base(wd) {
		t.Errorf("module = %q, want %q", cfg.Module, filepath.Base(wd))
	}
	def := config.Default()
	if cfg.Dialect != def.Dialect || cfg.Store.Path != def.Store.Path {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

// TestInitialConfigFlags verifies that flag values override the defaults.
func TestInitialConfigFlags(t *testing.T) {
	t.Parallel()
	cfg := initialConfig("shop", "ruby", "", true, []string{"vendor/lib"})

	if cfg.Module != "shop" || cfg.Dialect != "ruby" {
		t.Errorf("unexpected module or dialect: %+v", cfg)
	}
	if !cfg.Store.InMemory || cfg.Store.Path != "" {
		t.Errorf("--in-memory should drop the store path: %+v", cfg.Store)
	}
	if len(cfg.Libraries) != 1 || cfg.Libraries[0] != "vendor/lib" {
		t.Errorf("libraries = %v", cfg.Libraries)
	}
}

// TestInitCreatesFile verifies that init writes a config that loads back.
func TestInitCreatesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "conf", "declsync.yaml")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", "-c", path, "-m", "shop", "-d", "python"}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(stderr.String(), "wrote "+path) {
		t.Errorf("stderr = %q", stderr.String())
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading written config: %v", err)
	}
	if cfg.Module != "shop" || cfg.Dialect != "python" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	want := filepath.Join(filepath.Dir(path), config.Default().Store.Path)
	if cfg.Store.Path != want {
		t.Errorf("store path = %q, want %q", cfg.Store.Path, want)
	}
}

// TestInitRefusesOverwrite verifies that an existing config is left alone.
func TestInitRefusesOverwrite(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "declsync.yaml")
	existing := "module: mine\n"
	if err := os.WriteFile(path, []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	err := run([]string{"init", "-c", path}, &stdout, &stderr)
	if !errors.Is(err, config.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != existing {
		t.Error("init must not modify an existing file")
	}
}

// TestInitDryRun verifies that --dry-run reports the target without writing it.
func TestInitDryRun(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "declsync.yaml")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", "--dry-run", "-c", path}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(stdout.String(), "would write "+path) {
		t.Errorf("stdout = %q", stdout.String())
	}
	if _, err := os.Stat(path); err == nil {
		t.Error("--dry-run should not create the file")
	}
}

// TestInitRejectsBadDialect verifies that validation runs before writing.
func TestInitRejectsBadDialect(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "declsync.yaml")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", "-c", path, "-d", "cobol"}, &stdout, &stderr); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := os.Stat(path); err == nil {
		t.Error("invalid config should not be written")
	}
}
