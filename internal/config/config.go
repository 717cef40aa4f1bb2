// Package config loads declsync settings from a YAML file, a .env file and
// DECLSYNC_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up when no path is given.
const DefaultFile = ".declsync.yaml"

// ErrExists is returned by Write when the target file is already there.
var ErrExists = errors.New("config file already exists")

// Config holds every declsync setting.
type Config struct {
	Module         string   `yaml:"module" validate:"required"`
	Dialect        string   `yaml:"dialect" validate:"required,oneof=go python ruby"`
	Store          Store    `yaml:"store"`
	Libraries      []string `yaml:"libraries,omitempty" validate:"dive,required"`
	LogLevel       string   `yaml:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
	ParseCacheSize int      `yaml:"parseCacheSize,omitempty" validate:"gte=0"`
}

// Store configures the backing store.
type Store struct {
	Path     string `yaml:"path,omitempty" validate:"required_without=InMemory"`
	InMemory bool   `yaml:"inMemory,omitempty"`
}

// Default returns the settings used when no file exists.
func Default() Config {
	return Config{
		Module:   "default",
		Dialect:  "go",
		Store:    Store{Path: ".declsync/store"},
		LogLevel: "info",
	}
}

// Load reads the config at path, or DefaultFile when path is empty. A missing
// DefaultFile yields the defaults; a missing explicit path is an error.
// Relative store and library paths are resolved against the file's directory.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		cfg.resolvePaths(filepath.Dir(path))
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level; unset means info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) resolvePaths(dir string) {
	if c.Store.Path != "" && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(dir, c.Store.Path)
	}
	for i, lib := range c.Libraries {
		if !filepath.IsAbs(lib) {
			c.Libraries[i] = filepath.Join(dir, lib)
		}
	}
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("DECLSYNC_MODULE")); v != "" {
		c.Module = v
	}
	if v := strings.TrimSpace(os.Getenv("DECLSYNC_DIALECT")); v != "" {
		c.Dialect = v
	}
	if v := strings.TrimSpace(os.Getenv("DECLSYNC_STORE_PATH")); v != "" {
		c.Store.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("DECLSYNC_STORE_IN_MEMORY")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DECLSYNC_STORE_IN_MEMORY: %w", err)
		}
		c.Store.InMemory = b
	}
	if v := strings.TrimSpace(os.Getenv("DECLSYNC_LIBRARIES")); v != "" {
		c.Libraries = filepath.SplitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("DECLSYNC_LOG_LEVEL")); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("DECLSYNC_PARSE_CACHE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DECLSYNC_PARSE_CACHE_SIZE: %w", err)
		}
		c.ParseCacheSize = n
	}
	return nil
}

// Write saves cfg as YAML at path, refusing to overwrite an existing file.
func Write(path string, cfg Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
