package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/declsync/internal/config"
)

// newInitCmd implements `declsync init`, which writes a starter config file.
func newInitCmd(opts *globalOptions) *cobra.Command {
	var (
		module    string
		storePath string
		inMemory  bool
		libraries []string
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a declsync config file with defaults for every setting not given
as a flag. The file is written to --config, or to ` + config.DefaultFile + ` in the
current directory. An existing file is never overwritten.

Relative store and library paths are resolved against the directory holding
the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := initialConfig(module, opts.dialect, storePath, inMemory, libraries)
			if err := cfg.Validate(); err != nil {
				return err
			}

			path := opts.configPath
			if path == "" {
				path = config.DefaultFile
			}
			if dryRun {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "would write %s\n", path)
				return nil
			}
			if err := config.Write(path, cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&module, "module", "m", "", "module name (default: current directory name)")
	cmd.Flags().StringVar(&storePath, "store", "", "store directory (default "+config.Default().Store.Path+")")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "keep the store in memory only")
	cmd.Flags().StringSliceVarP(&libraries, "library", "L", nil, "library source directory (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print where the file would be written without writing it")
	return cmd
}

// initialConfig layers flag values over the defaults. It is a pure function
// for easy testing.
func initialConfig(module, dialect, storePath string, inMemory bool, libraries []string) config.Config {
	cfg := config.Default()
	switch {
	case module != "":
		cfg.Module = module
	default:
		if wd, err := filepath.Abs("."); err == nil && filepath.Base(wd) != string(filepath.Separator) {
			cfg.Module = filepath.Base(wd)
		}
	}
	if dialect != "" {
		cfg.Dialect = dialect
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if inMemory {
		cfg.Store = config.Store{InMemory: true}
	}
	cfg.Libraries = libraries
	return cfg
}
