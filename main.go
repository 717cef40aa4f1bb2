// declsync keeps a store of source declarations in sync with edited files.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phobologic/declsync/internal/config"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return runContext(ctx, args, stdout, stderr)
}

// runContext builds a fresh command tree per call so tests can run in parallel.
func runContext(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	dialect    string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "declsync",
		Short: "Keep a declaration store in sync with edited source files",
		Long: `declsync parses source files into declarations (types, methods, tests),
tracks how each declaration changed since it was last committed and commits
the changes to an embedded store.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default "+config.DefaultFile+")")
	root.PersistentFlags().StringVarP(&opts.dialect, "dialect", "d", "", "dialect of edited files (default: from extension, then config)")

	root.AddCommand(
		newInitCmd(opts),
		newCatalogCmd(opts),
		newImportCmd(opts),
		newDestroyCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
	)
	return root
}
