package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/declsync/internal/diag"
	"github.com/phobologic/declsync/internal/graph"
	"github.com/phobologic/declsync/internal/ranking"
	"github.com/phobologic/declsync/internal/session"
	"github.com/phobologic/declsync/internal/toon"
)

func newCatalogCmd(opts *globalOptions) *cobra.Command {
	var (
		top         int
		symbol      string
		kinds       string
		projectOnly bool
	)
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List visible declarations ranked by how often they are referenced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kindFilter, unknown := ranking.ParseKinds(kinds)
			if len(unknown) > 0 {
				return fmt.Errorf("unsupported kind %q", strings.Join(unknown, ","))
			}

			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			decls := a.repo.Catalog()
			if projectOnly {
				decls = a.repo.ProjectDeclarations()
			}
			decls = graph.Rank(decls)
			decls = ranking.FilterByKind(decls, kindFilter...)
			if symbol != "" {
				decls = ranking.FilterBySymbol(decls, symbol)
			}
			decls = ranking.Top(decls, top)

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), toon.EncodeDeclarations("catalog", decls, a.repo.Status))
			return nil
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 0, "maximum number of declarations to list")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "only declarations matching this name, with their callers and callees")
	cmd.Flags().StringVarP(&kinds, "kind", "k", "", "comma-separated kinds to list (type, method, test)")
	cmd.Flags().BoolVarP(&projectOnly, "project", "p", false, "omit library declarations")
	return cmd
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Reconcile a source file with the store and commit the changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			text, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			reply, err := a.session.Send(cmd.Context(), session.Message{
				Kind:    session.EditContent,
				Text:    string(text),
				Dialect: a.dialectFor(opts, path),
			})
			if err != nil {
				return err
			}
			if err := writeReply(out, reply); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if dryRun {
				pending, err := a.session.Send(cmd.Context(), session.Message{Kind: session.PrepareCommit})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, toon.EncodeBatch(pending.Batch))
				return nil
			}
			return commit(cmd, a)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the pending batch without committing it")
	return cmd
}

func newDestroyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <id>",
		Short: "Delete a declaration from the store",
		Long: `Delete a declaration by identity: its name, or name/proto for methods
(for example "greet/name string"). The declaration is marked DELETED and the
deletion is committed at once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			reply, err := a.session.Send(cmd.Context(), session.Message{Kind: session.Destroy, ID: args[0]})
			if err != nil {
				return err
			}
			if reply.Delta != nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), toon.EncodeDelta(reply.Delta))
			}
			return commit(cmd, a)
		},
	}
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the project's declarations and their edit status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "module: %s\n", a.cfg.Module)
			_, _ = fmt.Fprintf(out, "moduleId: %s\n", a.moduleID)
			_, _ = fmt.Fprintln(out, toon.EncodeDeclarations("declarations", a.repo.ProjectDeclarations(), a.repo.Status))

			reply, err := a.session.Send(cmd.Context(), session.Message{Kind: session.PrepareCommit})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, toon.EncodeBatch(reply.Batch))
			return nil
		},
	}
}

// commit sends a Commit message and prints what it changed.
func commit(cmd *cobra.Command, a *app) error {
	reply, err := a.session.Send(cmd.Context(), session.Message{Kind: session.Commit})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if reply.Batch == nil {
		_, _ = fmt.Fprintln(out, "committed: 0")
		return nil
	}
	_, _ = fmt.Fprintf(out, "committed: %d\n", len(reply.Acks))
	if reply.Delta != nil {
		_, _ = fmt.Fprintln(out, toon.EncodeDelta(reply.Delta))
	}
	return nil
}

// writeReply prints an edit reply. It fails when the edit was rejected.
func writeReply(out io.Writer, reply session.Reply) error {
	if len(reply.Problems) > 0 {
		_, _ = fmt.Fprintln(out, toon.EncodeDiagnostics(reply.Problems))
	}
	if reply.Problems.HasErrors() && reply.Delta == nil {
		return rejected(reply.Problems)
	}
	_, _ = fmt.Fprintln(out, toon.EncodeDelta(reply.Delta))
	return nil
}

func rejected(problems diag.List) error {
	return fmt.Errorf("%d syntax, %d semantic problems", problems.Count(diag.Syntax), problems.Count(diag.Semantic))
}
