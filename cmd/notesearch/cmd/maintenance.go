package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notesearch/internal/guard"
	"github.com/Aman-CERP/notesearch/internal/notes"
	"github.com/Aman-CERP/notesearch/internal/output"
)

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <note-path>...",
		Short: "Remove notes from the index",
		Long:  `Remove notes from the index by their path relative to the notes directory.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withGuard(cmd.Context(), nil, func(ctx context.Context, g *guard.Guard) error {
				for _, p := range args {
					if err := g.DeleteDocuments(ctx, notes.PathTerm(filepath.ToSlash(p))); err != nil {
						return err
					}
				}
				if err := g.Commit(ctx); err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				out.Successf("Deleted %d note(s)", len(args))
				return out.Err()
			})
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every document from the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withGuard(cmd.Context(), nil, func(ctx context.Context, g *guard.Guard) error {
				if err := g.DeleteAll(ctx); err != nil {
					return err
				}
				if err := g.Commit(ctx); err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				out.Successf("Index cleared")
				return out.Err()
			})
		},
	}
}

func newOptimizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Compact the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withGuard(cmd.Context(), nil, func(ctx context.Context, g *guard.Guard) error {
				if err := g.Optimize(ctx); err != nil {
					return err
				}
				if err := g.Commit(ctx); err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				out.Successf("Index optimized")
				return out.Err()
			})
		},
	}
}
