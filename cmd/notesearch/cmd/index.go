package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notesearch/internal/guard"
	"github.com/Aman-CERP/notesearch/internal/notes"
	"github.com/Aman-CERP/notesearch/internal/output"
)

func newIndexCmd(a *app) *cobra.Command {
	var rebuild bool
	var jsonOutput bool
	var trace bool

	cmd := &cobra.Command{
		Use:   "index <notes-dir>",
		Short: "Index every note in a directory",
		Long: `Index every note under <notes-dir> and commit.

Notes whose content has not changed since the last run in this process are
skipped. Use --rebuild to clear the index first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withGuard(cmd.Context(), nil, func(ctx context.Context, g *guard.Guard) error {
				if err := traceWrites(ctx, g, cmd, trace); err != nil {
					return err
				}
				ix, err := a.newIndexer(g, args[0])
				if err != nil {
					return err
				}

				var stats notes.Stats
				if rebuild {
					stats, err = ix.Rebuild(ctx)
				} else {
					stats, err = ix.IndexDir(ctx)
				}
				if err != nil {
					return err
				}
				return printIndexStats(cmd.OutOrStdout(), ix.Root(), stats, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Delete all documents before indexing")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&trace, "trace", false, "Trace every index write to stderr")

	return cmd
}

// traceWrites points the writer's info stream at stderr when enabled.
func traceWrites(ctx context.Context, g *guard.Guard, cmd *cobra.Command, enabled bool) error {
	if !enabled {
		return nil
	}
	return g.SetInfoStream(ctx, cmd.ErrOrStderr())
}

func (a *app) newIndexer(g *guard.Guard, dir string) (*notes.Indexer, error) {
	return notes.NewIndexer(g, dir,
		notes.WithWorkers(g.Capacity()),
		notes.WithExtensions(a.cfg.Watch.Extensions),
		notes.WithIgnore(a.cfg.Watch.Ignore),
		notes.WithLogger(a.logger))
}

func printIndexStats(w io.Writer, root string, stats notes.Stats, jsonOutput bool) error {
	out := output.New(w)
	if jsonOutput {
		out.JSON(stats)
		return out.Err()
	}
	out.Successf("Indexed %d notes from %s (%d unchanged, %d skipped)",
		stats.Indexed, root, stats.Unchanged, stats.Skipped)
	if stats.Deleted > 0 {
		out.Status("", fmt.Sprintf("%d note(s) removed from the index", stats.Deleted))
	}
	return out.Err()
}
