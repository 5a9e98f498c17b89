package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notesearch/internal/guard"
	"github.com/Aman-CERP/notesearch/internal/output"
)

// StatsOutput is the JSON output format for index stats.
type StatsOutput struct {
	Backend   string `json:"backend"`
	Directory string `json:"directory"`
	Documents int    `json:"documents"`
	Permits   int    `json:"permits"`
}

func newStatsCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withGuard(cmd.Context(), nil, func(ctx context.Context, g *guard.Guard) error {
				n, err := g.NumDocs(ctx)
				if err != nil {
					return err
				}
				dir, err := g.Directory(ctx)
				if err != nil {
					return err
				}

				out := StatsOutput{
					Backend:   string(dir.Backend),
					Directory: dir.Path,
					Documents: n,
					Permits:   g.Capacity(),
				}
				w := output.New(cmd.OutOrStdout())
				if jsonOutput {
					w.JSON(out)
					return w.Err()
				}
				w.Field("Backend", out.Backend)
				w.Field("Directory", out.Directory)
				w.Field("Documents", out.Documents)
				w.Field("Permits", out.Permits)
				return w.Err()
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
