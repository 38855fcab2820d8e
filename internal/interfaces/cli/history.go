package cli

import (
	"io"

	"github.com/spf13/cobra"

	"kilometers.ai/appdeploy/internal/application/commands"
)

// HistoryFlags holds command-line flags for the history command
type HistoryFlags struct {
	Limit  int
	Output string
}

// NewHistoryCommand creates the history command
func NewHistoryCommand(a *app) *cobra.Command {
	flags := &HistoryFlags{}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded pipeline runs",
		Long: `List recent pipeline runs, newest first, or show the step results of
one run.

Examples:
  appdeploy history              # Last 20 runs
  appdeploy history --limit 5    # Last 5 runs
  appdeploy history <run-id>     # Step results of one run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(flags.Output); err != nil {
				return err
			}

			c, err := a.services()
			if err != nil {
				return err
			}

			runID := ""
			if len(args) > 0 {
				runID = args[0]
			}

			reports, err := c.DeploymentService.History(cmd.Context(), commands.NewShowHistoryCommand(runID, flags.Limit))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.Output == OutputJSON {
				return writeJSON(out, commands.NewSuccessResult("history", reports))
			}

			st := newStyles(out, a.opts.NoColor)
			if runID != "" {
				_, err = io.WriteString(out, renderReport(st, reports[0], nil))
				return err
			}
			_, err = io.WriteString(out, renderHistory(st, reports))
			return err
		},
	}

	cmd.Flags().IntVarP(&flags.Limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", OutputText, "Output format: text or json")

	return cmd
}
