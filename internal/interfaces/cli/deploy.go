package cli

import (
	"context"

	"github.com/spf13/cobra"

	"kilometers.ai/appdeploy/internal/application/commands"
	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/application/services"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// ViewFlags select how a run is shown
type ViewFlags struct {
	TUI    bool
	Output string
}

func (f *ViewFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.TUI, "tui", false, "Show live step progress in an interactive view")
	cmd.Flags().StringVarP(&f.Output, "output", "o", OutputText, "Output format: text or json")
}

// DeployFlags holds command-line flags for the deploy command
type DeployFlags struct {
	ViewFlags
	Clean       bool
	Debug       bool
	BuildNumber string
	DryRun      bool
}

// NewDeployCommand creates the deploy command
func NewDeployCommand(a *app) *cobra.Command {
	flags := &DeployFlags{}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Clean, build, package, install and restart the app",
		Long: `Run the configured deployment sequence.

Steps run in order: clean (with --clean), build, package, install and
restart. Build, install and restart run the commands configured under
"commands"; package uses the configured command or, when none is set,
archives source_dir into package_dir as a .tgz.

Examples:
  appdeploy deploy                       # Build, package, install, restart
  appdeploy deploy --clean               # Remove clean_dirs first
  appdeploy deploy --debug               # Bundle the debug client
  appdeploy deploy --build-number 1042   # Use an explicit build number
  appdeploy deploy --dry-run             # Show the plan without running it`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(flags.Output); err != nil {
				return err
			}

			c, err := a.services()
			if err != nil {
				return err
			}

			deployCmd := commands.NewDeployCommand(flags.Clean, flags.Debug)
			deployCmd.BuildNumber = flags.BuildNumber
			deployCmd.DryRun = flags.DryRun

			if flags.Debug && c.Logger != nil {
				c.Logger.SetLogLevel(ports.LogLevelDebug)
			}

			return executeRun(cmd, a, c, flags.ViewFlags, "deploy", !flags.DryRun,
				func(ctx context.Context, listeners ...pipeline.Listener) (*services.RunOutcome, error) {
					return c.DeploymentService.Deploy(ctx, deployCmd, listeners...)
				})
		},
	}

	cmd.Flags().BoolVar(&flags.Clean, "clean", false, "Remove the configured clean_dirs before building")
	cmd.Flags().BoolVar(&flags.Debug, "debug", false, "Build in debug mode and bundle the debug client")
	cmd.Flags().StringVar(&flags.BuildNumber, "build-number", "", "Build number (default is a UTC timestamp)")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "Show the planned steps without running them")
	flags.ViewFlags.register(cmd)

	return cmd
}

// executeRun runs a pipeline with the requested view and renders its
// outcome. The run's own error is returned after rendering so the exit
// code reflects the failing step.
func executeRun(cmd *cobra.Command, a *app, c *CLIContainer, view ViewFlags, title string, live bool, run runFunc) error {
	ctx := cmd.Context()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	if c.Output != nil {
		if view.Output == OutputJSON {
			c.Output.SetOutput(stderr, stderr)
		} else {
			c.Output.SetOutput(stdout, stderr)
		}
	}

	var (
		outcome *services.RunOutcome
		err     error
	)
	if view.TUI && live {
		outcome, err = runWithProgress(ctx, c, title, newStyles(stderr, a.opts.NoColor), cmd.InOrStdin(), stderr, run)
	} else {
		outcome, err = run(ctx)
	}

	if outcome == nil {
		return err
	}

	if renderErr := renderOutcome(stdout, view.Output, newStyles(stdout, a.opts.NoColor), outcome, err); renderErr != nil && err == nil {
		return renderErr
	}
	return err
}
