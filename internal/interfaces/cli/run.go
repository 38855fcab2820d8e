package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"kilometers.ai/appdeploy/internal/application/commands"
	"kilometers.ai/appdeploy/internal/application/services"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// RunFlags holds command-line flags for the run command
type RunFlags struct {
	ViewFlags
	File        string
	BuildNumber string
	DryRun      bool
}

// NewRunCommand creates the run command
func NewRunCommand(a *app) *cobra.Command {
	flags := &RunFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline declared in a YAML file",
		Long: `Run the steps declared in a pipeline definition file.

Each step runs an external command. Steps run in order and the first
failing step that is not marked optional stops the run.

  name: release
  steps:
    - name: lint
      run: ["make", "lint"]
      optional: true
    - name: build
      run: ["make", "build", "BUILD={{.BuildNumber}}"]
      dir: ./src

Examples:
  appdeploy run -f pipeline.yaml
  appdeploy run -f pipeline.yaml --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.File == "" {
				return newUsageError(errors.New("a definition file is required (-f FILE)"))
			}
			if err := validateOutputFormat(flags.Output); err != nil {
				return err
			}

			c, err := a.services()
			if err != nil {
				return err
			}

			runCmd := commands.NewRunDefinitionCommand(flags.File)
			runCmd.BuildNumber = flags.BuildNumber
			runCmd.DryRun = flags.DryRun

			return executeRun(cmd, a, c, flags.ViewFlags, flags.File, !flags.DryRun,
				func(ctx context.Context, listeners ...pipeline.Listener) (*services.RunOutcome, error) {
					return c.DeploymentService.RunDefinition(ctx, runCmd, listeners...)
				})
		},
	}

	cmd.Flags().StringVarP(&flags.File, "file", "f", "", "Pipeline definition file")
	cmd.Flags().StringVar(&flags.BuildNumber, "build-number", "", "Build number (default is a UTC timestamp)")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "Show the planned steps without running them")
	flags.ViewFlags.register(cmd)

	return cmd
}
