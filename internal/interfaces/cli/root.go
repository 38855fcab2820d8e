package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/application/services"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// OutputRouter redirects the output of external commands
type OutputRouter interface {
	SetOutput(stdout, stderr io.Writer)
}

// CLIContainer holds all the dependencies for CLI commands
type CLIContainer struct {
	ConfigService     *services.ConfigurationService
	DeploymentService *services.DeploymentService
	Logger            ports.LoggingGateway

	// Output is optional. When set, command output follows the CLI's
	// writers and moves to stderr for JSON output.
	Output OutputRouter

	// Shutdown is optional and runs once the command finished
	Shutdown func(ctx context.Context) error
}

// GlobalOptions are the persistent flags every command shares
type GlobalOptions struct {
	ConfigPath string
	LogLevel   string
	NoColor    bool
}

// ContainerFactory builds the dependencies once the global flags are parsed
type ContainerFactory func(opts GlobalOptions) (*CLIContainer, error)

// app carries state shared by every command of one invocation
type app struct {
	factory   ContainerFactory
	opts      GlobalOptions
	container *CLIContainer

	// started is set once argument and flag parsing succeeded
	started bool
}

// services returns the container, building it on first use
func (a *app) services() (*CLIContainer, error) {
	if a.container != nil {
		return a.container, nil
	}

	if a.opts.LogLevel != "" {
		if _, ok := ports.ParseLogLevel(a.opts.LogLevel); !ok {
			return nil, newUsageError(fmt.Errorf("invalid log level %q (use debug, info, warn or error)", a.opts.LogLevel))
		}
	}

	container, err := a.factory(a.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	a.container = container
	return container, nil
}

func (a *app) shutdown(ctx context.Context) error {
	if a.container == nil || a.container.Shutdown == nil {
		return nil
	}
	return a.container.Shutdown(ctx)
}

// NewRootCommand creates the appdeploy command tree
func NewRootCommand(factory ContainerFactory) *cobra.Command {
	return newRootCommand(&app{factory: factory})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "appdeploy",
		Short: "Sequential build, package and deploy pipeline",
		Long: `appdeploy runs an app's deployment as an ordered pipeline of steps:
clean, build, package, install and restart.

Steps run one at a time. A failing mandatory step stops the run and its exit
code becomes the process exit code; optional steps are recorded and skipped
past. Every run is kept in a local history.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.started = true
			return nil
		},
	}

	// Set custom version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return newUsageError(err)
	})

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&a.opts.ConfigPath, "config", "", "Config file path (default is $HOME/.config/appdeploy/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.opts.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&a.opts.NoColor, "no-color", false, "Disable colored output")

	// Add subcommands
	rootCmd.AddCommand(NewDeployCommand(a))
	rootCmd.AddCommand(NewRunCommand(a))
	rootCmd.AddCommand(NewHistoryCommand(a))
	rootCmd.AddCommand(NewConfigCommand(a))

	return rootCmd
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// Run executes the command tree with args and returns the process exit code
func Run(ctx context.Context, factory ContainerFactory, args []string, stdout, stderr io.Writer) int {
	a := &app{factory: factory}
	rootCmd := newRootCommand(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !a.started {
		// Cobra rejected the arguments before any command ran
		err = newUsageError(err)
	}

	if shutdownErr := a.shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
		fmt.Fprintf(stderr, "Warning: shutdown failed: %v\n", shutdownErr)
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return ExitCode(err)
}

// Execute runs the CLI against the process arguments and standard streams
func Execute(ctx context.Context, factory ContainerFactory) int {
	return Run(ctx, factory, os.Args[1:], os.Stdout, os.Stderr)
}
