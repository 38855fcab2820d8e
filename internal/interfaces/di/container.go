package di

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/application/services"
	"kilometers.ai/appdeploy/internal/infrastructure/config"
	"kilometers.ai/appdeploy/internal/infrastructure/definition"
	"kilometers.ai/appdeploy/internal/infrastructure/filesystem"
	"kilometers.ai/appdeploy/internal/infrastructure/history"
	"kilometers.ai/appdeploy/internal/infrastructure/logging"
	"kilometers.ai/appdeploy/internal/infrastructure/metrics"
	"kilometers.ai/appdeploy/internal/infrastructure/packaging"
	"kilometers.ai/appdeploy/internal/infrastructure/process"
	"kilometers.ai/appdeploy/internal/interfaces/cli"
)

// HistoryFileName is the run history database inside the config directory
const HistoryFileName = "history.db"

// Options configure the container from the global CLI flags
type Options struct {
	ConfigPath string
	LogLevel   string
	NoColor    bool

	// LogOutput defaults to os.Stderr
	LogOutput io.Writer
}

// Container holds all application dependencies
type Container struct {
	// Configuration
	ConfigRepo    *config.CompositeConfigRepository
	ConfigService *services.ConfigurationService

	// Core services
	DeploymentService *services.DeploymentService

	// Infrastructure
	Executor    *process.Executor
	Cleaner     *filesystem.Cleaner
	Packager    *packaging.TarGzPackager
	Definitions *definition.YAMLLoader
	History     ports.ReportRepository
	Metrics     ports.MetricsRecorder

	// CLI
	CLIContainer *cli.CLIContainer

	// Logger
	Logger *logging.HclogGateway
}

// NewContainer creates and configures the dependency injection container
func NewContainer(opts Options) (*Container, error) {
	container := &Container{}

	if err := container.initializeComponents(opts); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return container, nil
}

// initializeComponents initializes all components with proper dependencies
func (c *Container) initializeComponents(opts Options) error {
	// 1. Initialize configuration repository
	c.ConfigRepo = config.NewCompositeConfigRepository(opts.ConfigPath)

	// 2. Load configuration. Commands load it again and report its errors;
	// here it only selects the log level and storage locations.
	appConfig, loadErr := c.ConfigRepo.Load()
	if loadErr != nil {
		appConfig = c.ConfigRepo.LoadDefault()
	}

	// 3. Initialize logging
	output := opts.LogOutput
	if output == nil {
		output = os.Stderr
	}
	c.Logger = logging.NewHclogGateway(logging.Options{
		Level:   logLevel(opts.LogLevel, appConfig),
		Output:  output,
		NoColor: opts.NoColor,
	})
	if loadErr != nil {
		c.Logger.Log(ports.LogLevelDebug, "Configuration not loaded, using defaults", map[string]interface{}{
			"config_path": c.ConfigRepo.GetConfigPath(),
			"error":       loadErr.Error(),
		})
	}

	// 4. Initialize infrastructure components
	c.Executor = process.NewExecutor()
	c.Cleaner = filesystem.NewCleaner(c.Logger)
	c.Packager = packaging.NewTarGzPackager(c.Logger)
	c.Definitions = definition.NewYAMLLoader()
	c.History = c.openHistory(appConfig)

	if appConfig.MetricsFile != "" {
		c.Metrics = metrics.NewTextfileRecorder(filesystem.ExpandPath(appConfig.MetricsFile))
	}

	// 5. Initialize application services
	c.ConfigService = services.NewConfigurationService(c.ConfigRepo, c.Logger)
	c.DeploymentService = services.NewDeploymentService(services.DeploymentDependencies{
		ConfigRepo:  c.ConfigRepo,
		Runner:      c.Executor,
		Packager:    c.Packager,
		Cleaner:     c.Cleaner,
		Definitions: c.Definitions,
		Reports:     c.History,
		Metrics:     c.Metrics,
		Logger:      c.Logger,
	})

	// 6. Initialize CLI container
	c.CLIContainer = &cli.CLIContainer{
		ConfigService:     c.ConfigService,
		DeploymentService: c.DeploymentService,
		Logger:            c.Logger,
		Output:            c.Executor,
		Shutdown:          c.Shutdown,
	}

	c.Logger.Log(ports.LogLevelDebug, "Dependency injection container initialized", map[string]interface{}{
		"config_path": c.ConfigRepo.GetConfigPath(),
	})
	return nil
}

// openHistory opens the SQLite run history, falling back to memory so a
// broken history never blocks a deployment
func (c *Container) openHistory(appConfig *ports.Configuration) ports.ReportRepository {
	path := HistoryPath(appConfig)

	store, err := history.NewSQLiteStore(path)
	if err != nil {
		c.Logger.LogError(err, "Run history unavailable, keeping runs in memory", map[string]interface{}{
			"history_path": path,
		})
		return history.NewInMemoryStore()
	}
	return store
}

// HistoryPath returns the configured history database path or the default
// one in the config directory
func HistoryPath(appConfig *ports.Configuration) string {
	if appConfig.HistoryPath != "" {
		return filesystem.ExpandPath(appConfig.HistoryPath)
	}
	return filepath.Join(config.DefaultConfigDir(), HistoryFileName)
}

// logLevel picks the flag value, then the configured level, then info.
// Debug configuration lowers the level to debug.
func logLevel(flag string, appConfig *ports.Configuration) ports.LogLevel {
	if level, ok := ports.ParseLogLevel(flag); ok {
		return level
	}
	if appConfig.Debug {
		return ports.LogLevelDebug
	}
	if level, ok := ports.ParseLogLevel(appConfig.LogLevel); ok {
		return level
	}
	return ports.LogLevelInfo
}

// GetCLIContainer returns the CLI container for command execution
func (c *Container) GetCLIContainer() *cli.CLIContainer {
	return c.CLIContainer
}

// Factory adapts NewContainer to the CLI's container factory. opts supplies
// defaults the global flags do not cover.
func Factory(opts Options) cli.ContainerFactory {
	return func(global cli.GlobalOptions) (*cli.CLIContainer, error) {
		opts.ConfigPath = global.ConfigPath
		opts.LogLevel = global.LogLevel
		opts.NoColor = global.NoColor

		container, err := NewContainer(opts)
		if err != nil {
			return nil, err
		}
		return container.GetCLIContainer(), nil
	}
}

// Shutdown releases the history store
func (c *Container) Shutdown(ctx context.Context) error {
	if c.History == nil {
		return nil
	}
	if err := c.History.Close(); err != nil {
		return fmt.Errorf("failed to close run history: %w", err)
	}
	return nil
}

// GetVersion returns version information
func (c *Container) GetVersion() map[string]string {
	return map[string]string{
		"version":    cli.Version,
		"build_time": cli.BuildTime,
	}
}
