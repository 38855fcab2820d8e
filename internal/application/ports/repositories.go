package ports

import (
	"context"
	"errors"

	"kilometers.ai/appdeploy/internal/core/deployment"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

var (
	// ErrReportNotFound is returned when a run ID is unknown to the repository
	ErrReportNotFound = errors.New("report not found")

	// ErrInvalidConfiguration is returned when configuration fails validation
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ReportRepository defines the interface for pipeline report persistence
type ReportRepository interface {
	// Save persists a finished report
	Save(ctx context.Context, report *pipeline.Report) error

	// FindByID retrieves a report by its run ID
	FindByID(ctx context.Context, runID string) (*pipeline.Report, error)

	// FindRecent retrieves the most recent reports, newest first
	FindRecent(ctx context.Context, limit int) ([]*pipeline.Report, error)

	// Close releases the underlying storage
	Close() error
}

// ConfigurationRepository defines the interface for configuration persistence
type ConfigurationRepository interface {
	// Load retrieves the current configuration
	Load() (*Configuration, error)

	// Save persists the configuration
	Save(config *Configuration) error

	// LoadDefault returns the default configuration
	LoadDefault() *Configuration

	// Validate validates the configuration
	Validate(config *Configuration) error

	// GetConfigPath returns the path to the configuration file
	GetConfigPath() string
}

// DefinitionLoader loads pipeline definitions from files
type DefinitionLoader interface {
	Load(path string) (*deployment.Definition, error)
}

// Configuration represents the application configuration
type Configuration struct {
	AppName           string         `json:"app_name" yaml:"app_name" koanf:"app_name"`
	Version           string         `json:"version,omitempty" yaml:"version,omitempty" koanf:"version"`
	ProjectDir        string         `json:"project_dir" yaml:"project_dir" koanf:"project_dir"`
	SourceDir         string         `json:"source_dir" yaml:"source_dir" koanf:"source_dir"`
	PackageDir        string         `json:"package_dir" yaml:"package_dir" koanf:"package_dir"`
	CleanDirs         []string       `json:"clean_dirs" yaml:"clean_dirs" koanf:"clean_dirs"`
	BuildNumberLayout string         `json:"build_number_layout" yaml:"build_number_layout" koanf:"build_number_layout"`
	DebugClient       string         `json:"debug_client,omitempty" yaml:"debug_client,omitempty" koanf:"debug_client"`
	StepTimeout       int            `json:"step_timeout_seconds" yaml:"step_timeout_seconds" koanf:"step_timeout_seconds"`
	Commands          CommandsConfig `json:"commands" yaml:"commands" koanf:"commands"`
	Debug             bool           `json:"debug" yaml:"debug" koanf:"debug"`
	LogLevel          string         `json:"log_level" yaml:"log_level" koanf:"log_level"`
	HistoryPath       string         `json:"history_path,omitempty" yaml:"history_path,omitempty" koanf:"history_path"`
	MetricsFile       string         `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty" koanf:"metrics_file"`
}

// CommandsConfig holds the external command for each deployment step
type CommandsConfig struct {
	Build   deployment.CommandSpec `json:"build" yaml:"build" koanf:"build"`
	Package deployment.CommandSpec `json:"package" yaml:"package" koanf:"package"`
	Install deployment.CommandSpec `json:"install" yaml:"install" koanf:"install"`
	Restart deployment.CommandSpec `json:"restart" yaml:"restart" koanf:"restart"`
}
