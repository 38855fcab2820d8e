package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/core/deployment"
)

const (
	// EnvPrefix prefixes every environment variable read as configuration
	EnvPrefix = "APPDEPLOY_"

	// ConfigPathEnv names the variable that overrides the config file path
	ConfigPathEnv = EnvPrefix + "CONFIG"
)

// CompositeConfigRepository implements the ConfigurationRepository interface
type CompositeConfigRepository struct {
	sources    []ConfigSource
	cache      *ConfigCache
	configPath string
	validator  *ConfigValidator
}

// ConfigSource defines the interface for configuration sources. Each source
// loads its keys into a shared koanf instance.
type ConfigSource interface {
	Load(k *koanf.Koanf) error
	Priority() int
	Name() string
}

// ConfigCache provides caching for configuration
type ConfigCache struct {
	config    *ports.Configuration
	timestamp time.Time
	ttl       time.Duration
}

// NewCompositeConfigRepository creates a new configuration repository. An
// empty configPath falls back to $APPDEPLOY_CONFIG, then the default path.
func NewCompositeConfigRepository(configPath string) *CompositeConfigRepository {
	if configPath == "" {
		configPath = os.Getenv(ConfigPathEnv)
	}
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	repo := &CompositeConfigRepository{
		sources: make([]ConfigSource, 0),
		cache: &ConfigCache{
			ttl: 5 * time.Minute,
		},
		configPath: configPath,
		validator:  NewConfigValidator(),
	}

	// Add default sources in priority order
	repo.AddSource(NewEnvironmentConfigSource(EnvPrefix, ".env"))
	repo.AddSource(NewFileConfigSource(repo.configPath))

	return repo
}

// AddSource adds a configuration source
func (r *CompositeConfigRepository) AddSource(source ConfigSource) {
	r.sources = append(r.sources, source)
	r.cache.config = nil
}

// Load retrieves the current configuration: defaults, overridden by every
// source from the lowest priority to the highest.
func (r *CompositeConfigRepository) Load() (*ports.Configuration, error) {
	// Check cache first
	if r.cache.config != nil && time.Since(r.cache.timestamp) < r.cache.ttl {
		return r.cache.config, nil
	}

	// Lower number = higher priority, so it is loaded last
	sortedSources := make([]ConfigSource, len(r.sources))
	copy(sortedSources, r.sources)
	sort.SliceStable(sortedSources, func(i, j int) bool {
		return sortedSources[i].Priority() > sortedSources[j].Priority()
	})

	k := koanf.New(".")
	for _, source := range sortedSources {
		if err := source.Load(k); err != nil {
			return nil, fmt.Errorf("failed to load %s configuration: %w", source.Name(), err)
		}
	}

	config := r.LoadDefault()
	if err := k.Unmarshal("", config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Validate final configuration
	if err := r.Validate(config); err != nil {
		return nil, err
	}

	// Cache the result
	r.cache.config = config
	r.cache.timestamp = time.Now()

	return config, nil
}

// Save persists the configuration as YAML
func (r *CompositeConfigRepository) Save(config *ports.Configuration) error {
	if err := r.Validate(config); err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(r.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yamlv3.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(r.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	// Invalidate cache
	r.cache.config = nil

	return nil
}

// LoadDefault returns the default configuration
func (r *CompositeConfigRepository) LoadDefault() *ports.Configuration {
	return &ports.Configuration{
		ProjectDir:        ".",
		SourceDir:         ".",
		PackageDir:        "dist",
		CleanDirs:         []string{"build", "dist"},
		BuildNumberLayout: deployment.DefaultBuildNumberLayout,
		LogLevel:          "info",
	}
}

// Validate validates the configuration
func (r *CompositeConfigRepository) Validate(config *ports.Configuration) error {
	if config == nil {
		return fmt.Errorf("%w: configuration cannot be nil", ports.ErrInvalidConfiguration)
	}

	fieldErrors := r.validator.ValidateAll(config)
	if len(fieldErrors) == 0 {
		return nil
	}

	fields := make([]string, 0, len(fieldErrors))
	for field := range fieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	errs := make([]error, 0, len(fields))
	for _, field := range fields {
		errs = append(errs, fmt.Errorf("%s: %w", field, fieldErrors[field]))
	}

	return fmt.Errorf("%w: %w", ports.ErrInvalidConfiguration, errors.Join(errs...))
}

// GetConfigPath returns the path to the configuration file
func (r *CompositeConfigRepository) GetConfigPath() string {
	return r.configPath
}

// BackupConfig copies the current configuration file aside and returns the
// backup path, or "" when there is no file to back up.
func (r *CompositeConfigRepository) BackupConfig() (string, error) {
	if _, err := os.Stat(r.configPath); os.IsNotExist(err) {
		return "", nil
	}

	backupPath := r.configPath + ".backup." + time.Now().Format("20060102-150405")

	data, err := os.ReadFile(r.configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config file for backup: %w", err)
	}

	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}

	return backupPath, nil
}

// FileConfigSource loads configuration from a YAML or JSON file
type FileConfigSource struct {
	filePath string
}

// NewFileConfigSource creates a new file configuration source
func NewFileConfigSource(filePath string) *FileConfigSource {
	return &FileConfigSource{
		filePath: filePath,
	}
}

// Load loads configuration from file. A missing file contributes nothing.
func (f *FileConfigSource) Load(k *koanf.Koanf) error {
	if _, err := os.Stat(f.filePath); os.IsNotExist(err) {
		return nil
	}

	// JSON is a subset of YAML, so one parser reads both
	if err := k.Load(file.Provider(f.filePath), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", f.filePath, err)
	}

	return nil
}

// Priority returns the priority of this source (lower number = higher priority)
func (f *FileConfigSource) Priority() int {
	return 100 // Low priority
}

// Name returns the name of this source
func (f *FileConfigSource) Name() string {
	return "file"
}

// EnvironmentConfigSource loads configuration from prefixed environment
// variables. APPDEPLOY_LOG_LEVEL sets log_level; a double underscore
// descends into nested keys, e.g. APPDEPLOY_COMMANDS__BUILD__DIR. List keys
// take comma-separated clean dirs or whitespace-separated command args.
type EnvironmentConfigSource struct {
	prefix   string
	dotenvs  []string
	excluded map[string]bool
}

// NewEnvironmentConfigSource creates a new environment configuration source.
// Any dotenv files that exist are loaded into the environment first; they
// never override variables that are already set.
func NewEnvironmentConfigSource(prefix string, dotenvFiles ...string) *EnvironmentConfigSource {
	return &EnvironmentConfigSource{
		prefix:   prefix,
		dotenvs:  dotenvFiles,
		excluded: map[string]bool{ConfigPathEnv: true},
	}
}

// Load loads configuration from environment variables
func (e *EnvironmentConfigSource) Load(k *koanf.Koanf) error {
	existing := make([]string, 0, len(e.dotenvs))
	for _, path := range e.dotenvs {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return fmt.Errorf("failed to load dotenv: %w", err)
		}
	}

	return k.Load(env.ProviderWithValue(e.prefix, ".", func(s, v string) (string, interface{}) {
		if e.excluded[s] {
			return "", nil
		}
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, e.prefix)), "__", ".")
		return key, envValue(key, v)
	}), nil)
}

// envValue splits list-valued keys: clean_dirs on commas and command args
// on whitespace.
func envValue(key, value string) interface{} {
	switch {
	case key == "clean_dirs":
		var dirs []string
		for _, dir := range strings.Split(value, ",") {
			if dir = strings.TrimSpace(dir); dir != "" {
				dirs = append(dirs, dir)
			}
		}
		return dirs
	case strings.HasPrefix(key, "commands.") && strings.HasSuffix(key, ".args"):
		return strings.Fields(value)
	}
	return value
}

// Priority returns the priority of this source (lower number = higher priority)
func (e *EnvironmentConfigSource) Priority() int {
	return 10 // High priority
}

// Name returns the name of this source
func (e *EnvironmentConfigSource) Name() string {
	return "environment"
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultConfigDir returns the directory holding configuration and history
func DefaultConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory
		return ".appdeploy"
	}

	return filepath.Join(homeDir, ".config", "appdeploy")
}
