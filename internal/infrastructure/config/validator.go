package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/core/deployment"
	"kilometers.ai/appdeploy/internal/infrastructure/filesystem"
)

// ConfigValidator validates configuration values
type ConfigValidator struct {
	appNamePattern *regexp.Regexp
}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		// App names end up in archive file names
		appNamePattern: regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`),
	}
}

// ValidateAppName validates an app name. Empty is allowed here; deploying
// requires one.
func (v *ConfigValidator) ValidateAppName(name string) error {
	if name == "" {
		return nil
	}

	if len(name) > 128 {
		return fmt.Errorf("app name too long (maximum 128 characters)")
	}

	if !v.appNamePattern.MatchString(name) {
		return fmt.Errorf("invalid app name: %s (letters, digits, '.', '_' and '-' only)", name)
	}

	return nil
}

// ValidateLogLevel validates log level value
func (v *ConfigValidator) ValidateLogLevel(level string) error {
	if level == "" {
		return nil
	}

	if _, ok := ports.ParseLogLevel(level); !ok {
		return fmt.Errorf("invalid log level: %s (valid levels: debug, info, warn, error)", level)
	}

	return nil
}

// ValidateBuildNumberLayout checks that a time layout produces usable,
// time-dependent build numbers.
func (v *ConfigValidator) ValidateBuildNumberLayout(layout string) error {
	if layout == "" {
		return nil
	}

	first := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	second := time.Date(2011, 12, 13, 14, 15, 16, 0, time.UTC)

	a := deployment.TimestampBuildNumber(first, layout)
	if _, err := deployment.NewBuildNumber(a.Value()); err != nil {
		return fmt.Errorf("layout %q produces an invalid build number: %w", layout, err)
	}

	if a == deployment.TimestampBuildNumber(second, layout) {
		return fmt.Errorf("layout %q does not contain any time fields", layout)
	}

	return nil
}

// ValidateCommand validates one configured step command
func (v *ConfigValidator) ValidateCommand(spec deployment.CommandSpec) error {
	if spec.IsZero() {
		return nil
	}

	if strings.TrimSpace(spec.Args[0]) == "" {
		return fmt.Errorf("command executable cannot be empty")
	}

	for key := range spec.Env {
		if key == "" || strings.ContainsAny(key, "= ") {
			return fmt.Errorf("invalid environment variable name: %q", key)
		}
	}

	return nil
}

// ValidateParentDir checks that a file path could be created: the path is
// not an existing directory and its parent exists or can be created.
func (v *ConfigValidator) ValidateParentDir(path string) error {
	if path == "" {
		// Empty is OK, will use default
		return nil
	}

	expandedPath := filesystem.ExpandPath(path)

	if info, err := os.Stat(expandedPath); err == nil && info.IsDir() {
		return fmt.Errorf("path exists but is a directory: %s", path)
	}

	dir := filepath.Dir(expandedPath)
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("parent path is not a directory: %s", dir)
			}
			return nil
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to check %s: %w", dir, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

// ValidateTimeout validates the per-step timeout in seconds
func (v *ConfigValidator) ValidateTimeout(seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("step timeout cannot be negative")
	}

	if time.Duration(seconds)*time.Second > 24*time.Hour {
		return fmt.Errorf("step timeout too long (maximum 24h)")
	}

	return nil
}

// ValidateCleanDirs rejects clean targets outside the project directory
func (v *ConfigValidator) ValidateCleanDirs(dirs []string) error {
	for _, dir := range dirs {
		if err := deployment.ValidateCleanDir(dir); err != nil {
			return err
		}
	}

	return nil
}

// ValidateAll validates all fields of a configuration
func (v *ConfigValidator) ValidateAll(config *ports.Configuration) map[string]error {
	errors := make(map[string]error)

	if err := v.ValidateAppName(config.AppName); err != nil {
		errors["app_name"] = err
	}

	if err := v.ValidateLogLevel(config.LogLevel); err != nil {
		errors["log_level"] = err
	}

	if err := v.ValidateBuildNumberLayout(config.BuildNumberLayout); err != nil {
		errors["build_number_layout"] = err
	}

	if err := v.ValidateTimeout(config.StepTimeout); err != nil {
		errors["step_timeout_seconds"] = err
	}

	if err := v.ValidateCleanDirs(config.CleanDirs); err != nil {
		errors["clean_dirs"] = err
	}

	commands := map[string]deployment.CommandSpec{
		"commands.build":   config.Commands.Build,
		"commands.package": config.Commands.Package,
		"commands.install": config.Commands.Install,
		"commands.restart": config.Commands.Restart,
	}
	for field, spec := range commands {
		if err := v.ValidateCommand(spec); err != nil {
			errors[field] = err
		}
	}

	if err := v.ValidateParentDir(config.HistoryPath); err != nil {
		errors["history_path"] = err
	}

	if err := v.ValidateParentDir(config.MetricsFile); err != nil {
		errors["metrics_file"] = err
	}

	return errors
}
