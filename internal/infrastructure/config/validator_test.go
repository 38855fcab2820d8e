package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/core/deployment"
)

func TestConfigValidator_ValidateAppName(t *testing.T) {
	validator := NewConfigValidator()

	tests := []struct {
		name    string
		appName string
		wantErr bool
		errMsg  string
	}{
		{name: "simple_name", appName: "searchcommands", wantErr: false},
		{name: "dotted_and_dashed", appName: "TA-app_v2.1", wantErr: false},
		{name: "empty_is_allowed", appName: "", wantErr: false},
		{name: "leading_dash", appName: "-app", wantErr: true, errMsg: "invalid app name"},
		{name: "with_slash", appName: "apps/search", wantErr: true, errMsg: "invalid app name"},
		{name: "with_space", appName: "search commands", wantErr: true, errMsg: "invalid app name"},
		{name: "too_long", appName: strings.Repeat("a", 129), wantErr: true, errMsg: "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateAppName(tt.appName)

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigValidator_ValidateLogLevel(t *testing.T) {
	validator := NewConfigValidator()

	validLevels := []string{"debug", "info", "warn", "error", "DEBUG", " Info "}
	for _, level := range validLevels {
		t.Run("valid_"+level, func(t *testing.T) {
			assert.NoError(t, validator.ValidateLogLevel(level))
		})
	}

	invalidLevels := []string{"verbose", "trace", "fatal", "1"}
	for _, level := range invalidLevels {
		t.Run("invalid_"+level, func(t *testing.T) {
			err := validator.ValidateLogLevel(level)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "invalid log level")
		})
	}
}

func TestConfigValidator_ValidateBuildNumberLayout(t *testing.T) {
	validator := NewConfigValidator()

	tests := []struct {
		name    string
		layout  string
		wantErr bool
		errMsg  string
	}{
		{name: "default_layout", layout: deployment.DefaultBuildNumberLayout, wantErr: false},
		{name: "dashed_date", layout: "2006-01-02-150405", wantErr: false},
		{name: "empty_uses_default", layout: "", wantErr: false},
		{name: "no_time_fields", layout: "build", wantErr: true, errMsg: "does not contain any time fields"},
		{name: "contains_space", layout: "2006 01 02", wantErr: true, errMsg: "invalid build number"},
		{name: "contains_slash", layout: "2006/01/02", wantErr: true, errMsg: "invalid build number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateBuildNumberLayout(tt.layout)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigValidator_ValidateCommand(t *testing.T) {
	validator := NewConfigValidator()

	assert.NoError(t, validator.ValidateCommand(deployment.CommandSpec{}), "Unset command should be valid")
	assert.NoError(t, validator.ValidateCommand(deployment.CommandSpec{Args: []string{"make", "build"}}))

	err := validator.ValidateCommand(deployment.CommandSpec{Args: []string{" ", "build"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executable cannot be empty")

	err = validator.ValidateCommand(deployment.CommandSpec{Args: []string{"make"}, Env: map[string]string{"A=B": "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid environment variable name")
}

func TestConfigValidator_ValidateTimeout(t *testing.T) {
	validator := NewConfigValidator()

	tests := []struct {
		name    string
		seconds int
		wantErr bool
		errMsg  string
	}{
		{name: "disabled", seconds: 0, wantErr: false},
		{name: "ten_minutes", seconds: 600, wantErr: false},
		{name: "one_day", seconds: 86400, wantErr: false},
		{name: "negative", seconds: -1, wantErr: true, errMsg: "cannot be negative"},
		{name: "over_a_day", seconds: 86401, wantErr: true, errMsg: "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateTimeout(tt.seconds)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigValidator_ValidateCleanDirs(t *testing.T) {
	validator := NewConfigValidator()

	assert.NoError(t, validator.ValidateCleanDirs([]string{"build", "dist", "out/tmp"}))
	assert.NoError(t, validator.ValidateCleanDirs(nil))

	for _, dir := range []string{"", ".", "./", "..", "../sibling", "build/../../other", "/etc", "/usr/local", "~/builds"} {
		t.Run(dir, func(t *testing.T) {
			err := validator.ValidateCleanDirs([]string{"build", dir})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "below the project directory")
		})
	}
}

func TestConfigValidator_ValidateParentDir(t *testing.T) {
	validator := NewConfigValidator()
	tempDir := t.TempDir()

	existingFile := filepath.Join(tempDir, "file")
	require.NoError(t, os.WriteFile(existingFile, []byte("x"), 0644))

	assert.NoError(t, validator.ValidateParentDir(""))
	assert.NoError(t, validator.ValidateParentDir(filepath.Join(tempDir, "history.db")))
	assert.NoError(t, validator.ValidateParentDir(filepath.Join(tempDir, "new", "nested", "history.db")))

	err := validator.ValidateParentDir(tempDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")

	err = validator.ValidateParentDir(filepath.Join(existingFile, "history.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestConfigValidator_ValidateAll(t *testing.T) {
	validator := NewConfigValidator()

	t.Run("valid_config", func(t *testing.T) {
		config := &ports.Configuration{
			AppName:           "searchcommands",
			BuildNumberLayout: deployment.DefaultBuildNumberLayout,
			LogLevel:          "info",
			CleanDirs:         []string{"build"},
			Commands: ports.CommandsConfig{
				Build: deployment.CommandSpec{Args: []string{"make"}},
			},
		}

		assert.Empty(t, validator.ValidateAll(config))
	})

	t.Run("multiple_errors", func(t *testing.T) {
		config := &ports.Configuration{
			AppName:     "bad name",
			LogLevel:    "loud",
			StepTimeout: -5,
			CleanDirs:   []string{"."},
			Commands: ports.CommandsConfig{
				Install: deployment.CommandSpec{Args: []string{""}},
			},
		}

		errs := validator.ValidateAll(config)
		assert.Len(t, errs, 5)
		for _, field := range []string{"app_name", "log_level", "step_timeout_seconds", "clean_dirs", "commands.install"} {
			assert.Contains(t, errs, field)
		}
	})
}
