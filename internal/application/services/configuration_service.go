package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"kilometers.ai/appdeploy/internal/application/commands"
	"kilometers.ai/appdeploy/internal/application/ports"
)

// configBackupper is implemented by repositories that can back up the
// configuration file before it is overwritten
type configBackupper interface {
	BackupConfig() (string, error)
}

// ConfigurationService handles configuration management
type ConfigurationService struct {
	configRepo ports.ConfigurationRepository
	logger     ports.LoggingGateway
}

// NewConfigurationService creates a new configuration service
func NewConfigurationService(configRepo ports.ConfigurationRepository, logger ports.LoggingGateway) *ConfigurationService {
	return &ConfigurationService{
		configRepo: configRepo,
		logger:     logger,
	}
}

// LoadConfiguration loads the current configuration
func (s *ConfigurationService) LoadConfiguration(ctx context.Context) (*ports.Configuration, error) {
	config, err := s.configRepo.Load()
	if err != nil {
		s.logger.LogError(err, "Failed to load configuration", map[string]interface{}{
			"config_path": s.configRepo.GetConfigPath(),
		})
		return nil, err
	}

	return config, nil
}

// SaveConfiguration validates and saves the configuration, backing up the
// previous file when the repository supports it
func (s *ConfigurationService) SaveConfiguration(ctx context.Context, config *ports.Configuration) error {
	if err := s.configRepo.Validate(config); err != nil {
		s.logger.LogError(err, "Configuration validation failed", nil)
		return err
	}

	if backupper, ok := s.configRepo.(configBackupper); ok {
		backupPath, err := backupper.BackupConfig()
		if err != nil {
			// Continue with save even if backup fails
			s.logger.LogError(err, "Failed to create configuration backup", nil)
		} else if backupPath != "" {
			s.logger.Log(ports.LogLevelInfo, "Configuration backup created", map[string]interface{}{
				"backup_path": backupPath,
			})
		}
	}

	if err := s.configRepo.Save(config); err != nil {
		s.logger.LogError(err, "Failed to save configuration", nil)
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	s.logger.Log(ports.LogLevelInfo, "Configuration saved successfully", map[string]interface{}{
		"config_path": s.configRepo.GetConfigPath(),
	})

	return nil
}

// GetDefaultConfiguration returns the default configuration
func (s *ConfigurationService) GetDefaultConfiguration(ctx context.Context) *ports.Configuration {
	return s.configRepo.LoadDefault()
}

// GetConfigurationPath returns the path to the configuration file
func (s *ConfigurationService) GetConfigurationPath(ctx context.Context) string {
	return s.configRepo.GetConfigPath()
}

// InitializeConfiguration writes a starter configuration built from the
// defaults. An existing file is only replaced when the command forces it.
func (s *ConfigurationService) InitializeConfiguration(ctx context.Context, cmd *commands.InitConfigurationCommand) (*commands.CommandResult, error) {
	if err := cmd.Validate(); err != nil {
		return commands.NewErrorResult("Validation failed", []string{err.Error()}), err
	}

	path := s.configRepo.GetConfigPath()
	if _, err := os.Stat(path); err == nil && !cmd.Force {
		err := commands.NewCommandError(commands.ErrCodeConflict, fmt.Sprintf("configuration already exists at %s (use --force to overwrite)", path))
		return commands.NewErrorResult("Configuration already exists", []string{err.Error()}), err
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to check configuration file: %w", err)
	}

	config := s.configRepo.LoadDefault()
	cmd.Apply(config)

	if err := s.SaveConfiguration(ctx, config); err != nil {
		return commands.NewErrorResult("Failed to save configuration", []string{err.Error()}), err
	}

	result := commands.NewSuccessResult("Configuration initialized successfully", config)
	result.SetMetadata("config_path", path)
	return result, nil
}
