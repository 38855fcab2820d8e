package commands

import (
	"strings"

	"kilometers.ai/appdeploy/internal/application/ports"
)

// InitConfigurationCommand writes a starter configuration file
type InitConfigurationCommand struct {
	BaseCommand
	AppName    string `json:"app_name"`
	ProjectDir string `json:"project_dir,omitempty"`
	Force      bool   `json:"force"`
}

// NewInitConfigurationCommand creates a new init configuration command
func NewInitConfigurationCommand(appName string) *InitConfigurationCommand {
	return &InitConfigurationCommand{
		BaseCommand: NewBaseCommand("init_configuration"),
		AppName:     appName,
	}
}

// Validate validates the init configuration command
func (c *InitConfigurationCommand) Validate() error {
	if err := c.BaseCommand.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(c.AppName) == "" {
		return NewValidationError("app name is required")
	}

	return nil
}

// Apply copies the command's values onto config
func (c *InitConfigurationCommand) Apply(config *ports.Configuration) {
	config.AppName = strings.TrimSpace(c.AppName)
	if c.ProjectDir != "" {
		config.ProjectDir = c.ProjectDir
	}
}
