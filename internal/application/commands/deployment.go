package commands

import (
	"fmt"
	"strings"

	"kilometers.ai/appdeploy/internal/core/deployment"
)

// DeployCommand runs the configured clean/build/package/install/restart
// sequence
type DeployCommand struct {
	BaseCommand
	Clean       bool   `json:"clean"`
	Debug       bool   `json:"debug"`
	BuildNumber string `json:"build_number,omitempty"`
	DryRun      bool   `json:"dry_run"`
}

// NewDeployCommand creates a new deploy command
func NewDeployCommand(clean, debug bool) *DeployCommand {
	return &DeployCommand{
		BaseCommand: NewBaseCommand("deploy"),
		Clean:       clean,
		Debug:       debug,
	}
}

// Validate validates the deploy command
func (c *DeployCommand) Validate() error {
	if err := c.BaseCommand.Validate(); err != nil {
		return err
	}

	if c.BuildNumber != "" {
		if _, err := deployment.NewBuildNumber(c.BuildNumber); err != nil {
			return NewValidationError(err.Error())
		}
	}

	return nil
}

// RunDefinitionCommand runs a pipeline declared in a definition file
type RunDefinitionCommand struct {
	BaseCommand
	DefinitionPath string `json:"definition_path"`
	Debug          bool   `json:"debug"`
	BuildNumber    string `json:"build_number,omitempty"`
	DryRun         bool   `json:"dry_run"`
}

// NewRunDefinitionCommand creates a new run definition command
func NewRunDefinitionCommand(path string) *RunDefinitionCommand {
	return &RunDefinitionCommand{
		BaseCommand:    NewBaseCommand("run_definition"),
		DefinitionPath: path,
	}
}

// Validate validates the run definition command
func (c *RunDefinitionCommand) Validate() error {
	if err := c.BaseCommand.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(c.DefinitionPath) == "" {
		return NewValidationError("definition file is required")
	}

	if c.BuildNumber != "" {
		if _, err := deployment.NewBuildNumber(c.BuildNumber); err != nil {
			return NewValidationError(err.Error())
		}
	}

	return nil
}

// MaxHistoryLimit caps how many runs one history query returns
const MaxHistoryLimit = 1000

// ShowHistoryCommand lists recent runs, or one run when RunID is set
type ShowHistoryCommand struct {
	BaseCommand
	RunID string `json:"run_id,omitempty"`
	Limit int    `json:"limit"`
}

// NewShowHistoryCommand creates a new history command
func NewShowHistoryCommand(runID string, limit int) *ShowHistoryCommand {
	return &ShowHistoryCommand{
		BaseCommand: NewBaseCommand("show_history"),
		RunID:       runID,
		Limit:       limit,
	}
}

// Validate validates the history command
func (c *ShowHistoryCommand) Validate() error {
	if err := c.BaseCommand.Validate(); err != nil {
		return err
	}

	if c.RunID == "" && (c.Limit <= 0 || c.Limit > MaxHistoryLimit) {
		return NewValidationError(fmt.Sprintf("limit must be between 1 and %d", MaxHistoryLimit))
	}

	return nil
}
