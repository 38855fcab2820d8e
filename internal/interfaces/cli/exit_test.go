package cli

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"kilometers.ai/appdeploy/internal/application/commands"
	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/core/deployment"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

func TestExitCode(t *testing.T) {
	nine := 9

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: ExitSuccess},
		{name: "step exit code", err: &pipeline.StepFailure{Step: "install", ExitCode: &nine}, want: 9},
		{name: "wrapped step failure", err: fmt.Errorf("deploy: %w", &pipeline.StepFailure{Step: "install", ExitCode: &nine}), want: 9},
		{name: "step without exit code", err: &pipeline.StepFailure{Step: "package", Err: errors.New("disk full")}, want: 1},
		{name: "interrupted step", err: &pipeline.StepFailure{Step: "build", Err: context.Canceled}, want: 1},
		{name: "usage", err: newUsageError(errors.New("unknown flag")), want: ExitUsage},
		{name: "validation", err: commands.NewValidationError("bad"), want: ExitUsage},
		{name: "conflict", err: commands.NewCommandError(commands.ErrCodeConflict, "exists"), want: ExitUsage},
		{name: "not found", err: commands.NewNotFoundError("run x"), want: ExitUsage},
		{name: "invalid configuration", err: fmt.Errorf("load: %w", ports.ErrInvalidConfiguration), want: ExitUsage},
		{name: "invalid options", err: deployment.ErrInvalidOptions, want: ExitUsage},
		{name: "invalid definition", err: deployment.ErrInvalidDefinition, want: ExitUsage},
		{name: "template", err: deployment.ErrTemplate, want: ExitUsage},
		{name: "invalid step", err: pipeline.ErrInvalidStep, want: ExitUsage},
		{name: "other", err: errors.New("database is locked"), want: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestNewUsageError_DoesNotDoubleWrap(t *testing.T) {
	err := newUsageError(newUsageError(errors.New("bad flag")))

	var usage *usageError
	assert.True(t, errors.As(err, &usage))
	assert.EqualError(t, usage.err, "bad flag")
}
