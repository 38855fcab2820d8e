package cli

import (
	"errors"

	"kilometers.ai/appdeploy/internal/application/commands"
	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/core/deployment"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// Process exit codes other than a failing step's own
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// usageError marks errors caused by how the CLI was invoked
type usageError struct {
	err error
}

func newUsageError(err error) error {
	var usage *usageError
	if errors.As(err, &usage) {
		return err
	}
	return &usageError{err: err}
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) Unwrap() error {
	return e.err
}

// usageSentinels are the errors caused by bad input rather than a failed run
var usageSentinels = []error{
	ports.ErrInvalidConfiguration,
	deployment.ErrInvalidOptions,
	deployment.ErrInvalidBuildNumber,
	deployment.ErrInvalidDefinition,
	deployment.ErrTemplate,
	pipeline.ErrInvalidStep,
}

// ExitCode maps an error returned by a command to a process exit code: the
// failing step's exit code for a mandatory step failure, 2 for usage and
// configuration errors and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var failure *pipeline.StepFailure
	if errors.As(err, &failure) && !failure.Optional {
		return failure.Code()
	}

	var usage *usageError
	if errors.As(err, &usage) {
		return ExitUsage
	}

	var cmdErr commands.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case commands.ErrCodeValidation, commands.ErrCodeConflict, commands.ErrCodeNotFound:
			return ExitUsage
		}
	}

	for _, sentinel := range usageSentinels {
		if errors.Is(err, sentinel) {
			return ExitUsage
		}
	}

	return ExitFailure
}
