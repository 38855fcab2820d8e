package logging

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"

	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// Options configure the hclog gateway
type Options struct {
	Name    string
	Level   ports.LogLevel
	Output  io.Writer
	NoColor bool
	JSON    bool
}

// HclogGateway implements ports.LoggingGateway on top of hclog
type HclogGateway struct {
	mu     sync.RWMutex
	logger hclog.Logger
	level  ports.LogLevel
}

var _ ports.LoggingGateway = (*HclogGateway)(nil)

// NewHclogGateway creates a structured logger writing to opts.Output
func NewHclogGateway(opts Options) *HclogGateway {
	if opts.Name == "" {
		opts.Name = "appdeploy"
	}
	if opts.Level == "" {
		opts.Level = ports.LogLevelInfo
	}

	color := hclog.AutoColor
	if opts.NoColor {
		color = hclog.ColorOff
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      toHclogLevel(opts.Level),
		Output:     opts.Output,
		Color:      color,
		JSONFormat: opts.JSON,
	})

	return &HclogGateway{logger: logger, level: opts.Level}
}

// Logger returns the underlying hclog logger
func (g *HclogGateway) Logger() hclog.Logger {
	return g.logger
}

// Log logs a message with the specified level
func (g *HclogGateway) Log(level ports.LogLevel, message string, fields map[string]interface{}) {
	args := fieldArgs(fields)

	switch level {
	case ports.LogLevelDebug:
		g.logger.Debug(message, args...)
	case ports.LogLevelWarn:
		g.logger.Warn(message, args...)
	case ports.LogLevelError:
		g.logger.Error(message, args...)
	default:
		g.logger.Info(message, args...)
	}
}

// LogError logs an error
func (g *HclogGateway) LogError(err error, message string, fields map[string]interface{}) {
	args := append(fieldArgs(fields), "error", err)
	g.logger.Error(message, args...)
}

// LogStepEvent logs a step start at debug level and its outcome at a level
// matching the outcome.
func (g *HclogGateway) LogStepEvent(event pipeline.Event) {
	position := fmt.Sprintf("%d/%d", event.Index+1, event.Total)

	switch event.Type {
	case pipeline.EventStepStarted:
		g.logger.Debug("step started", "run_id", event.RunID, "step", event.Step, "position", position, "optional", event.Optional)

	case pipeline.EventStepFinished:
		result := event.Result
		if result == nil {
			return
		}

		args := []interface{}{"run_id", event.RunID, "step", result.Name, "position", position, "duration", result.Duration}
		if result.ExitCode != nil {
			args = append(args, "exit_code", *result.ExitCode)
		}
		if result.Err != nil {
			args = append(args, "error", result.Err)
		}

		switch {
		case result.Succeeded:
			g.logger.Info("step succeeded", args...)
		case result.Optional:
			g.logger.Warn("optional step failed, continuing", args...)
		default:
			g.logger.Error("step failed", args...)
		}
	}
}

// LogReport logs the outcome of a pipeline run
func (g *HclogGateway) LogReport(report *pipeline.Report) {
	args := []interface{}{
		"run_id", report.RunID,
		"ran", report.Len(),
		"declared", report.Declared,
		"duration", report.Duration(),
	}

	if optional := report.OptionalFailures(); len(optional) > 0 {
		names := make([]string, 0, len(optional))
		for _, result := range optional {
			names = append(names, result.Name)
		}
		args = append(args, "optional_failures", names)
	}

	if failed := report.FailedStep(); failed != nil {
		args = append(args, "failed_step", failed.Name, "exit_code", report.ExitCode(), "skipped", report.Skipped())
		g.logger.Error("pipeline failed", args...)
		return
	}

	g.logger.Info("pipeline succeeded", args...)
}

// SetLogLevel sets the logging level
func (g *HclogGateway) SetLogLevel(level ports.LogLevel) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.level = level
	g.logger.SetLevel(toHclogLevel(level))
}

// GetLogLevel returns the current logging level
func (g *HclogGateway) GetLogLevel() ports.LogLevel {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.level
}

func toHclogLevel(level ports.LogLevel) hclog.Level {
	switch level {
	case ports.LogLevelDebug:
		return hclog.Debug
	case ports.LogLevelWarn:
		return hclog.Warn
	case ports.LogLevelError:
		return hclog.Error
	default:
		return hclog.Info
	}
}

// fieldArgs flattens fields into hclog key/value pairs in key order
func fieldArgs(fields map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
