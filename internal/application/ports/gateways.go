package ports

import (
	"strings"

	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// LoggingGateway defines the interface for logging operations
type LoggingGateway interface {
	// Log logs a message with the specified level
	Log(level LogLevel, message string, fields map[string]interface{})

	// LogError logs an error
	LogError(err error, message string, fields map[string]interface{})

	// LogStepEvent logs a pipeline step lifecycle event
	LogStepEvent(event pipeline.Event)

	// LogReport logs the outcome of a pipeline run
	LogReport(report *pipeline.Report)

	// SetLogLevel sets the logging level
	SetLogLevel(level LogLevel)

	// GetLogLevel returns the current logging level
	GetLogLevel() LogLevel
}

// LogLevel defines the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLogLevel converts a string to a LogLevel, ignoring case. Unknown
// values return false.
func ParseLogLevel(s string) (LogLevel, bool) {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	switch level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return level, true
	}
	return "", false
}

// MetricsRecorder exports run metrics
type MetricsRecorder interface {
	// RecordReport records the metrics of one finished run
	RecordReport(report *pipeline.Report) error
}
