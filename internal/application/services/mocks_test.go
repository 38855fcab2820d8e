package services

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/core/deployment"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// Mock implementations

type MockConfigRepository struct {
	mock.Mock
}

func (m *MockConfigRepository) Load() (*ports.Configuration, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.Configuration), args.Error(1)
}

func (m *MockConfigRepository) Save(config *ports.Configuration) error {
	args := m.Called(config)
	return args.Error(0)
}

func (m *MockConfigRepository) LoadDefault() *ports.Configuration {
	args := m.Called()
	return args.Get(0).(*ports.Configuration)
}

func (m *MockConfigRepository) Validate(config *ports.Configuration) error {
	args := m.Called(config)
	return args.Error(0)
}

func (m *MockConfigRepository) GetConfigPath() string {
	args := m.Called()
	return args.String(0)
}

type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) Save(ctx context.Context, report *pipeline.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) FindByID(ctx context.Context, runID string) (*pipeline.Report, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Report), args.Error(1)
}

func (m *MockReportRepository) FindRecent(ctx context.Context, limit int) ([]*pipeline.Report, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*pipeline.Report), args.Error(1)
}

func (m *MockReportRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockMetricsRecorder struct {
	mock.Mock
}

func (m *MockMetricsRecorder) RecordReport(report *pipeline.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

type MockDefinitionLoader struct {
	mock.Mock
}

func (m *MockDefinitionLoader) Load(path string) (*deployment.Definition, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deployment.Definition), args.Error(1)
}

// Fakes

// fakeRunner records commands and returns the exit code configured for
// each step name
type fakeRunner struct {
	mu       sync.Mutex
	codes    map[string]int
	commands []deployment.Command
}

func (r *fakeRunner) Run(ctx context.Context, cmd deployment.Command) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	return r.codes[cmd.Name], nil
}

func (r *fakeRunner) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.commands))
	for _, cmd := range r.commands {
		names = append(names, cmd.Name)
	}
	return names
}

type fakePackager struct {
	requests []deployment.PackageRequest
	err      error
}

func (p *fakePackager) Package(ctx context.Context, req deployment.PackageRequest) error {
	p.requests = append(p.requests, req)
	return p.err
}

type fakeCleaner struct {
	dirs [][]string
	err  error
}

func (c *fakeCleaner) Clean(ctx context.Context, dirs []string) error {
	c.dirs = append(c.dirs, dirs)
	return c.err
}

// recordingLogger implements ports.LoggingGateway and keeps every message
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
	events   []pipeline.Event
	reports  []*pipeline.Report
	errors   []error
	level    ports.LogLevel
}

func (l *recordingLogger) Log(level ports.LogLevel, message string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, message)
}

func (l *recordingLogger) LogError(err error, message string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, message)
	l.errors = append(l.errors, err)
}

func (l *recordingLogger) LogStepEvent(event pipeline.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) LogReport(report *pipeline.Report) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, report)
}

func (l *recordingLogger) SetLogLevel(level ports.LogLevel) { l.level = level }
func (l *recordingLogger) GetLogLevel() ports.LogLevel      { return l.level }
