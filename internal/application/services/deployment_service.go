package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"kilometers.ai/appdeploy/internal/application/commands"
	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/core/deployment"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// DeploymentDependencies are the collaborators of a DeploymentService.
// Metrics is optional.
type DeploymentDependencies struct {
	ConfigRepo  ports.ConfigurationRepository
	Runner      deployment.CommandRunner
	Packager    deployment.Packager
	Cleaner     deployment.DirectoryCleaner
	Definitions ports.DefinitionLoader
	Reports     ports.ReportRepository
	Metrics     ports.MetricsRecorder
	Logger      ports.LoggingGateway

	// Clock and RunIDs default to time.Now and random UUIDs
	Clock  func() time.Time
	RunIDs func() string
}

// RunOutcome describes a finished (or, for dry runs, planned) pipeline run
type RunOutcome struct {
	Name        string                   `json:"name"`
	BuildNumber string                   `json:"build_number"`
	PackagePath string                   `json:"package_path,omitempty"`
	Planned     []deployment.PlannedStep `json:"planned"`
	Report      *pipeline.Report         `json:"report,omitempty"`
	DryRun      bool                     `json:"dry_run"`
	Warnings    []string                 `json:"warnings,omitempty"`
}

// DeploymentService orchestrates deployments and definition runs: it builds
// the step list, runs it through the pipeline and records the report
type DeploymentService struct {
	deps DeploymentDependencies
}

// NewDeploymentService creates a new deployment service
func NewDeploymentService(deps DeploymentDependencies) *DeploymentService {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &DeploymentService{deps: deps}
}

// Deploy runs the configured deployment sequence. The returned error is a
// *pipeline.StepFailure when a mandatory step failed; the outcome carries
// the report either way.
func (s *DeploymentService) Deploy(ctx context.Context, cmd *commands.DeployCommand, listeners ...pipeline.Listener) (*RunOutcome, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	config, err := s.deps.ConfigRepo.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	opts, err := s.deploymentOptions(config, cmd)
	if err != nil {
		return nil, err
	}

	plan, err := deployment.NewPlan(opts, deployment.Collaborators{
		Runner:   s.deps.Runner,
		Packager: s.deps.Packager,
		Cleaner:  s.deps.Cleaner,
	})
	if err != nil {
		return nil, err
	}

	outcome := &RunOutcome{
		Name:        "deploy",
		BuildNumber: plan.BuildNumber().Value(),
		PackagePath: plan.PackagePath(),
		Planned:     plan.Describe(),
		DryRun:      cmd.DryRun,
	}

	s.deps.Logger.Log(ports.LogLevelInfo, "Deployment planned", map[string]interface{}{
		"app":          opts.AppName,
		"build_number": outcome.BuildNumber,
		"steps":        plan.StepNames(),
		"clean":        opts.Clean,
		"debug":        opts.Debug,
	})

	if cmd.DryRun {
		return outcome, nil
	}

	return s.run(ctx, outcome, plan.Steps(), listeners)
}

// RunDefinition runs the pipeline declared in a definition file. Relative
// step directories resolve against the file's directory.
func (s *DeploymentService) RunDefinition(ctx context.Context, cmd *commands.RunDefinitionCommand, listeners ...pipeline.Listener) (*RunOutcome, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	config, err := s.deps.ConfigRepo.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	def, err := s.deps.Definitions.Load(cmd.DefinitionPath)
	if err != nil {
		return nil, err
	}

	baseDir, err := filepath.Abs(filepath.Dir(cmd.DefinitionPath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve definition directory: %w", err)
	}

	buildNumber, err := s.buildNumber(cmd.BuildNumber, config.BuildNumberLayout)
	if err != nil {
		return nil, err
	}

	data := deployment.TemplateData{
		AppName:     config.AppName,
		Version:     config.Version,
		BuildNumber: buildNumber.Value(),
		ProjectDir:  baseDir,
		Debug:       cmd.Debug || config.Debug,
	}

	planned, err := def.Describe(baseDir, data)
	if err != nil {
		return nil, err
	}

	name := def.Name
	if name == "" {
		name = filepath.Base(cmd.DefinitionPath)
	}

	outcome := &RunOutcome{
		Name:        name,
		BuildNumber: data.BuildNumber,
		Planned:     planned,
		DryRun:      cmd.DryRun,
	}

	if cmd.DryRun {
		return outcome, nil
	}

	steps, err := def.BuildSteps(s.deps.Runner, baseDir, data)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(config.StepTimeout) * time.Second
	for i := range steps {
		steps[i] = pipeline.WithTimeout(steps[i], timeout)
	}

	return s.run(ctx, outcome, steps, listeners)
}

// run executes steps and records the report. History and metrics failures
// become warnings; they never change the run's outcome.
func (s *DeploymentService) run(ctx context.Context, outcome *RunOutcome, steps []pipeline.Step, listeners []pipeline.Listener) (*RunOutcome, error) {
	opts := []pipeline.Option{
		pipeline.WithName(outcome.Name),
		pipeline.WithClock(s.deps.Clock),
		pipeline.WithListener(s.deps.Logger.LogStepEvent),
	}
	if s.deps.RunIDs != nil {
		opts = append(opts, pipeline.WithRunIDGenerator(s.deps.RunIDs))
	}
	for _, listener := range listeners {
		opts = append(opts, pipeline.WithListener(listener))
	}

	report, runErr := pipeline.New(opts...).Run(ctx, steps)
	if report == nil {
		return nil, runErr
	}
	outcome.Report = report

	s.deps.Logger.LogReport(report)

	if err := s.deps.Reports.Save(context.WithoutCancel(ctx), report); err != nil {
		s.deps.Logger.LogError(err, "Failed to save run history", map[string]interface{}{"run_id": report.RunID})
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("run history not saved: %v", err))
	}

	if s.deps.Metrics != nil {
		if err := s.deps.Metrics.RecordReport(report); err != nil {
			s.deps.Logger.LogError(err, "Failed to write metrics", map[string]interface{}{"run_id": report.RunID})
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("metrics not written: %v", err))
		}
	}

	for _, failure := range report.OptionalFailures() {
		outcome.Warnings = append(outcome.Warnings, failure.Message)
	}

	return outcome, runErr
}

// History returns recent runs, newest first, or the single run named by
// the command
func (s *DeploymentService) History(ctx context.Context, cmd *commands.ShowHistoryCommand) ([]*pipeline.Report, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if cmd.RunID != "" {
		report, err := s.deps.Reports.FindByID(ctx, cmd.RunID)
		if errors.Is(err, ports.ErrReportNotFound) {
			return nil, commands.NewNotFoundError(fmt.Sprintf("run %s", cmd.RunID))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load run: %w", err)
		}
		return []*pipeline.Report{report}, nil
	}

	reports, err := s.deps.Reports.FindRecent(ctx, cmd.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return reports, nil
}

func (s *DeploymentService) deploymentOptions(config *ports.Configuration, cmd *commands.DeployCommand) (deployment.Options, error) {
	projectDir, err := filepath.Abs(config.ProjectDir)
	if err != nil {
		return deployment.Options{}, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	buildNumber, err := s.buildNumber(cmd.BuildNumber, config.BuildNumberLayout)
	if err != nil {
		return deployment.Options{}, err
	}

	return deployment.Options{
		AppName:     config.AppName,
		Version:     config.Version,
		ProjectDir:  projectDir,
		SourceDir:   config.SourceDir,
		PackageDir:  config.PackageDir,
		BuildNumber: buildNumber,
		Clean:       cmd.Clean,
		Debug:       cmd.Debug || config.Debug,
		DebugClient: config.DebugClient,
		CleanDirs:   config.CleanDirs,
		StepTimeout: time.Duration(config.StepTimeout) * time.Second,
		Build:       config.Commands.Build,
		Package:     config.Commands.Package,
		Install:     config.Commands.Install,
		Restart:     config.Commands.Restart,
	}, nil
}

// buildNumber returns the explicit build number, or one derived from the
// current time
func (s *DeploymentService) buildNumber(explicit, layout string) (deployment.BuildNumber, error) {
	if explicit != "" {
		return deployment.NewBuildNumber(explicit)
	}
	return deployment.TimestampBuildNumber(s.deps.Clock(), layout), nil
}
