package deployment

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// Step names of a deployment plan, in execution order
const (
	StepClean   = "clean"
	StepBuild   = "build"
	StepPackage = "package"
	StepInstall = "install"
	StepRestart = "restart"
)

// Options parameterize one deployment
type Options struct {
	AppName     string
	Version     string
	ProjectDir  string
	SourceDir   string
	PackageDir  string
	BuildNumber BuildNumber
	Clean       bool
	Debug       bool
	DebugClient string
	CleanDirs   []string
	StepTimeout time.Duration

	Build   CommandSpec
	Package CommandSpec
	Install CommandSpec
	Restart CommandSpec
}

// Collaborators are the external systems a plan's steps call into
type Collaborators struct {
	Runner   CommandRunner
	Packager Packager
	Cleaner  DirectoryCleaner
}

// PlannedStep describes a step for display before it runs
type PlannedStep struct {
	Name        string
	Description string
	Optional    bool
}

// Plan is the ordered list of deployment steps built from Options
type Plan struct {
	options     Options
	packagePath string
	steps       []pipeline.Step
	described   []PlannedStep
}

// ArchiveName returns the package file name for an app build
func ArchiveName(appName, version string, build BuildNumber) string {
	if version == "" {
		return fmt.Sprintf("%s-%s.tgz", appName, build.Value())
	}
	return fmt.Sprintf("%s-%s-%s.tgz", appName, version, build.Value())
}

// NewPlan builds the deployment steps: clean (when requested), build,
// package, install and restart. Command steps without a configured command
// are left out; package falls back to the built-in packager.
func NewPlan(opts Options, c Collaborators) (*Plan, error) {
	if err := validateOptions(opts, c); err != nil {
		return nil, err
	}

	plan := &Plan{
		options:     opts,
		packagePath: filepath.Join(opts.resolve(opts.PackageDir), ArchiveName(opts.AppName, opts.Version, opts.BuildNumber)),
	}

	data := TemplateData{
		AppName:     opts.AppName,
		Version:     opts.Version,
		BuildNumber: opts.BuildNumber.Value(),
		PackagePath: plan.packagePath,
		ProjectDir:  opts.ProjectDir,
		Debug:       opts.Debug,
	}

	if opts.Clean {
		dirs := make([]string, 0, len(opts.CleanDirs))
		for _, dir := range opts.CleanDirs {
			dirs = append(dirs, opts.resolve(dir))
		}
		plan.add(pipeline.NewStep(StepClean, pipeline.ErrorAction(func(ctx context.Context) error {
			return c.Cleaner.Clean(ctx, dirs)
		})), fmt.Sprintf("remove %v", dirs))
	}

	if err := plan.addCommand(StepBuild, opts.Build, data, c.Runner); err != nil {
		return nil, err
	}

	if opts.Package.IsZero() {
		req := PackageRequest{
			SourceDir:   opts.resolve(opts.SourceDir),
			ArchivePath: plan.packagePath,
			RootName:    opts.AppName,
		}
		if opts.Debug {
			req.DebugClient = opts.DebugClient
		}
		plan.add(pipeline.NewStep(StepPackage, pipeline.ErrorAction(func(ctx context.Context) error {
			return c.Packager.Package(ctx, req)
		})), fmt.Sprintf("archive %s -> %s", req.SourceDir, req.ArchivePath))
	} else if err := plan.addCommand(StepPackage, opts.Package, data, c.Runner); err != nil {
		return nil, err
	}

	if err := plan.addCommand(StepInstall, opts.Install, data, c.Runner); err != nil {
		return nil, err
	}
	if err := plan.addCommand(StepRestart, opts.Restart, data, c.Runner); err != nil {
		return nil, err
	}

	return plan, nil
}

func validateOptions(opts Options, c Collaborators) error {
	if opts.AppName == "" {
		return fmt.Errorf("%w: app name is required", ErrInvalidOptions)
	}
	if opts.BuildNumber.IsZero() {
		return fmt.Errorf("%w: build number is required", ErrInvalidOptions)
	}
	if c.Runner == nil {
		return fmt.Errorf("%w: command runner is required", ErrInvalidOptions)
	}
	if opts.Package.IsZero() && c.Packager == nil {
		return fmt.Errorf("%w: no package command and no packager", ErrInvalidOptions)
	}
	if opts.Clean && c.Cleaner == nil {
		return fmt.Errorf("%w: clean requested without a cleaner", ErrInvalidOptions)
	}
	if opts.Clean {
		for _, dir := range opts.CleanDirs {
			if err := ValidateCleanDir(dir); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
			}
		}
	}
	return nil
}

// ValidateCleanDir accepts only relative paths that stay below the project
// directory once cleaned.
func ValidateCleanDir(dir string) error {
	trimmed := strings.TrimSpace(dir)
	clean := filepath.Clean(trimmed)
	switch {
	case trimmed == "",
		strings.HasPrefix(trimmed, "~"),
		filepath.IsAbs(clean),
		filepath.VolumeName(clean) != "",
		clean == ".",
		clean == "..",
		strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return fmt.Errorf("clean directory must be below the project directory: %q", dir)
	}
	return nil
}

func (p *Plan) addCommand(name string, spec CommandSpec, data TemplateData, runner CommandRunner) error {
	if spec.IsZero() {
		return nil
	}

	cmd, err := spec.Render(name, data)
	if err != nil {
		return err
	}
	if cmd.Dir == "" {
		cmd.Dir = p.options.ProjectDir
	} else {
		cmd.Dir = p.options.resolve(cmd.Dir)
	}

	step := pipeline.Step{
		Name:     name,
		Optional: spec.Optional,
		Action: func(ctx context.Context) (int, error) {
			return runner.Run(ctx, cmd)
		},
	}
	p.add(step, cmd.String())
	return nil
}

func (p *Plan) add(step pipeline.Step, description string) {
	step = pipeline.WithTimeout(step, p.options.StepTimeout)
	p.steps = append(p.steps, step)
	p.described = append(p.described, PlannedStep{
		Name:        step.Name,
		Description: description,
		Optional:    step.Optional,
	})
}

// resolve makes path relative to the project directory
func (o Options) resolve(path string) string {
	if path == "" {
		return o.ProjectDir
	}
	if filepath.IsAbs(path) || o.ProjectDir == "" {
		return path
	}
	return filepath.Join(o.ProjectDir, path)
}

// Steps returns the pipeline steps in execution order
func (p *Plan) Steps() []pipeline.Step {
	return append([]pipeline.Step(nil), p.steps...)
}

// Describe returns a display description of every step
func (p *Plan) Describe() []PlannedStep {
	return append([]PlannedStep(nil), p.described...)
}

// StepNames returns the step names in execution order
func (p *Plan) StepNames() []string {
	names := make([]string, 0, len(p.steps))
	for _, step := range p.steps {
		names = append(names, step.Name)
	}
	return names
}

// PackagePath returns the archive path the plan installs
func (p *Plan) PackagePath() string {
	return p.packagePath
}

// BuildNumber returns the plan's build number
func (p *Plan) BuildNumber() BuildNumber {
	return p.options.BuildNumber
}
