package deployment

import (
	"context"
	"errors"
	"fmt"

	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// ErrInvalidDefinition is returned for malformed pipeline definitions
var ErrInvalidDefinition = errors.New("invalid pipeline definition")

// Definition is a user-declared pipeline of external commands
type Definition struct {
	Name  string           `yaml:"name"`
	Steps []DefinitionStep `yaml:"steps"`
}

// DefinitionStep is one command entry of a Definition
type DefinitionStep struct {
	Name     string            `yaml:"name"`
	Run      []string          `yaml:"run"`
	Dir      string            `yaml:"dir,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	Optional bool              `yaml:"optional,omitempty"`
}

// Validate checks names and commands
func (d *Definition) Validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: no steps declared", ErrInvalidDefinition)
	}

	seen := make(map[string]bool, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return fmt.Errorf("%w: step %d has no name", ErrInvalidDefinition, i+1)
		}
		if seen[step.Name] {
			return fmt.Errorf("%w: duplicate step name %q", ErrInvalidDefinition, step.Name)
		}
		seen[step.Name] = true
		if len(step.Run) == 0 || step.Run[0] == "" {
			return fmt.Errorf("%w: step %q has no command", ErrInvalidDefinition, step.Name)
		}
	}
	return nil
}

// BuildSteps renders every entry into a pipeline step run by runner. Relative
// step directories resolve against baseDir.
func (d *Definition) BuildSteps(runner CommandRunner, baseDir string, data TemplateData) ([]pipeline.Step, error) {
	cmds, err := d.render(baseDir, data)
	if err != nil {
		return nil, err
	}

	steps := make([]pipeline.Step, 0, len(cmds))
	for i, cmd := range cmds {
		steps = append(steps, pipeline.Step{
			Name:     cmd.Name,
			Optional: d.Steps[i].Optional,
			Action: func(ctx context.Context) (int, error) {
				return runner.Run(ctx, cmd)
			},
		})
	}
	return steps, nil
}

// Describe renders every entry for display without running anything
func (d *Definition) Describe(baseDir string, data TemplateData) ([]PlannedStep, error) {
	cmds, err := d.render(baseDir, data)
	if err != nil {
		return nil, err
	}

	planned := make([]PlannedStep, 0, len(cmds))
	for i, cmd := range cmds {
		planned = append(planned, PlannedStep{
			Name:        cmd.Name,
			Description: cmd.String(),
			Optional:    d.Steps[i].Optional,
		})
	}
	return planned, nil
}

func (d *Definition) render(baseDir string, data TemplateData) ([]Command, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	opts := Options{ProjectDir: baseDir}
	cmds := make([]Command, 0, len(d.Steps))
	for _, entry := range d.Steps {
		spec := CommandSpec{Args: entry.Run, Dir: entry.Dir, Env: entry.Env, Optional: entry.Optional}
		cmd, err := spec.Render(entry.Name, data)
		if err != nil {
			return nil, err
		}
		cmd.Dir = opts.resolve(cmd.Dir)
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
