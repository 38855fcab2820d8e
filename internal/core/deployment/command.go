package deployment

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
)

// CommandSpec configures one external command. Args are text/template
// strings rendered with TemplateData.
type CommandSpec struct {
	Args     []string          `json:"args,omitempty" yaml:"args,omitempty" koanf:"args"`
	Dir      string            `json:"dir,omitempty" yaml:"dir,omitempty" koanf:"dir"`
	Env      map[string]string `json:"env,omitempty" yaml:"env,omitempty" koanf:"env"`
	Optional bool              `json:"optional,omitempty" yaml:"optional,omitempty" koanf:"optional"`
}

// IsZero reports whether no command is configured
func (c CommandSpec) IsZero() bool {
	return len(c.Args) == 0
}

// TemplateData is available to command argument templates
type TemplateData struct {
	AppName     string
	Version     string
	BuildNumber string
	PackagePath string
	ProjectDir  string
	Debug       bool
}

// Command is a fully rendered external command
type Command struct {
	Name       string
	Executable string
	Args       []string
	Dir        string
	Env        map[string]string
}

// String renders the command line for display
func (c Command) String() string {
	parts := append([]string{c.Executable}, c.Args...)
	for i, p := range parts {
		if strings.ContainsAny(p, " \t\"") {
			parts[i] = fmt.Sprintf("%q", p)
		}
	}
	return strings.Join(parts, " ")
}

// Render expands every argument template
func (c CommandSpec) Render(name string, data TemplateData) (Command, error) {
	if c.IsZero() {
		return Command{}, fmt.Errorf("%w: %s: no command configured", ErrInvalidOptions, name)
	}

	args := make([]string, 0, len(c.Args))
	for i, raw := range c.Args {
		rendered, err := renderArg(raw, data)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %s: argument %d: %v", ErrTemplate, name, i, err)
		}
		args = append(args, rendered)
	}

	dir, err := renderArg(c.Dir, data)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %s: dir: %v", ErrTemplate, name, err)
	}

	env := make(map[string]string, len(c.Env))
	for key, raw := range c.Env {
		value, err := renderArg(raw, data)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %s: env %s: %v", ErrTemplate, name, key, err)
		}
		env[key] = value
	}

	if args[0] == "" {
		return Command{}, fmt.Errorf("%w: %s: executable renders empty", ErrInvalidOptions, name)
	}

	return Command{
		Name:       name,
		Executable: args[0],
		Args:       args[1:],
		Dir:        dir,
		Env:        env,
	}, nil
}

func renderArg(raw string, data TemplateData) (string, error) {
	if !strings.Contains(raw, "{{") {
		return raw, nil
	}

	tmpl, err := template.New("arg").Option("missingkey=error").Parse(raw)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// CommandRunner runs external commands and reports their exit code. A
// command that ran and exited non-zero returns its code with a nil error.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (int, error)
}

// PackageRequest describes an app package to produce
type PackageRequest struct {
	SourceDir   string
	ArchivePath string
	RootName    string
	DebugClient string
}

// Packager produces an app archive
type Packager interface {
	Package(ctx context.Context, req PackageRequest) error
}

// DirectoryCleaner removes directories. Absent directories are not an error.
type DirectoryCleaner interface {
	Clean(ctx context.Context, dirs []string) error
}
