package deployment

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// Local fakes for the plan's collaborators

type fakeRunner struct {
	commands []Command
	codes    map[string]int
}

func (r *fakeRunner) Run(ctx context.Context, cmd Command) (int, error) {
	r.commands = append(r.commands, cmd)
	return r.codes[cmd.Name], nil
}

type fakePackager struct {
	requests []PackageRequest
	err      error
}

func (p *fakePackager) Package(ctx context.Context, req PackageRequest) error {
	p.requests = append(p.requests, req)
	return p.err
}

type fakeCleaner struct {
	cleaned [][]string
	err     error
}

func (c *fakeCleaner) Clean(ctx context.Context, dirs []string) error {
	c.cleaned = append(c.cleaned, dirs)
	return c.err
}

func testOptions() Options {
	build, _ := NewBuildNumber("20240501120000")
	return Options{
		AppName:     "searchcommands",
		Version:     "1.0.0",
		ProjectDir:  "/src/app",
		SourceDir:   "package",
		PackageDir:  "build",
		BuildNumber: build,
		CleanDirs:   []string{"build", "stage/tmp"},
		Build:       CommandSpec{Args: []string{"python", "setup.py", "build"}},
		Install:     CommandSpec{Args: []string{"vendorctl", "install", "app", "{{.PackagePath}}", "-update", "1"}},
		Restart:     CommandSpec{Args: []string{"vendorctl", "restart"}},
	}
}

func TestBuildNumber_Creation_ValidatesInput(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
	}{
		{name: "Timestamp_ShouldSucceed", input: "20240501120000"},
		{name: "Private_ShouldSucceed", input: "private"},
		{name: "Empty_ShouldFail", input: "", expectError: true},
		{name: "PathSeparator_ShouldFail", input: "1/2", expectError: true},
		{name: "Space_ShouldFail", input: "build 7", expectError: true},
		{name: "DotDot_ShouldFail", input: "..", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBuildNumber(tt.input)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrInvalidBuildNumber)
				assert.True(t, b.IsZero())
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.input, b.String())
			}
		})
	}
}

func TestTimestampBuildNumber_UsesUTCLayout(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 5, 1, 14, 30, 5, 0, loc)

	assert.Equal(t, "20240501123005", TimestampBuildNumber(ts, "").Value())
	assert.Equal(t, "2024-05-01", TimestampBuildNumber(ts, "2006-01-02").Value())
}

func TestArchiveName(t *testing.T) {
	b, _ := NewBuildNumber("42")
	assert.Equal(t, "app-1.2.0-42.tgz", ArchiveName("app", "1.2.0", b))
	assert.Equal(t, "app-42.tgz", ArchiveName("app", "", b))
}

func TestCommandSpec_Render(t *testing.T) {
	spec := CommandSpec{
		Args: []string{"vendorctl", "install", "{{.PackagePath}}", "{{if .Debug}}--debug{{end}}"},
		Dir:  "{{.ProjectDir}}/bin",
		Env:  map[string]string{"BUILD": "{{.BuildNumber}}"},
	}

	cmd, err := spec.Render("install", TemplateData{
		PackagePath: "/out/app.tgz",
		ProjectDir:  "/src",
		BuildNumber: "7",
		Debug:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "vendorctl", cmd.Executable)
	assert.Equal(t, []string{"install", "/out/app.tgz", "--debug"}, cmd.Args)
	assert.Equal(t, "/src/bin", cmd.Dir)
	assert.Equal(t, "7", cmd.Env["BUILD"])
	assert.Equal(t, "vendorctl install /out/app.tgz --debug", cmd.String())
}

func TestCommandSpec_Render_Errors(t *testing.T) {
	_, err := CommandSpec{}.Render("build", TemplateData{})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = CommandSpec{Args: []string{"make", "{{.Nope}}"}}.Render("build", TemplateData{})
	assert.ErrorIs(t, err, ErrTemplate)

	_, err = CommandSpec{Args: []string{"{{if .Debug}}make{{end}}"}}.Render("build", TemplateData{})
	assert.ErrorIs(t, err, ErrInvalidOptions, "Empty executable should be rejected")
}

func TestNewPlan_StepOrder(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(o *Options)
		expected []string
	}{
		{
			name:     "Default_ShouldSkipClean",
			mutate:   func(o *Options) {},
			expected: []string{StepBuild, StepPackage, StepInstall, StepRestart},
		},
		{
			name:     "Clean_ShouldPrependClean",
			mutate:   func(o *Options) { o.Clean = true },
			expected: []string{StepClean, StepBuild, StepPackage, StepInstall, StepRestart},
		},
		{
			name:     "NoBuildCommand_ShouldOmitBuild",
			mutate:   func(o *Options) { o.Build = CommandSpec{} },
			expected: []string{StepPackage, StepInstall, StepRestart},
		},
		{
			name:     "NoRestartCommand_ShouldOmitRestart",
			mutate:   func(o *Options) { o.Restart = CommandSpec{}; o.Clean = true },
			expected: []string{StepClean, StepBuild, StepPackage, StepInstall},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)

			plan, err := NewPlan(opts, Collaborators{Runner: &fakeRunner{}, Packager: &fakePackager{}, Cleaner: &fakeCleaner{}})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, plan.StepNames())
			assert.Len(t, plan.Describe(), len(tt.expected))
		})
	}
}

func TestNewPlan_RunsThroughCollaborators(t *testing.T) {
	opts := testOptions()
	opts.Clean = true
	opts.Debug = true
	opts.DebugClient = "/tools/debug.egg"

	runner := &fakeRunner{}
	packager := &fakePackager{}
	cleaner := &fakeCleaner{}

	plan, err := NewPlan(opts, Collaborators{Runner: runner, Packager: packager, Cleaner: cleaner})
	require.NoError(t, err)

	report, err := pipeline.New().Run(context.Background(), plan.Steps())
	require.NoError(t, err)
	assert.True(t, report.Complete())

	expectedArchive := filepath.Join("/src/app", "build", "searchcommands-1.0.0-20240501120000.tgz")
	assert.Equal(t, expectedArchive, plan.PackagePath())

	require.Len(t, cleaner.cleaned, 1)
	assert.Equal(t, []string{filepath.Join("/src/app", "build"), filepath.Join("/src/app", "stage/tmp")}, cleaner.cleaned[0])

	require.Len(t, packager.requests, 1)
	assert.Equal(t, PackageRequest{
		SourceDir:   filepath.Join("/src/app", "package"),
		ArchivePath: expectedArchive,
		RootName:    "searchcommands",
		DebugClient: "/tools/debug.egg",
	}, packager.requests[0])

	require.Len(t, runner.commands, 3)
	assert.Equal(t, StepBuild, runner.commands[0].Name)
	assert.Equal(t, "/src/app", runner.commands[0].Dir, "Commands default to the project directory")
	assert.Equal(t, []string{"install", "app", expectedArchive, "-update", "1"}, runner.commands[1].Args)
	assert.Equal(t, StepRestart, runner.commands[2].Name)
}

func TestNewPlan_DebugClientOnlyWhenDebug(t *testing.T) {
	opts := testOptions()
	opts.DebugClient = "/tools/debug.egg"

	packager := &fakePackager{}
	plan, err := NewPlan(opts, Collaborators{Runner: &fakeRunner{}, Packager: packager})
	require.NoError(t, err)

	_, err = pipeline.New().Run(context.Background(), plan.Steps())
	require.NoError(t, err)
	require.Len(t, packager.requests, 1)
	assert.Empty(t, packager.requests[0].DebugClient)
}

func TestNewPlan_PackageCommandReplacesPackager(t *testing.T) {
	opts := testOptions()
	opts.Package = CommandSpec{Args: []string{"python", "setup.py", "package", "--build-number={{.BuildNumber}}"}}

	runner := &fakeRunner{}
	plan, err := NewPlan(opts, Collaborators{Runner: runner})
	require.NoError(t, err)

	_, err = pipeline.New().Run(context.Background(), plan.Steps())
	require.NoError(t, err)
	require.Len(t, runner.commands, 4)
	assert.Equal(t, []string{"setup.py", "package", "--build-number=20240501120000"}, runner.commands[1].Args)
}

func TestNewPlan_CleanFailureStopsDeployment(t *testing.T) {
	opts := testOptions()
	opts.Clean = true

	runner := &fakeRunner{}
	cleaner := &fakeCleaner{err: errors.New("permission denied")}

	plan, err := NewPlan(opts, Collaborators{Runner: runner, Packager: &fakePackager{}, Cleaner: cleaner})
	require.NoError(t, err)

	report, err := pipeline.New().Run(context.Background(), plan.Steps())
	assert.ErrorIs(t, err, pipeline.ErrStepExecution)
	assert.Equal(t, 1, report.Len())
	assert.Equal(t, StepClean, report.FailedStep().Name)
	assert.Empty(t, runner.commands, "Nothing should run after a failed clean")
}

func TestNewPlan_InstallExitCodeStopsRestart(t *testing.T) {
	runner := &fakeRunner{codes: map[string]int{StepInstall: 9}}

	plan, err := NewPlan(testOptions(), Collaborators{Runner: runner, Packager: &fakePackager{}})
	require.NoError(t, err)

	report, err := pipeline.New().Run(context.Background(), plan.Steps())
	require.Error(t, err)
	assert.Equal(t, 9, report.ExitCode())
	assert.Equal(t, []string{StepBuild, StepPackage, StepInstall}, func() []string {
		var n []string
		for _, r := range report.Results {
			n = append(n, r.Name)
		}
		return n
	}())
}

func TestNewPlan_OptionalCommandFailureContinues(t *testing.T) {
	opts := testOptions()
	opts.Restart.Optional = true
	runner := &fakeRunner{codes: map[string]int{StepRestart: 3}}

	plan, err := NewPlan(opts, Collaborators{Runner: runner, Packager: &fakePackager{}})
	require.NoError(t, err)

	report, err := pipeline.New().Run(context.Background(), plan.Steps())
	assert.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Len(t, report.OptionalFailures(), 1)
}

func TestNewPlan_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Options, c *Collaborators)
	}{
		{name: "MissingAppName", mutate: func(o *Options, c *Collaborators) { o.AppName = "" }},
		{name: "MissingBuildNumber", mutate: func(o *Options, c *Collaborators) { o.BuildNumber = BuildNumber{} }},
		{name: "MissingRunner", mutate: func(o *Options, c *Collaborators) { c.Runner = nil }},
		{name: "MissingPackager", mutate: func(o *Options, c *Collaborators) { c.Packager = nil }},
		{name: "CleanWithoutCleaner", mutate: func(o *Options, c *Collaborators) { o.Clean = true }},
		{name: "AbsoluteCleanDir", mutate: func(o *Options, c *Collaborators) {
			o.Clean, o.CleanDirs, c.Cleaner = true, []string{"build", "/usr/local"}, &fakeCleaner{}
		}},
		{name: "CleanDirOutsideProject", mutate: func(o *Options, c *Collaborators) {
			o.Clean, o.CleanDirs, c.Cleaner = true, []string{"build/../../other"}, &fakeCleaner{}
		}},
		{name: "HomeCleanDir", mutate: func(o *Options, c *Collaborators) {
			o.Clean, o.CleanDirs, c.Cleaner = true, []string{"~/builds"}, &fakeCleaner{}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			c := Collaborators{Runner: &fakeRunner{}, Packager: &fakePackager{}}
			tt.mutate(&opts, &c)

			plan, err := NewPlan(opts, c)
			assert.ErrorIs(t, err, ErrInvalidOptions)
			assert.Nil(t, plan)
		})
	}
}

func TestValidateCleanDir(t *testing.T) {
	for _, dir := range []string{"build", "dist/", "out/nested", "./tmp", "a/../b"} {
		assert.NoError(t, ValidateCleanDir(dir), dir)
	}
	for _, dir := range []string{"", " ", ".", "./", "..", "../sibling", "build/../../other", "/etc", "/usr/local", "~", "~/builds"} {
		err := ValidateCleanDir(dir)
		require.Error(t, err, dir)
		assert.Contains(t, err.Error(), "below the project directory")
	}
}

func TestNewPlan_CleanDirsIgnoredWithoutClean(t *testing.T) {
	opts := testOptions()
	opts.CleanDirs = []string{"/usr/local"}

	plan, err := NewPlan(opts, Collaborators{Runner: &fakeRunner{}, Packager: &fakePackager{}})
	require.NoError(t, err, "Clean dirs are only checked when a clean is requested")
	assert.NotContains(t, plan.StepNames(), StepClean)
}

// TestNewPlan_PropertyBased_StepOrderIsStable checks ordering for any flag combination
func TestNewPlan_PropertyBased_StepOrderIsStable(t *testing.T) {
	order := map[string]int{StepClean: 0, StepBuild: 1, StepPackage: 2, StepInstall: 3, StepRestart: 4}

	rapid.Check(t, func(t *rapid.T) {
		opts := testOptions()
		opts.Clean = rapid.Bool().Draw(t, "clean")
		opts.Debug = rapid.Bool().Draw(t, "debug")
		if rapid.Bool().Draw(t, "noBuild") {
			opts.Build = CommandSpec{}
		}
		if rapid.Bool().Draw(t, "noRestart") {
			opts.Restart = CommandSpec{}
		}

		plan, err := NewPlan(opts, Collaborators{Runner: &fakeRunner{}, Packager: &fakePackager{}, Cleaner: &fakeCleaner{}})
		if !assert.NoError(t, err) {
			return
		}

		names := plan.StepNames()
		for i := 1; i < len(names); i++ {
			assert.Less(t, order[names[i-1]], order[names[i]], "Steps should keep deployment order")
		}
		assert.Equal(t, opts.Clean, len(names) > 0 && names[0] == StepClean, "Clean runs first exactly when requested")
		assert.Contains(t, names, StepPackage, "Package always runs")
	})
}
