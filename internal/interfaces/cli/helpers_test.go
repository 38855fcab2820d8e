package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kilometers.ai/appdeploy/internal/application/services"
	"kilometers.ai/appdeploy/internal/core/deployment"
	"kilometers.ai/appdeploy/internal/infrastructure/config"
	"kilometers.ai/appdeploy/internal/infrastructure/definition"
	"kilometers.ai/appdeploy/internal/infrastructure/filesystem"
	"kilometers.ai/appdeploy/internal/infrastructure/history"
	"kilometers.ai/appdeploy/internal/infrastructure/logging"
	"kilometers.ai/appdeploy/internal/infrastructure/packaging"
)

// scriptedRunner stands in for the OS executor: it prints the command and
// exits with the code configured for the step name
type scriptedRunner struct {
	mu     sync.Mutex
	codes  map[string]int
	ran    []string
	stdout io.Writer
	stderr io.Writer
}

func (r *scriptedRunner) Run(ctx context.Context, cmd deployment.Command) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ran = append(r.ran, cmd.Name)
	if r.stdout != nil {
		fmt.Fprintf(r.stdout, "running %s\n", cmd.String())
	}
	return r.codes[cmd.Name], nil
}

func (r *scriptedRunner) SetOutput(stdout, stderr io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stdout, r.stderr = stdout, stderr
}

func (r *scriptedRunner) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

type testEnv struct {
	dir        string
	configPath string
	runner     *scriptedRunner
	reports    *history.InMemoryStore
	opts       GlobalOptions
	runs       int
}

const testConfigTemplate = `app_name: searchcommands
version: "1.0.0"
project_dir: %s
source_dir: app
package_dir: dist
commands:
  build:
    args: [ant, "-Dbuild.number={{.BuildNumber}}"]
  install:
    args: [vendorctl, install, "{{.PackagePath}}"]
  restart:
    args: [vendorctl, restart]
`

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "app", "default"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app", "default", "app.conf"), []byte("[ui]\n"), 0o644))

	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		runner:     &scriptedRunner{codes: map[string]int{}},
		reports:    history.NewInMemoryStore(),
	}
	env.writeConfig(t, fmt.Sprintf(testConfigTemplate, dir))
	return env
}

func (e *testEnv) writeConfig(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(e.configPath, []byte(content), 0o644))
}

func (e *testEnv) factory(opts GlobalOptions) (*CLIContainer, error) {
	e.opts = opts

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = e.configPath
	}
	configRepo := config.NewCompositeConfigRepository(configPath)
	logger := logging.NewHclogGateway(logging.Options{Output: io.Discard, NoColor: true})

	deploymentService := services.NewDeploymentService(services.DeploymentDependencies{
		ConfigRepo:  configRepo,
		Runner:      e.runner,
		Packager:    packaging.NewTarGzPackager(logger),
		Cleaner:     filesystem.NewCleaner(logger),
		Definitions: definition.NewYAMLLoader(),
		Reports:     e.reports,
		Logger:      logger,
		Clock:       func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		RunIDs: func() string {
			e.runs++
			return fmt.Sprintf("run-%d", e.runs)
		},
	})

	return &CLIContainer{
		ConfigService:     services.NewConfigurationService(configRepo, logger),
		DeploymentService: deploymentService,
		Logger:            logger,
		Output:            e.runner,
	}, nil
}

// execute runs the CLI in-process and returns its output and exit code
func (e *testEnv) execute(args ...string) (stdout, stderr string, code int) {
	var out, errOut bytes.Buffer
	code = Run(context.Background(), e.factory, append([]string{"--no-color"}, args...), &out, &errOut)
	return out.String(), errOut.String(), code
}
