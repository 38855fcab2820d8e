//go:build !windows

package process

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kilometers.ai/appdeploy/internal/core/deployment"
)

func shell(script string) deployment.Command {
	return deployment.Command{Name: "test", Executable: "sh", Args: []string{"-c", script}}
}

func TestExecutor_Run_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		expected int
	}{
		{name: "Success_ShouldReturnZero", script: "exit 0", expected: 0},
		{name: "Failure_ShouldReturnCode", script: "exit 3", expected: 3},
		{name: "HighCode_ShouldBePreserved", script: "exit 200", expected: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := NewExecutorWithOptions(nil, nil, nil, time.Second)

			code, err := executor.Run(context.Background(), shell(tt.script))
			assert.NoError(t, err, "Non-zero exit should not be an error")
			assert.Equal(t, tt.expected, code)
		})
	}
}

func TestExecutor_Run_StreamsOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	executor := NewExecutorWithOptions(nil, &stdout, &stderr, time.Second)

	code, err := executor.Run(context.Background(), shell("echo built; echo warn >&2"))
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "built\n", stdout.String())
	assert.Equal(t, "warn\n", stderr.String())

	var redirected bytes.Buffer
	executor.SetOutput(&redirected, &redirected)
	_, err = executor.Run(context.Background(), shell("echo again"))
	require.NoError(t, err)
	assert.Equal(t, "again\n", redirected.String())
	assert.Equal(t, "built\n", stdout.String(), "Old writer should not receive new output")
}

func TestExecutor_Run_UsesDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	executor := NewExecutorWithOptions([]string{"PATH=/usr/bin:/bin", "BASE=1"}, &out, nil, time.Second)

	cmd := shell(`printf "%s|%s|%s" "$(pwd -P)" "$BASE" "$BUILD"`)
	cmd.Dir = dir
	cmd.Env = map[string]string{"BUILD": "42"}

	_, err := executor.Run(context.Background(), cmd)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "|1|42")
}

func TestExecutor_Run_MissingExecutable(t *testing.T) {
	executor := NewExecutorWithOptions(nil, nil, nil, time.Second)

	code, err := executor.Run(context.Background(), deployment.Command{Executable: "definitely-not-a-real-binary-xyz"})
	assert.Error(t, err)
	assert.Equal(t, 0, code)

	_, err = executor.Run(context.Background(), deployment.Command{})
	assert.Error(t, err)
}

func TestExecutor_Run_Cancellation(t *testing.T) {
	executor := NewExecutorWithOptions(nil, nil, nil, 500*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := executor.Run(ctx, shell("sleep 10"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second, "Cancelled command should stop promptly")
}

func TestExecutor_BuildEnvironment_CommandEnvWins(t *testing.T) {
	executor := NewExecutorWithOptions([]string{"A=1"}, nil, nil, time.Second)

	env := executor.buildEnvironment(map[string]string{"B": "2", "A": "3"})
	assert.Equal(t, []string{"A=1", "A=3", "B=2"}, env)
}
