//go:build unix

package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunCapturesOutput(t *testing.T) {
	result, err := Run(context.Background(), Spec{
		Argv: []string{"sh", "-c", "echo out; echo err 1>&2"},
	})
	require.NoError(t, err)
	require.Zero(t, result.ExitCode)
	require.Equal(t, "out\n", result.Stdout)
	require.Equal(t, "err\n", result.Stderr)
	require.False(t, result.TimedOut)
}

func TestRunReportsExitCode(t *testing.T) {
	result, err := Run(context.Background(), Spec{
		Argv: []string{"sh", "-c", "exit 3"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.ExitCode)
}

func TestRunStdin(t *testing.T) {
	result, err := Run(context.Background(), Spec{
		Argv:  []string{"sh"},
		Stdin: "echo from-stdin",
	})
	require.NoError(t, err)
	require.Equal(t, "from-stdin\n", result.Stdout)
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := Run(ctx, Spec{
		Argv: []string{"sh", "-c", "sleep 30"},
	})
	require.NoError(t, err)
	require.True(t, result.TimedOut)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestRunMissingExecutable(t *testing.T) {
	_, err := Run(context.Background(), Spec{
		Argv: []string{"definitely-not-a-real-binary-acbd1234"},
	})
	require.Error(t, err)
}

func TestRunExtraEnv(t *testing.T) {
	result, err := Run(context.Background(), Spec{
		Argv: []string{"sh", "-c", "printf %s \"$RESOLVD_TEST_VAR\""},
		Env:  map[string]string{"RESOLVD_TEST_VAR": "42"},
	})
	require.NoError(t, err)
	require.Equal(t, "42", result.Stdout)
}
