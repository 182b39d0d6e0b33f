package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Cleanup force-terminates a spawned process tree.
type Cleanup func()

// Spec describes one bounded external execution.
type Spec struct {
	Argv  []string
	Env   map[string]string
	Dir   string
	Stdin string
}

// Result captures the observable outcome of a run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Run executes the spec under the context's deadline. On cancellation
// or timeout the process group is force-killed; a timeout is reported
// in the Result, not as an error, so callers can map it to a tier
// failure rather than a fatal condition.
func Run(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Argv) == 0 {
		return Result{}, fmt.Errorf("empty command")
	}
	if _, err := exec.LookPath(spec.Argv[0]); err != nil {
		return Result{}, fmt.Errorf("look up %s: %w", spec.Argv[0], err)
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = buildEnv(spec.Env)
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cleanup := Setup(cmd)
	defer cleanup()

	runErr := cmd.Run()

	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
	if runErr == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, runErr
}

func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	for key, value := range extra {
		env = append(env, key+"="+value)
	}
	return env
}
