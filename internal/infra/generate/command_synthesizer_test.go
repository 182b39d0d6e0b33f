//go:build unix

package generate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"resolvd/internal/domain"
)

func TestCommandSynthesizerReadsStdout(t *testing.T) {
	synth := CommandSynthesizer{Exec: []string{"sh", "-c", "cat >/dev/null; echo 'echo generated'"}}
	body, err := synth.Synthesize(context.Background(), SynthesisRequest{
		ActionName: "compose_email",
		Platform:   "mac",
	})
	require.NoError(t, err)
	require.Equal(t, "echo generated", body)
}

func TestCommandSynthesizerReceivesRequestJSON(t *testing.T) {
	synth := CommandSynthesizer{Exec: []string{"sh", "-c", "cat"}}
	body, err := synth.Synthesize(context.Background(), SynthesisRequest{
		ActionName: "compose_email",
		Parameters: map[string]any{"to": "a@b.com"},
		Platform:   "mac",
	})
	require.NoError(t, err)
	require.Contains(t, body, `"action":"compose_email"`)
	require.Contains(t, body, `"platform":"mac"`)
}

func TestCommandSynthesizerNonZeroExit(t *testing.T) {
	synth := CommandSynthesizer{Exec: []string{"sh", "-c", "echo refusing 1>&2; exit 1"}}
	_, err := synth.Synthesize(context.Background(), SynthesisRequest{ActionName: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "refusing")
}

func TestCommandSynthesizerWithoutExec(t *testing.T) {
	_, err := CommandSynthesizer{}.Synthesize(context.Background(), SynthesisRequest{ActionName: "x"})
	require.ErrorIs(t, err, domain.ErrSynthesizerAbsent)
}
