package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"resolvd/internal/domain"
	"resolvd/internal/infra/process"
)

// CommandSynthesizer bridges to an external synthesis program. The
// request is written to the program's stdin as JSON; the candidate
// script is read from stdout. A non-zero exit rejects the candidate.
type CommandSynthesizer struct {
	Exec []string
}

// commandSynthesisRequest is the stdin wire form.
type commandSynthesisRequest struct {
	Action        string                 `json:"action"`
	Parameters    map[string]any         `json:"parameters,omitempty"`
	Platform      string                 `json:"platform"`
	PriorFailures []domain.FailureRecord `json:"priorFailures,omitempty"`
}

func (s CommandSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (string, error) {
	if len(s.Exec) == 0 {
		return "", domain.ErrSynthesizerAbsent
	}
	payload, err := json.Marshal(commandSynthesisRequest{
		Action:        req.ActionName,
		Parameters:    req.Parameters,
		Platform:      req.Platform,
		PriorFailures: req.PriorFailures,
	})
	if err != nil {
		return "", fmt.Errorf("encode synthesis request: %w", err)
	}

	result, err := process.Run(ctx, process.Spec{
		Argv:  s.Exec,
		Stdin: string(payload),
	})
	if err != nil {
		return "", fmt.Errorf("synthesizer command: %w", err)
	}
	if result.TimedOut {
		return "", fmt.Errorf("synthesizer command timed out")
	}
	if result.ExitCode != 0 {
		detail := strings.TrimSpace(result.Stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit status %d", result.ExitCode)
		}
		return "", fmt.Errorf("synthesizer command failed: %s", detail)
	}
	return strings.TrimSpace(result.Stdout), nil
}

var _ Synthesizer = CommandSynthesizer{}
