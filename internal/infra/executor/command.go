package executor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"resolvd/internal/domain"
	"resolvd/internal/infra/process"
)

// CommandExecutor runs manifests whose strategy is an external
// command: OS scripting bridges, command-line tools and cached
// generated scripts. Request arguments are substituted into the
// manifest's exec template and also exported as environment variables.
type CommandExecutor struct {
	logger *zap.Logger
}

// NewCommandExecutor creates a process-backed executor.
func NewCommandExecutor(logger *zap.Logger) *CommandExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandExecutor{logger: logger.Named("exec")}
}

// Execute satisfies the Executor contract.
func (e *CommandExecutor) Execute(ctx context.Context, manifest domain.ToolManifest, params map[string]any) domain.ExecutorResult {
	if len(manifest.Exec) == 0 {
		return domain.ExecutorResult{
			ErrorClass: domain.ErrClassExecutionFailed,
			Detail:     fmt.Sprintf("manifest %s has no exec template", manifest.Key()),
		}
	}
	if detail, ok := validateParams(manifest, params); !ok {
		return domain.ExecutorResult{
			ErrorClass: domain.ErrClassExecutionFailed,
			Detail:     detail,
		}
	}

	argv, err := expandTemplate(manifest.Exec, params)
	if err != nil {
		return domain.ExecutorResult{
			ErrorClass: domain.ErrClassExecutionFailed,
			Detail:     err.Error(),
		}
	}

	return e.run(ctx, process.Spec{
		Argv: argv,
		Env:  paramEnv(params),
	})
}

// RunScript executes an opaque script body through the configured
// interpreter, feeding the script on stdin. Used for cached generated
// scripts and for generation validation runs.
func (e *CommandExecutor) RunScript(ctx context.Context, interpreter []string, scriptBody string, params map[string]any) domain.ExecutorResult {
	if len(interpreter) == 0 {
		interpreter = []string{"sh"}
	}
	return e.run(ctx, process.Spec{
		Argv:  interpreter,
		Stdin: scriptBody,
		Env:   paramEnv(params),
	})
}

func (e *CommandExecutor) run(ctx context.Context, spec process.Spec) domain.ExecutorResult {
	result, err := process.Run(ctx, spec)
	if err != nil {
		// The process never started; the target is absent or the spec
		// is unusable.
		return domain.ExecutorResult{
			ErrorClass: domain.ErrClassTargetMissing,
			Detail:     err.Error(),
		}
	}
	if result.TimedOut {
		return domain.ExecutorResult{
			ErrorClass: domain.ErrClassTimeout,
			Detail:     "execution exceeded tier timeout",
			Output:     result.Stdout,
		}
	}
	if result.ExitCode == 0 {
		return domain.ExecutorResult{
			Success: true,
			Output:  strings.TrimRight(result.Stdout, "\n"),
		}
	}

	e.logger.Debug("command failed",
		zap.Int("exitCode", result.ExitCode),
		zap.String("stderr", firstLine(result.Stderr)),
	)
	return domain.ExecutorResult{
		ErrorClass: classifyFailure(result),
		Output:     result.Stdout,
		Detail:     firstLine(result.Stderr),
	}
}

// classifyFailure maps an exit condition onto the error taxonomy.
// Shells reserve 126 (not executable) and 127 (not found); stderr
// markers catch permission and authorization denials reported by
// well-behaved tools.
func classifyFailure(result process.Result) domain.ErrorClass {
	switch result.ExitCode {
	case 126, 127:
		return domain.ErrClassTargetMissing
	}
	stderr := strings.ToLower(result.Stderr)
	switch {
	case strings.Contains(stderr, "permission denied") ||
		strings.Contains(stderr, "operation not permitted"):
		return domain.ErrClassPermissionDenied
	case strings.Contains(stderr, "not authorized") ||
		strings.Contains(stderr, "unauthorized") ||
		strings.Contains(stderr, "authentication required") ||
		strings.Contains(stderr, "token expired"):
		return domain.ErrClassAuthMissing
	case strings.Contains(stderr, "command not found") ||
		strings.Contains(stderr, "application not found") ||
		strings.Contains(stderr, "no such application"):
		return domain.ErrClassTargetMissing
	default:
		return domain.ErrClassExecutionFailed
	}
}

// expandTemplate substitutes {{name}} placeholders in an exec template
// with the string form of the matching argument.
func expandTemplate(template []string, params map[string]any) ([]string, error) {
	argv := make([]string, len(template))
	for i, word := range template {
		expanded := word
		for strings.Contains(expanded, "{{") {
			start := strings.Index(expanded, "{{")
			end := strings.Index(expanded[start:], "}}")
			if end < 0 {
				return nil, fmt.Errorf("unterminated placeholder in %q", word)
			}
			name := strings.TrimSpace(expanded[start+2 : start+end])
			value, ok := params[name]
			if !ok {
				return nil, fmt.Errorf("missing argument %q for placeholder in %q", name, word)
			}
			expanded = expanded[:start] + fmt.Sprint(value) + expanded[start+end+2:]
		}
		argv[i] = expanded
	}
	return argv, nil
}

// validateParams checks arguments against the manifest's parameter
// schema when one is declared.
func validateParams(manifest domain.ToolManifest, params map[string]any) (string, bool) {
	if manifest.ParameterSchema == nil {
		return "", true
	}
	resolved, err := manifest.ParameterSchema.Resolve(nil)
	if err != nil {
		return fmt.Sprintf("resolve parameter schema: %v", err), false
	}
	value := params
	if value == nil {
		value = map[string]any{}
	}
	if err := resolved.Validate(value); err != nil {
		return fmt.Sprintf("arguments rejected by schema: %v", err), false
	}
	return "", true
}

func paramEnv(params map[string]any) map[string]string {
	if len(params) == 0 {
		return nil
	}
	env := make(map[string]string, len(params))
	for name, value := range params {
		key := "RESOLVD_ARG_" + strings.ToUpper(sanitizeEnvKey(name))
		env[key] = fmt.Sprint(value)
	}
	return env
}

// firstLine reduces captured stderr to a single-line detail.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

func sanitizeEnvKey(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
