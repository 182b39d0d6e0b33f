package resolve

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"resolvd/internal/domain"
	"resolvd/internal/infra/executor"
	"resolvd/internal/infra/generate"
)

// CatalogReader answers capability lookups from the current snapshot.
type CatalogReader interface {
	Lookup(actionName string) []domain.ToolManifest
}

// ScriptCache is the slice of the cache the engine needs: Active-entry
// lookups and outcome feedback.
type ScriptCache interface {
	Get(signature domain.ActionSignature) (domain.CacheEntry, bool, error)
	RecordOutcome(signature domain.ActionSignature, success bool) (domain.CacheEntry, bool, error)
}

// Generator produces a validated script when the generated-script tier
// has nothing cached.
type Generator interface {
	Generate(ctx context.Context, req domain.ActionRequest) (generate.Generation, error)
}

// ScriptRunner executes a cached script body.
type ScriptRunner interface {
	RunScript(ctx context.Context, interpreter []string, scriptBody string, params map[string]any) domain.ExecutorResult
}

// Options configures an Engine.
type Options struct {
	Logger  *zap.Logger
	Metrics domain.Metrics

	// TierTimeout bounds each tier's execution. Nil uses the default
	// for every tier.
	TierTimeout func(domain.ToolKind) time.Duration

	// Interpreter runs cached script bodies.
	Interpreter []string

	// DefaultPlatform tags requests that arrive without one.
	DefaultPlatform string
}

// Engine walks the execution tiers for each action request. Tier order
// is fixed; reliability history feeds the script cache, never the
// walk order. The first successful tier terminates the request, and an
// exhausted walk produces a classified fallback.
type Engine struct {
	logger  *zap.Logger
	metrics domain.Metrics

	catalog   CatalogReader
	cache     ScriptCache
	generator Generator
	registry  *executor.Registry
	scripts   ScriptRunner
	failures  *domain.FailureRing

	tierTimeout     func(domain.ToolKind) time.Duration
	interpreter     []string
	defaultPlatform string

	now   func() time.Time
	newID func() string
}

// New creates an Engine.
func New(catalog CatalogReader, cache ScriptCache, generator Generator, registry *executor.Registry, scripts ScriptRunner, failures *domain.FailureRing, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	tierTimeout := opts.TierTimeout
	if tierTimeout == nil {
		tierTimeout = func(domain.ToolKind) time.Duration {
			return domain.DefaultTierTimeoutSeconds * time.Second
		}
	}
	interpreter := opts.Interpreter
	if len(interpreter) == 0 {
		interpreter = []string{"sh"}
	}
	defaultPlatform := opts.DefaultPlatform
	if defaultPlatform == "" {
		defaultPlatform = domain.DefaultPlatform
	}
	return &Engine{
		logger:          logger.Named("engine"),
		metrics:         metrics,
		catalog:         catalog,
		cache:           cache,
		generator:       generator,
		registry:        registry,
		scripts:         scripts,
		failures:        failures,
		tierTimeout:     tierTimeout,
		interpreter:     interpreter,
		defaultPlatform: defaultPlatform,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// Resolve walks the tiers for one request.
func (e *Engine) Resolve(ctx context.Context, req domain.ActionRequest) (domain.ResolutionResult, error) {
	if req.ActionName == "" {
		return domain.ResolutionResult{}, errors.New("action name is required")
	}
	if req.Platform == "" {
		req.Platform = e.defaultPlatform
	}

	started := e.now()
	result := domain.ResolutionResult{
		RequestID:  e.newID(),
		ActionName: req.ActionName,
		Signature:  req.Signature(),
	}
	byKind := manifestsByKind(e.catalog.Lookup(req.ActionName))

	for _, tier := range domain.TierOrder {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var attempt domain.ExecutionAttempt
		var output string
		if tier == domain.KindGeneratedScript {
			attempt, output = e.attemptGeneratedScript(ctx, req, result.Signature)
		} else {
			attempt, output = e.attemptManifest(ctx, tier, byKind[tier], req.Parameters)
		}
		result.Attempts = append(result.Attempts, attempt)
		e.metrics.ObserveTierAttempt(tier, attempt.Outcome, attempt.Duration)

		if attempt.Outcome == domain.OutcomeSuccess {
			result.Resolved = true
			result.Tier = tier
			result.Output = output
			e.metrics.ObserveResolution(req.ActionName, domain.ResolutionStatusSuccess, e.now().Sub(started))
			e.logger.Info("action resolved",
				zap.String("requestId", result.RequestID),
				zap.String("action", req.ActionName),
				zap.String("tier", string(tier)),
				zap.Int("attempts", len(result.Attempts)),
			)
			return result, nil
		}
	}

	fallback := domain.ClassifyFallback(req.ActionName, result.Attempts)
	result.Fallback = &fallback
	if e.failures != nil {
		e.failures.Append(domain.FailureRecord{
			ActionName:     req.ActionName,
			Signature:      result.Signature,
			Classification: fallback.Classification,
			Attempts:       result.Attempts,
			RecordedAt:     e.now(),
		})
	}
	e.metrics.ObserveFallback(fallback.Classification)
	e.metrics.ObserveResolution(req.ActionName, domain.ResolutionStatusExhausted, e.now().Sub(started))
	e.logger.Warn("resolution exhausted",
		zap.String("requestId", result.RequestID),
		zap.String("action", req.ActionName),
		zap.String("classification", string(fallback.Classification)),
	)
	return result, nil
}

// attemptManifest runs one discovered-manifest tier.
func (e *Engine) attemptManifest(ctx context.Context, tier domain.ToolKind, manifests []domain.ToolManifest, params map[string]any) (domain.ExecutionAttempt, string) {
	attempt := domain.ExecutionAttempt{Tier: tier, StartedAt: e.now()}
	if len(manifests) == 0 {
		attempt.Outcome = domain.OutcomeSkipped
		attempt.ErrorClass = domain.ErrClassNotApplicable
		return attempt, ""
	}
	exec, ok := e.registry.For(tier)
	if !ok {
		attempt.Outcome = domain.OutcomeSkipped
		attempt.ErrorClass = domain.ErrClassNotApplicable
		attempt.Detail = "no executor registered for tier"
		return attempt, ""
	}

	tierCtx, cancel := context.WithTimeout(ctx, e.tierTimeout(tier))
	defer cancel()
	execResult := exec.Execute(tierCtx, manifests[0], params)
	attempt.Duration = e.now().Sub(attempt.StartedAt)
	return finishAttempt(attempt, execResult)
}

// attemptGeneratedScript serves the generated-script tier. A cached
// Active script runs with this request's arguments and the outcome
// feeds the cache counters. A miss triggers synthesis: when this
// request drove the synthesis, the candidate was already validated
// with its arguments, so that run stands as the tier's execution and
// the script is never run twice. A coalesced request whose arguments
// never ran executes the freshly cached script itself.
func (e *Engine) attemptGeneratedScript(ctx context.Context, req domain.ActionRequest, signature domain.ActionSignature) (domain.ExecutionAttempt, string) {
	attempt := domain.ExecutionAttempt{Tier: domain.KindGeneratedScript, StartedAt: e.now()}

	entry, found, err := e.cache.Get(signature)
	if err != nil {
		attempt.Outcome = domain.OutcomeFailure
		attempt.ErrorClass = domain.ErrClassUnknown
		attempt.Detail = err.Error()
		attempt.Duration = e.now().Sub(attempt.StartedAt)
		return attempt, ""
	}

	if !found {
		if e.generator == nil {
			attempt.Outcome = domain.OutcomeSkipped
			attempt.ErrorClass = domain.ErrClassNotApplicable
			return attempt, ""
		}
		generated, err := e.generator.Generate(ctx, req)
		if err != nil {
			attempt.Duration = e.now().Sub(attempt.StartedAt)
			if errors.Is(err, domain.ErrSynthesizerAbsent) {
				attempt.Outcome = domain.OutcomeSkipped
				attempt.ErrorClass = domain.ErrClassNotApplicable
				return attempt, ""
			}
			attempt.Outcome = domain.OutcomeFailure
			attempt.ErrorClass = domain.ErrClassValidationFailed
			attempt.Detail = err.Error()
			return attempt, ""
		}
		if generated.Executed {
			// The validation run used this request's arguments and its
			// success is already folded into the cached entry.
			attempt.Duration = e.now().Sub(attempt.StartedAt)
			return finishAttempt(attempt, generated.Result)
		}
		entry = generated.Entry
	}

	tierCtx, cancel := context.WithTimeout(ctx, e.tierTimeout(domain.KindGeneratedScript))
	defer cancel()
	execResult := e.scripts.RunScript(tierCtx, e.interpreter, entry.ScriptBody, req.Parameters)
	attempt.Duration = e.now().Sub(attempt.StartedAt)

	if _, _, err := e.cache.RecordOutcome(signature, execResult.Success); err != nil {
		e.logger.Warn("recording script outcome failed",
			zap.String("signature", signature.String()),
			zap.Error(err),
		)
	}
	return finishAttempt(attempt, execResult)
}

func finishAttempt(attempt domain.ExecutionAttempt, execResult domain.ExecutorResult) (domain.ExecutionAttempt, string) {
	if execResult.Success {
		attempt.Outcome = domain.OutcomeSuccess
		return attempt, execResult.Output
	}
	attempt.Outcome = domain.OutcomeFailure
	attempt.ErrorClass = execResult.ErrorClass
	if attempt.ErrorClass == domain.ErrClassNone {
		attempt.ErrorClass = domain.ErrClassUnknown
	}
	attempt.Detail = execResult.Detail
	return attempt, ""
}

func manifestsByKind(manifests []domain.ToolManifest) map[domain.ToolKind][]domain.ToolManifest {
	byKind := make(map[domain.ToolKind][]domain.ToolManifest, len(manifests))
	for _, manifest := range manifests {
		byKind[manifest.Kind] = append(byKind[manifest.Kind], manifest)
	}
	return byKind
}
