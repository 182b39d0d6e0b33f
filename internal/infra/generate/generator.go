package generate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"resolvd/internal/domain"
)

// Synthesizer is the external code-synthesis collaborator. It receives
// the action description, live platform context and prior failures for
// the same action, and returns an opaque candidate script body.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}

// SynthesisRequest carries everything the collaborator needs.
type SynthesisRequest struct {
	ActionName    string
	Parameters    map[string]any
	Platform      string
	PriorFailures []domain.FailureRecord
}

// ScriptRunner executes an opaque script body. The generator uses it
// for the single bounded validation run of each candidate.
type ScriptRunner interface {
	RunScript(ctx context.Context, interpreter []string, scriptBody string, params map[string]any) domain.ExecutorResult
}

// CacheWriter persists validated scripts.
type CacheWriter interface {
	Put(entry domain.CacheEntry) error
}

// Promoter inserts validated scripts into the tool catalog.
type Promoter interface {
	Promote(entry domain.CacheEntry)
}

// Generation is the outcome of one Generate call. When Executed is
// set, this call's own arguments drove the validation run and Result
// holds that run's output: the effect has already been produced, so
// the caller must not run the script a second time. Coalesced waiters
// get Executed unset; their arguments never ran.
type Generation struct {
	Entry    domain.CacheEntry
	Executed bool
	Result   domain.ExecutorResult
}

// Options configures a Generator.
type Options struct {
	Logger            *zap.Logger
	Metrics           domain.Metrics
	Interpreter       []string
	ValidationTimeout time.Duration
	SynthesisTimeout  time.Duration
}

const defaultSynthesisTimeout = 2 * time.Minute

// Generator synthesizes scripts for capability needs nothing else can
// serve. Concurrent requests for the same signature coalesce onto one
// in-flight ticket: exactly one synthesis call runs, and every waiter
// observes its outcome.
type Generator struct {
	logger  *zap.Logger
	metrics domain.Metrics

	synth    Synthesizer
	runner   ScriptRunner
	cache    CacheWriter
	catalog  Promoter
	failures *domain.FailureRing

	interpreter       []string
	validationTimeout time.Duration
	synthesisTimeout  time.Duration
	now               func() time.Time

	mu       sync.Mutex
	inflight map[domain.ActionSignature]*ticket
}

// ticket tracks one in-flight generation. The done channel closes
// exactly once, after entry/result/err are set.
type ticket struct {
	done   chan struct{}
	entry  domain.CacheEntry
	result domain.ExecutorResult
	err    error
}

// New creates a Generator.
func New(synth Synthesizer, runner ScriptRunner, cache CacheWriter, catalog Promoter, failures *domain.FailureRing, opts Options) *Generator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	interpreter := opts.Interpreter
	if len(interpreter) == 0 {
		interpreter = []string{"sh"}
	}
	validationTimeout := opts.ValidationTimeout
	if validationTimeout <= 0 {
		validationTimeout = domain.DefaultValidationTimeoutSeconds * time.Second
	}
	synthesisTimeout := opts.SynthesisTimeout
	if synthesisTimeout <= 0 {
		synthesisTimeout = defaultSynthesisTimeout
	}
	return &Generator{
		logger:            logger.Named("generator"),
		metrics:           metrics,
		synth:             synth,
		runner:            runner,
		cache:             cache,
		catalog:           catalog,
		failures:          failures,
		interpreter:       interpreter,
		validationTimeout: validationTimeout,
		synthesisTimeout:  synthesisTimeout,
		now:               time.Now,
		inflight:          make(map[domain.ActionSignature]*ticket),
	}
}

// Generate produces (or joins the production of) a validated script
// for the request's signature. On success the entry is already cached
// and promoted. The call that creates the ticket validates the
// candidate with its own arguments; that run doubles as the request's
// execution and is reported through Generation.Executed. A validation
// failure returns ErrGenerationFailed and caches nothing, so the next
// request retries synthesis from scratch with the accumulated failure
// context.
//
// The caller's context only governs how long this caller waits: an
// abandoned wait never cancels the shared ticket, whose lifetime is
// bounded by the generator's own synthesis and validation timeouts.
func (g *Generator) Generate(ctx context.Context, req domain.ActionRequest) (Generation, error) {
	if g.synth == nil {
		return Generation{}, domain.ErrSynthesizerAbsent
	}
	signature := req.Signature()

	g.mu.Lock()
	if existing, ok := g.inflight[signature]; ok {
		g.mu.Unlock()
		g.metrics.ObserveGeneration(domain.GenerationOutcomeCoalesced, 0)
		entry, err := g.await(ctx, existing)
		return Generation{Entry: entry}, err
	}
	t := &ticket{done: make(chan struct{})}
	g.inflight[signature] = t
	g.mu.Unlock()

	go g.run(context.WithoutCancel(ctx), signature, req, t)
	entry, err := g.await(ctx, t)
	if err != nil {
		return Generation{}, err
	}
	return Generation{Entry: entry, Executed: true, Result: t.result}, nil
}

func (g *Generator) await(ctx context.Context, t *ticket) (domain.CacheEntry, error) {
	select {
	case <-ctx.Done():
		return domain.CacheEntry{}, ctx.Err()
	case <-t.done:
		return t.entry, t.err
	}
}

func (g *Generator) run(ctx context.Context, signature domain.ActionSignature, req domain.ActionRequest, t *ticket) {
	started := g.now()
	entry, result, err := g.generate(ctx, signature, req)
	duration := g.now().Sub(started)

	t.entry, t.result, t.err = entry, result, err

	g.mu.Lock()
	delete(g.inflight, signature)
	g.mu.Unlock()
	close(t.done)

	if err != nil {
		g.metrics.ObserveGeneration(domain.GenerationOutcomeRejected, duration)
		g.logger.Warn("script generation failed",
			zap.String("action", req.ActionName),
			zap.String("signature", signature.String()),
			zap.Error(err),
		)
		return
	}
	g.metrics.ObserveGeneration(domain.GenerationOutcomeValidated, duration)
	g.logger.Info("script generated and cached",
		zap.String("action", req.ActionName),
		zap.String("signature", signature.String()),
		zap.Duration("duration", duration),
	)
}

func (g *Generator) generate(ctx context.Context, signature domain.ActionSignature, req domain.ActionRequest) (domain.CacheEntry, domain.ExecutorResult, error) {
	var prior []domain.FailureRecord
	if g.failures != nil {
		prior = g.failures.Snapshot(req.ActionName)
	}

	synthCtx, cancel := context.WithTimeout(ctx, g.synthesisTimeout)
	defer cancel()
	body, err := g.synth.Synthesize(synthCtx, SynthesisRequest{
		ActionName:    req.ActionName,
		Parameters:    req.Parameters,
		Platform:      req.Platform,
		PriorFailures: prior,
	})
	if err != nil {
		return domain.CacheEntry{}, domain.ExecutorResult{}, fmt.Errorf("%w: synthesis: %v", domain.ErrGenerationFailed, err)
	}
	if body == "" {
		return domain.CacheEntry{}, domain.ExecutorResult{}, fmt.Errorf("%w: synthesizer returned an empty script", domain.ErrGenerationFailed)
	}

	validateCtx, cancel := context.WithTimeout(ctx, g.validationTimeout)
	defer cancel()
	result := g.runner.RunScript(validateCtx, g.interpreter, body, req.Parameters)
	if !result.Success {
		detail := result.Detail
		if detail == "" {
			detail = string(result.ErrorClass)
		}
		return domain.CacheEntry{}, result, fmt.Errorf("%w: validation: %s", domain.ErrGenerationFailed, detail)
	}

	now := g.now()
	entry := domain.CacheEntry{
		Signature:    signature,
		ActionName:   req.ActionName,
		Platform:     req.Platform,
		ScriptBody:   body,
		CreatedAt:    now,
		LastUsedAt:   now,
		SuccessCount: 1,
		Status:       domain.CacheStatusActive,
	}
	if g.cache != nil {
		if err := g.cache.Put(entry); err != nil {
			return domain.CacheEntry{}, result, fmt.Errorf("persist generated script: %w", err)
		}
	}
	if g.catalog != nil {
		g.catalog.Promote(entry)
	}
	return entry, result, nil
}
