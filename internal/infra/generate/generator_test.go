package generate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"resolvd/internal/domain"
)

type stubSynth struct {
	calls   atomic.Int64
	body    string
	err     error
	release chan struct{}
}

func (s *stubSynth) Synthesize(ctx context.Context, req SynthesisRequest) (string, error) {
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.body, s.err
}

type stubRunner struct {
	mu      sync.Mutex
	scripts []string
	result  domain.ExecutorResult
}

func (r *stubRunner) RunScript(_ context.Context, _ []string, body string, _ map[string]any) domain.ExecutorResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts = append(r.scripts, body)
	return r.result
}

type stubCache struct {
	mu      sync.Mutex
	entries []domain.CacheEntry
	err     error
}

func (c *stubCache) Put(entry domain.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return c.err
}

type stubPromoter struct {
	mu      sync.Mutex
	entries []domain.CacheEntry
}

func (p *stubPromoter) Promote(entry domain.CacheEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
}

func testRequest() domain.ActionRequest {
	return domain.ActionRequest{
		ActionName: "compose_email",
		Parameters: map[string]any{"to": "a@b.com"},
		Platform:   "mac",
	}
}

func TestGenerateSuccessCachesAndPromotes(t *testing.T) {
	synth := &stubSynth{body: "osascript -e 'tell app'"}
	runner := &stubRunner{result: domain.ExecutorResult{Success: true, Output: "ok"}}
	cache := &stubCache{}
	promoter := &stubPromoter{}

	gen := New(synth, runner, cache, promoter, nil, Options{})
	generation, err := gen.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	entry := generation.Entry
	require.Equal(t, domain.CacheStatusActive, entry.Status)
	require.Equal(t, 1, entry.SuccessCount)
	require.Equal(t, synth.body, entry.ScriptBody)
	require.Equal(t, testRequest().Signature(), entry.Signature)

	// The ticket creator's arguments drove the validation run, so the
	// run's result is handed back as the request's execution.
	require.True(t, generation.Executed)
	require.True(t, generation.Result.Success)
	require.Equal(t, "ok", generation.Result.Output)

	require.Len(t, cache.entries, 1)
	require.Len(t, promoter.entries, 1)
	require.Equal(t, entry, cache.entries[0])
	require.Equal(t, []string{synth.body}, runner.scripts)
}

func TestGenerateValidationFailureCachesNothing(t *testing.T) {
	synth := &stubSynth{body: "exit 1"}
	runner := &stubRunner{result: domain.ExecutorResult{
		ErrorClass: domain.ErrClassExecutionFailed,
		Detail:     "exit status 1",
	}}
	cache := &stubCache{}
	promoter := &stubPromoter{}

	gen := New(synth, runner, cache, promoter, nil, Options{})
	_, err := gen.Generate(context.Background(), testRequest())
	require.ErrorIs(t, err, domain.ErrGenerationFailed)
	require.Empty(t, cache.entries)
	require.Empty(t, promoter.entries)
}

func TestGenerateSynthesisErrorDoesNotRunScript(t *testing.T) {
	synth := &stubSynth{err: errors.New("model unavailable")}
	runner := &stubRunner{}

	gen := New(synth, runner, &stubCache{}, &stubPromoter{}, nil, Options{})
	_, err := gen.Generate(context.Background(), testRequest())
	require.ErrorIs(t, err, domain.ErrGenerationFailed)
	require.Empty(t, runner.scripts)
}

func TestGenerateRejectsEmptyScript(t *testing.T) {
	gen := New(&stubSynth{body: ""}, &stubRunner{}, &stubCache{}, &stubPromoter{}, nil, Options{})
	_, err := gen.Generate(context.Background(), testRequest())
	require.ErrorIs(t, err, domain.ErrGenerationFailed)
}

func TestGenerateWithoutSynthesizer(t *testing.T) {
	gen := New(nil, &stubRunner{}, &stubCache{}, &stubPromoter{}, nil, Options{})
	_, err := gen.Generate(context.Background(), testRequest())
	require.ErrorIs(t, err, domain.ErrSynthesizerAbsent)
}

func TestGenerateCoalescesConcurrentRequests(t *testing.T) {
	synth := &stubSynth{body: "echo ok", release: make(chan struct{})}
	runner := &stubRunner{result: domain.ExecutorResult{Success: true}}
	cache := &stubCache{}

	gen := New(synth, runner, cache, &stubPromoter{}, nil, Options{})

	const waiters = 8
	generations := make([]Generation, waiters)
	errs := make([]error, waiters)
	var started, finished sync.WaitGroup
	for i := range waiters {
		started.Add(1)
		finished.Add(1)
		go func() {
			defer finished.Done()
			started.Done()
			generations[i], errs[i] = gen.Generate(context.Background(), testRequest())
		}()
	}
	started.Wait()
	// Let every goroutine reach the ticket before releasing synthesis.
	time.Sleep(50 * time.Millisecond)
	close(synth.release)
	finished.Wait()

	require.Equal(t, int64(1), synth.calls.Load())
	require.Len(t, cache.entries, 1)
	executed := 0
	for i := range waiters {
		require.NoError(t, errs[i])
		require.Equal(t, cache.entries[0], generations[i].Entry)
		if generations[i].Executed {
			executed++
		}
	}
	// Only the ticket creator's arguments ran; every coalesced waiter
	// must execute the cached script itself.
	require.Equal(t, 1, executed)
}

func TestGenerateDistinctSignaturesRunIndependently(t *testing.T) {
	synth := &stubSynth{body: "echo ok"}
	runner := &stubRunner{result: domain.ExecutorResult{Success: true}}
	cache := &stubCache{}

	gen := New(synth, runner, cache, &stubPromoter{}, nil, Options{})

	first, err := gen.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	other := testRequest()
	other.ActionName = "resize_window"
	second, err := gen.Generate(context.Background(), other)
	require.NoError(t, err)

	require.Equal(t, int64(2), synth.calls.Load())
	require.NotEqual(t, first.Entry.Signature, second.Entry.Signature)
	require.Len(t, cache.entries, 2)
}

func TestGenerateWaiterCancellationLeavesTicketRunning(t *testing.T) {
	synth := &stubSynth{body: "echo ok", release: make(chan struct{})}
	runner := &stubRunner{result: domain.ExecutorResult{Success: true}}
	cache := &stubCache{}

	gen := New(synth, runner, cache, &stubPromoter{}, nil, Options{})

	var driverGen Generation
	var driverErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		driverGen, driverErr = gen.Generate(context.Background(), testRequest())
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gen.Generate(ctx, testRequest())
	require.ErrorIs(t, err, context.Canceled)

	close(synth.release)
	<-done
	require.NoError(t, driverErr)
	require.Equal(t, domain.CacheStatusActive, driverGen.Entry.Status)
	require.True(t, driverGen.Executed)
	require.Equal(t, int64(1), synth.calls.Load())
	require.Len(t, cache.entries, 1)
}

func TestGeneratePassesPriorFailures(t *testing.T) {
	ring := domain.NewFailureRing(5)
	ring.Append(domain.FailureRecord{
		ActionName:     "compose_email",
		Classification: domain.FallbackMissingScript,
	})

	var captured []domain.FailureRecord
	synth := capturingSynth{onRequest: func(req SynthesisRequest) {
		captured = req.PriorFailures
	}}
	runner := &stubRunner{result: domain.ExecutorResult{Success: true}}

	gen := New(synth, runner, &stubCache{}, &stubPromoter{}, ring, Options{})
	_, err := gen.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, captured, 1)
	require.Equal(t, domain.FallbackMissingScript, captured[0].Classification)
}

type capturingSynth struct {
	onRequest func(SynthesisRequest)
}

func (s capturingSynth) Synthesize(_ context.Context, req SynthesisRequest) (string, error) {
	s.onRequest(req)
	return "echo ok", nil
}
