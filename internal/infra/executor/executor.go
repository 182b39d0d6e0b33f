package executor

import (
	"context"
	"sort"
	"sync"

	"resolvd/internal/domain"
)

// Executor runs one tier strategy. Implementations map their own
// failure modes onto the shared error taxonomy; they never panic the
// engine and never return Go errors for action-level failures.
type Executor interface {
	Execute(ctx context.Context, manifest domain.ToolManifest, params map[string]any) domain.ExecutorResult
}

// Func adapts a function to the Executor interface.
type Func func(ctx context.Context, manifest domain.ToolManifest, params map[string]any) domain.ExecutorResult

func (f Func) Execute(ctx context.Context, manifest domain.ToolManifest, params map[string]any) domain.ExecutorResult {
	return f(ctx, manifest, params)
}

// Registry is the closed handler table mapping kinds to executors.
// Kinds without a registered executor are skipped by the engine.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.ToolKind]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.ToolKind]Executor)}
}

// Register installs the executor for a kind, replacing any previous
// one.
func (r *Registry) Register(kind domain.ToolKind, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = exec
}

// For returns the executor for a kind.
func (r *Registry) For(kind domain.ToolKind) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.handlers[kind]
	return exec, ok
}

// Kinds returns the registered kinds in tier priority order.
func (r *Registry) Kinds() []domain.ToolKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]domain.ToolKind, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool {
		return kinds[i].Priority() < kinds[j].Priority()
	})
	return kinds
}
