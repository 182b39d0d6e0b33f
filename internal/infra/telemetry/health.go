package telemetry

import (
	"sort"
	"sync"
)

// HealthReport is the payload served at /healthz.
type HealthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// HealthTracker aggregates per-component readiness. The report is
// "ok" only when every registered component is.
type HealthTracker struct {
	mu         sync.RWMutex
	components map[string]string
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{components: make(map[string]string)}
}

// SetComponent records a component's state; "ok" means healthy, any
// other value is carried into the report verbatim.
func (t *HealthTracker) SetComponent(name, state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.components[name] = state
}

// SetReady marks a component healthy or degraded.
func (t *HealthTracker) SetReady(name string, ready bool) {
	state := "ok"
	if !ready {
		state = "unavailable"
	}
	t.SetComponent(name, state)
}

// Report returns the aggregate health.
func (t *HealthTracker) Report() HealthReport {
	t.mu.RLock()
	defer t.mu.RUnlock()

	report := HealthReport{Status: "ok"}
	if len(t.components) == 0 {
		return report
	}
	report.Components = make(map[string]string, len(t.components))
	names := make([]string, 0, len(t.components))
	for name := range t.components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		state := t.components[name]
		report.Components[name] = state
		if state != "ok" {
			report.Status = "degraded"
		}
	}
	return report
}
