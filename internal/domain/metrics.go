package domain

import "time"

// ResolutionStatus labels the outcome of a resolved request.
type ResolutionStatus string

const (
	// ResolutionStatusSuccess indicates a tier executed the action.
	ResolutionStatusSuccess ResolutionStatus = "success"
	// ResolutionStatusExhausted indicates every tier failed or was skipped.
	ResolutionStatusExhausted ResolutionStatus = "exhausted"
)

// CacheEventKind labels script cache lifecycle events.
type CacheEventKind string

const (
	// CacheEventHit indicates an Active entry served a lookup.
	CacheEventHit CacheEventKind = "hit"
	// CacheEventMiss indicates no usable entry existed.
	CacheEventMiss CacheEventKind = "miss"
	// CacheEventQuarantine indicates an entry moved to Quarantined.
	CacheEventQuarantine CacheEventKind = "quarantine"
	// CacheEventEvict indicates an entry was removed.
	CacheEventEvict CacheEventKind = "evict"
)

// GenerationOutcome labels how a synthesis attempt ended.
type GenerationOutcome string

const (
	// GenerationOutcomeValidated indicates the candidate passed validation.
	GenerationOutcomeValidated GenerationOutcome = "validated"
	// GenerationOutcomeRejected indicates the candidate failed validation.
	GenerationOutcomeRejected GenerationOutcome = "rejected"
	// GenerationOutcomeCoalesced indicates the call joined an in-flight ticket.
	GenerationOutcomeCoalesced GenerationOutcome = "coalesced"
)

// Metrics records operational metrics for resolution, caching and
// generation.
type Metrics interface {
	ObserveResolution(actionName string, status ResolutionStatus, duration time.Duration)
	ObserveTierAttempt(tier ToolKind, outcome AttemptOutcome, duration time.Duration)
	ObserveCacheEvent(kind CacheEventKind)
	ObserveGeneration(outcome GenerationOutcome, duration time.Duration)
	ObserveFallback(classification FallbackClassification)
	SetCatalogSize(count int)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveResolution(string, ResolutionStatus, time.Duration)  {}
func (NopMetrics) ObserveTierAttempt(ToolKind, AttemptOutcome, time.Duration) {}
func (NopMetrics) ObserveCacheEvent(CacheEventKind)                           {}
func (NopMetrics) ObserveGeneration(GenerationOutcome, time.Duration)         {}
func (NopMetrics) ObserveFallback(FallbackClassification)                     {}
func (NopMetrics) SetCatalogSize(int)                                         {}

var _ Metrics = NopMetrics{}
