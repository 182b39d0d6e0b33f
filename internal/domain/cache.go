package domain

import "time"

// CacheStatus is the lifecycle state of a cached generated script.
type CacheStatus string

const (
	// CacheStatusActive marks entries eligible for resolution.
	CacheStatusActive CacheStatus = "active"
	// CacheStatusQuarantined marks recently unreliable entries.
	CacheStatusQuarantined CacheStatus = "quarantined"
	// CacheStatusEvicted marks entries removed from resolution. Terminal.
	CacheStatusEvicted CacheStatus = "evicted"
)

// CacheEntry is a persisted generated script keyed by action
// signature. Counters only grow; Evicted is never left.
type CacheEntry struct {
	Signature  ActionSignature `json:"signature"`
	ActionName string          `json:"actionName"`
	Platform   string          `json:"platform"`
	ScriptBody string          `json:"scriptBody"`
	CreatedAt  time.Time       `json:"createdAt"`
	LastUsedAt time.Time       `json:"lastUsedAt"`

	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
	// ConsecutiveFailures counts failures recorded since quarantine was
	// entered (or since the last success), driving eviction.
	ConsecutiveFailures int `json:"consecutiveFailures"`

	Status CacheStatus `json:"status"`
}

const (
	// quarantineFailureFloor is the minimum failure count before the
	// failure-ratio rule can quarantine an entry.
	quarantineFailureFloor = 3
	// evictConsecutiveFailures is how many consecutive failures move a
	// quarantined entry to eviction.
	evictConsecutiveFailures = 2
)

// quarantineCondition holds when failures have both crossed the
// absolute floor and make up a majority of all recorded outcomes.
func (e CacheEntry) quarantineCondition() bool {
	total := e.SuccessCount + e.FailureCount
	if total == 0 {
		return false
	}
	return e.FailureCount >= quarantineFailureFloor &&
		float64(e.FailureCount)/float64(total) > 0.5
}

// Apply folds one execution outcome into the entry and returns the
// resulting status. The quarantine condition is re-evaluated on every
// call, so an entry whose new successes outweigh old failures recovers
// to Active. Eviction is one-way: a quarantined entry that records two
// consecutive failures without an intervening success is evicted, and
// an evicted entry never changes again.
func (e *CacheEntry) Apply(success bool, now time.Time) CacheStatus {
	if e.Status == CacheStatusEvicted {
		return e.Status
	}
	e.LastUsedAt = now

	if success {
		e.SuccessCount++
		e.ConsecutiveFailures = 0
		if !e.quarantineCondition() {
			e.Status = CacheStatusActive
		}
		return e.Status
	}

	e.FailureCount++
	e.ConsecutiveFailures++

	if e.Status == CacheStatusQuarantined {
		if e.ConsecutiveFailures >= evictConsecutiveFailures {
			e.Status = CacheStatusEvicted
		}
		return e.Status
	}
	if e.quarantineCondition() {
		e.Status = CacheStatusQuarantined
		// Eviction counting starts from the quarantine transition.
		e.ConsecutiveFailures = 0
	}
	return e.Status
}

// IdleExpired reports whether the entry has been unused longer than
// the idle horizon. Applies regardless of status.
func (e CacheEntry) IdleExpired(now time.Time, horizon time.Duration) bool {
	if horizon <= 0 {
		return false
	}
	return now.Sub(e.LastUsedAt) > horizon
}

// PromotedManifest derives the GeneratedScript manifest for an entry.
func (e CacheEntry) PromotedManifest() ToolManifest {
	return ToolManifest{
		ActionName:       e.ActionName,
		Kind:             KindGeneratedScript,
		Description:      "generated script for " + e.ActionName,
		SourceDiscoverer: SourceCache,
	}
}
