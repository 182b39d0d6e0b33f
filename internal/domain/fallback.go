package domain

import (
	"fmt"
	"sync"
	"time"
)

// FallbackClassification labels why every tier failed for a request.
type FallbackClassification string

const (
	// FallbackMissingApplication: the target application or service is
	// not installed or not reachable.
	FallbackMissingApplication FallbackClassification = "missing_application"
	// FallbackMissingAuthorization: a credential or consent grant is
	// absent or expired.
	FallbackMissingAuthorization FallbackClassification = "missing_authorization"
	// FallbackMissingPermission: an OS-level permission was denied.
	FallbackMissingPermission FallbackClassification = "missing_permission"
	// FallbackMissingScript: script generation was attempted and failed
	// validation.
	FallbackMissingScript FallbackClassification = "missing_script"
	// FallbackUnknownAction: no tier could explain the failure.
	FallbackUnknownAction FallbackClassification = "unknown_action"
)

// FallbackResponse is the structured remediation handed upstream when
// resolution is exhausted. It is the only caller-visible failure shape.
type FallbackResponse struct {
	Classification       FallbackClassification `json:"classification"`
	RemediationMessage   string                 `json:"remediationMessage"`
	SuggestedUserActions []string               `json:"suggestedUserActions"`
}

// ClassifyFallback maps an exhausted attempt list to a remediation
// response. Classes are checked in fixed priority: a missing
// application outranks a missing credential, which outranks a missing
// permission, which outranks a failed generation.
func ClassifyFallback(actionName string, attempts []ExecutionAttempt) FallbackResponse {
	has := func(class ErrorClass) bool {
		for _, attempt := range attempts {
			if attempt.ErrorClass == class {
				return true
			}
		}
		return false
	}

	switch {
	case has(ErrClassTargetMissing):
		return FallbackResponse{
			Classification:     FallbackMissingApplication,
			RemediationMessage: fmt.Sprintf("The application needed for %q is not installed or not reachable.", actionName),
			SuggestedUserActions: []string{
				"Install or start the target application",
				"Retry the action once the application is available",
			},
		}
	case has(ErrClassAuthMissing):
		return FallbackResponse{
			Classification:     FallbackMissingAuthorization,
			RemediationMessage: fmt.Sprintf("The account or credential needed for %q is missing or expired.", actionName),
			SuggestedUserActions: []string{
				"Re-authorize the connected account",
				"Retry the action after signing in",
			},
		}
	case has(ErrClassPermissionDenied):
		return FallbackResponse{
			Classification:     FallbackMissingPermission,
			RemediationMessage: fmt.Sprintf("An operating system permission required for %q was denied.", actionName),
			SuggestedUserActions: []string{
				"Grant the requested permission in system settings",
				"Retry the action after granting access",
			},
		}
	case has(ErrClassValidationFailed):
		return FallbackResponse{
			Classification:     FallbackMissingScript,
			RemediationMessage: fmt.Sprintf("No working automation could be produced for %q.", actionName),
			SuggestedUserActions: []string{
				"Describe the steps you would take manually",
				"Retry later; failed attempts improve the next synthesis",
			},
		}
	default:
		return FallbackResponse{
			Classification:     FallbackUnknownAction,
			RemediationMessage: fmt.Sprintf("No strategy is known for %q.", actionName),
			SuggestedUserActions: []string{
				"Describe what you want done manually",
			},
		}
	}
}

// FailureRecord is one classified total failure, kept for the upstream
// prompting collaborator. The core records these; it never lets them
// influence tier order.
type FailureRecord struct {
	ActionName     string                 `json:"actionName"`
	Signature      ActionSignature        `json:"signature"`
	Classification FallbackClassification `json:"classification"`
	Attempts       []ExecutionAttempt     `json:"attempts"`
	RecordedAt     time.Time              `json:"recordedAt"`
}

// FailureRing is a bounded per-action ring of failure records.
type FailureRing struct {
	mu       sync.Mutex
	capacity int
	byAction map[string][]FailureRecord
	now      func() time.Time
}

// NewFailureRing creates a ring holding up to capacity records per
// action name.
func NewFailureRing(capacity int) *FailureRing {
	if capacity <= 0 {
		capacity = DefaultFailureRingCapacity
	}
	return &FailureRing{
		capacity: capacity,
		byAction: make(map[string][]FailureRecord),
		now:      time.Now,
	}
}

// Append adds a record, discarding the oldest once the per-action
// capacity is exceeded.
func (r *FailureRing) Append(record FailureRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.RecordedAt.IsZero() {
		record.RecordedAt = r.now()
	}
	records := append(r.byAction[record.ActionName], record)
	if len(records) > r.capacity {
		records = records[len(records)-r.capacity:]
	}
	r.byAction[record.ActionName] = records
}

// Snapshot returns a copy of the records for an action name, oldest
// first. An unknown action returns an empty slice.
func (r *FailureRing) Snapshot(actionName string) []FailureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := r.byAction[actionName]
	out := make([]FailureRecord, len(records))
	copy(out, records)
	return out
}

// Len returns the number of records held for an action name.
func (r *FailureRing) Len(actionName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAction[actionName])
}
