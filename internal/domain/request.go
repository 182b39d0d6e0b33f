package domain

import "time"

// ActionRequest is the structured form the upstream intent parser
// hands to the resolution engine.
type ActionRequest struct {
	ActionName string
	Parameters map[string]any
	Platform   string
}

// Signature derives the request's action signature.
func (r ActionRequest) Signature() ActionSignature {
	return NewActionSignature(r.ActionName, r.Parameters, r.Platform)
}

// AttemptOutcome labels how one tier try ended.
type AttemptOutcome string

const (
	// OutcomeSuccess indicates the tier executed the action.
	OutcomeSuccess AttemptOutcome = "success"
	// OutcomeFailure indicates the tier ran and failed.
	OutcomeFailure AttemptOutcome = "failure"
	// OutcomeSkipped indicates the tier had no manifest for the action.
	OutcomeSkipped AttemptOutcome = "skipped"
)

// ErrorClass categorizes a tier failure for fallback classification.
type ErrorClass string

const (
	// ErrClassNone marks attempts without an error.
	ErrClassNone ErrorClass = ""
	// ErrClassNotApplicable marks tiers with no manifest for the action.
	ErrClassNotApplicable ErrorClass = "not_applicable"
	// ErrClassTimeout marks tier executions stopped by the per-tier deadline.
	ErrClassTimeout ErrorClass = "timeout"
	// ErrClassTargetMissing marks an absent target application or service.
	ErrClassTargetMissing ErrorClass = "target_missing"
	// ErrClassAuthMissing marks an expired or absent credential.
	ErrClassAuthMissing ErrorClass = "auth_missing"
	// ErrClassPermissionDenied marks a denied OS-level permission.
	ErrClassPermissionDenied ErrorClass = "permission_denied"
	// ErrClassValidationFailed marks a generated script failing its test run.
	ErrClassValidationFailed ErrorClass = "validation_failed"
	// ErrClassExecutionFailed marks a tier that ran but reported an error.
	ErrClassExecutionFailed ErrorClass = "execution_failed"
	// ErrClassUnknown marks failures with no better classification.
	ErrClassUnknown ErrorClass = "unknown"
)

// ExecutionAttempt records one tier try within a request. The list is
// request-scoped; only the terminal outcome outlives the request, via
// the script cache counters and the failure record ring.
type ExecutionAttempt struct {
	Tier       ToolKind
	StartedAt  time.Time
	Duration   time.Duration
	Outcome    AttemptOutcome
	ErrorClass ErrorClass
	Detail     string
}

// ResolutionResult is the engine's answer for one request.
type ResolutionResult struct {
	RequestID  string
	ActionName string
	Signature  ActionSignature
	Resolved   bool
	Tier       ToolKind
	Output     string
	Attempts   []ExecutionAttempt
	Fallback   *FallbackResponse
}

// ExecutorResult is what a tier executor reports back to the engine.
type ExecutorResult struct {
	Success    bool
	ErrorClass ErrorClass
	Output     string
	Detail     string
}
