package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"resolvd/internal/domain"
)

// Resolver is the engine surface the API exposes.
type Resolver interface {
	Resolve(ctx context.Context, req domain.ActionRequest) (domain.ResolutionResult, error)
}

// FailureReader serves recorded failure context.
type FailureReader interface {
	Snapshot(actionName string) []domain.FailureRecord
}

// Handler serves the action resolution API.
type Handler struct {
	logger   *zap.Logger
	resolver Resolver
	failures FailureReader
	mux      *http.ServeMux
}

// NewHandler builds the /v1 route table.
func NewHandler(resolver Resolver, failures FailureReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		logger:   logger.Named("httpapi"),
		resolver: resolver,
		failures: failures,
		mux:      http.NewServeMux(),
	}
	h.mux.HandleFunc("POST /v1/actions", h.handleResolve)
	h.mux.HandleFunc("GET /v1/actions/failures/{action}", h.handleFailures)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// actionRequest is the wire form of a resolution request.
type actionRequest struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Platform   string         `json:"platform,omitempty"`
}

// attemptView is the wire form of one tier attempt.
type attemptView struct {
	Tier       string `json:"tier"`
	Outcome    string `json:"outcome"`
	ErrorClass string `json:"errorClass,omitempty"`
	Detail     string `json:"detail,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// resolutionView is the wire form of a resolution result.
type resolutionView struct {
	RequestID string                   `json:"requestId"`
	Action    string                   `json:"action"`
	Signature string                   `json:"signature"`
	Resolved  bool                     `json:"resolved"`
	Tier      string                   `json:"tier,omitempty"`
	Output    string                   `json:"output,omitempty"`
	Attempts  []attemptView            `json:"attempts"`
	Fallback  *domain.FallbackResponse `json:"fallback,omitempty"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}

	result, err := h.resolver.Resolve(r.Context(), domain.ActionRequest{
		ActionName: req.Action,
		Parameters: req.Parameters,
		Platform:   req.Platform,
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.logger.Error("resolution failed", zap.String("action", req.Action), zap.Error(err))
		writeError(w, statusFromError(err), err.Error())
		return
	}

	status := http.StatusOK
	if !result.Resolved {
		// The request was handled; the classified fallback tells the
		// caller what to remediate.
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, toResolutionView(result))
}

func (h *Handler) handleFailures(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	if action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	records := h.failures.Snapshot(action)
	if records == nil {
		records = []domain.FailureRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"action":   action,
		"failures": records,
	})
}

func toResolutionView(result domain.ResolutionResult) resolutionView {
	view := resolutionView{
		RequestID: result.RequestID,
		Action:    result.ActionName,
		Signature: result.Signature.String(),
		Resolved:  result.Resolved,
		Tier:      string(result.Tier),
		Output:    result.Output,
		Attempts:  make([]attemptView, 0, len(result.Attempts)),
		Fallback:  result.Fallback,
	}
	for _, attempt := range result.Attempts {
		view.Attempts = append(view.Attempts, attemptView{
			Tier:       string(attempt.Tier),
			Outcome:    string(attempt.Outcome),
			ErrorClass: string(attempt.ErrorClass),
			Detail:     attempt.Detail,
			DurationMS: attempt.Duration.Milliseconds(),
		})
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func statusFromError(err error) int {
	code, ok := domain.CodeFrom(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeFailedPrecond:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
