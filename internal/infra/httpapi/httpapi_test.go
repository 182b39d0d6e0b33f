package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"resolvd/internal/domain"
)

type stubResolver struct {
	req    domain.ActionRequest
	result domain.ResolutionResult
	err    error
}

func (s *stubResolver) Resolve(_ context.Context, req domain.ActionRequest) (domain.ResolutionResult, error) {
	s.req = req
	return s.result, s.err
}

func TestResolveEndpointSuccess(t *testing.T) {
	resolver := &stubResolver{result: domain.ResolutionResult{
		RequestID:  "req-1",
		ActionName: "compose_email",
		Signature:  "abc123",
		Resolved:   true,
		Tier:       domain.KindNativeAPI,
		Output:     "sent",
		Attempts: []domain.ExecutionAttempt{
			{Tier: domain.KindNativeAPI, Outcome: domain.OutcomeSuccess},
		},
	}}
	handler := NewHandler(resolver, domain.NewFailureRing(5), nil)

	body := `{"action":"compose_email","parameters":{"to":"a@b.com"},"platform":"mac"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/actions", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "compose_email", resolver.req.ActionName)
	require.Equal(t, "a@b.com", resolver.req.Parameters["to"])
	require.Equal(t, "mac", resolver.req.Platform)

	var view resolutionView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	require.True(t, view.Resolved)
	require.Equal(t, "native_api", view.Tier)
	require.Equal(t, "sent", view.Output)
	require.Len(t, view.Attempts, 1)
}

func TestResolveEndpointExhausted(t *testing.T) {
	fallback := domain.FallbackResponse{
		Classification:     domain.FallbackMissingApplication,
		RemediationMessage: "install it",
	}
	resolver := &stubResolver{result: domain.ResolutionResult{
		ActionName: "send_mail",
		Resolved:   false,
		Fallback:   &fallback,
	}}
	handler := NewHandler(resolver, domain.NewFailureRing(5), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/actions",
		strings.NewReader(`{"action":"send_mail"}`)))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var view resolutionView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	require.False(t, view.Resolved)
	require.NotNil(t, view.Fallback)
	require.Equal(t, domain.FallbackMissingApplication, view.Fallback.Classification)
}

func TestResolveEndpointRejectsBadInput(t *testing.T) {
	handler := NewHandler(&stubResolver{}, domain.NewFailureRing(5), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/actions", strings.NewReader("{")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/actions", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveEndpointMethodNotAllowed(t *testing.T) {
	handler := NewHandler(&stubResolver{}, domain.NewFailureRing(5), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/actions", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFailuresEndpoint(t *testing.T) {
	ring := domain.NewFailureRing(5)
	ring.Append(domain.FailureRecord{
		ActionName:     "teleport",
		Classification: domain.FallbackMissingScript,
	})
	handler := NewHandler(&stubResolver{}, ring, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/actions/failures/teleport", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Action   string                 `json:"action"`
		Failures []domain.FailureRecord `json:"failures"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.Equal(t, "teleport", payload.Action)
	require.Len(t, payload.Failures, 1)
	require.Equal(t, domain.FallbackMissingScript, payload.Failures[0].Classification)
}

func TestFailuresEndpointEmpty(t *testing.T) {
	handler := NewHandler(&stubResolver{}, domain.NewFailureRing(5), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/actions/failures/unknown", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"failures":[]`)
}
