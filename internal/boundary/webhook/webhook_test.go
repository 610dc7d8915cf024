package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freezegate/freezegate/internal/admission"
	"github.com/freezegate/freezegate/internal/boundary/webhook"
	"github.com/freezegate/freezegate/internal/dryrun"
)

type fakeDecider struct {
	resp    admission.Response
	lastReq admission.Request
}

func (f *fakeDecider) Decide(_ context.Context, req admission.Request) admission.Response {
	f.lastReq = req
	return f.resp
}

const admissionReviewBody = `{
  "apiVersion": "admission.k8s.io/v1",
  "kind": "AdmissionReview",
  "request": {
    "uid": "abc-123",
    "kind": {"kind": "Deployment"},
    "namespace": "payments",
    "name": "checkout-api",
    "operation": "UPDATE",
    "userInfo": {"username": "alice", "groups": ["developers"]},
    "object": {"metadata": {"name": "checkout-api", "annotations": {"k": "v"}}},
    "dryRun": false
  }
}`

func TestHandler_AllowedDecision(t *testing.T) {
	decider := &fakeDecider{resp: admission.Response{UID: "abc-123", Allowed: true, StatusCode: 200}}
	handler := webhook.Handler(decider)

	req := httptest.NewRequest(http.MethodPost, "/admission", strings.NewReader(admissionReviewBody))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	response := out["response"].(map[string]any)
	assert.Equal(t, "abc-123", response["uid"])
	assert.Equal(t, true, response["allowed"])

	assert.Equal(t, "Deployment", decider.lastReq.Kind)
	assert.Equal(t, "payments", decider.lastReq.Namespace)
	assert.Equal(t, "alice", decider.lastReq.UserInfo.Username)
}

func TestHandler_DeniedDecisionIncludesStatus(t *testing.T) {
	decider := &fakeDecider{resp: admission.Response{
		UID: "abc-123", Allowed: false, StatusCode: 403, Message: "freeze active",
	}}
	handler := webhook.Handler(decider)

	req := httptest.NewRequest(http.MethodPost, "/admission", strings.NewReader(admissionReviewBody))
	rec := httptest.NewRecorder()
	handler(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	response := out["response"].(map[string]any)
	assert.Equal(t, false, response["allowed"])
	status := response["status"].(map[string]any)
	assert.Equal(t, float64(403), status["code"])
	assert.Equal(t, "freeze active", status["message"])
}

func TestHandler_WarningsAreFormatted(t *testing.T) {
	decider := &fakeDecider{resp: admission.Response{
		UID: "abc-123", Allowed: true, StatusCode: 200,
		Warnings: []dryrun.Warning{{Type: "FreezeActive", Message: "freeze is active"}},
	}}
	handler := webhook.Handler(decider)

	req := httptest.NewRequest(http.MethodPost, "/admission", strings.NewReader(admissionReviewBody))
	rec := httptest.NewRecorder()
	handler(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	response := out["response"].(map[string]any)
	warnings := response["warnings"].([]any)
	require.Len(t, warnings, 1)
	assert.Equal(t, "freeze is active", warnings[0])
}

func TestHandler_MalformedBodyReturns400(t *testing.T) {
	decider := &fakeDecider{}
	handler := webhook.Handler(decider)

	req := httptest.NewRequest(http.MethodPost, "/admission", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
