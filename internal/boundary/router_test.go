package boundary_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freezegate/freezegate/internal/admission"
	"github.com/freezegate/freezegate/internal/boundary"
	"github.com/freezegate/freezegate/internal/boundary/middleware"
	"github.com/freezegate/freezegate/internal/boundary/rest"
	"github.com/freezegate/freezegate/internal/clock"
	"github.com/freezegate/freezegate/internal/config"
	"github.com/freezegate/freezegate/internal/exemption"
	"github.com/freezegate/freezegate/internal/history"
	"github.com/freezegate/freezegate/internal/schedule"
	"github.com/freezegate/freezegate/internal/store/memstore"
	"github.com/freezegate/freezegate/internal/template"
)

type fakeDecider struct{}

func (fakeDecider) Decide(_ context.Context, _ admission.Request) admission.Response {
	return admission.Response{Allowed: true, StatusCode: 200}
}

func newTestRouterConfig(t *testing.T, enableAuth, enableRateLimit bool) boundary.RouterConfig {
	t.Helper()
	ctx := context.Background()
	backend := memstore.New()

	exemptions, err := exemption.NewManager(ctx, exemption.NewStoreBackend(backend), clock.RealClock{})
	require.NoError(t, err)
	schedules, err := schedule.NewStore(ctx, backend)
	require.NoError(t, err)
	histories, err := history.NewTracker(ctx, history.NewStoreBackend(backend), 100)
	require.NoError(t, err)
	templates := template.NewEngine(clock.RealClock{}, nil)
	loader := config.NewLoader(backend, schedules)
	require.NoError(t, loader.Start(ctx))

	srv := rest.NewServer(backend, loader, schedules, exemptions, histories, templates, fakeDecider{})

	cfg := boundary.DefaultRouterConfig(slog.Default())
	cfg.REST = srv
	cfg.Webhook = fakeDecider{}
	cfg.EnableAuth = enableAuth
	cfg.EnableRateLimit = enableRateLimit
	if enableAuth {
		cfg.AuthConfig = middleware.AuthConfig{Strict: false}
	}
	return cfg
}

func TestRouter_HealthAndStatusAreUnprotected(t *testing.T) {
	cfg := newTestRouterConfig(t, true, false)
	router := boundary.NewRouter(cfg)

	for _, path := range []string{"/health", "/ready", "/freeze/status"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "path %s should be reachable without auth", path)
	}
}

func TestRouter_ProtectedRoutesRequireAuth(t *testing.T) {
	cfg := newTestRouterConfig(t, true, false)
	router := boundary.NewRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/freeze/exemptions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/freeze/exemptions", nil)
	req2.Header.Set("Authorization", "Bearer a-long-enough-token")
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestRouter_ProtectedRoutesBypassAuthWhenDisabled(t *testing.T) {
	cfg := newTestRouterConfig(t, false, false)
	router := boundary.NewRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/freeze/exemptions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RateLimitAppliesToProtectedRoutes(t *testing.T) {
	cfg := newTestRouterConfig(t, false, true)
	cfg.RateLimitPerMinute = 60
	cfg.RateLimitBurst = 1
	router := boundary.NewRouter(cfg)

	req1 := httptest.NewRequest(http.MethodGet, "/freeze/exemptions", nil)
	req1.RemoteAddr = "10.1.1.1:1111"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	assert.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/freeze/exemptions", nil)
	req2.RemoteAddr = "10.1.1.1:1111"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestRouter_RequestIDHeaderAlwaysSet(t *testing.T) {
	cfg := newTestRouterConfig(t, false, false)
	router := boundary.NewRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRouter_AdmissionWebhookWired(t *testing.T) {
	cfg := newTestRouterConfig(t, false, false)
	router := boundary.NewRouter(cfg)

	body := `{
	  "apiVersion": "admission.k8s.io/v1",
	  "kind": "AdmissionReview",
	  "request": {"uid": "x", "kind": {"kind": "Deployment"}, "namespace": "ns", "name": "n", "operation": "UPDATE"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/admission", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
