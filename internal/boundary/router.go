// Package boundary wires the REST and webhook transport adapters, the
// cross-cutting middleware chain, and the operational endpoints into a
// single gorilla/mux router.
package boundary

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/freezegate/freezegate/internal/boundary/middleware"
	"github.com/freezegate/freezegate/internal/boundary/rest"
	"github.com/freezegate/freezegate/internal/boundary/webhook"
)

// RouterConfig holds every knob the router needs to assemble its
// middleware chain and route tree.
type RouterConfig struct {
	EnableAuth        bool
	EnableRateLimit   bool
	EnableCORS        bool

	AuthConfig middleware.AuthConfig

	RateLimitPerMinute int
	RateLimitBurst     int

	CORSConfig middleware.CORSConfig

	Logger *slog.Logger

	REST    *rest.Server
	Webhook webhook.Decider
}

// DefaultRouterConfig returns a RouterConfig with every middleware enabled.
func DefaultRouterConfig(logger *slog.Logger) RouterConfig {
	return RouterConfig{
		EnableAuth:         true,
		EnableRateLimit:    true,
		EnableCORS:         true,
		RateLimitPerMinute: 120,
		RateLimitBurst:     30,
		CORSConfig:         middleware.DefaultCORSConfig(),
		Logger:             logger,
	}
}

// NewRouter assembles the gatekeeper's HTTP surface. The middleware stack
// is applied in order:
//  1. RequestID (always)
//  2. Logging (always)
//  3. CORS (if enabled)
//  4. Route-specific: Auth, RateLimit
func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(cfg.Logger))
	if cfg.EnableCORS {
		router.Use(middleware.CORS(cfg.CORSConfig))
	}

	router.HandleFunc("/health", cfg.REST.Health).Methods(http.MethodGet)
	router.HandleFunc("/ready", cfg.REST.Ready).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.PathPrefix("/docs").Handler(httpSwagger.WrapHandler)

	if cfg.Webhook != nil {
		router.HandleFunc("/admission", webhook.Handler(cfg.Webhook)).Methods(http.MethodPost)
	}

	var limiter *middleware.Limiter
	if cfg.EnableRateLimit {
		limiter = middleware.NewLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}

	freezeAPI := router.PathPrefix("/freeze").Subrouter()
	protected := freezeAPI.PathPrefix("").Subrouter()
	applyProtection(protected, cfg, limiter)

	freezeAPI.HandleFunc("/status", cfg.REST.Status).Methods(http.MethodGet)

	protected.HandleFunc("/enable", cfg.REST.Enable).Methods(http.MethodPost)
	protected.HandleFunc("/disable", cfg.REST.Disable).Methods(http.MethodPost)

	protected.HandleFunc("/exemptions", cfg.REST.ListExemptions).Methods(http.MethodGet)
	protected.HandleFunc("/exemptions", cfg.REST.CreateExemption).Methods(http.MethodPost)
	protected.HandleFunc("/exemptions/{id}", cfg.REST.GetExemption).Methods(http.MethodGet)
	protected.HandleFunc("/exemptions/{id}", cfg.REST.DeleteExemption).Methods(http.MethodDelete)

	protected.HandleFunc("/schedules", cfg.REST.ListSchedules).Methods(http.MethodGet)
	protected.HandleFunc("/schedules/{name}", cfg.REST.DeleteSchedule).Methods(http.MethodDelete)

	protected.HandleFunc("/templates", cfg.REST.ListTemplates).Methods(http.MethodGet)
	protected.HandleFunc("/templates/apply", cfg.REST.ApplyTemplate).Methods(http.MethodPost)
	protected.HandleFunc("/templates/reload", cfg.REST.ReloadTemplates).Methods(http.MethodPost)

	protected.HandleFunc("/history", cfg.REST.History).Methods(http.MethodGet)

	dryRunAPI := router.PathPrefix("/dryrun").Subrouter()
	applyProtection(dryRunAPI, cfg, limiter)
	dryRunAPI.HandleFunc("/evaluate", cfg.REST.DryRunEvaluate).Methods(http.MethodPost)

	return router
}

func applyProtection(sub *mux.Router, cfg RouterConfig, limiter *middleware.Limiter) {
	if cfg.EnableAuth {
		sub.Use(middleware.Auth(cfg.AuthConfig))
	}
	if limiter != nil {
		sub.Use(middleware.RateLimit(limiter))
	}
}
