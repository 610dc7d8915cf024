// Package admission implements the decision pipeline that composes the
// Config Loader, bypass evaluator, exemption manager, schedule evaluator,
// and dry-run shaping into a single allow/deny verdict.
package admission

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/freezegate/freezegate/internal/bypass"
	"github.com/freezegate/freezegate/internal/clock"
	"github.com/freezegate/freezegate/internal/config"
	"github.com/freezegate/freezegate/internal/dryrun"
	"github.com/freezegate/freezegate/internal/exemption"
	"github.com/freezegate/freezegate/internal/freeze"
	"github.com/freezegate/freezegate/internal/history"
)

// Notifier is the fan-out surface the engine drives on policy-relevant
// events; implemented by internal/notify.Dispatcher. Kept as a narrow
// interface here so the engine does not depend on sink configuration.
type Notifier interface {
	Dispatch(ctx context.Context, eventType, namespace string, payload map[string]any)
}

// Auditor is the structured-event emission surface; implemented by
// internal/audit.Set.
type Auditor interface {
	Emit(ctx context.Context, eventType, outcome, namespace string, details map[string]any)
}

// MetricsRecorder records admission outcomes; implemented by
// internal/metrics.
type MetricsRecorder interface {
	RecordDecision(allowed bool, reason string)
	ObserveDuration(d time.Duration)
}

type noopNotifier struct{}

func (noopNotifier) Dispatch(context.Context, string, string, map[string]any) {}

type noopAuditor struct{}

func (noopAuditor) Emit(context.Context, string, string, string, map[string]any) {}

type noopMetrics struct{}

func (noopMetrics) RecordDecision(bool, string)   {}
func (noopMetrics) ObserveDuration(time.Duration) {}

// Engine runs the admission decision pipeline.
type Engine struct {
	clock      clock.Clock
	configs    *config.Loader
	exemptions *exemption.Manager
	histories  *history.Tracker
	notifier   Notifier
	auditor    Auditor
	metrics    MetricsRecorder
	logger     *slog.Logger

	// ExemptionTimeout bounds the sole suspension point inside the pipeline:
	// the exemption store lookup.
	ExemptionTimeout time.Duration
}

// Option configures an Engine at construction.
type Option func(*Engine)

func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }
func WithAuditor(a Auditor) Option   { return func(e *Engine) { e.auditor = a } }
func WithMetrics(m MetricsRecorder) Option { return func(e *Engine) { e.metrics = m } }
func WithLogger(l *slog.Logger) Option     { return func(e *Engine) { e.logger = l } }

// New constructs an Engine.
func New(clk clock.Clock, configs *config.Loader, exemptions *exemption.Manager, histories *history.Tracker, opts ...Option) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	e := &Engine{
		clock:            clk,
		configs:          configs,
		exemptions:       exemptions,
		histories:        histories,
		notifier:         noopNotifier{},
		auditor:          noopAuditor{},
		metrics:          noopMetrics{},
		logger:           slog.Default(),
		ExemptionTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide times and runs the seven-stage pipeline, recording the end-to-end
// duration regardless of which stage produced the verdict.
func (e *Engine) Decide(ctx context.Context, req Request) Response {
	start := time.Now()
	resp := e.decide(ctx, req)
	e.metrics.ObserveDuration(time.Since(start))
	return resp
}

// decide runs the seven-stage pipeline. It never returns an error: all
// failures are mapped to a verdict, since the admission engine never
// surfaces backend exceptions to the caller.
func (e *Engine) decide(ctx context.Context, req Request) Response {
	policy := e.currentPolicy()
	if policy == nil {
		return e.failClosedResponse(req)
	}

	// Stage 1: scope filter.
	if !isMonitored(req.Kind, policy.MonitoredResources) {
		return allow(req.UID)
	}

	// Stage 2: namespace exemption.
	if _, exempt := policy.BypassExemptNamespaces[req.Namespace]; exempt {
		return allow(req.UID)
	}

	// Stage 3: synchronous bypass.
	bypassReq := bypass.Request{Annotations: req.Object.Annotations}
	if result := bypass.Check(bypassReq, policy, req.UserInfo.Username, req.UserInfo.Groups); result.Allowed {
		e.recordHistory(ctx, history.Event{
			EventType:   history.EventBypassGranted,
			Namespace:   req.Namespace,
			Reason:      result.Reason,
			TriggeredBy: req.UserInfo.Username,
		})
		e.metrics.RecordDecision(true, "bypass_"+string(result.Type))
		return allow(req.UID)
	}

	// Stage 4: temporary exemption.
	if e.exemptions != nil {
		exCtx, cancel := context.WithTimeout(ctx, e.timeout())
		ex, found := e.checkExemption(exCtx, req.Namespace, req.Object.Name)
		cancel()
		if found {
			if err := e.exemptions.Use(ctx, ex.ID); err != nil {
				e.logger.Warn("admission: failed to mark exemption used", "id", ex.ID, "error", err)
			}
			e.recordHistory(ctx, history.Event{
				EventType:       history.EventExemptionUsed,
				Namespace:       req.Namespace,
				DurationMinutes: ex.DurationMinutes,
				TriggeredBy:     req.UserInfo.Username,
			})
			e.metrics.RecordDecision(true, "exemption")
			return allow(req.UID)
		}
	}

	// Stage 5: freeze evaluation.
	now := e.clock.Now()
	active, windowName := freeze.IsActive(policy, now, req.Namespace)
	if !active {
		return allow(req.UID)
	}

	message := policy.FreezeMessage
	if windowName != "" {
		message = message + " (Freeze window: " + windowName + ")"
	}

	// Stage 6: dry-run branch.
	if dryrun.IsDryRun(req.DryRun) {
		warning := dryrun.ShapeDenial("FreezeActive", message, false, "")
		resp := allow(req.UID)
		resp.Warnings = []dryrun.Warning{warning}
		return resp
	}

	// Stage 7: deny.
	e.recordHistory(ctx, history.Event{
		EventType:    history.EventViolation,
		Namespace:    req.Namespace,
		FreezeWindow: windowName,
		TriggeredBy:  req.UserInfo.Username,
	})
	e.notifier.Dispatch(ctx, "violation", req.Namespace, map[string]any{
		"kind":      req.Kind,
		"name":      req.Name,
		"namespace": req.Namespace,
		"window":    windowName,
		"user":      req.UserInfo.Username,
	})
	e.auditor.Emit(ctx, "violation", "denied", req.Namespace, map[string]any{
		"kind":      req.Kind,
		"name":      req.Name,
		"operation": req.Operation,
		"user":      req.UserInfo.Username,
		"window":    windowName,
	})
	e.metrics.RecordDecision(false, "freeze_active")

	return Response{
		UID:        req.UID,
		Allowed:    false,
		StatusCode: 403,
		Message:    message,
	}
}

func (e *Engine) currentPolicy() *config.Policy {
	if e.configs == nil || !e.configs.IsReady() {
		return nil
	}
	return e.configs.GetConfig()
}

// failClosedResponse handles the case where the config is not yet loaded
// at all.
func (e *Engine) failClosedResponse(req Request) Response {
	// A Loader not yet started has no notion of failClosed; default to the
	// conservative choice (deny) matching Policy.Default().FailClosed.
	return Response{
		UID:        req.UID,
		Allowed:    false,
		StatusCode: 403,
		Message:    "admission policy is not yet loaded",
	}
}

// checkExemption recovers from a panicking or slow backend by honoring
// ctx's deadline; lookup failures never change the verdict.
func (e *Engine) checkExemption(ctx context.Context, namespace, resourceName string) (exemption.Exemption, bool) {
	type result struct {
		ex    exemption.Exemption
		found bool
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				e.logger.Warn("admission: exemption lookup panicked", "namespace", namespace, "panic", p)
				done <- result{}
			}
		}()
		ex, found := e.exemptions.Check(namespace, resourceName)
		done <- result{ex, found}
	}()
	select {
	case r := <-done:
		return r.ex, r.found
	case <-ctx.Done():
		e.logger.Warn("admission: exemption lookup timed out", "namespace", namespace)
		return exemption.Exemption{}, false
	}
}

func (e *Engine) recordHistory(ctx context.Context, ev history.Event) {
	if e.histories == nil {
		return
	}
	if err := e.histories.Record(ctx, ev); err != nil {
		e.logger.Warn("admission: history record failed", "error", err)
	}
}

func (e *Engine) timeout() time.Duration {
	if e.ExemptionTimeout <= 0 {
		return 5 * time.Second
	}
	return e.ExemptionTimeout
}

func allow(uid string) Response {
	return Response{UID: uid, Allowed: true, StatusCode: 200}
}

// isMonitored implements the scope filter's plural-normalization rule.
func isMonitored(kind string, monitored map[string]struct{}) bool {
	if kind == "" {
		return false
	}
	lower := strings.ToLower(kind)
	if _, ok := monitored[lower]; ok {
		return true
	}
	plural := Pluralize(lower)
	_, ok := monitored[plural]
	return ok
}

// Pluralize normalizes a singular resource-kind name to its plural-lowercase
// form: trailing "y" with a consonant before it becomes "ies"; a form
// already ending in "s" is unchanged; otherwise append "s".
func Pluralize(kind string) string {
	kind = strings.ToLower(kind)
	if strings.HasSuffix(kind, "s") {
		return kind
	}
	if strings.HasSuffix(kind, "y") && len(kind) >= 2 && !isVowel(kind[len(kind)-2]) {
		return kind[:len(kind)-1] + "ies"
	}
	return kind + "s"
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}
