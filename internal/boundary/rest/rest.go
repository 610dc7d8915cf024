// Package rest implements the REST surface: the freeze/exemption/schedule/
// template/history management API and the synthetic dry-run evaluation
// endpoint.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/freezegate/freezegate/internal/admission"
	"github.com/freezegate/freezegate/internal/apierrors"
	"github.com/freezegate/freezegate/internal/config"
	"github.com/freezegate/freezegate/internal/dryrun"
	"github.com/freezegate/freezegate/internal/exemption"
	"github.com/freezegate/freezegate/internal/freeze"
	"github.com/freezegate/freezegate/internal/history"
	"github.com/freezegate/freezegate/internal/schedule"
	"github.com/freezegate/freezegate/internal/store"
	"github.com/freezegate/freezegate/internal/template"
)

// Decider is the narrow Admission Engine surface /dryrun/evaluate drives.
type Decider interface {
	Decide(ctx context.Context, req admission.Request) admission.Response
}

// Server holds the dependencies the REST handlers are methods on.
type Server struct {
	Store      store.Store
	Configs    *config.Loader
	Schedules  *schedule.Store
	Exemptions *exemption.Manager
	Histories  *history.Tracker
	Templates  *template.Engine
	Engine     Decider

	validate *validator.Validate
}

// NewServer constructs a Server with its own validator instance.
func NewServer(backend store.Store, configs *config.Loader, schedules *schedule.Store, exemptions *exemption.Manager, histories *history.Tracker, templates *template.Engine, engine Decider) *Server {
	return &Server{
		Store:      backend,
		Configs:    configs,
		Schedules:  schedules,
		Exemptions: exemptions,
		Histories:  histories,
		Templates:  templates,
		Engine:     engine,
		validate:   validator.New(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- GET /freeze/status ---

type statusResponse struct {
	Active          bool               `json:"active"`
	WindowName      string             `json:"windowName,omitempty"`
	FreezeEnabled   bool               `json:"freezeEnabled"`
	FreezeUntil     *time.Time         `json:"freezeUntil,omitempty"`
	ActiveSchedules []schedule.Schedule `json:"activeSchedules"`
}

func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	policy := s.policyOrDefault()
	ns := r.URL.Query().Get("namespace")
	now := time.Now().UTC()

	active, windowName := freeze.IsActive(policy, now, ns)
	activeSchedules := schedule.ActiveSchedules(policy.FreezeSchedule, now, ns, policy.BypassExemptNamespaces)

	writeJSON(w, http.StatusOK, statusResponse{
		Active:          active,
		WindowName:      windowName,
		FreezeEnabled:   policy.FreezeEnabled,
		FreezeUntil:     policy.FreezeUntil,
		ActiveSchedules: activeSchedules,
	})
}

// --- POST /freeze/enable / /freeze/disable ---

type enableRequest struct {
	Until      string   `json:"until" validate:"required"`
	Reason     string   `json:"reason" validate:"required"`
	Namespaces []string `json:"namespaces,omitempty"`
}

type disableRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (s *Server) Enable(w http.ResponseWriter, r *http.Request) {
	var body enableRequest
	if !s.decodeAndValidate(w, r, &body) {
		return
	}

	until, err := time.Parse(time.RFC3339, body.Until)
	if err != nil {
		apierrors.Write(w, apierrors.Validation("until: invalid ISO-8601 timestamp"))
		return
	}

	data := map[string]string{
		"freezeEnabled": "true",
		"freezeUntil":   until.UTC().Format(time.RFC3339),
		"freezeMessage": body.Reason,
	}
	if err := s.Store.Patch(r.Context(), config.RecordName, data); err != nil {
		apierrors.Write(w, apierrors.Internal("failed to patch policy record"))
		return
	}
	s.recordHistory(r.Context(), history.Event{EventType: history.EventFreezeEnabled, Reason: body.Reason})
	writeJSON(w, http.StatusOK, map[string]string{"status": "enabled"})
}

func (s *Server) Disable(w http.ResponseWriter, r *http.Request) {
	var body disableRequest
	if !s.decodeAndValidate(w, r, &body) {
		return
	}

	data := map[string]string{"freezeEnabled": "false"}
	if err := s.Store.Patch(r.Context(), config.RecordName, data); err != nil {
		apierrors.Write(w, apierrors.Internal("failed to patch policy record"))
		return
	}
	s.recordHistory(r.Context(), history.Event{EventType: history.EventFreezeDisabled, Reason: body.Reason})
	writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

// --- /freeze/exemptions ---

type exemptionCreateRequest struct {
	Namespace       string `json:"namespace" validate:"required"`
	ResourceName    string `json:"resourceName,omitempty"`
	DurationMinutes int    `json:"durationMinutes" validate:"required,gt=0"`
	Reason          string `json:"reason" validate:"required"`
	ApprovedBy      string `json:"approvedBy" validate:"required"`
}

func (s *Server) CreateExemption(w http.ResponseWriter, r *http.Request) {
	var body exemptionCreateRequest
	if !s.decodeAndValidate(w, r, &body) {
		return
	}
	ex, err := s.Exemptions.Create(r.Context(), body.Namespace, body.ResourceName, body.DurationMinutes, body.Reason, body.ApprovedBy)
	if err != nil {
		apierrors.Write(w, apierrors.Internal("failed to persist exemption"))
		return
	}
	writeJSON(w, http.StatusCreated, ex)
}

func (s *Server) ListExemptions(w http.ResponseWriter, r *http.Request) {
	ns := r.URL.Query().Get("namespace")
	activeOnly := r.URL.Query().Get("activeOnly") == "true"
	writeJSON(w, http.StatusOK, s.Exemptions.List(ns, activeOnly))
}

func (s *Server) GetExemption(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ex, ok := s.Exemptions.Get(id)
	if !ok {
		apierrors.Write(w, apierrors.NotFound("exemption"))
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (s *Server) DeleteExemption(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Exemptions.Delete(r.Context(), id); err != nil {
		apierrors.Write(w, apierrors.Internal("failed to delete exemption"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- /freeze/schedules ---

func (s *Server) ListSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Schedules.List())
}

func (s *Server) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := s.Schedules.Get(name); !ok {
		apierrors.Write(w, apierrors.NotFound("schedule"))
		return
	}
	if err := s.Schedules.Remove(r.Context(), name); err != nil {
		apierrors.Write(w, apierrors.Internal("failed to remove schedule"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- /freeze/templates ---

func (s *Server) ListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Templates.ListTemplates())
}

type templateApplyRequest struct {
	TemplateName string         `json:"template_name" validate:"required"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}

func (s *Server) ApplyTemplate(w http.ResponseWriter, r *http.Request) {
	var body templateApplyRequest
	if !s.decodeAndValidate(w, r, &body) {
		return
	}

	params, err := parseTemplateParameters(body.Parameters)
	if err != nil {
		apierrors.Write(w, apierrors.Validation(err.Error()))
		return
	}

	sch, err := s.Templates.ApplyTemplate(body.TemplateName, params)
	if err != nil {
		apierrors.Write(w, apierrors.Validation(err.Error()))
		return
	}
	if err := s.Schedules.Add(r.Context(), sch); err != nil {
		apierrors.Write(w, apierrors.Conflict(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, sch)
}

func (s *Server) ReloadTemplates(w http.ResponseWriter, r *http.Request) {
	if err := s.Templates.LoadFromStore(r.Context(), s.Store); err != nil {
		apierrors.Write(w, apierrors.Internal("failed to reload templates record"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func parseTemplateParameters(raw map[string]any) (template.Parameters, error) {
	var params template.Parameters
	if raw == nil {
		return params, nil
	}
	if v, ok := raw["name"].(string); ok {
		params.Name = v
	}
	if v, ok := raw["message"].(string); ok {
		params.Message = v
	}
	if v, ok := raw["cron"].(string); ok {
		params.Cron = v
	}
	if list, ok := raw["namespaces"].([]any); ok {
		ns := make([]string, 0, len(list))
		for _, item := range list {
			if str, ok := item.(string); ok {
				ns = append(ns, str)
			}
		}
		params.Namespaces = ns
	}
	if v, ok := raw["start"].(string); ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, err
		}
		params.Start = &t
	}
	if v, ok := raw["end"].(string); ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, err
		}
		params.End = &t
	}
	if raw["override_schedule"] != nil {
		encoded, err := json.Marshal(raw["override_schedule"])
		if err != nil {
			return params, err
		}
		var sch schedule.Schedule
		if err := json.Unmarshal(encoded, &sch); err != nil {
			return params, err
		}
		params.OverrideSchedule = &sch
	}
	return params, nil
}

// --- GET /freeze/history ---

func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	eventType := history.EventType(r.URL.Query().Get("event_type"))
	namespace := r.URL.Query().Get("namespace")
	writeJSON(w, http.StatusOK, s.Histories.List(eventType, namespace, limit))
}

// --- POST /dryrun/evaluate ---

type dryRunRequest struct {
	Kind      string   `json:"kind" validate:"required"`
	Namespace string   `json:"namespace" validate:"required"`
	Name      string   `json:"name"`
	Operation string   `json:"operation"`
	Username  string   `json:"username"`
	Groups    []string `json:"groups,omitempty"`
	DryRun    any      `json:"dryRun"`
}

func (s *Server) DryRunEvaluate(w http.ResponseWriter, r *http.Request) {
	var body dryRunRequest
	if !s.decodeAndValidate(w, r, &body) {
		return
	}
	if !dryrun.IsDryRun(body.DryRun) {
		apierrors.Write(w, apierrors.Validation("dryRun must be true for a dry-run evaluation"))
		return
	}

	resp := s.Engine.Decide(r.Context(), admission.Request{
		UID:       "dryrun-evaluate",
		Kind:      body.Kind,
		Namespace: body.Namespace,
		Name:      body.Name,
		Operation: body.Operation,
		UserInfo:  admission.UserInfo{Username: body.Username, Groups: body.Groups},
		DryRun:    true,
	})
	writeJSON(w, http.StatusOK, resp)
}

// --- operational endpoints ---

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	if s.Configs == nil || !s.Configs.IsReady() {
		apierrors.Write(w, apierrors.New(apierrors.CodeUnavailable, "config loader not ready"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"reloadErrors": s.Configs.GetReloadErrors(),
	})
}

func (s *Server) policyOrDefault() *config.Policy {
	if s.Configs == nil || !s.Configs.IsReady() {
		return config.Default()
	}
	if p := s.Configs.GetConfig(); p != nil {
		return p
	}
	return config.Default()
}

func (s *Server) recordHistory(ctx context.Context, ev history.Event) {
	if s.Histories == nil {
		return
	}
	_ = s.Histories.Record(ctx, ev)
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, body any) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		apierrors.Write(w, apierrors.Validation("malformed request body"))
		return false
	}
	if err := s.validate.Struct(body); err != nil {
		apierrors.Write(w, apierrors.Validation(err.Error()))
		return false
	}
	return true
}
