// Package webhook implements the admission-review transport adapter
// (component N, webhook half): decodes a mutating AdmissionReview
// envelope, drives the Admission Engine, and re-encodes the verdict.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/freezegate/freezegate/internal/admission"
	"github.com/freezegate/freezegate/internal/dryrun"
)

// admissionDeadline is the outer deadline the pipeline must respect.
const admissionDeadline = 10 * time.Second

const admissionAPIVersion = "admission.k8s.io/v1"

// reviewRequest mirrors the subset of AdmissionReview this boundary reads.
type reviewRequest struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	Request    struct {
		UID  string `json:"uid"`
		Kind struct {
			Kind string `json:"kind"`
		} `json:"kind"`
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
		Operation string `json:"operation"`
		UserInfo  struct {
			Username string   `json:"username"`
			Groups   []string `json:"groups"`
		} `json:"userInfo"`
		Object struct {
			Metadata struct {
				Name        string            `json:"name"`
				Annotations map[string]string `json:"annotations"`
			} `json:"metadata"`
		} `json:"object"`
		DryRun any `json:"dryRun"`
	} `json:"request"`
}

type reviewResponse struct {
	APIVersion string       `json:"apiVersion"`
	Kind       string       `json:"kind"`
	Response   responseBody `json:"response"`
}

type responseBody struct {
	UID      string          `json:"uid"`
	Allowed  bool            `json:"allowed"`
	Status   *statusBody     `json:"status,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

type statusBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Decider is the narrow surface Handler needs from the Admission Engine.
type Decider interface {
	Decide(ctx context.Context, req admission.Request) admission.Response
}

// Handler serves POST /admission.
func Handler(engine Decider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var review reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
			http.Error(w, "malformed AdmissionReview", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), admissionDeadline)
		defer cancel()

		req := admission.Request{
			UID:       review.Request.UID,
			Kind:      review.Request.Kind.Kind,
			Namespace: review.Request.Namespace,
			Name:      review.Request.Name,
			Operation: review.Request.Operation,
			Object: admission.ObjectMeta{
				Name:        review.Request.Object.Metadata.Name,
				Annotations: review.Request.Object.Metadata.Annotations,
			},
			UserInfo: admission.UserInfo{
				Username: review.Request.UserInfo.Username,
				Groups:   review.Request.UserInfo.Groups,
			},
			DryRun: review.Request.DryRun,
		}

		resp := engine.Decide(ctx, req)
		writeReview(w, resp)
	}
}

func writeReview(w http.ResponseWriter, resp admission.Response) {
	body := responseBody{UID: resp.UID, Allowed: resp.Allowed}
	if !resp.Allowed {
		body.Status = &statusBody{Code: resp.StatusCode, Message: resp.Message}
	}
	if len(resp.Warnings) > 0 {
		body.Warnings = make([]string, 0, len(resp.Warnings))
		for _, warn := range resp.Warnings {
			body.Warnings = append(body.Warnings, formatWarning(warn))
		}
	}

	out := reviewResponse{
		APIVersion: admissionAPIVersion,
		Kind:       "AdmissionReview",
		Response:   body,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func formatWarning(w dryrun.Warning) string {
	if w.Message != "" {
		return w.Message
	}
	return w.Type
}
