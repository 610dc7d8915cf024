package admission

import "github.com/freezegate/freezegate/internal/dryrun"

// UserInfo identifies the caller that issued the request.
type UserInfo struct {
	Username string   `json:"username"`
	Groups   []string `json:"groups,omitempty"`
}

// ObjectMeta is the slice of the admitted object's metadata the engine
// needs: its name and annotations.
type ObjectMeta struct {
	Name        string            `json:"name"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Request is the normalized admission request, produced by the webhook
// boundary from the raw AdmissionReview envelope.
type Request struct {
	UID       string     `json:"uid"`
	Kind      string     `json:"kind"`
	Namespace string     `json:"namespace"`
	Name      string     `json:"name"`
	Operation string     `json:"operation"`
	Object    ObjectMeta `json:"object"`
	UserInfo  UserInfo   `json:"userInfo"`
	DryRun    any        `json:"dryRun,omitempty"`
}

// Response is the normalized admission decision.
type Response struct {
	UID        string           `json:"uid"`
	Allowed    bool             `json:"allowed"`
	StatusCode int              `json:"statusCode,omitempty"`
	Message    string           `json:"message,omitempty"`
	Warnings   []dryrun.Warning `json:"warnings,omitempty"`
}
