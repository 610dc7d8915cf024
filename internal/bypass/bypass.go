// Package bypass implements a pure, synchronous check of annotation and
// user/group allowlist bypass paths.
package bypass

import (
	"strings"

	"github.com/freezegate/freezegate/internal/config"
)

// Type identifies which bypass mechanism matched.
type Type string

const (
	TypeAnnotation Type = "annotation"
	TypeUser       Type = "user"
	TypeGroup      Type = "group"
)

// Result is the outcome of a bypass check.
type Result struct {
	Allowed bool
	Type    Type
	Reason  string
}

// Request is the minimal shape Check needs from an admission request
// object's metadata.
type Request struct {
	Annotations map[string]string
}

// emergencyReasonSuffix is appended to the bypass annotation key's prefix to
// find the adjacent reason annotation.
const emergencyReasonSuffix = "/emergency-reason"

// Check evaluates the synchronous bypass paths in priority order,
// short-circuiting on the first match. Temporary exemption lookup is not
// performed here; it is async and owned by the Exemption Manager.
func Check(req Request, policy *config.Policy, username string, groups []string) Result {
	if policy == nil {
		return Result{}
	}

	if key := policy.BypassAnnotationKey; key != "" {
		if v, ok := req.Annotations[key]; ok && strings.EqualFold(strings.TrimSpace(v), "true") {
			reason := ""
			if prefix, _, found := strings.Cut(key, "/"); found {
				reason = req.Annotations[prefix+emergencyReasonSuffix]
			}
			return Result{Allowed: true, Type: TypeAnnotation, Reason: reason}
		}
	}

	if _, ok := policy.BypassAllowedUsers[username]; ok && username != "" {
		return Result{Allowed: true, Type: TypeUser}
	}

	for _, g := range groups {
		if _, ok := policy.BypassAllowedUsers[g]; ok {
			return Result{Allowed: true, Type: TypeGroup}
		}
	}

	return Result{Allowed: false}
}
