package config

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/freezegate/freezegate/internal/schedule"
)

// DefaultBypassAnnotationKey is used when the policy record omits one.
const DefaultBypassAnnotationKey = "admission-controller.io/emergency-bypass"

// DefaultFreezeMessage is used when the policy record omits one.
const DefaultFreezeMessage = "Deployment freeze is active. Use bypass annotation or contact oncall."

// Policy is the reactive configuration built by the Config Loader from the
// single named policy record.
type Policy struct {
	FreezeEnabled bool
	FreezeUntil   *time.Time // always UTC when present
	FreezeMessage string

	BypassAnnotationKey       string
	BypassAllowedUsers        map[string]struct{}
	APIAllowedServiceAccounts map[string]struct{}
	BypassExemptNamespaces    map[string]struct{}
	MonitoredResources        map[string]struct{}

	FailClosed bool

	// NotificationsEnabled gates the notification dispatcher on a config
	// flag rather than always dispatching.
	NotificationsEnabled bool

	// FreezeSchedule is sourced from the schedule store, not the policy
	// record itself; the Config Loader fills this in after a schedule-store
	// read so callers see a single composed snapshot.
	FreezeSchedule []schedule.Schedule
}

// Default returns the zero-value-safe policy installed when the record is
// missing or unreadable.
func Default() *Policy {
	return &Policy{
		FreezeEnabled:             false,
		FreezeMessage:             DefaultFreezeMessage,
		BypassAnnotationKey:       DefaultBypassAnnotationKey,
		BypassAllowedUsers:        map[string]struct{}{},
		APIAllowedServiceAccounts: map[string]struct{}{},
		BypassExemptNamespaces:    map[string]struct{}{},
		MonitoredResources:        map[string]struct{}{"deployments": {}},
		FailClosed:                true,
	}
}

// Clone returns a defensive, independent copy, per C.getConfig's contract.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	cp := *p
	cp.BypassAllowedUsers = cloneSet(p.BypassAllowedUsers)
	cp.APIAllowedServiceAccounts = cloneSet(p.APIAllowedServiceAccounts)
	cp.BypassExemptNamespaces = cloneSet(p.BypassExemptNamespaces)
	cp.MonitoredResources = cloneSet(p.MonitoredResources)
	if p.FreezeUntil != nil {
		t := *p.FreezeUntil
		cp.FreezeUntil = &t
	}
	cp.FreezeSchedule = append([]schedule.Schedule(nil), p.FreezeSchedule...)
	return &cp
}

func cloneSet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// ParseRecord parses the flat string-map record into a Policy. Unknown
// keys are ignored; malformed values fall back to field defaults rather
// than failing the whole parse (a malformed record degrades, it does not
// become a reload error by itself — reload errors are reserved for
// backend/store failures).
func ParseRecord(data map[string]string) *Policy {
	p := Default()

	if v, ok := data["freezeEnabled"]; ok {
		p.FreezeEnabled = strings.EqualFold(strings.TrimSpace(v), "true")
	}

	if v, ok := data["freezeUntil"]; ok && strings.TrimSpace(v) != "" {
		if t, err := parseInstant(v); err == nil {
			utc := t.UTC()
			p.FreezeUntil = &utc
		}
	}

	if v, ok := data["freezeMessage"]; ok && strings.TrimSpace(v) != "" {
		p.FreezeMessage = v
	}

	if v, ok := data["bypassAnnotationKey"]; ok && strings.TrimSpace(v) != "" {
		p.BypassAnnotationKey = strings.TrimSpace(v)
	}

	if v, ok := data["bypassAllowedUsers"]; ok {
		p.BypassAllowedUsers = parseLines(v, false)
	}

	if v, ok := data["apiAllowedServiceAccounts"]; ok {
		p.APIAllowedServiceAccounts = parseLines(v, true)
	}

	if v, ok := data["bypassExemptNamespaces"]; ok {
		p.BypassExemptNamespaces = parseLines(v, false)
	}

	if v, ok := data["monitoredResources"]; ok {
		if set := parseMonitoredResources(v); len(set) > 0 {
			p.MonitoredResources = set
		}
	}

	if v, ok := data["failClosed"]; ok {
		p.FailClosed = strings.EqualFold(strings.TrimSpace(v), "true")
	} else {
		p.FailClosed = true
	}

	if v, ok := data["notificationsEnabled"]; ok {
		p.NotificationsEnabled = strings.EqualFold(strings.TrimSpace(v), "true")
	}

	return p
}

// parseInstant accepts ISO-8601 with or without a zone; bare timestamps are
// assumed UTC, and a literal "Z" suffix is accepted directly.
func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	// Bare, no zone: assume UTC.
	layouts := []string{"2006-01-02T15:04:05", "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: "RFC3339", Value: s}
}

// parseLines splits a newline-delimited list field, trims each line, drops
// blanks, and — when dropComments is true — also drops '#'-prefixed lines.
func parseLines(raw string, dropComments bool) map[string]struct{} {
	out := map[string]struct{}{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if dropComments && strings.HasPrefix(line, "#") {
			continue
		}
		out[line] = struct{}{}
	}
	return out
}

// parseMonitoredResources implements the YAML-first, comma-fallback parse.
// It returns a nil or empty set when nothing parses; ParseRecord then keeps
// the default set.
func parseMonitoredResources(raw string) map[string]struct{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(raw), &parsed); err == nil {
		switch v := parsed.(type) {
		case []any:
			out := map[string]struct{}{}
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			if out := extractBulletLines(v); len(out) > 0 {
				return out
			}
		}
	}

	if out := extractBulletLines(raw); len(out) > 0 {
		return out
	}

	out := map[string]struct{}{}
	for _, r := range strings.Split(raw, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			out[r] = struct{}{}
		}
	}
	return out
}

func extractBulletLines(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-") {
			item := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "-")))
			if item != "" {
				out[item] = struct{}{}
			}
		}
	}
	return out
}
