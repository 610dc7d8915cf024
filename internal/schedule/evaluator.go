package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// maxPrevLookback bounds how far back we search for a cron match when
// computing the greatest match <= t. Standard 5-field cron expressions
// (minute hour dom month dow) always repeat within a year, so one year
// plus a day is a safe, generous bound.
const maxPrevLookback = 366 * 24 * time.Hour

// maxPrevIterations guards against pathological expressions; a per-minute
// cron over the lookback window matches at most ~527,000 times.
const maxPrevIterations = 600_000

// prevOrEqual returns the greatest cron match <= t within the lookback
// window, and whether one was found.
func prevOrEqual(sched cron.Schedule, t time.Time) (time.Time, bool) {
	cur := t.Add(-maxPrevLookback)
	var last time.Time
	found := false
	for i := 0; i < maxPrevIterations; i++ {
		next := sched.Next(cur)
		if next.IsZero() || next.After(t) {
			break
		}
		last = next
		found = true
		cur = next
	}
	return last, found
}

// atOrAfter returns the least cron match >= after.
func atOrAfter(sched cron.Schedule, after time.Time) time.Time {
	return sched.Next(after.Add(-time.Nanosecond))
}

// endOfUTCDay returns 23:59:59.999999999 UTC of t's calendar day.
func endOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return dayStart.Add(24*time.Hour - time.Nanosecond)
}

// IsActive reports whether s is active at instant t for namespace ns. An
// empty ns means a cluster-scoped query, which always satisfies the
// namespace-scope condition.
func IsActive(s Schedule, t time.Time, ns string, exemptNamespaces map[string]struct{}) bool {
	t = t.UTC()

	if t.Before(s.Start) || t.After(s.End) {
		return false
	}

	if !namespaceInScope(s, ns, exemptNamespaces) {
		return false
	}

	cronSched, err := ParseCron(s.Cron)
	if err != nil {
		return false
	}

	prev, found := prevOrEqual(cronSched, t)
	if !found || prev.Before(s.Start) {
		candidate := atOrAfter(cronSched, s.Start)
		if candidate.IsZero() || candidate.After(t) || candidate.After(s.End) {
			return false
		}
		prev = candidate
	}

	coverEnd := endOfUTCDay(prev)
	if s.End.Before(coverEnd) {
		coverEnd = s.End
	}

	return !t.Before(prev) && !t.After(coverEnd)
}

func namespaceInScope(s Schedule, ns string, exemptNamespaces map[string]struct{}) bool {
	if ns == "" {
		return true
	}
	if len(s.Namespaces) > 0 {
		for _, n := range s.Namespaces {
			if n == ns {
				return true
			}
		}
		return false
	}
	if exemptNamespaces != nil {
		if _, exempt := exemptNamespaces[ns]; exempt {
			return false
		}
	}
	return true
}

// ActiveSchedules returns the subset of schedules active at now for ns.
func ActiveSchedules(schedules []Schedule, now time.Time, ns string, exemptNamespaces map[string]struct{}) []Schedule {
	var active []Schedule
	for _, s := range schedules {
		if IsActive(s, now, ns, exemptNamespaces) {
			active = append(active, s)
		}
	}
	return active
}
