// Package freeze composes the schedule evaluator's scalar activity check
// over a Policy snapshot.
package freeze

import (
	"github.com/freezegate/freezegate/internal/config"
	"github.com/freezegate/freezegate/internal/schedule"
	"time"
)

// ManualFreezeWindow is the window name returned for the simple
// freezeEnabled fallback, when no declared schedule is active.
const ManualFreezeWindow = "Manual Freeze"

// IsActive returns whether any schedule is active, or — failing that —
// whether the manual freezeEnabled/freezeUntil flag applies, for ns at the
// current instant. The returned window name identifies the first active
// schedule (declaration order) or ManualFreezeWindow.
func IsActive(p *config.Policy, now time.Time, ns string) (active bool, windowName string) {
	if p == nil {
		return false, ""
	}

	schedules := schedule.ActiveSchedules(p.FreezeSchedule, now, ns, p.BypassExemptNamespaces)
	if len(schedules) > 0 {
		return true, schedules[0].Name
	}

	if !p.FreezeEnabled {
		return false, ""
	}
	if p.FreezeUntil != nil && !now.Before(*p.FreezeUntil) {
		return false, ""
	}
	return true, ManualFreezeWindow
}
