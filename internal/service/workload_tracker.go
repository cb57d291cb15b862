package service

import (
	"fmt"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

// workloadTracker keeps a running total of scheduled hours per teacher
// responsibility. The contracted quota is an upper bound, not a target.
type workloadTracker struct {
	scheduled map[string]float64
}

func newWorkloadTracker() *workloadTracker {
	return &workloadTracker{scheduled: make(map[string]float64)}
}

func (t *workloadTracker) clone() *workloadTracker {
	copied := make(map[string]float64, len(t.scheduled))
	for id, hours := range t.scheduled {
		copied[id] = hours
	}
	return &workloadTracker{scheduled: copied}
}

// CanAdd reports whether sessionHours fits under the responsibility's quota.
func (t *workloadTracker) CanAdd(resp models.TeacherResponsibility, sessionHours float64) bool {
	return t.scheduled[resp.ID]+sessionHours <= float64(resp.TeachHour)
}

// Scheduled returns the current total for a responsibility.
func (t *workloadTracker) Scheduled(respID string) float64 {
	return t.scheduled[respID]
}

// Utilization returns scheduled/contracted for reporting. A zero-hour
// contract reports full utilization once anything is scheduled.
func (t *workloadTracker) Utilization(resp models.TeacherResponsibility) float64 {
	if resp.TeachHour <= 0 {
		if t.scheduled[resp.ID] > 0 {
			return 1
		}
		return 0
	}
	return t.scheduled[resp.ID] / float64(resp.TeachHour)
}

// Accumulate adds sessionHours to the responsibility's total.
func (t *workloadTracker) Accumulate(respID string, sessionHours float64) {
	t.scheduled[respID] += sessionHours
}

// Release subtracts sessionHours. Totals never go negative; a release that
// would cross zero indicates a bookkeeping bug upstream, so the total is
// clamped and an invariant violation returned.
func (t *workloadTracker) Release(respID string, sessionHours float64) error {
	remaining := t.scheduled[respID] - sessionHours
	if remaining < -workloadEpsilon {
		t.scheduled[respID] = 0
		return appErrors.Wrap(
			fmt.Errorf("responsibility %s released %.2fh below zero", respID, -remaining),
			appErrors.ErrInvariant.Code, appErrors.ErrInvariant.Status,
			"workload total went negative",
		)
	}
	if remaining < workloadEpsilon && remaining > -workloadEpsilon {
		remaining = 0
	}
	t.scheduled[respID] = remaining
	return nil
}

// workloadEpsilon absorbs float drift from repeated add/release cycles.
const workloadEpsilon = 1e-9
