package service

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

// workingSet is the in-memory assignment arena for one checked-out
// configuration: a flat collection keyed by id plus a timeslot index for
// O(1) conflict lookups, and the workload totals derived from it.
type workingSet struct {
	assignments map[string]models.ClassAssignment
	byTimeslot  map[string]map[string]bool
	tracker     *workloadTracker
}

// newWorkingSet deserializes a snapshot payload and rebuilds indexes and
// workload totals. Dangling entity references abort the checkout.
func newWorkingSet(payload types.JSONText, snap *EntitySnapshot) (*workingSet, error) {
	ws := &workingSet{
		assignments: make(map[string]models.ClassAssignment),
		byTimeslot:  make(map[string]map[string]bool),
		tracker:     newWorkloadTracker(),
	}
	if len(payload) == 0 {
		return ws, nil
	}

	var snapshot models.TimetableSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode timetable snapshot")
	}

	for _, assignment := range snapshot.Assignments {
		if _, exists := ws.assignments[assignment.ID]; exists {
			return nil, appErrors.Wrap(
				fmt.Errorf("assignment %s appears twice in snapshot", assignment.ID),
				appErrors.ErrInvariant.Code, appErrors.ErrInvariant.Status,
				"duplicate assignment id in snapshot",
			)
		}
		hours, err := snap.SessionHours(assignment)
		if err != nil {
			return nil, err
		}
		for _, respID := range assignment.ResponsibilityIDs {
			if _, err := snap.Responsibility(respID); err != nil {
				return nil, err
			}
			ws.tracker.Accumulate(respID, hours)
		}
		ws.index(assignment)
	}
	return ws, nil
}

func (ws *workingSet) clone() *workingSet {
	copied := &workingSet{
		assignments: make(map[string]models.ClassAssignment, len(ws.assignments)),
		byTimeslot:  make(map[string]map[string]bool, len(ws.byTimeslot)),
		tracker:     ws.tracker.clone(),
	}
	for id, assignment := range ws.assignments {
		copied.assignments[id] = assignment
	}
	for slotID, ids := range ws.byTimeslot {
		bucket := make(map[string]bool, len(ids))
		for id := range ids {
			bucket[id] = true
		}
		copied.byTimeslot[slotID] = bucket
	}
	return copied
}

func (ws *workingSet) index(assignment models.ClassAssignment) {
	ws.assignments[assignment.ID] = assignment
	if ws.byTimeslot[assignment.TimeslotID] == nil {
		ws.byTimeslot[assignment.TimeslotID] = make(map[string]bool)
	}
	ws.byTimeslot[assignment.TimeslotID][assignment.ID] = true
}

func (ws *workingSet) unindex(assignment models.ClassAssignment) {
	delete(ws.assignments, assignment.ID)
	if bucket := ws.byTimeslot[assignment.TimeslotID]; bucket != nil {
		delete(bucket, assignment.ID)
		if len(bucket) == 0 {
			delete(ws.byTimeslot, assignment.TimeslotID)
		}
	}
}

// atTimeslot returns the assignments sharing a timeslot, in stable id order.
func (ws *workingSet) atTimeslot(timeslotID string) []models.ClassAssignment {
	bucket := ws.byTimeslot[timeslotID]
	if len(bucket) == 0 {
		return nil
	}
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	result := make([]models.ClassAssignment, 0, len(ids))
	for _, id := range ids {
		result = append(result, ws.assignments[id])
	}
	return result
}

// list returns all assignments ordered by id for deterministic serialization.
func (ws *workingSet) list() []models.ClassAssignment {
	ids := make([]string, 0, len(ws.assignments))
	for id := range ws.assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	result := make([]models.ClassAssignment, 0, len(ids))
	for _, id := range ids {
		result = append(result, ws.assignments[id])
	}
	return result
}

// serialize encodes the working set back into a snapshot payload.
func (ws *workingSet) serialize() (types.JSONText, error) {
	payload, err := json.Marshal(models.TimetableSnapshot{Assignments: ws.list()})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable snapshot")
	}
	return types.JSONText(payload), nil
}
