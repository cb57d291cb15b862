package dto

import "github.com/noah-isme/timetable-engine/internal/models"

// AssignmentPayload carries one candidate class assignment.
type AssignmentPayload struct {
	ID                string   `json:"id"`
	TimeslotID        string   `json:"timeslotId" validate:"required"`
	SubjectCode       string   `json:"subjectCode" validate:"required"`
	GradeID           string   `json:"gradeId" validate:"required"`
	RoomID            *string  `json:"roomId,omitempty"`
	IsLocked          bool     `json:"isLocked"`
	ResponsibilityIDs []string `json:"responsibilityIds,omitempty"`
}

// MoveAssignmentRequest relocates an existing assignment as one atomic step.
type MoveAssignmentRequest struct {
	NewTimeslotID string  `json:"newTimeslotId" validate:"required"`
	NewRoomID     *string `json:"newRoomId,omitempty"`
	UserDirected  bool    `json:"userDirected"`
}

// ChangeOp enumerates bulk change operations.
type ChangeOp string

const (
	OpPropose ChangeOp = "PROPOSE"
	OpMove    ChangeOp = "MOVE"
	OpRemove  ChangeOp = "REMOVE"
)

// AllocationChange is one entry in a bulk batch.
type AllocationChange struct {
	Op            ChangeOp           `json:"op" validate:"required,oneof=PROPOSE MOVE REMOVE"`
	Assignment    *AssignmentPayload `json:"assignment,omitempty"`
	AssignmentID  string             `json:"assignmentId,omitempty"`
	NewTimeslotID string             `json:"newTimeslotId,omitempty"`
	NewRoomID     *string            `json:"newRoomId,omitempty"`
	UserDirected  bool               `json:"userDirected,omitempty"`
}

// BulkApplyRequest applies a list of changes transactionally.
type BulkApplyRequest struct {
	Changes []AllocationChange `json:"changes" validate:"required,min=1,dive"`
}

// AllocationResult reports the outcome of a single change. Conflict and quota
// findings are data, not errors, so batch callers can inspect and retry.
type AllocationResult struct {
	Accepted     bool                       `json:"accepted"`
	AssignmentID string                     `json:"assignmentId,omitempty"`
	Conflicts    []models.ConflictViolation `json:"conflicts,omitempty"`
	Quota        []models.QuotaViolation    `json:"quota,omitempty"`
}

// BulkApplyResult reports a transactional batch outcome. When Applied is
// false the working set is untouched and FailedIndex points at the first
// rejected change.
type BulkApplyResult struct {
	Applied     bool               `json:"applied"`
	FailedIndex int                `json:"failedIndex"`
	Results     []AllocationResult `json:"results"`
}

// CommitResult summarises a persisted working set.
type CommitResult struct {
	ConfigID     string `json:"configId"`
	Completeness int    `json:"completeness"`
	Assignments  int    `json:"assignments"`
}

// ProbeRequest asks whether a (timeslot, subject, grade) drop would pass
// validation, without mutating anything.
type ProbeRequest struct {
	TimeslotID        string   `json:"timeslotId" validate:"required"`
	SubjectCode       string   `json:"subjectCode" validate:"required"`
	GradeID           string   `json:"gradeId" validate:"required"`
	ResponsibilityIDs []string `json:"responsibilityIds,omitempty"`
}

// ProbeResponse reports probe findings plus room availability at the slot.
type ProbeResponse struct {
	Allowed        bool                       `json:"allowed"`
	Conflicts      []models.ConflictViolation `json:"conflicts,omitempty"`
	AvailableRooms []models.Room              `json:"availableRooms,omitempty"`
	OccupiedRooms  []models.Room              `json:"occupiedRooms,omitempty"`
}
