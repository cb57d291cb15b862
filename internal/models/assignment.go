package models

// ClassAssignment is one scheduled occurrence of a subject for a grade in a
// timeslot, optionally bound to a room. Responsibility links are stored as a
// flat id list rather than object references.
type ClassAssignment struct {
	ID                string   `json:"id"`
	TimeslotID        string   `json:"timeslot_id"`
	SubjectCode       string   `json:"subject_code"`
	RoomID            *string  `json:"room_id,omitempty"`
	GradeID           string   `json:"grade_id"`
	IsLocked          bool     `json:"is_locked"`
	ResponsibilityIDs []string `json:"responsibility_ids,omitempty"`
}

// ConflictRule identifies which validation rule a candidate assignment broke.
type ConflictRule string

const (
	ConflictRoom        ConflictRule = "ROOM_CONFLICT"
	ConflictGrade       ConflictRule = "GRADE_CONFLICT"
	ConflictTeacher     ConflictRule = "TEACHER_CONFLICT"
	ConflictBreakPeriod ConflictRule = "BREAK_PERIOD"
)

// ConflictViolation pairs the broken rule with the row it collided against.
// Break-period violations carry no conflicting assignment.
type ConflictViolation struct {
	Rule                    ConflictRule `json:"rule"`
	ConflictingAssignmentID string       `json:"conflicting_assignment_id,omitempty"`
	TimeslotID              string       `json:"timeslot_id"`
}

// ConflictReport aggregates every violation found for a candidate.
type ConflictReport struct {
	Violations []ConflictViolation `json:"violations,omitempty"`
}

// OK reports whether the candidate passed all conflict rules.
func (r ConflictReport) OK() bool {
	return len(r.Violations) == 0
}

// QuotaViolation reports a workload quota breach for one responsibility.
type QuotaViolation struct {
	ResponsibilityID string  `json:"responsibility_id"`
	TeacherID        string  `json:"teacher_id"`
	ScheduledHours   float64 `json:"scheduled_hours"`
	RequestedHours   float64 `json:"requested_hours"`
	ContractedHours  float64 `json:"contracted_hours"`
}

// TimetableSnapshot is the serialized assignment set stored on a
// TimetableConfig. Storage treats it as an opaque payload.
type TimetableSnapshot struct {
	Assignments []ClassAssignment `json:"assignments"`
}
