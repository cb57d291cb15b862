package dto

// CreateConfigRequest creates a fresh DRAFT configuration for a term.
type CreateConfigRequest struct {
	AcademicYear int    `json:"academicYear" validate:"required,min=1"`
	Semester     string `json:"semester" validate:"required,oneof=SEMESTER_1 SEMESTER_2"`
}

// CloneConfigRequest copies an existing configuration's assignment set into a
// new DRAFT for another term, rewriting timeslot ids.
type CloneConfigRequest struct {
	FromConfigID string `json:"fromConfigId" validate:"required"`
	AcademicYear int    `json:"academicYear" validate:"required,min=1"`
	Semester     string `json:"semester" validate:"required,oneof=SEMESTER_1 SEMESTER_2"`
}

// PublishConfigRequest gates publication on a completeness threshold. A nil
// threshold falls back to the service default.
type PublishConfigRequest struct {
	Threshold *int `json:"threshold" validate:"omitempty,min=0,max=100"`
}

// PinConfigRequest toggles the pinned flag.
type PinConfigRequest struct {
	Pinned bool `json:"pinned"`
}
