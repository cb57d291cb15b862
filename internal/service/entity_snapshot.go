package service

import (
	"fmt"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

// EntitySnapshot is an immutable, id-keyed view of the scheduling entities
// for one term. The engine never writes these records; the surrounding CRUD
// layer owns them.
type EntitySnapshot struct {
	Rooms            map[string]models.Room
	Teachers         map[string]models.Teacher
	Subjects         map[string]models.Subject
	GradeLevels      map[string]models.GradeLevel
	Timeslots        map[string]models.Timeslot
	Responsibilities map[string]models.TeacherResponsibility
	Programs         map[string]models.Program
}

// Timeslot resolves a timeslot id. A snapshot referencing an unknown id is a
// data-integrity bug, surfaced as an invariant violation.
func (s *EntitySnapshot) Timeslot(id string) (models.Timeslot, error) {
	slot, ok := s.Timeslots[id]
	if !ok {
		return models.Timeslot{}, appErrors.Wrap(fmt.Errorf("timeslot %s not in entity snapshot", id), appErrors.ErrInvariant.Code, appErrors.ErrInvariant.Status, "unknown timeslot reference")
	}
	return slot, nil
}

// GradeLevel resolves a grade id.
func (s *EntitySnapshot) GradeLevel(id string) (models.GradeLevel, error) {
	grade, ok := s.GradeLevels[id]
	if !ok {
		return models.GradeLevel{}, appErrors.Wrap(fmt.Errorf("grade %s not in entity snapshot", id), appErrors.ErrInvariant.Code, appErrors.ErrInvariant.Status, "unknown grade reference")
	}
	return grade, nil
}

// Responsibility resolves a teacher responsibility id.
func (s *EntitySnapshot) Responsibility(id string) (models.TeacherResponsibility, error) {
	resp, ok := s.Responsibilities[id]
	if !ok {
		return models.TeacherResponsibility{}, appErrors.Wrap(fmt.Errorf("responsibility %s not in entity snapshot", id), appErrors.ErrInvariant.Code, appErrors.ErrInvariant.Status, "unknown responsibility reference")
	}
	return resp, nil
}

// TeachersFor returns the distinct teacher ids behind an assignment's
// responsibility links.
func (s *EntitySnapshot) TeachersFor(assignment models.ClassAssignment) ([]string, error) {
	seen := make(map[string]bool, len(assignment.ResponsibilityIDs))
	teachers := make([]string, 0, len(assignment.ResponsibilityIDs))
	for _, respID := range assignment.ResponsibilityIDs {
		resp, err := s.Responsibility(respID)
		if err != nil {
			return nil, err
		}
		if !seen[resp.TeacherID] {
			seen[resp.TeacherID] = true
			teachers = append(teachers, resp.TeacherID)
		}
	}
	return teachers, nil
}

// SessionHours returns the duration of an assignment's timeslot in hours.
func (s *EntitySnapshot) SessionHours(assignment models.ClassAssignment) (float64, error) {
	slot, err := s.Timeslot(assignment.TimeslotID)
	if err != nil {
		return 0, err
	}
	return slot.Hours(), nil
}
