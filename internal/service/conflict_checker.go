package service

import (
	"github.com/noah-isme/timetable-engine/internal/models"
)

// checkConflicts validates a candidate against the working set. Rules run in
// a fixed order (room, grade, teacher, break period) and every applicable
// violation is collected so batch callers get full feedback in one pass.
// Pure function over snapshots; no side effects.
func checkConflicts(snap *EntitySnapshot, ws *workingSet, candidate models.ClassAssignment) (models.ConflictReport, error) {
	var report models.ConflictReport

	slot, err := snap.Timeslot(candidate.TimeslotID)
	if err != nil {
		return report, err
	}
	grade, err := snap.GradeLevel(candidate.GradeID)
	if err != nil {
		return report, err
	}
	candidateTeachers, err := snap.TeachersFor(candidate)
	if err != nil {
		return report, err
	}

	existing := ws.atTimeslot(candidate.TimeslotID)

	// Room collisions.
	if candidate.RoomID != nil {
		for _, other := range existing {
			if other.ID == candidate.ID {
				continue
			}
			if other.RoomID != nil && *other.RoomID == *candidate.RoomID {
				report.Violations = append(report.Violations, models.ConflictViolation{
					Rule:                    models.ConflictRoom,
					ConflictingAssignmentID: other.ID,
					TimeslotID:              candidate.TimeslotID,
				})
			}
		}
	}

	// Grade collisions: a grade cannot attend two classes at once.
	for _, other := range existing {
		if other.ID == candidate.ID {
			continue
		}
		if other.GradeID == candidate.GradeID {
			report.Violations = append(report.Violations, models.ConflictViolation{
				Rule:                    models.ConflictGrade,
				ConflictingAssignmentID: other.ID,
				TimeslotID:              candidate.TimeslotID,
			})
		}
	}

	// Teacher collisions via responsibility links.
	if len(candidateTeachers) > 0 {
		teacherSet := make(map[string]bool, len(candidateTeachers))
		for _, teacherID := range candidateTeachers {
			teacherSet[teacherID] = true
		}
		for _, other := range existing {
			if other.ID == candidate.ID {
				continue
			}
			otherTeachers, err := snap.TeachersFor(other)
			if err != nil {
				return report, err
			}
			for _, teacherID := range otherTeachers {
				if teacherSet[teacherID] {
					report.Violations = append(report.Violations, models.ConflictViolation{
						Rule:                    models.ConflictTeacher,
						ConflictingAssignmentID: other.ID,
						TimeslotID:              candidate.TimeslotID,
					})
					break
				}
			}
		}
	}

	// Break periods reject classes for the tiers they apply to.
	if slot.Breaktime.AppliesTo(grade.Year) {
		report.Violations = append(report.Violations, models.ConflictViolation{
			Rule:       models.ConflictBreakPeriod,
			TimeslotID: candidate.TimeslotID,
		})
	}

	return report, nil
}
