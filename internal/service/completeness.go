package service

import (
	"math"

	"github.com/noah-isme/timetable-engine/internal/models"
)

type gradeSubjectKey struct {
	GradeID     string
	SubjectCode string
}

// completenessScore returns the integer percentage of curriculum-required
// (grade, subject) session slots currently filled. Over-scheduling a pair is
// clamped at its required count. With no requirements the timetable is
// vacuously complete.
func completenessScore(assignments []models.ClassAssignment, required []models.RequiredLoad) int {
	requiredSlots := 0
	quota := make(map[gradeSubjectKey]int, len(required))
	for _, load := range required {
		if load.Sessions <= 0 {
			continue
		}
		key := gradeSubjectKey{GradeID: load.GradeID, SubjectCode: load.SubjectCode}
		quota[key] += load.Sessions
		requiredSlots += load.Sessions
	}
	if requiredSlots == 0 {
		return 100
	}

	filledByPair := make(map[gradeSubjectKey]int, len(quota))
	for _, assignment := range assignments {
		key := gradeSubjectKey{GradeID: assignment.GradeID, SubjectCode: assignment.SubjectCode}
		if _, wanted := quota[key]; wanted {
			filledByPair[key]++
		}
	}

	filled := 0
	for key, count := range filledByPair {
		if count > quota[key] {
			count = quota[key]
		}
		filled += count
	}

	return int(math.Round(100 * float64(filled) / float64(requiredSlots)))
}
