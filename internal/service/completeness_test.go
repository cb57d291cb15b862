package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func TestCompletenessScoreNoRequirements(t *testing.T) {
	assert.Equal(t, 100, completenessScore(nil, nil))
	assert.Equal(t, 100, completenessScore([]models.ClassAssignment{{ID: "a1"}}, nil))
	// Non-positive session counts are ignored.
	assert.Equal(t, 100, completenessScore(nil, []models.RequiredLoad{{GradeID: "g", SubjectCode: "s", Sessions: 0}}))
}

func TestCompletenessScoreRounding(t *testing.T) {
	required := []models.RequiredLoad{
		{GradeID: "g1", SubjectCode: "MATH101", Sessions: 3},
	}
	assignments := []models.ClassAssignment{
		{ID: "a1", GradeID: "g1", SubjectCode: "MATH101"},
	}
	// 1/3 rounds to 33, 2/3 rounds to 67.
	assert.Equal(t, 33, completenessScore(assignments, required))
	assignments = append(assignments, models.ClassAssignment{ID: "a2", GradeID: "g1", SubjectCode: "MATH101"})
	assert.Equal(t, 67, completenessScore(assignments, required))
}

func TestCompletenessScoreClampsOverscheduledPairs(t *testing.T) {
	required := []models.RequiredLoad{
		{GradeID: "g1", SubjectCode: "MATH101", Sessions: 1},
		{GradeID: "g1", SubjectCode: "ENG101", Sessions: 1},
	}
	// Three math sessions cannot mask the missing english one.
	assignments := []models.ClassAssignment{
		{ID: "a1", GradeID: "g1", SubjectCode: "MATH101"},
		{ID: "a2", GradeID: "g1", SubjectCode: "MATH101"},
		{ID: "a3", GradeID: "g1", SubjectCode: "MATH101"},
	}
	assert.Equal(t, 50, completenessScore(assignments, required))
}

func TestCompletenessScoreIgnoresUnrequiredPairs(t *testing.T) {
	required := []models.RequiredLoad{
		{GradeID: "g1", SubjectCode: "MATH101", Sessions: 2},
	}
	assignments := []models.ClassAssignment{
		{ID: "a1", GradeID: "g1", SubjectCode: "MATH101"},
		{ID: "a2", GradeID: "g2", SubjectCode: "ART101"},
	}
	assert.Equal(t, 50, completenessScore(assignments, required))
}

func TestCompletenessScoreFull(t *testing.T) {
	required := []models.RequiredLoad{
		{GradeID: "g1", SubjectCode: "MATH101", Sessions: 2},
		{GradeID: "g2", SubjectCode: "ENG101", Sessions: 1},
	}
	assignments := []models.ClassAssignment{
		{ID: "a1", GradeID: "g1", SubjectCode: "MATH101"},
		{ID: "a2", GradeID: "g1", SubjectCode: "MATH101"},
		{ID: "a3", GradeID: "g2", SubjectCode: "ENG101"},
	}
	assert.Equal(t, 100, completenessScore(assignments, required))
}
