package service

import (
	"time"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func slotAt(id string, day models.DayOfWeek, hour int, breaktime models.Breaktime) models.Timeslot {
	start := time.Date(2024, 5, 13, hour, 30, 0, 0, time.UTC)
	return models.Timeslot{
		ID:           id,
		AcademicYear: 2567,
		Semester:     models.Semester1,
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		Breaktime:    breaktime,
		DayOfWeek:    day,
	}
}

// newTestSnapshot builds a small term: two junior and one senior grade, two
// teachers, four Monday slots (the third a junior break), and contracted
// loads tight enough to trip quota checks in two sessions.
func newTestSnapshot() *EntitySnapshot {
	return &EntitySnapshot{
		Rooms: map[string]models.Room{
			"room-a": {ID: "room-a", Name: "A101", Building: "A", Floor: "1"},
			"room-b": {ID: "room-b", Name: "B201", Building: "B", Floor: "2"},
		},
		Teachers: map[string]models.Teacher{
			"teacher-1": {ID: "teacher-1", Prefix: "Mr.", Firstname: "Anan", Lastname: "S.", Department: "Math"},
			"teacher-2": {ID: "teacher-2", Prefix: "Ms.", Firstname: "Beam", Lastname: "K.", Department: "English"},
		},
		Subjects: map[string]models.Subject{
			"MATH101": {Code: "MATH101", Name: "Mathematics", Credit: models.Credit10, Category: "core"},
			"ENG101":  {Code: "ENG101", Name: "English", Credit: models.Credit10, Category: "core"},
		},
		GradeLevels: map[string]models.GradeLevel{
			"grade-1-1": {ID: "grade-1-1", Year: 1, Number: 1},
			"grade-1-2": {ID: "grade-1-2", Year: 1, Number: 2},
			"grade-4-1": {ID: "grade-4-1", Year: 4, Number: 1},
		},
		Timeslots: map[string]models.Timeslot{
			"1-2567-MON1": slotAt("1-2567-MON1", models.Monday, 8, models.NotBreak),
			"1-2567-MON2": slotAt("1-2567-MON2", models.Monday, 9, models.NotBreak),
			"1-2567-MON3": slotAt("1-2567-MON3", models.Monday, 11, models.BreakJunior),
			"1-2567-TUE1": slotAt("1-2567-TUE1", models.Tuesday, 8, models.NotBreak),
		},
		Responsibilities: map[string]models.TeacherResponsibility{
			"resp-math-1": {ID: "resp-math-1", TeacherID: "teacher-1", GradeID: "grade-1-1", SubjectCode: "MATH101", AcademicYear: 2567, Semester: models.Semester1, TeachHour: 2},
			"resp-math-2": {ID: "resp-math-2", TeacherID: "teacher-1", GradeID: "grade-1-2", SubjectCode: "MATH101", AcademicYear: 2567, Semester: models.Semester1, TeachHour: 8},
			"resp-eng-4":  {ID: "resp-eng-4", TeacherID: "teacher-2", GradeID: "grade-4-1", SubjectCode: "ENG101", AcademicYear: 2567, Semester: models.Semester1, TeachHour: 8},
		},
		Programs: map[string]models.Program{},
	}
}

func strPtr(s string) *string { return &s }
