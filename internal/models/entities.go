package models

import "time"

// GradeLevel represents one class year/section (e.g. M.2/3 is Year 2, Number 3).
type GradeLevel struct {
	ID        string  `db:"id" json:"id"`
	Year      int     `db:"year" json:"year"`
	Number    int     `db:"number" json:"number"`
	ProgramID *string `db:"program_id" json:"program_id,omitempty"`
}

// Room represents a physical teaching space.
type Room struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Building string `db:"building" json:"building"`
	Floor    string `db:"floor" json:"floor"`
}

// Subject represents a taught course, keyed by its curriculum code.
type Subject struct {
	Code      string        `db:"code" json:"code"`
	Name      string        `db:"name" json:"name"`
	Credit    SubjectCredit `db:"credit" json:"credit"`
	Category  string        `db:"category" json:"category"`
	ProgramID *string       `db:"program_id" json:"program_id,omitempty"`
}

// Program represents a curriculum track for one semester and year.
type Program struct {
	ID           string   `db:"id" json:"id"`
	Name         string   `db:"name" json:"name"`
	Semester     Semester `db:"semester" json:"semester"`
	AcademicYear int      `db:"academic_year" json:"academic_year"`
}

// Teacher represents a staff member.
type Teacher struct {
	ID         string `db:"id" json:"id"`
	Prefix     string `db:"prefix" json:"prefix"`
	Firstname  string `db:"firstname" json:"firstname"`
	Lastname   string `db:"lastname" json:"lastname"`
	Department string `db:"department" json:"department"`
	Email      string `db:"email" json:"email"`
	Role       string `db:"role" json:"role"`
}

// Timeslot is a bounded period on a weekday within one term.
// IDs follow the canonical "<semester>-<year>-<DAY><slot>" pattern, e.g. "1-2567-MON1".
type Timeslot struct {
	ID           string    `db:"id" json:"id"`
	AcademicYear int       `db:"academic_year" json:"academic_year"`
	Semester     Semester  `db:"semester" json:"semester"`
	StartTime    time.Time `db:"start_time" json:"start_time"`
	EndTime      time.Time `db:"end_time" json:"end_time"`
	Breaktime    Breaktime `db:"breaktime" json:"breaktime"`
	DayOfWeek    DayOfWeek `db:"day_of_week" json:"day_of_week"`
}

// Hours returns the slot duration in hours.
func (t Timeslot) Hours() float64 {
	return t.EndTime.Sub(t.StartTime).Hours()
}

// TeacherResponsibility is a teacher's contracted load for one
// (grade, subject, year, semester) tuple. TeachHour is an upper bound on
// scheduled hours, not a target.
type TeacherResponsibility struct {
	ID           string   `db:"id" json:"id"`
	TeacherID    string   `db:"teacher_id" json:"teacher_id"`
	GradeID      string   `db:"grade_id" json:"grade_id"`
	SubjectCode  string   `db:"subject_code" json:"subject_code"`
	AcademicYear int      `db:"academic_year" json:"academic_year"`
	Semester     Semester `db:"semester" json:"semester"`
	TeachHour    int      `db:"teach_hour" json:"teach_hour"`
}

// RequiredLoad is one curriculum-required (grade, subject) demand: how many
// sessions the pair must receive in a term. Supplied by the curriculum data,
// never computed by the engine.
type RequiredLoad struct {
	GradeID     string `db:"grade_id" json:"grade_id"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
	Sessions    int    `db:"sessions" json:"sessions"`
}
