package models

import "fmt"

// Semester identifies one half of an academic year.
type Semester string

const (
	Semester1 Semester = "SEMESTER_1"
	Semester2 Semester = "SEMESTER_2"
)

// Number returns the semester as its single-digit string form ("1" or "2").
func (s Semester) Number() string {
	if s == Semester2 {
		return "2"
	}
	return "1"
}

// ParseSemester converts a semester number string into the enum.
func ParseSemester(num string) (Semester, error) {
	switch num {
	case "1":
		return Semester1, nil
	case "2":
		return Semester2, nil
	default:
		return "", fmt.Errorf("semester must be 1 or 2, got %q", num)
	}
}

// DayOfWeek uses the three-letter wire values shared with timeslot IDs.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MON"
	Tuesday   DayOfWeek = "TUE"
	Wednesday DayOfWeek = "WED"
	Thursday  DayOfWeek = "THU"
	Friday    DayOfWeek = "FRI"
	Saturday  DayOfWeek = "SAT"
	Sunday    DayOfWeek = "SUN"
)

var dayOrder = map[DayOfWeek]int{
	Monday:    0,
	Tuesday:   1,
	Wednesday: 2,
	Thursday:  3,
	Friday:    4,
	Saturday:  5,
	Sunday:    6,
}

// Order returns the day's position in the school week, Monday first.
func (d DayOfWeek) Order() int {
	if n, ok := dayOrder[d]; ok {
		return n
	}
	return len(dayOrder)
}

// Breaktime tags a timeslot as a break period for some or all grade tiers.
type Breaktime string

const (
	BreakJunior Breaktime = "BREAK_JUNIOR"
	BreakSenior Breaktime = "BREAK_SENIOR"
	BreakBoth   Breaktime = "BREAK_BOTH"
	NotBreak    Breaktime = "NOT_BREAK"
)

// AppliesTo reports whether the break blocks classes for the given grade year.
// Years 1-3 are the junior tier, 4-6 the senior tier.
func (b Breaktime) AppliesTo(gradeYear int) bool {
	switch b {
	case BreakBoth:
		return true
	case BreakJunior:
		return gradeYear >= 1 && gradeYear <= 3
	case BreakSenior:
		return gradeYear >= 4 && gradeYear <= 6
	default:
		return false
	}
}

// SubjectCredit is the credit tier of a subject, in half-credit steps.
type SubjectCredit string

const (
	Credit05 SubjectCredit = "CREDIT_05"
	Credit10 SubjectCredit = "CREDIT_10"
	Credit15 SubjectCredit = "CREDIT_15"
	Credit20 SubjectCredit = "CREDIT_20"
)
