package models

import "time"

// TimeslotTemplate describes one term's daily period grid: how many periods
// each school day has, when the first one starts, how long each runs, and
// which period numbers are break periods for each grade tier.
type TimeslotTemplate struct {
	Days             []DayOfWeek
	SlotsPerDay      int
	FirstSlotStart   time.Time
	SlotDuration     time.Duration
	JuniorBreakSlots map[int]bool
	SeniorBreakSlots map[int]bool
}

// GenerateTimeslots expands a template into the term's full timeslot set,
// one slot per (day, period) with canonical ids. A period that is a break
// for both tiers is tagged BreakBoth, for one tier BreakJunior or
// BreakSenior, otherwise NotBreak.
func GenerateTimeslots(sem Semester, academicYear int, tpl TimeslotTemplate) []Timeslot {
	slots := make([]Timeslot, 0, len(tpl.Days)*tpl.SlotsPerDay)
	for _, day := range tpl.Days {
		for period := 1; period <= tpl.SlotsPerDay; period++ {
			start := tpl.FirstSlotStart.Add(time.Duration(period-1) * tpl.SlotDuration)
			slots = append(slots, Timeslot{
				ID:           TimeslotID(sem, academicYear, day, period),
				AcademicYear: academicYear,
				Semester:     sem,
				StartTime:    start,
				EndTime:      start.Add(tpl.SlotDuration),
				Breaktime:    breaktimeFor(tpl, period),
				DayOfWeek:    day,
			})
		}
	}
	return slots
}

func breaktimeFor(tpl TimeslotTemplate, period int) Breaktime {
	junior := tpl.JuniorBreakSlots[period]
	senior := tpl.SeniorBreakSlots[period]
	switch {
	case junior && senior:
		return BreakBoth
	case junior:
		return BreakJunior
	case senior:
		return BreakSenior
	default:
		return NotBreak
	}
}
