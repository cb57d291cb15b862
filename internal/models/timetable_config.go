package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ConfigStatus is the lifecycle state of a timetable configuration.
type ConfigStatus string

const (
	ConfigStatusDraft     ConfigStatus = "DRAFT"
	ConfigStatusPublished ConfigStatus = "PUBLISHED"
	ConfigStatusLocked    ConfigStatus = "LOCKED"
	ConfigStatusArchived  ConfigStatus = "ARCHIVED"
)

// configTransitions is the one-directional transition table. Reverting a
// configuration means creating a new one; no backward edges exist.
var configTransitions = map[ConfigStatus]map[ConfigStatus]bool{
	ConfigStatusDraft: {
		ConfigStatusPublished: true,
		ConfigStatusLocked:    true,
		ConfigStatusArchived:  true,
	},
	ConfigStatusPublished: {
		ConfigStatusPublished: true, // re-publish after corrective edits
		ConfigStatusLocked:    true,
		ConfigStatusArchived:  true,
	},
	ConfigStatusLocked: {
		ConfigStatusArchived: true,
	},
	ConfigStatusArchived: {},
}

// CanTransition reports whether moving from s to target is allowed.
// Same-state lock and archive calls are treated as idempotent successes by
// the lifecycle service, not by this table.
func (s ConfigStatus) CanTransition(target ConfigStatus) bool {
	return configTransitions[s][target]
}

// Mutable reports whether assignment mutation is allowed in this state.
func (s ConfigStatus) Mutable() bool {
	return s == ConfigStatusDraft || s == ConfigStatusPublished
}

// TimetableConfig is a named, versioned timetable for one (year, semester)
// pair. Snapshot holds the full serialized assignment set so draft edits
// never touch rows a published version points at.
type TimetableConfig struct {
	ID             string         `db:"id" json:"id"`
	AcademicYear   int            `db:"academic_year" json:"academic_year"`
	Semester       Semester       `db:"semester" json:"semester"`
	Status         ConfigStatus   `db:"status" json:"status"`
	PublishedAt    *time.Time     `db:"published_at" json:"published_at,omitempty"`
	IsPinned       bool           `db:"is_pinned" json:"is_pinned"`
	LastAccessedAt *time.Time     `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
	Completeness   int            `db:"completeness" json:"completeness"`
	Snapshot       types.JSONText `db:"snapshot" json:"snapshot,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// ConfigID builds the canonical "<semester>-<year>" identifier, e.g. "1-2567".
func ConfigID(sem Semester, academicYear int) string {
	return fmt.Sprintf("%s-%d", sem.Number(), academicYear)
}

// ParseConfigID splits a canonical configuration id back into its parts.
func ParseConfigID(id string) (Semester, int, error) {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("config id must be SEMESTER-YEAR, got %q", id)
	}
	sem, err := ParseSemester(parts[0])
	if err != nil {
		return "", 0, err
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("academic year must be numeric, got %q", parts[1])
	}
	return sem, year, nil
}

// TimeslotID builds the canonical "<semester>-<year>-<DAY><slot>" identifier.
func TimeslotID(sem Semester, academicYear int, day DayOfWeek, slot int) string {
	return fmt.Sprintf("%s-%d-%s%d", sem.Number(), academicYear, day, slot)
}

// RewriteTimeslotID moves a timeslot id from one configuration's term to
// another, preserving the day/slot suffix. Used when cloning a timetable
// into a new term.
func RewriteTimeslotID(timeslotID, fromConfigID, toConfigID string) string {
	return strings.Replace(timeslotID, fromConfigID, toConfigID, 1)
}
