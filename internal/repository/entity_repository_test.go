package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func newEntityRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEntityRepositoryListRooms(t *testing.T) {
	db, mock, cleanup := newEntityRepoMock(t)
	defer cleanup()
	repo := NewEntityRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "building", "floor"}).
		AddRow("room-a", "A101", "A", "1").
		AddRow("room-b", "B201", "B", "2")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, building, floor FROM rooms ORDER BY id")).
		WillReturnRows(rows)

	rooms, err := repo.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "A101", rooms[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityRepositoryListTimeslotsFiltersByTerm(t *testing.T) {
	db, mock, cleanup := newEntityRepoMock(t)
	defer cleanup()
	repo := NewEntityRepository(db)

	start := time.Date(2024, 5, 13, 8, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "academic_year", "semester", "start_time", "end_time", "breaktime", "day_of_week"}).
		AddRow("1-2567-MON1", 2567, string(models.Semester1), start, start.Add(time.Hour), string(models.NotBreak), string(models.Monday))
	mock.ExpectQuery("SELECT .* FROM timeslots WHERE academic_year = \\$1 AND semester = \\$2").
		WithArgs(2567, string(models.Semester1)).
		WillReturnRows(rows)

	slots, err := repo.ListTimeslots(context.Background(), 2567, models.Semester1)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "1-2567-MON1", slots[0].ID)
	assert.Equal(t, models.Monday, slots[0].DayOfWeek)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityRepositoryListResponsibilities(t *testing.T) {
	db, mock, cleanup := newEntityRepoMock(t)
	defer cleanup()
	repo := NewEntityRepository(db)

	rows := sqlmock.NewRows([]string{"id", "teacher_id", "grade_id", "subject_code", "academic_year", "semester", "teach_hour"}).
		AddRow("resp-1", "teacher-1", "grade-1-1", "MATH101", 2567, string(models.Semester1), 12)
	mock.ExpectQuery("SELECT .* FROM teacher_responsibilities WHERE academic_year = \\$1 AND semester = \\$2").
		WithArgs(2567, string(models.Semester1)).
		WillReturnRows(rows)

	responsibilities, err := repo.ListResponsibilities(context.Background(), 2567, models.Semester1)
	require.NoError(t, err)
	require.Len(t, responsibilities, 1)
	assert.Equal(t, 12, responsibilities[0].TeachHour)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityRepositoryListRequiredLoadsEmpty(t *testing.T) {
	db, mock, cleanup := newEntityRepoMock(t)
	defer cleanup()
	repo := NewEntityRepository(db)

	mock.ExpectQuery("SELECT .* FROM required_loads WHERE academic_year = \\$1 AND semester = \\$2").
		WithArgs(2567, string(models.Semester2)).
		WillReturnRows(sqlmock.NewRows([]string{"grade_id", "subject_code", "sessions"}))

	loads, err := repo.ListRequiredLoads(context.Background(), 2567, models.Semester2)
	require.NoError(t, err)
	assert.Empty(t, loads)
	assert.NoError(t, mock.ExpectationsWereMet())
}
