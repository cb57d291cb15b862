package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func newTimetableConfigRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func timetableConfigRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "academic_year", "semester", "status", "published_at", "is_pinned",
		"last_accessed_at", "completeness", "snapshot", "created_at", "updated_at",
	}).AddRow(
		"1-2567", 2567, string(models.Semester1), string(models.ConfigStatusDraft), nil, false,
		nil, 0, types.JSONText(`{"assignments":[]}`), now, now,
	)
}

func TestTimetableConfigRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newTimetableConfigRepoMock(t)
	defer cleanup()
	repo := NewTimetableConfigRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, academic_year, semester, status, published_at, is_pinned, last_accessed_at, completeness, snapshot, created_at, updated_at FROM timetable_configs WHERE id = $1")).
		WithArgs("1-2567").
		WillReturnRows(timetableConfigRows())

	cfg, err := repo.FindByID(context.Background(), "1-2567")
	require.NoError(t, err)
	assert.Equal(t, "1-2567", cfg.ID)
	assert.Equal(t, models.ConfigStatusDraft, cfg.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableConfigRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newTimetableConfigRepoMock(t)
	defer cleanup()
	repo := NewTimetableConfigRepository(db)

	mock.ExpectQuery("SELECT .* FROM timetable_configs WHERE id").
		WithArgs("9-9999").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "9-9999")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableConfigRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newTimetableConfigRepoMock(t)
	defer cleanup()
	repo := NewTimetableConfigRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_configs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	cfg := &models.TimetableConfig{
		ID:           "1-2567",
		AcademicYear: 2567,
		Semester:     models.Semester1,
		Status:       models.ConfigStatusDraft,
		Snapshot:     types.JSONText(`{"assignments":[]}`),
	}
	require.NoError(t, repo.Create(context.Background(), cfg))
	assert.False(t, cfg.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableConfigRepositoryUpdateSnapshot(t *testing.T) {
	db, mock, cleanup := newTimetableConfigRepoMock(t)
	defer cleanup()
	repo := NewTimetableConfigRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_configs SET snapshot = $2, completeness = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("1-2567", sqlmock.AnyArg(), 75, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateSnapshot(context.Background(), "1-2567", types.JSONText(`{"assignments":[]}`), 75)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableConfigRepositoryUpdateStatusNotFound(t *testing.T) {
	db, mock, cleanup := newTimetableConfigRepoMock(t)
	defer cleanup()
	repo := NewTimetableConfigRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_configs SET status = $2, published_at = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("9-9999", string(models.ConfigStatusLocked), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "9-9999", models.ConfigStatusLocked, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableConfigRepositorySetPinned(t *testing.T) {
	db, mock, cleanup := newTimetableConfigRepoMock(t)
	defer cleanup()
	repo := NewTimetableConfigRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_configs SET is_pinned = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("1-2567", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetPinned(context.Background(), "1-2567", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableConfigRepositoryTouchLastAccessed(t *testing.T) {
	db, mock, cleanup := newTimetableConfigRepoMock(t)
	defer cleanup()
	repo := NewTimetableConfigRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_configs SET last_accessed_at = $2 WHERE id = $1")).
		WithArgs("1-2567", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.TouchLastAccessed(context.Background(), "1-2567", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
