package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// TimetableConfigRepository persists timetable configurations.
type TimetableConfigRepository struct {
	db *sqlx.DB
}

// NewTimetableConfigRepository constructs the repository.
func NewTimetableConfigRepository(db *sqlx.DB) *TimetableConfigRepository {
	return &TimetableConfigRepository{db: db}
}

const timetableConfigColumns = `id, academic_year, semester, status, published_at, is_pinned, last_accessed_at, completeness, snapshot, created_at, updated_at`

// FindByID fetches a configuration. Returns sql.ErrNoRows when absent.
func (r *TimetableConfigRepository) FindByID(ctx context.Context, id string) (*models.TimetableConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM timetable_configs WHERE id = $1`, timetableConfigColumns)
	var cfg models.TimetableConfig
	if err := r.db.GetContext(ctx, &cfg, query, id); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// List returns all configurations, pinned first, most recently updated next.
func (r *TimetableConfigRepository) List(ctx context.Context) ([]models.TimetableConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM timetable_configs ORDER BY is_pinned DESC, updated_at DESC`, timetableConfigColumns)
	var configs []models.TimetableConfig
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("list timetable configs: %w", err)
	}
	return configs, nil
}

// Create inserts a new configuration row.
func (r *TimetableConfigRepository) Create(ctx context.Context, cfg *models.TimetableConfig) error {
	const query = `INSERT INTO timetable_configs (id, academic_year, semester, status, published_at, is_pinned, last_accessed_at, completeness, snapshot, created_at, updated_at)
VALUES (:id, :academic_year, :semester, :status, :published_at, :is_pinned, :last_accessed_at, :completeness, :snapshot, :created_at, :updated_at)`
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, query, cfg); err != nil {
		return fmt.Errorf("create timetable config: %w", err)
	}
	return nil
}

// UpdateSnapshot replaces the stored assignment set and completeness score.
func (r *TimetableConfigRepository) UpdateSnapshot(ctx context.Context, id string, snapshot types.JSONText, completeness int) error {
	const query = `UPDATE timetable_configs SET snapshot = $2, completeness = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, snapshot, completeness, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update timetable snapshot: %w", err)
	}
	return ensureRowAffected(result)
}

// UpdateStatus moves the configuration to a new lifecycle state.
func (r *TimetableConfigRepository) UpdateStatus(ctx context.Context, id string, status models.ConfigStatus, publishedAt *time.Time) error {
	const query = `UPDATE timetable_configs SET status = $2, published_at = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, publishedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update timetable config status: %w", err)
	}
	return ensureRowAffected(result)
}

// SetPinned toggles the pinned flag.
func (r *TimetableConfigRepository) SetPinned(ctx context.Context, id string, pinned bool) error {
	const query = `UPDATE timetable_configs SET is_pinned = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, pinned, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update timetable config pin: %w", err)
	}
	return ensureRowAffected(result)
}

// TouchLastAccessed records a read without bumping updated_at.
func (r *TimetableConfigRepository) TouchLastAccessed(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE timetable_configs SET last_accessed_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("touch timetable config: %w", err)
	}
	return ensureRowAffected(result)
}

func ensureRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
