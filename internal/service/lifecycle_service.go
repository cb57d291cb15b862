package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

type lifecycleConfigRepository interface {
	FindByID(ctx context.Context, id string) (*models.TimetableConfig, error)
	Create(ctx context.Context, cfg *models.TimetableConfig) error
	UpdateStatus(ctx context.Context, id string, status models.ConfigStatus, publishedAt *time.Time) error
	SetPinned(ctx context.Context, id string, pinned bool) error
	TouchLastAccessed(ctx context.Context, id string, at time.Time) error
}

// LifecycleServiceConfig tunes lifecycle behaviour.
type LifecycleServiceConfig struct {
	// DefaultPublishThreshold applies when a publish request carries no
	// explicit threshold. Zero allows publishing at any completeness, but
	// the call itself must still be explicit.
	DefaultPublishThreshold int
}

// LifecycleService owns the DRAFT -> PUBLISHED -> LOCKED -> ARCHIVED state
// machine for timetable configurations, plus pin and last-accessed
// bookkeeping. Transitions share the allocation engine's per-config locks so
// they never interleave with an in-flight batch.
type LifecycleService struct {
	repo      lifecycleConfigRepository
	locks     *ConfigLockRegistry
	cache     snapshotCache
	validator *validator.Validate
	logger    *zap.Logger
	threshold int
}

// NewLifecycleService constructs a LifecycleService.
func NewLifecycleService(repo lifecycleConfigRepository, locks *ConfigLockRegistry, cache snapshotCache, validate *validator.Validate, logger *zap.Logger, cfg LifecycleServiceConfig) *LifecycleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewConfigLockRegistry()
	}
	if cfg.DefaultPublishThreshold < 0 || cfg.DefaultPublishThreshold > 100 {
		cfg.DefaultPublishThreshold = 0
	}
	return &LifecycleService{
		repo:      repo,
		locks:     locks,
		cache:     cache,
		validator: validate,
		logger:    logger,
		threshold: cfg.DefaultPublishThreshold,
	}
}

// Create builds a fresh DRAFT configuration for a term. One configuration
// per (year, semester) id; duplicates are rejected.
func (s *LifecycleService) Create(ctx context.Context, req dto.CreateConfigRequest) (*models.TimetableConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid configuration payload")
	}
	sem := models.Semester(req.Semester)
	id := models.ConfigID(sem, req.AcademicYear)

	if existing, err := s.repo.FindByID(ctx, id); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("configuration %s already exists", id))
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing configuration")
	}

	now := time.Now().UTC()
	cfg := &models.TimetableConfig{
		ID:           id,
		AcademicYear: req.AcademicYear,
		Semester:     sem,
		Status:       models.ConfigStatusDraft,
		Snapshot:     types.JSONText(`{"assignments":[]}`),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create configuration")
	}
	s.logger.Info("configuration created", zap.String("config_id", id))
	return cfg, nil
}

// Clone copies an existing configuration's assignment set into a new DRAFT
// for another term, rewriting timeslot ids to the target term. The source is
// left untouched; reverting a published timetable means cloning it.
func (s *LifecycleService) Clone(ctx context.Context, req dto.CloneConfigRequest) (*models.TimetableConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clone payload")
	}
	sem := models.Semester(req.Semester)
	targetID := models.ConfigID(sem, req.AcademicYear)
	if targetID == req.FromConfigID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot clone a configuration onto itself")
	}

	source, err := s.repo.FindByID(ctx, req.FromConfigID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("source configuration %s not found", req.FromConfigID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source configuration")
	}
	if existing, err := s.repo.FindByID(ctx, targetID); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("configuration %s already exists", targetID))
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check target configuration")
	}

	snapshot, err := rewriteSnapshot(source.Snapshot, req.FromConfigID, targetID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cfg := &models.TimetableConfig{
		ID:           targetID,
		AcademicYear: req.AcademicYear,
		Semester:     sem,
		Status:       models.ConfigStatusDraft,
		Completeness: source.Completeness,
		Snapshot:     snapshot,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create cloned configuration")
	}
	s.logger.Info("configuration cloned",
		zap.String("from", req.FromConfigID),
		zap.String("to", targetID),
	)
	return cfg, nil
}

func rewriteSnapshot(payload types.JSONText, fromConfigID, toConfigID string) (types.JSONText, error) {
	var snapshot models.TimetableSnapshot
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode source snapshot")
		}
	}
	for i := range snapshot.Assignments {
		snapshot.Assignments[i].TimeslotID = models.RewriteTimeslotID(snapshot.Assignments[i].TimeslotID, fromConfigID, toConfigID)
	}
	rewritten, err := json.Marshal(snapshot)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode cloned snapshot")
	}
	return types.JSONText(rewritten), nil
}

// Get returns a configuration and records the read in lastAccessedAt.
// Read tracking stays allowed even on ARCHIVED configurations.
func (s *LifecycleService) Get(ctx context.Context, id string) (*models.TimetableConfig, error) {
	cfg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.repo.TouchLastAccessed(ctx, id, now); err != nil {
		s.logger.Warn("failed to record configuration access", zap.String("config_id", id), zap.Error(err))
	} else {
		cfg.LastAccessedAt = &now
	}
	return cfg, nil
}

// Publish moves the configuration to PUBLISHED. The call is always explicit
// and gated on the caller-supplied completeness threshold (service default
// when nil). publishedAt is set once and preserved across re-publishes.
func (s *LifecycleService) Publish(ctx context.Context, id string, req dto.PublishConfigRequest) (*models.TimetableConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid publish payload")
	}
	threshold := s.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	return s.transition(ctx, id, models.ConfigStatusPublished, func(cfg *models.TimetableConfig) error {
		if cfg.Completeness < threshold {
			return appErrors.Clone(appErrors.ErrBelowThreshold,
				fmt.Sprintf("completeness %d%% is below publish threshold %d%%", cfg.Completeness, threshold))
		}
		return nil
	})
}

// Lock freezes the configuration's assignments for the semester. Locking an
// already-LOCKED configuration is an idempotent success.
func (s *LifecycleService) Lock(ctx context.Context, id string) (*models.TimetableConfig, error) {
	return s.transition(ctx, id, models.ConfigStatusLocked, nil)
}

// Archive retires the configuration. Archiving an already-ARCHIVED
// configuration is an idempotent success.
func (s *LifecycleService) Archive(ctx context.Context, id string) (*models.TimetableConfig, error) {
	return s.transition(ctx, id, models.ConfigStatusArchived, nil)
}

func (s *LifecycleService) transition(ctx context.Context, id string, target models.ConfigStatus, gate func(*models.TimetableConfig) error) (*models.TimetableConfig, error) {
	if !s.locks.TryAcquire(id) {
		return nil, appErrors.Clone(appErrors.ErrSessionBusy, fmt.Sprintf("configuration %s has an edit session in flight", id))
	}
	defer s.locks.Release(id)

	cfg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	// lock() on LOCKED and archive() on ARCHIVED are no-ops by contract.
	if cfg.Status == target && (target == models.ConfigStatusLocked || target == models.ConfigStatusArchived) {
		return cfg, nil
	}
	if !cfg.Status.CanTransition(target) {
		return nil, appErrors.Clone(appErrors.ErrLifecycle,
			fmt.Sprintf("cannot transition configuration %s from %s to %s", id, cfg.Status, target))
	}
	if gate != nil {
		if err := gate(cfg); err != nil {
			return nil, err
		}
	}

	publishedAt := cfg.PublishedAt
	if target == models.ConfigStatusPublished && publishedAt == nil {
		now := time.Now().UTC()
		publishedAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, id, target, publishedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update configuration status")
	}
	if s.cache != nil {
		s.cache.InvalidateConfig(ctx, id)
	}

	cfg.Status = target
	cfg.PublishedAt = publishedAt
	cfg.UpdatedAt = time.Now().UTC()
	s.logger.Info("configuration transitioned",
		zap.String("config_id", id),
		zap.String("status", string(target)),
	)
	return cfg, nil
}

// SetPinned toggles the pinned flag. Pinning is orthogonal metadata allowed
// in any state except ARCHIVED.
func (s *LifecycleService) SetPinned(ctx context.Context, id string, pinned bool) (*models.TimetableConfig, error) {
	cfg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg.Status == models.ConfigStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrLifecycle, "archived configurations are read-only")
	}
	if err := s.repo.SetPinned(ctx, id, pinned); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update pinned flag")
	}
	cfg.IsPinned = pinned
	return cfg, nil
}

// TouchLastAccessed records a read against the configuration. Permitted in
// every state, ARCHIVED included.
func (s *LifecycleService) TouchLastAccessed(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.repo.TouchLastAccessed(ctx, id, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record configuration access")
	}
	return nil
}

func (s *LifecycleService) load(ctx context.Context, id string) (*models.TimetableConfig, error) {
	cfg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("configuration %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load configuration")
	}
	return cfg, nil
}
