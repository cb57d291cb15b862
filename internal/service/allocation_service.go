package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

type timetableConfigStore interface {
	FindByID(ctx context.Context, id string) (*models.TimetableConfig, error)
	UpdateSnapshot(ctx context.Context, id string, snapshot types.JSONText, completeness int) error
}

type entitySnapshotLoader interface {
	LoadSnapshot(ctx context.Context, academicYear int, sem models.Semester) (*EntitySnapshot, error)
	LoadRequiredLoad(ctx context.Context, academicYear int, sem models.Semester) ([]models.RequiredLoad, error)
}

type snapshotCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidateConfig(ctx context.Context, configID string)
}

// AllocationService orchestrates assignment, reassignment, and removal of
// class assignments against one checked-out configuration at a time.
type AllocationService struct {
	configs   timetableConfigStore
	entities  entitySnapshotLoader
	locks     *ConfigLockRegistry
	cache     snapshotCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAllocationService wires the allocation engine dependencies.
func NewAllocationService(
	configs timetableConfigStore,
	entities entitySnapshotLoader,
	locks *ConfigLockRegistry,
	cache snapshotCache,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *AllocationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewConfigLockRegistry()
	}
	return &AllocationService{
		configs:   configs,
		entities:  entities,
		locks:     locks,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// EditSession is the exclusive working copy of one configuration's
// assignment set. Edits stay in memory until Commit; Discard drops them.
type EditSession struct {
	svc      *AllocationService
	cfg      *models.TimetableConfig
	snap     *EntitySnapshot
	required []models.RequiredLoad
	ws       *workingSet
	closed   bool
}

// Checkout loads the configuration's snapshot into an exclusive edit
// session. A configuration already held by another session, or one whose
// status forbids mutation, is rejected.
func (s *AllocationService) Checkout(ctx context.Context, configID string) (*EditSession, error) {
	cfg, err := s.configs.FindByID(ctx, configID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "configuration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load configuration")
	}
	if !cfg.Status.Mutable() {
		return nil, appErrors.Clone(appErrors.ErrConfigFrozen, fmt.Sprintf("configuration %s is %s", configID, cfg.Status))
	}
	if !s.locks.TryAcquire(configID) {
		return nil, appErrors.Clone(appErrors.ErrSessionBusy, fmt.Sprintf("configuration %s is being edited", configID))
	}

	session, err := s.buildSession(ctx, cfg)
	if err != nil {
		s.locks.Release(configID)
		return nil, err
	}
	return session, nil
}

func (s *AllocationService) buildSession(ctx context.Context, cfg *models.TimetableConfig) (*EditSession, error) {
	snap, err := s.entities.LoadSnapshot(ctx, cfg.AcademicYear, cfg.Semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity snapshot")
	}
	required, err := s.entities.LoadRequiredLoad(ctx, cfg.AcademicYear, cfg.Semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum requirements")
	}
	ws, err := newWorkingSet(cfg.Snapshot, snap)
	if err != nil {
		return nil, err
	}
	return &EditSession{svc: s, cfg: cfg, snap: snap, required: required, ws: ws}, nil
}

// Probe reports whether a (timeslot, subject, grade) drop would pass
// validation against the committed snapshot, plus room availability at the
// slot. Read-only; it takes no lock and never mutates state.
func (s *AllocationService) Probe(ctx context.Context, configID string, req dto.ProbeRequest) (*dto.ProbeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid probe payload")
	}
	cfg, err := s.configs.FindByID(ctx, configID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "configuration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load configuration")
	}
	session, err := s.buildSession(ctx, cfg)
	if err != nil {
		return nil, err
	}

	candidate := models.ClassAssignment{
		ID:                uuid.NewString(),
		TimeslotID:        req.TimeslotID,
		SubjectCode:       req.SubjectCode,
		GradeID:           req.GradeID,
		ResponsibilityIDs: req.ResponsibilityIDs,
	}
	if err := session.validateLinks(candidate); err != nil {
		return nil, err
	}
	report, err := checkConflicts(session.snap, session.ws, candidate)
	if err != nil {
		return nil, err
	}

	occupied := make(map[string]bool)
	for _, existing := range session.ws.atTimeslot(req.TimeslotID) {
		if existing.RoomID != nil {
			occupied[*existing.RoomID] = true
		}
	}
	resp := &dto.ProbeResponse{Allowed: report.OK(), Conflicts: report.Violations}
	for _, room := range sortedRooms(session.snap.Rooms) {
		if occupied[room.ID] {
			resp.OccupiedRooms = append(resp.OccupiedRooms, room)
		} else {
			resp.AvailableRooms = append(resp.AvailableRooms, room)
		}
	}
	return resp, nil
}

// CommittedAssignments returns the persisted assignment set in stable order.
// Read-only; it takes no lock. Results are served from the snapshot cache
// when available and invalidated on every commit.
func (s *AllocationService) CommittedAssignments(ctx context.Context, configID string) ([]models.ClassAssignment, error) {
	cacheKey := ConfigCacheKey(configID) + ":assignments"
	if s.cache != nil {
		var cached []models.ClassAssignment
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	cfg, err := s.configs.FindByID(ctx, configID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "configuration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load configuration")
	}
	snap, err := s.entities.LoadSnapshot(ctx, cfg.AcademicYear, cfg.Semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity snapshot")
	}
	ws, err := newWorkingSet(cfg.Snapshot, snap)
	if err != nil {
		return nil, err
	}
	assignments := ws.list()
	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey, assignments, 0)
	}
	return assignments, nil
}

func sortedRooms(rooms map[string]models.Room) []models.Room {
	result := make([]models.Room, 0, len(rooms))
	for _, room := range rooms {
		result = append(result, room)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Propose validates the candidate against the working set and inserts it on
// success. Conflict and quota findings come back as data on the result, not
// as errors.
func (s *EditSession) Propose(payload dto.AssignmentPayload) (*dto.AllocationResult, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if err := s.svc.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	next := s.ws.clone()
	result, err := s.proposeInto(next, payload)
	if err != nil {
		return nil, err
	}
	if result.Accepted {
		s.ws = next
	}
	s.svc.recordAllocation("propose", result)
	return &result, nil
}

// Move relocates an assignment to a new timeslot and room as one atomic
// step: if the new placement fails validation the original row is untouched.
func (s *EditSession) Move(assignmentID string, req dto.MoveAssignmentRequest) (*dto.AllocationResult, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if err := s.svc.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid move payload")
	}
	next := s.ws.clone()
	result, err := s.moveInto(next, assignmentID, req.NewTimeslotID, req.NewRoomID, req.UserDirected)
	if err != nil {
		return nil, err
	}
	if result.Accepted {
		s.ws = next
	}
	s.svc.recordAllocation("move", result)
	return &result, nil
}

// Remove deletes an assignment and releases its workload. Locked rows reject
// automated removal; an explicit user-directed call overrides the row flag.
func (s *EditSession) Remove(assignmentID string, userDirected bool) error {
	if err := s.guard(); err != nil {
		return err
	}
	next := s.ws.clone()
	if err := s.removeInto(next, assignmentID, userDirected); err != nil {
		return err
	}
	s.ws = next
	return nil
}

// BulkApply applies a batch of changes transactionally: either every change
// lands or the working set is left bit-for-bit unchanged. Validation runs
// against in-memory state only; no I/O happens inside the loop.
func (s *EditSession) BulkApply(req dto.BulkApplyRequest) (*dto.BulkApplyResult, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if err := s.svc.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}

	next := s.ws.clone()
	out := &dto.BulkApplyResult{FailedIndex: -1}
	for i, change := range req.Changes {
		result, err := s.applyChange(next, change)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, result)
		if !result.Accepted {
			out.FailedIndex = i
			s.svc.recordAllocation("bulk", result)
			return out, nil
		}
	}
	s.ws = next
	out.Applied = true
	s.svc.recordAllocation("bulk", dto.AllocationResult{Accepted: true})
	return out, nil
}

func (s *EditSession) applyChange(ws *workingSet, change dto.AllocationChange) (dto.AllocationResult, error) {
	switch change.Op {
	case dto.OpPropose:
		if change.Assignment == nil {
			return dto.AllocationResult{}, appErrors.Clone(appErrors.ErrValidation, "PROPOSE change requires an assignment")
		}
		return s.proposeInto(ws, *change.Assignment)
	case dto.OpMove:
		if change.AssignmentID == "" || change.NewTimeslotID == "" {
			return dto.AllocationResult{}, appErrors.Clone(appErrors.ErrValidation, "MOVE change requires assignmentId and newTimeslotId")
		}
		return s.moveInto(ws, change.AssignmentID, change.NewTimeslotID, change.NewRoomID, change.UserDirected)
	case dto.OpRemove:
		if change.AssignmentID == "" {
			return dto.AllocationResult{}, appErrors.Clone(appErrors.ErrValidation, "REMOVE change requires assignmentId")
		}
		if err := s.removeInto(ws, change.AssignmentID, change.UserDirected); err != nil {
			return dto.AllocationResult{}, err
		}
		return dto.AllocationResult{Accepted: true, AssignmentID: change.AssignmentID}, nil
	default:
		return dto.AllocationResult{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown change op %q", change.Op))
	}
}

func (s *EditSession) proposeInto(ws *workingSet, payload dto.AssignmentPayload) (dto.AllocationResult, error) {
	assignment := models.ClassAssignment{
		ID:                payload.ID,
		TimeslotID:        payload.TimeslotID,
		SubjectCode:       payload.SubjectCode,
		GradeID:           payload.GradeID,
		RoomID:            payload.RoomID,
		IsLocked:          payload.IsLocked,
		ResponsibilityIDs: payload.ResponsibilityIDs,
	}
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if _, exists := ws.assignments[assignment.ID]; exists {
		return dto.AllocationResult{}, appErrors.Clone(appErrors.ErrAssignmentExists, fmt.Sprintf("assignment %s already exists", assignment.ID))
	}
	if err := s.validateLinks(assignment); err != nil {
		return dto.AllocationResult{}, err
	}

	report, err := checkConflicts(s.snap, ws, assignment)
	if err != nil {
		return dto.AllocationResult{}, err
	}
	quota, err := s.quotaViolations(ws, assignment)
	if err != nil {
		return dto.AllocationResult{}, err
	}
	result := dto.AllocationResult{
		AssignmentID: assignment.ID,
		Conflicts:    report.Violations,
		Quota:        quota,
	}
	if len(result.Conflicts) > 0 || len(result.Quota) > 0 {
		return result, nil
	}

	hours, err := s.snap.SessionHours(assignment)
	if err != nil {
		return dto.AllocationResult{}, err
	}
	for _, respID := range assignment.ResponsibilityIDs {
		ws.tracker.Accumulate(respID, hours)
	}
	ws.index(assignment)
	result.Accepted = true
	return result, nil
}

func (s *EditSession) moveInto(ws *workingSet, assignmentID, newTimeslotID string, newRoomID *string, userDirected bool) (dto.AllocationResult, error) {
	current, ok := ws.assignments[assignmentID]
	if !ok {
		return dto.AllocationResult{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("assignment %s not found", assignmentID))
	}
	if current.IsLocked && !userDirected {
		return dto.AllocationResult{}, appErrors.Clone(appErrors.ErrRowLocked, fmt.Sprintf("assignment %s is locked against regeneration", assignmentID))
	}
	if err := s.releaseAssignment(ws, current); err != nil {
		return dto.AllocationResult{}, err
	}
	ws.unindex(current)

	moved := current
	moved.TimeslotID = newTimeslotID
	moved.RoomID = newRoomID
	return s.proposeInto(ws, dto.AssignmentPayload{
		ID:                moved.ID,
		TimeslotID:        moved.TimeslotID,
		SubjectCode:       moved.SubjectCode,
		GradeID:           moved.GradeID,
		RoomID:            moved.RoomID,
		IsLocked:          moved.IsLocked,
		ResponsibilityIDs: moved.ResponsibilityIDs,
	})
}

func (s *EditSession) removeInto(ws *workingSet, assignmentID string, userDirected bool) error {
	assignment, ok := ws.assignments[assignmentID]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("assignment %s not found", assignmentID))
	}
	if assignment.IsLocked && !userDirected {
		return appErrors.Clone(appErrors.ErrRowLocked, fmt.Sprintf("assignment %s is locked against regeneration", assignmentID))
	}
	if err := s.releaseAssignment(ws, assignment); err != nil {
		return err
	}
	ws.unindex(assignment)
	return nil
}

func (s *EditSession) releaseAssignment(ws *workingSet, assignment models.ClassAssignment) error {
	hours, err := s.snap.SessionHours(assignment)
	if err != nil {
		return err
	}
	for _, respID := range assignment.ResponsibilityIDs {
		if err := ws.tracker.Release(respID, hours); err != nil {
			return err
		}
	}
	return nil
}

// validateLinks rejects caller-supplied responsibility links that do not
// exist or do not belong to the assignment's (grade, subject) pair.
func (s *EditSession) validateLinks(assignment models.ClassAssignment) error {
	for _, respID := range assignment.ResponsibilityIDs {
		resp, ok := s.snap.Responsibilities[respID]
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("responsibility %s does not exist", respID))
		}
		if resp.GradeID != assignment.GradeID || resp.SubjectCode != assignment.SubjectCode {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("responsibility %s is for a different grade or subject", respID))
		}
	}
	return nil
}

func (s *EditSession) quotaViolations(ws *workingSet, assignment models.ClassAssignment) ([]models.QuotaViolation, error) {
	hours, err := s.snap.SessionHours(assignment)
	if err != nil {
		return nil, err
	}
	var violations []models.QuotaViolation
	for _, respID := range assignment.ResponsibilityIDs {
		resp, err := s.snap.Responsibility(respID)
		if err != nil {
			return nil, err
		}
		if !ws.tracker.CanAdd(resp, hours) {
			violations = append(violations, models.QuotaViolation{
				ResponsibilityID: resp.ID,
				TeacherID:        resp.TeacherID,
				ScheduledHours:   ws.tracker.Scheduled(resp.ID),
				RequestedHours:   hours,
				ContractedHours:  float64(resp.TeachHour),
			})
		}
	}
	return violations, nil
}

// Completeness returns the score for the current working set.
func (s *EditSession) Completeness() int {
	return completenessScore(s.ws.list(), s.required)
}

// Assignments returns the working set in stable order.
func (s *EditSession) Assignments() []models.ClassAssignment {
	return s.ws.list()
}

// Commit serializes the working set, recomputes the completeness score,
// persists the snapshot, invalidates the read cache, and releases the
// session.
func (s *EditSession) Commit(ctx context.Context) (*dto.CommitResult, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	payload, err := s.ws.serialize()
	if err != nil {
		return nil, err
	}
	score := s.Completeness()
	if err := s.svc.configs.UpdateSnapshot(ctx, s.cfg.ID, payload, score); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable snapshot")
	}
	if s.svc.cache != nil {
		s.svc.cache.InvalidateConfig(ctx, s.cfg.ID)
	}
	s.svc.metrics.SetCompleteness(s.cfg.ID, score)
	s.svc.logger.Info("timetable committed",
		zap.String("config_id", s.cfg.ID),
		zap.Int("assignments", len(s.ws.assignments)),
		zap.Int("completeness", score),
	)
	s.close()
	return &dto.CommitResult{ConfigID: s.cfg.ID, Completeness: score, Assignments: len(s.ws.assignments)}, nil
}

// Discard drops the working copy without persisting. Nothing external needs
// unwinding.
func (s *EditSession) Discard() {
	if s.closed {
		return
	}
	s.close()
}

func (s *EditSession) guard() error {
	if s.closed {
		return appErrors.Clone(appErrors.ErrLifecycle, "edit session already closed")
	}
	return nil
}

func (s *EditSession) close() {
	s.closed = true
	s.svc.locks.Release(s.cfg.ID)
}

func (s *AllocationService) recordAllocation(op string, result dto.AllocationResult) {
	if s.metrics == nil {
		return
	}
	outcome := "accepted"
	switch {
	case len(result.Conflicts) > 0:
		outcome = "conflict"
	case len(result.Quota) > 0:
		outcome = "quota"
	case !result.Accepted:
		outcome = "rejected"
	}
	s.metrics.RecordAllocation(op, outcome)
}
