package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

type configStoreStub struct {
	cfg               *models.TimetableConfig
	findErr           error
	updateErr         error
	savedSnapshot     types.JSONText
	savedCompleteness int
	updateCalls       int
}

func (s *configStoreStub) FindByID(ctx context.Context, id string) (*models.TimetableConfig, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.cfg == nil || s.cfg.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *s.cfg
	return &copied, nil
}

func (s *configStoreStub) UpdateSnapshot(ctx context.Context, id string, snapshot types.JSONText, completeness int) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.savedSnapshot = snapshot
	s.savedCompleteness = completeness
	s.updateCalls++
	return nil
}

type entityLoaderStub struct {
	snap     *EntitySnapshot
	required []models.RequiredLoad
	err      error
}

func (s *entityLoaderStub) LoadSnapshot(ctx context.Context, academicYear int, sem models.Semester) (*EntitySnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func (s *entityLoaderStub) LoadRequiredLoad(ctx context.Context, academicYear int, sem models.Semester) ([]models.RequiredLoad, error) {
	return s.required, nil
}

func draftConfig(payload string) *models.TimetableConfig {
	return &models.TimetableConfig{
		ID:           "1-2567",
		AcademicYear: 2567,
		Semester:     models.Semester1,
		Status:       models.ConfigStatusDraft,
		Snapshot:     types.JSONText(payload),
	}
}

func newTestAllocationService(cfg *models.TimetableConfig, required []models.RequiredLoad) (*AllocationService, *configStoreStub) {
	store := &configStoreStub{cfg: cfg}
	entities := &entityLoaderStub{snap: newTestSnapshot(), required: required}
	svc := NewAllocationService(store, entities, NewConfigLockRegistry(), nil, nil, nil, nil)
	return svc, store
}

func mathPayload(id, slot string) dto.AssignmentPayload {
	return dto.AssignmentPayload{
		ID:                id,
		TimeslotID:        slot,
		SubjectCode:       "MATH101",
		GradeID:           "grade-1-1",
		RoomID:            strPtr("room-a"),
		ResponsibilityIDs: []string{"resp-math-1"},
	}
}

func TestCheckoutRejectsUnknownConfig(t *testing.T) {
	svc, _ := newTestAllocationService(nil, nil)

	_, err := svc.Checkout(context.Background(), "9-9999")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestCheckoutRejectsFrozenConfig(t *testing.T) {
	cfg := draftConfig(`{"assignments":[]}`)
	cfg.Status = models.ConfigStatusLocked
	svc, _ := newTestAllocationService(cfg, nil)

	_, err := svc.Checkout(context.Background(), "1-2567")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConfigFrozen))
}

func TestCheckoutEnforcesSingleWriter(t *testing.T) {
	svc, _ := newTestAllocationService(draftConfig(`{"assignments":[]}`), nil)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)

	_, err = svc.Checkout(context.Background(), "1-2567")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionBusy))

	// Discard releases the lock for the next writer.
	session.Discard()
	second, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	second.Discard()
}

func TestProposeAcceptedAndCommitted(t *testing.T) {
	required := []models.RequiredLoad{{GradeID: "grade-1-1", SubjectCode: "MATH101", Sessions: 2}}
	svc, store := newTestAllocationService(draftConfig(`{"assignments":[]}`), required)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)

	result, err := session.Propose(mathPayload("a1", "1-2567-MON1"))
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, "a1", result.AssignmentID)

	commit, err := session.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, commit.Assignments)
	assert.Equal(t, 50, commit.Completeness)
	assert.Equal(t, 1, store.updateCalls)

	var snapshot models.TimetableSnapshot
	require.NoError(t, json.Unmarshal(store.savedSnapshot, &snapshot))
	require.Len(t, snapshot.Assignments, 1)
	assert.Equal(t, "1-2567-MON1", snapshot.Assignments[0].TimeslotID)
}

func TestProposeConflictIsDataNotError(t *testing.T) {
	svc, _ := newTestAllocationService(draftConfig(`{"assignments":[]}`), nil)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	defer session.Discard()

	first, err := session.Propose(mathPayload("a1", "1-2567-MON1"))
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := session.Propose(mathPayload("a2", "1-2567-MON1"))
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.NotEmpty(t, second.Conflicts)
	// Rejected candidate leaves the working set untouched.
	assert.Len(t, session.Assignments(), 1)
}

func TestProposeQuotaExceededIsDataNotError(t *testing.T) {
	svc, _ := newTestAllocationService(draftConfig(`{"assignments":[]}`), nil)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	defer session.Discard()

	// resp-math-1 carries a 2 hour quota; each slot lasts one hour.
	for i, slot := range []string{"1-2567-MON1", "1-2567-MON2"} {
		payload := mathPayload("", slot)
		payload.ID = string(rune('a'+i)) + "1"
		result, err := session.Propose(payload)
		require.NoError(t, err)
		require.True(t, result.Accepted)
	}

	third, err := session.Propose(mathPayload("c1", "1-2567-TUE1"))
	require.NoError(t, err)
	assert.False(t, third.Accepted)
	require.Len(t, third.Quota, 1)
	assert.Equal(t, "resp-math-1", third.Quota[0].ResponsibilityID)
	assert.Equal(t, "teacher-1", third.Quota[0].TeacherID)
	assert.Equal(t, 2.0, third.Quota[0].ScheduledHours)
	assert.Equal(t, 2.0, third.Quota[0].ContractedHours)
	assert.Len(t, session.Assignments(), 2)
}

func TestProposeDuplicateID(t *testing.T) {
	svc, _ := newTestAllocationService(draftConfig(`{"assignments":[]}`), nil)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	defer session.Discard()

	_, err = session.Propose(mathPayload("a1", "1-2567-MON1"))
	require.NoError(t, err)

	_, err = session.Propose(mathPayload("a1", "1-2567-MON2"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAssignmentExists))
}

func TestProposeRejectsMismatchedResponsibilityLink(t *testing.T) {
	svc, _ := newTestAllocationService(draftConfig(`{"assignments":[]}`), nil)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	defer session.Discard()

	payload := mathPayload("a1", "1-2567-MON1")
	// resp-eng-4 belongs to another grade and subject.
	payload.ResponsibilityIDs = []string{"resp-eng-4"}
	_, err = session.Propose(payload)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestMoveIsAtomic(t *testing.T) {
	svc, _ := newTestAllocationService(draftConfig(`{"assignments":[]}`), nil)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	defer session.Discard()

	_, err = session.Propose(mathPayload("a1", "1-2567-MON1"))
	require.NoError(t, err)
	blocker := dto.AssignmentPayload{
		ID: "blocker", TimeslotID: "1-2567-MON2", SubjectCode: "ENG101", GradeID: "grade-1-1",
	}
	_, err = session.Propose(blocker)
	require.NoError(t, err)

	// Moving onto the blocker's slot collides on grade; the original
	// placement must survive, workload included.
	result, err := session.Move("a1", dto.MoveAssignmentRequest{NewTimeslotID: "1-2567-MON2"})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.NotEmpty(t, result.Conflicts)

	var moved models.ClassAssignment
	for _, a := range session.Assignments() {
		if a.ID == "a1" {
			moved = a
		}
	}
	assert.Equal(t, "1-2567-MON1", moved.TimeslotID)
	assert.Equal(t, 1.0, session.ws.tracker.Scheduled("resp-math-1"))
}

func TestMoveSucceedsToFreeSlot(t *testing.T) {
	svc, _ := newTestAllocationService(draftConfig(`{"assignments":[]}`), nil)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	defer session.Discard()

	_, err = session.Propose(mathPayload("a1", "1-2567-MON1"))
	require.NoError(t, err)

	result, err := session.Move("a1", dto.MoveAssignmentRequest{NewTimeslotID: "1-2567-TUE1", NewRoomID: strPtr("room-b")})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	assignments := session.Assignments()
	require.Len(t, assignments, 1)
	assert.Equal(t, "1-2567-TUE1", assignments[0].TimeslotID)
	assert.Equal(t, "room-b", *assignments[0].RoomID)
	assert.Equal(t, 1.0, session.ws.tracker.Scheduled("resp-math-1"))
}

func TestRowLockBlocksAutomatedChangesOnly(t *testing.T) {
	svc, _ := newTestAllocationService(draftConfig(`{"assignments":[]}`), nil)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	defer session.Discard()

	payload := mathPayload("a1", "1-2567-MON1")
	payload.IsLocked = true
	_, err = session.Propose(payload)
	require.NoError(t, err)

	_, err = session.Move("a1", dto.MoveAssignmentRequest{NewTimeslotID: "1-2567-TUE1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrRowLocked))

	err = session.Remove("a1", false)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrRowLocked))

	// An explicit user-directed call overrides the row flag.
	require.NoError(t, session.Remove("a1", true))
	assert.Empty(t, session.Assignments())
	assert.Equal(t, 0.0, session.ws.tracker.Scheduled("resp-math-1"))
}

func TestBulkApplyIsTransactional(t *testing.T) {
	svc, _ := newTestAllocationService(draftConfig(`{"assignments":[]}`), nil)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	defer session.Discard()

	good := mathPayload("a1", "1-2567-MON1")
	// Break period for juniors makes the second change fail.
	bad := dto.AssignmentPayload{ID: "a2", TimeslotID: "1-2567-MON3", SubjectCode: "ENG101", GradeID: "grade-1-1"}

	result, err := session.BulkApply(dto.BulkApplyRequest{Changes: []dto.AllocationChange{
		{Op: dto.OpPropose, Assignment: &good},
		{Op: dto.OpPropose, Assignment: &bad},
	}})
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, 1, result.FailedIndex)
	// Nothing from the batch landed, the first change included.
	assert.Empty(t, session.Assignments())
	assert.Equal(t, 0.0, session.ws.tracker.Scheduled("resp-math-1"))
}

func TestBulkApplyAppliesWholeBatch(t *testing.T) {
	svc, _ := newTestAllocationService(draftConfig(`{"assignments":[]}`), nil)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	defer session.Discard()

	_, err = session.Propose(mathPayload("a1", "1-2567-MON1"))
	require.NoError(t, err)

	second := dto.AssignmentPayload{ID: "a2", TimeslotID: "1-2567-MON2", SubjectCode: "ENG101", GradeID: "grade-4-1", ResponsibilityIDs: []string{"resp-eng-4"}}
	result, err := session.BulkApply(dto.BulkApplyRequest{Changes: []dto.AllocationChange{
		{Op: dto.OpMove, AssignmentID: "a1", NewTimeslotID: "1-2567-TUE1", NewRoomID: strPtr("room-a")},
		{Op: dto.OpPropose, Assignment: &second},
	}})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, -1, result.FailedIndex)
	require.Len(t, session.Assignments(), 2)
}

func TestCommitClosesSessionAndReleasesLock(t *testing.T) {
	svc, _ := newTestAllocationService(draftConfig(`{"assignments":[]}`), nil)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	_, err = session.Commit(context.Background())
	require.NoError(t, err)

	_, err = session.Propose(mathPayload("a1", "1-2567-MON1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrLifecycle))

	next, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	next.Discard()
}

func TestCheckoutRebuildsWorkloadFromSnapshot(t *testing.T) {
	stored := models.TimetableSnapshot{Assignments: []models.ClassAssignment{
		{ID: "a1", TimeslotID: "1-2567-MON1", SubjectCode: "MATH101", GradeID: "grade-1-1", ResponsibilityIDs: []string{"resp-math-1"}},
		{ID: "a2", TimeslotID: "1-2567-MON2", SubjectCode: "MATH101", GradeID: "grade-1-1", ResponsibilityIDs: []string{"resp-math-1"}},
	}}
	payload, err := json.Marshal(stored)
	require.NoError(t, err)
	svc, _ := newTestAllocationService(draftConfig(string(payload)), nil)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	defer session.Discard()

	assert.Equal(t, 2.0, session.ws.tracker.Scheduled("resp-math-1"))

	// The rebuilt totals already saturate the quota.
	result, err := session.Propose(mathPayload("a3", "1-2567-TUE1"))
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	require.Len(t, result.Quota, 1)
}

func TestCheckoutRejectsCorruptSnapshot(t *testing.T) {
	stored := models.TimetableSnapshot{Assignments: []models.ClassAssignment{
		{ID: "a1", TimeslotID: "1-2567-MON1", SubjectCode: "MATH101", GradeID: "grade-1-1", ResponsibilityIDs: []string{"resp-missing"}},
	}}
	payload, err := json.Marshal(stored)
	require.NoError(t, err)
	svc, _ := newTestAllocationService(draftConfig(string(payload)), nil)

	_, err = svc.Checkout(context.Background(), "1-2567")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvariant))
}

func TestProbeReportsRoomAvailability(t *testing.T) {
	stored := models.TimetableSnapshot{Assignments: []models.ClassAssignment{
		{ID: "a1", TimeslotID: "1-2567-MON1", SubjectCode: "ENG101", GradeID: "grade-4-1", RoomID: strPtr("room-a")},
	}}
	payload, err := json.Marshal(stored)
	require.NoError(t, err)
	svc, _ := newTestAllocationService(draftConfig(string(payload)), nil)

	resp, err := svc.Probe(context.Background(), "1-2567", dto.ProbeRequest{
		TimeslotID:  "1-2567-MON1",
		SubjectCode: "MATH101",
		GradeID:     "grade-1-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	require.Len(t, resp.OccupiedRooms, 1)
	assert.Equal(t, "room-a", resp.OccupiedRooms[0].ID)
	require.Len(t, resp.AvailableRooms, 1)
	assert.Equal(t, "room-b", resp.AvailableRooms[0].ID)

	// Probe never takes the config lock.
	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	session.Discard()
}

func TestCompletenessNeverRisesOnRemoval(t *testing.T) {
	required := []models.RequiredLoad{{GradeID: "grade-1-1", SubjectCode: "MATH101", Sessions: 2}}
	svc, _ := newTestAllocationService(draftConfig(`{"assignments":[]}`), required)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	defer session.Discard()

	_, err = session.Propose(mathPayload("a1", "1-2567-MON1"))
	require.NoError(t, err)
	_, err = session.Propose(mathPayload("a2", "1-2567-MON2"))
	require.NoError(t, err)
	full := session.Completeness()
	assert.Equal(t, 100, full)

	require.NoError(t, session.Remove("a2", false))
	afterFirst := session.Completeness()
	assert.LessOrEqual(t, afterFirst, full)
	assert.Equal(t, 50, afterFirst)

	require.NoError(t, session.Remove("a1", false))
	afterSecond := session.Completeness()
	assert.LessOrEqual(t, afterSecond, afterFirst)
	assert.Equal(t, 0, afterSecond)
}

type cacheStub struct {
	data        map[string][]byte
	invalidated []string
	sets        int
}

func newCacheStub() *cacheStub {
	return &cacheStub{data: make(map[string][]byte)}
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	c.sets++
	return nil
}

func (c *cacheStub) InvalidateConfig(ctx context.Context, configID string) {
	c.invalidated = append(c.invalidated, configID)
	for key := range c.data {
		if strings.HasPrefix(key, ConfigCacheKey(configID)) {
			delete(c.data, key)
		}
	}
}

func TestCommittedAssignmentsReadsThroughCache(t *testing.T) {
	stored := models.TimetableSnapshot{Assignments: []models.ClassAssignment{
		{ID: "a1", TimeslotID: "1-2567-MON1", SubjectCode: "MATH101", GradeID: "grade-1-1", ResponsibilityIDs: []string{"resp-math-1"}},
	}}
	payload, err := json.Marshal(stored)
	require.NoError(t, err)

	store := &configStoreStub{cfg: draftConfig(string(payload))}
	entities := &entityLoaderStub{snap: newTestSnapshot()}
	cache := newCacheStub()
	svc := NewAllocationService(store, entities, NewConfigLockRegistry(), cache, nil, nil, nil)

	first, err := svc.CommittedAssignments(context.Background(), "1-2567")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, cache.sets)

	// Second read is served from cache even if the store goes away.
	store.findErr = sql.ErrConnDone
	second, err := svc.CommittedAssignments(context.Background(), "1-2567")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCommitInvalidatesSnapshotCache(t *testing.T) {
	store := &configStoreStub{cfg: draftConfig(`{"assignments":[]}`)}
	entities := &entityLoaderStub{snap: newTestSnapshot()}
	cache := newCacheStub()
	svc := NewAllocationService(store, entities, NewConfigLockRegistry(), cache, nil, nil, nil)

	_, err := svc.CommittedAssignments(context.Background(), "1-2567")
	require.NoError(t, err)
	require.Equal(t, 1, cache.sets)

	session, err := svc.Checkout(context.Background(), "1-2567")
	require.NoError(t, err)
	result, err := session.Propose(mathPayload("asg-1", "1-2567-MON1"))
	require.NoError(t, err)
	require.True(t, result.Accepted)
	_, err = session.Commit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1-2567"}, cache.invalidated)
	assert.Empty(t, cache.data)
}
