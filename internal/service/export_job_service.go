package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
)

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// Export job statuses.
const (
	ExportStatusQueued     = "QUEUED"
	ExportStatusProcessing = "PROCESSING"
	ExportStatusFinished   = "FINISHED"
	ExportStatusFailed     = "FAILED"
)

type exportJobRecord struct {
	ID        string
	ConfigID  string
	Format    ExportFormat
	Status    string
	URL       string
	ExpiresAt *time.Time
	Error     string
	CreatedAt time.Time
}

// exportJobStore tracks jobs in memory. Jobs live only as long as the queue
// that processes them, so a restart clears both together.
type exportJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*exportJobRecord
}

func newExportJobStore() *exportJobStore {
	return &exportJobStore{jobs: make(map[string]*exportJobRecord)}
}

func (s *exportJobStore) put(record *exportJobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[record.ID] = record
}

func (s *exportJobStore) get(id string) (exportJobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.jobs[id]
	if !ok {
		return exportJobRecord{}, false
	}
	return *record, true
}

func (s *exportJobStore) update(id string, fn func(*exportJobRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(record)
	return true
}

func (s *exportJobStore) deleteOlderThan(cutoff time.Time) []exportJobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []exportJobRecord
	for id, record := range s.jobs {
		if record.CreatedAt.Before(cutoff) && (record.Status == ExportStatusFinished || record.Status == ExportStatusFailed) {
			removed = append(removed, *record)
			delete(s.jobs, id)
		}
	}
	return removed
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    ExportFormat
	ExpiresAt time.Time
}

// ExportJobServiceConfig governs retries and cleanup.
type ExportJobServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ExportJobService queues timetable exports and tracks their progress.
type ExportJobService struct {
	store    *exportJobStore
	queue    jobDispatcher
	exporter *ExportService
	logger   *zap.Logger
	cfg      ExportJobServiceConfig
}

// NewExportJobService constructs the export job service.
func NewExportJobService(queue jobDispatcher, exporter *ExportService, logger *zap.Logger, cfg ExportJobServiceConfig) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ExportJobService{
		store:    newExportJobStore(),
		queue:    queue,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateJob registers an export job and enqueues processing.
func (s *ExportJobService) CreateJob(ctx context.Context, configID string, req dto.ExportRequest) (*dto.ExportJob, error) {
	format := ExportFormat(strings.ToLower(req.Format))
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", req.Format))
	}
	record := &exportJobRecord{
		ID:        uuid.New().String(),
		ConfigID:  configID,
		Format:    format,
		Status:    ExportStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	s.store.put(record)

	if err := s.queue.Enqueue(jobs.Job{ID: record.ID, Type: "timetable_export"}); err != nil {
		s.store.update(record.ID, func(r *exportJobRecord) {
			r.Status = ExportStatusFailed
			r.Error = "failed to enqueue export"
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return jobToDTO(*record), nil
}

// GetStatus exposes job metadata to clients.
func (s *ExportJobService) GetStatus(_ context.Context, id string) (*dto.ExportJob, error) {
	record, ok := s.store.get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return jobToDTO(record), nil
}

// ResolveDownload validates a download token and opens the stored file.
func (s *ExportJobService) ResolveDownload(_ context.Context, token string) (*ExportDownload, error) {
	claim, err := s.exporter.VerifyToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid or expired download token")
	}
	record, ok := s.store.get(claim.JobID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if record.Status != ExportStatusFinished || record.ConfigID != claim.ConfigID || !strings.HasSuffix(record.URL, token) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "export not ready")
	}
	file, err := s.exporter.Open(claim.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(claim.Path),
		Format:    record.Format,
		ExpiresAt: claim.ExpiresAt,
	}, nil
}

// Handle processes a queue job. Wired as the queue handler.
func (s *ExportJobService) Handle(ctx context.Context, job jobs.Job) error {
	record, ok := s.store.get(job.ID)
	if !ok {
		s.logger.Warn("export job missing from store", zap.String("job_id", job.ID))
		return nil
	}
	s.store.update(job.ID, func(r *exportJobRecord) {
		r.Status = ExportStatusProcessing
	})

	result, err := s.exporter.Generate(ctx, record.ID, record.ConfigID, record.Format)
	if err != nil {
		if job.Attempt >= s.cfg.MaxRetries {
			msg := err.Error()
			s.store.update(job.ID, func(r *exportJobRecord) {
				r.Status = ExportStatusFailed
				r.Error = msg
			})
		} else {
			s.store.update(job.ID, func(r *exportJobRecord) {
				r.Status = ExportStatusQueued
			})
		}
		return err
	}

	s.store.update(job.ID, func(r *exportJobRecord) {
		r.Status = ExportStatusFinished
		r.URL = result.URL
		r.ExpiresAt = &result.ExpiresAt
		r.Error = ""
	})
	return nil
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ExportJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired()
			}
		}
	}()
}

func (s *ExportJobService) cleanupExpired() {
	cutoff := time.Now().UTC().Add(-s.cfg.ResultTTL)
	for _, record := range s.store.deleteOlderThan(cutoff) {
		if record.URL == "" {
			continue
		}
		token := record.URL[strings.LastIndex(record.URL, "/")+1:]
		claim, err := s.exporter.VerifyToken(token, true)
		if err != nil {
			continue
		}
		if err := s.exporter.Delete(claim.Path); err != nil {
			s.logger.Warn("cleanup delete failed", zap.String("job_id", record.ID), zap.Error(err))
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("filesystem cleanup failed", zap.Error(err))
	}
}

func jobToDTO(record exportJobRecord) *dto.ExportJob {
	job := &dto.ExportJob{
		JobID:     record.ID,
		ConfigID:  record.ConfigID,
		Format:    string(record.Format),
		Status:    record.Status,
		CreatedAt: record.CreatedAt,
	}
	if record.URL != "" {
		job.DownloadURL = record.URL
	}
	if record.ExpiresAt != nil {
		job.ExpiresAt = record.ExpiresAt
	}
	if record.Error != "" {
		job.Error = record.Error
	}
	return job
}
