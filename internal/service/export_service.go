package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/export"
	"github.com/noah-isme/timetable-engine/pkg/storage"
)

type fileStorage interface {
	Save(configID, filename string, data []byte) (string, error)
	Open(relPath string) (*os.File, error)
	Remove(relPath string) error
	Sweep(maxAge time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFormat is a supported output format for timetable exports.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders a configuration's timetable into CSV or PDF and
// persists the file behind a signed download URL.
type ExportService struct {
	configs  timetableConfigStore
	entities entitySnapshotLoader
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.DownloadSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(configs timetableConfigStore, entities entitySnapshotLoader, files fileStorage, signer *storage.DownloadSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		configs:  configs,
		entities: entities,
		storage:  files,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate renders the timetable for one configuration and stores the file.
func (s *ExportService) Generate(ctx context.Context, jobID, configID string, format ExportFormat) (*ExportResult, error) {
	cfg, err := s.configs.FindByID(ctx, configID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("configuration %s not found", configID))
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

	dataset, err := buildTimetableDataset(ws.list(), snap)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("Timetable %s (%s)", cfg.ID, cfg.Status)

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, err
	}

	filename := buildExportFilename(cfg.ID, format)
	relPath, err := s.storage.Save(cfg.ID, filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export file")
	}

	token, claim, err := s.signer.Sign(storage.DownloadClaim{
		JobID:    jobID,
		ConfigID: cfg.ID,
		Format:   string(format),
		Path:     relPath,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("timetable exported",
		zap.String("config_id", configID),
		zap.String("format", string(format)),
		zap.String("file", relPath),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       format,
		ExpiresAt:    claim.ExpiresAt,
	}, nil
}

// VerifyToken validates a download token and returns its claim.
func (s *ExportService) VerifyToken(token string, allowExpired bool) (storage.DownloadClaim, error) {
	return s.signer.Verify(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Remove(relPath)
}

// Cleanup removes files older than ttl (configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.Sweep(ttl)
}

// buildTimetableDataset flattens assignments into printable rows ordered by
// day, period start, then grade.
func buildTimetableDataset(assignments []models.ClassAssignment, snap *EntitySnapshot) (export.Dataset, error) {
	type exportRow struct {
		slot  models.Timeslot
		grade models.GradeLevel
		cells map[string]string
	}

	rows := make([]exportRow, 0, len(assignments))
	for _, a := range assignments {
		slot, err := snap.Timeslot(a.TimeslotID)
		if err != nil {
			return export.Dataset{}, err
		}
		grade, err := snap.GradeLevel(a.GradeID)
		if err != nil {
			return export.Dataset{}, err
		}
		teacherIDs, err := snap.TeachersFor(a)
		if err != nil {
			return export.Dataset{}, err
		}

		subjectName := a.SubjectCode
		if subject, ok := snap.Subjects[a.SubjectCode]; ok {
			subjectName = fmt.Sprintf("%s %s", subject.Code, subject.Name)
		}
		roomName := ""
		if a.RoomID != nil {
			roomName = *a.RoomID
			if room, ok := snap.Rooms[*a.RoomID]; ok {
				roomName = room.Name
			}
		}
		teacherNames := make([]string, 0, len(teacherIDs))
		for _, id := range teacherIDs {
			if t, ok := snap.Teachers[id]; ok {
				teacherNames = append(teacherNames, strings.TrimSpace(fmt.Sprintf("%s%s %s", t.Prefix, t.Firstname, t.Lastname)))
			} else {
				teacherNames = append(teacherNames, id)
			}
		}

		rows = append(rows, exportRow{
			slot:  slot,
			grade: grade,
			cells: map[string]string{
				"Day":      string(slot.DayOfWeek),
				"Period":   fmt.Sprintf("%s - %s", slot.StartTime.Format("15:04"), slot.EndTime.Format("15:04")),
				"Grade":    fmt.Sprintf("%d/%d", grade.Year, grade.Number),
				"Subject":  subjectName,
				"Teachers": strings.Join(teacherNames, ", "),
				"Room":     roomName,
			},
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].slot.DayOfWeek != rows[j].slot.DayOfWeek {
			return rows[i].slot.DayOfWeek.Order() < rows[j].slot.DayOfWeek.Order()
		}
		if !rows[i].slot.StartTime.Equal(rows[j].slot.StartTime) {
			return rows[i].slot.StartTime.Before(rows[j].slot.StartTime)
		}
		if rows[i].grade.Year != rows[j].grade.Year {
			return rows[i].grade.Year < rows[j].grade.Year
		}
		return rows[i].grade.Number < rows[j].grade.Number
	})

	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, row.cells)
	}
	return export.Dataset{
		Headers: []string{"Day", "Period", "Grade", "Subject", "Teachers", "Room"},
		Rows:    dataRows,
	}, nil
}

func buildExportFilename(configID string, format ExportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("timetable_%s_%s.%s", sanitizeFilename(configID), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
