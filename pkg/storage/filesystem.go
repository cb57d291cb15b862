package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportArchive persists generated timetable files on disk, one directory
// per configuration so a term's artifacts can be swept together.
type ExportArchive struct {
	baseDir string
}

// NewExportArchive ensures the base directory exists and returns a handle.
func NewExportArchive(baseDir string) (*ExportArchive, error) {
	if baseDir == "" {
		baseDir = "./exports"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export archive: %w", err)
	}
	return &ExportArchive{baseDir: baseDir}, nil
}

// Save writes a rendered timetable under the configuration's directory and
// returns the archive-relative path ("<configID>/<filename>").
func (a *ExportArchive) Save(configID, filename string, data []byte) (string, error) {
	relPath := filepath.Join(safeSegment(configID), filepath.Base(filename))
	path := filepath.Join(a.baseDir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare config export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write timetable export: %w", err)
	}
	return relPath, nil
}

// SaveStream streams a rendered timetable into the configuration's directory.
func (a *ExportArchive) SaveStream(configID, filename string, r io.Reader) (string, error) {
	relPath := filepath.Join(safeSegment(configID), filepath.Base(filename))
	path := filepath.Join(a.baseDir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare config export directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create timetable export: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write timetable export stream: %w", err)
	}
	return relPath, nil
}

// Open returns a read-only handle for an archived export.
func (a *ExportArchive) Open(relPath string) (*os.File, error) {
	file, err := os.Open(a.resolve(relPath))
	if err != nil {
		return nil, fmt.Errorf("open timetable export: %w", err)
	}
	return file, nil
}

// Remove deletes an archived export if present.
func (a *ExportArchive) Remove(relPath string) error {
	if err := os.Remove(a.resolve(relPath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove timetable export: %w", err)
	}
	return nil
}

// Sweep removes exports older than maxAge across every configuration
// directory and returns the archive-relative paths it deleted.
func (a *ExportArchive) Sweep(maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge)
	deleted := make([]string, 0)
	err := filepath.WalkDir(a.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		rel, err := filepath.Rel(a.baseDir, path)
		if err != nil {
			rel = path
		}
		deleted = append(deleted, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sweep export archive: %w", err)
	}
	return deleted, nil
}

// Path resolves an archive-relative path to its absolute location.
func (a *ExportArchive) Path(relPath string) string {
	return a.resolve(relPath)
}

func (a *ExportArchive) resolve(relPath string) string {
	return filepath.Join(a.baseDir, filepath.Clean("/"+relPath))
}

// safeSegment keeps a configuration id usable as a single directory name.
func safeSegment(configID string) string {
	if configID == "" {
		return "unscoped"
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", "..", ".", " ", "_")
	return replacer.Replace(configID)
}
