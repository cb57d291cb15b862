package dto

import "time"

// ExportRequest queues a timetable export for a configuration.
type ExportRequest struct {
	Format string `json:"format" validate:"required,oneof=pdf csv"`
}

// ExportJob describes a queued or finished export.
type ExportJob struct {
	JobID       string     `json:"jobId"`
	ConfigID    string     `json:"configId"`
	Format      string     `json:"format"`
	Status      string     `json:"status"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}
