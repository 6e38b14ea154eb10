package models

import "time"

type RunStatus string

const (
	RunSuccess  RunStatus = "success"
	RunDegraded RunStatus = "degraded"
	RunFailed   RunStatus = "failed"
)

// PipelineRun records how one upload went through the pipeline. It never holds report text.
type PipelineRun struct {
	ID           string    `json:"id"`
	Provider     string    `json:"provider"`
	Status       RunStatus `json:"status"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	LineCount    int       `json:"line_count"`
	FindingCount int       `json:"finding_count"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
