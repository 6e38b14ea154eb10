package models

import "time"

// UploadedFile is an intake-stored image owned by a single request.
type UploadedFile struct {
	ID           string    `json:"id"`
	FileName     string    `json:"file_name"`
	OriginalName string    `json:"original_name"`
	StoredPath   string    `json:"stored_path"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

type TempFileKind string

const (
	TempFileUpload   TempFileKind = "upload"
	TempFileArtifact TempFileKind = "artifact"
)

// TempFile is the ledger entry kept for a request-scoped file while it exists on disk.
type TempFile struct {
	ID         int64        `json:"id"`
	Kind       TempFileKind `json:"kind"`
	StoredPath string       `json:"stored_path"`
	CreatedAt  time.Time    `json:"created_at"`
}
