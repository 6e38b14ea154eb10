package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"labreader/internal/models"
)

const (
	DefaultRunLimit = 50
	MaxRunLimit     = 500
)

// Store keeps pipeline run metadata and the paths of request-scoped temp files.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordRun inserts one run. ID and CreatedAt are filled in when empty.
func (s *Store) RecordRun(ctx context.Context, run *models.PipelineRun) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_runs
			(id, provider, status, error_kind, mime_type, size, line_count, finding_count, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Provider, string(run.Status), run.ErrorKind, run.MimeType, run.Size,
		run.LineCount, run.FindingCount, run.DurationMS, run.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*models.PipelineRun, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	if limit > MaxRunLimit {
		limit = MaxRunLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider, status, error_kind, mime_type, size, line_count, finding_count, duration_ms, created_at
		FROM analysis_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.PipelineRun
	for rows.Next() {
		var (
			run    models.PipelineRun
			status string
		)
		if err := rows.Scan(&run.ID, &run.Provider, &status, &run.ErrorKind, &run.MimeType, &run.Size,
			&run.LineCount, &run.FindingCount, &run.DurationMS, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Status = models.RunStatus(status)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// TrackFile records a temp file so the janitor can find it if the request never cleans up.
func (s *Store) TrackFile(ctx context.Context, kind models.TempFileKind, path string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO temp_files (kind, stored_path, created_at) VALUES (?, ?, ?)`,
		string(kind), path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("track temp file: %w", err)
	}
	return nil
}

// UntrackFile forgets path. Unknown paths are not an error.
func (s *Store) UntrackFile(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM temp_files WHERE stored_path = ?`, path); err != nil {
		return fmt.Errorf("untrack temp file: %w", err)
	}
	return nil
}

// ExpiredFiles lists tracked files created before cutoff.
func (s *Store) ExpiredFiles(ctx context.Context, cutoff time.Time) ([]*models.TempFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, stored_path, created_at FROM temp_files
		WHERE created_at <= ? ORDER BY created_at`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query expired files: %w", err)
	}
	defer rows.Close()

	var files []*models.TempFile
	for rows.Next() {
		var (
			f    models.TempFile
			kind string
		)
		if err := rows.Scan(&f.ID, &kind, &f.StoredPath, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Kind = models.TempFileKind(kind)
		files = append(files, &f)
	}
	return files, rows.Err()
}

func (s *Store) DeleteTrackedFile(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM temp_files WHERE id = ?`, id)
	return err
}
