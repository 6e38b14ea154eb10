package janitor

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"labreader/internal/models"
)

const (
	DefaultTempFileTTL             = 30 * time.Minute
	DefaultTempFileCleanupInterval = 10 * time.Minute
)

// Ledger is the part of storage the janitor needs.
type Ledger interface {
	ExpiredFiles(ctx context.Context, cutoff time.Time) ([]*models.TempFile, error)
	DeleteTrackedFile(ctx context.Context, id int64) error
}

// Janitor removes uploads and artifacts left behind by requests that never reached cleanup.
type Janitor struct {
	ledger Ledger
	ttl    time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

func New(ledger Ledger, ttl time.Duration, log zerolog.Logger) *Janitor {
	if ttl <= 0 {
		ttl = DefaultTempFileTTL
	}
	return &Janitor{ledger: ledger, ttl: ttl, log: log, now: time.Now}
}

func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTempFileCleanupInterval
	}
	go j.loop(ctx, interval)
}

func (j *Janitor) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				j.log.Error().Err(err).Msg("sweep temp files failed")
			}
		}
	}
}

// Sweep deletes every tracked file older than the ttl and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	files, err := j.ledger.ExpiredFiles(ctx, j.now().Add(-j.ttl))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range files {
		if err := os.Remove(f.StoredPath); err != nil && !os.IsNotExist(err) {
			j.log.Warn().Err(err).Str("path", f.StoredPath).Msg("remove temp file failed")
			continue
		}
		if err := j.ledger.DeleteTrackedFile(ctx, f.ID); err != nil {
			j.log.Warn().Err(err).Int64("id", f.ID).Msg("delete temp file record failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		j.log.Info().Int("removed", removed).Msg("swept stale temp files")
	}
	return removed, nil
}
