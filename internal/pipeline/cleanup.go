package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"labreader/internal/models"
)

// Tracker records temp files while they exist so a crashed request can be swept later.
type Tracker interface {
	TrackFile(ctx context.Context, kind models.TempFileKind, path string) error
	UntrackFile(ctx context.Context, path string) error
}

// cleanupScope owns the files one request creates. Release removes all of them.
type cleanupScope struct {
	ctx     context.Context
	tracker Tracker
	log     zerolog.Logger
	paths   []string
}

func newCleanupScope(ctx context.Context, tracker Tracker, log zerolog.Logger) *cleanupScope {
	return &cleanupScope{
		ctx:     context.WithoutCancel(ctx),
		tracker: tracker,
		log:     log,
	}
}

func (s *cleanupScope) Add(kind models.TempFileKind, path string) {
	s.paths = append(s.paths, path)
	if s.tracker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	if err := s.tracker.TrackFile(ctx, kind, path); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("track temp file failed")
	}
}

// Release never fails; errors are logged so they cannot replace the request's own error.
func (s *cleanupScope) Release() {
	for i := len(s.paths) - 1; i >= 0; i-- {
		path := s.paths[i]
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", path).Msg("remove temp file failed")
			continue
		}
		if s.tracker != nil {
			ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
			if err := s.tracker.UntrackFile(ctx, path); err != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("untrack temp file failed")
			}
			cancel()
		}
	}
	s.paths = nil
}
