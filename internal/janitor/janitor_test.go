package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"labreader/internal/config"
	"labreader/internal/models"
	"labreader/internal/storage"
)

func setupLedger(t *testing.T) *storage.Store {
	t.Helper()
	db, err := storage.Open("sqlite3", &config.Config{
		Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}},
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return storage.NewStore(db)
}

func TestSweep_RemovesExpiredFiles(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()
	dir := t.TempDir()

	stale := filepath.Join(dir, "stale.png")
	if err := os.WriteFile(stale, []byte("img"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	gone := filepath.Join(dir, "already-gone.json")
	for _, p := range []string{stale, gone} {
		if err := ledger.TrackFile(ctx, models.TempFileUpload, p); err != nil {
			t.Fatalf("TrackFile: %v", err)
		}
	}

	j := New(ledger, time.Minute, zerolog.Nop())
	j.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	removed, err := j.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale file still present: %v", err)
	}
	left, err := ledger.ExpiredFiles(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ExpiredFiles: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected ledger to be empty, got %d", len(left))
	}
}

func TestSweep_KeepsFreshFiles(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()
	fresh := filepath.Join(t.TempDir(), "fresh.png")
	if err := os.WriteFile(fresh, []byte("img"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ledger.TrackFile(ctx, models.TempFileUpload, fresh); err != nil {
		t.Fatalf("TrackFile: %v", err)
	}

	removed, err := New(ledger, time.Hour, zerolog.Nop()).Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected nothing removed, got %d", removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file removed: %v", err)
	}
}
