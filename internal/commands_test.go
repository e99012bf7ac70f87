package internal

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/noteservice"
	"github.com/starford/scanvault/internal/syncer"
	"github.com/starford/scanvault/internal/testutil"
)

func testOptions(t *testing.T) (*Config, []Option) {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Vault.Path = filepath.Join(dir, "vault")
	cfg.SQLite.Path = filepath.Join(dir, "index.db")
	cfg.Vault.Mirror.Path = filepath.Join(dir, "mirror")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg, []Option{WithConfig(cfg), WithLogOutput(io.Discard)}
}

func TestBootstrapCreatesFolders(t *testing.T) {
	cfg, opts := testOptions(t)
	if err := Bootstrap(context.Background(), opts...); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	for _, f := range cfg.Vault.Folders {
		info, err := os.Stat(filepath.Join(cfg.Vault.Path, f))
		if err != nil || !info.IsDir() {
			t.Errorf("folder %s missing: %v", f, err)
		}
	}
	// Idempotent.
	if err := Bootstrap(context.Background(), opts...); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
}

func TestCommandsRequireConfig(t *testing.T) {
	if err := Bootstrap(context.Background()); err == nil {
		t.Error("expected error without config")
	}
}

func TestIngestApplySyncReset(t *testing.T) {
	cfg, opts := testOptions(t)
	ctx := context.Background()

	res, err := Ingest(ctx, testutil.ScanRequest(t, "s1", "2026-03-14T23:59:00+02:00", "late night idea"), "", opts...)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	// 23:59 at +02:00 is 21:59 UTC on the same date.
	if res.NotePath != "01_daily/2026-03-14.md" {
		t.Errorf("note path = %q", res.NotePath)
	}

	sum, err := Apply(ctx, []models.FileOperation{models.CreateOp("00_inbox/x.md", "# X\n")}, opts...)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(sum.Written) != 1 {
		t.Errorf("written = %v", sum.Written)
	}

	sync, err := Sync(ctx, "", opts...)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if sync.Stats.Copied < 3 {
		t.Errorf("copied = %d, want note, sidecar and inbox file", sync.Stats.Copied)
	}
	data, err := os.ReadFile(filepath.Join(cfg.Vault.Mirror.Path, "01_daily", "2026-03-14.md"))
	if err != nil || !strings.Contains(string(data), "late night idea") {
		t.Errorf("mirror copy = %q, %v", data, err)
	}

	if err := Reset(ctx, opts...); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Vault.Path, "01_daily", "2026-03-14.md")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("note survived reset: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Vault.Path, "01_daily")); err != nil {
		t.Errorf("folders not restored: %v", err)
	}
}

func TestApplyRejectsEscapingPath(t *testing.T) {
	_, opts := testOptions(t)
	_, err := Apply(context.Background(), []models.FileOperation{models.CreateOp("../../x.md", "x")}, opts...)
	if !errors.Is(err, apperr.ErrOutsideVault) {
		t.Errorf("err = %v, want outside vault", err)
	}
}

func TestSyncedEventCarriesStats(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	ev := syncedEvent(&noteservice.SyncResult{
		Destination: "/mnt/mirror",
		Stats:       &syncer.Stats{Copied: 2, Unchanged: 5, Skipped: 1, Bytes: 42},
		FinishedAt:  at,
	})
	if ev.Destination != "/mnt/mirror" || ev.Copied != 2 || ev.Unchanged != 5 || ev.Skipped != 1 || ev.Bytes != 42 {
		t.Errorf("event = %+v", ev)
	}
	if !ev.FinishedAt.Equal(at) {
		t.Errorf("finished at = %v", ev.FinishedAt)
	}
	if ev := syncedEvent(&noteservice.SyncResult{Destination: "/d"}); ev.Copied != 0 {
		t.Errorf("nil stats event = %+v", ev)
	}
}
