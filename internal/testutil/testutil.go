// Package testutil provides shared test helpers for setting up vaults and databases.
package testutil

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/starford/scanvault/internal/index"
	"github.com/starford/scanvault/internal/pipeline"
	"github.com/starford/scanvault/internal/storage"
	"github.com/starford/scanvault/internal/vaultpath"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "scanvault-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault with the default folder taxonomy.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.Bootstrap(vaultDir, vaultpath.Folders)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// ScanRequest builds a scan request whose model responses carry transcript
// and the given entity links, captured at an RFC 3339 timestamp.
func ScanRequest(t *testing.T, scanID, capturedAt, transcript string, links ...string) pipeline.Request {
	t.Helper()
	if links == nil {
		links = []string{}
	}
	tr, err := json.Marshal(map[string]any{
		"transcript": transcript,
		"confidence": 0.93,
	})
	if err != nil {
		t.Fatal(err)
	}
	st, err := json.Marshal(map[string]any{
		"markdown": transcript,
		"meta": map[string]any{
			"title":   "Scan " + scanID,
			"summary": "",
			"tags":    []string{"scan"},
			"links":   links,
		},
		"classification": map[string]any{"folder": vaultpath.FolderDaily},
	})
	if err != nil {
		t.Fatal(err)
	}
	return pipeline.Request{
		ScanID:             scanID,
		BatchID:            "batch-" + scanID,
		CapturedAt:         capturedAt,
		ImagePath:          "scans/" + scanID + ".jpg",
		TranscriptResponse: "```json\n" + string(tr) + "\n```",
		StructureResponse:  string(st),
	}
}
