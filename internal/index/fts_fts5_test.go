//go:build sqlite_fts5

package index

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/scanvault/internal/models"
)

func TestFTS5_SearchDocumentPerNote(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "01_daily/2026-03-14.md", Checksum: "1", UpdatedAt: time.Now()}, "first", nil)
	_ = db.UpsertNote(NoteRow{Path: "01_daily/2026-03-14.md", Checksum: "2", UpdatedAt: time.Now()}, "second", nil)

	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM vault_fts`).Scan(&count); err != nil {
		t.Fatalf("vault_fts table missing: %v", err)
	}
	if count != 1 {
		t.Errorf("search documents = %d, want 1", count)
	}
}

func TestFTS5_SnippetMarksTranscriptMatch(t *testing.T) {
	db := testDB(t)
	body := "## 09:26 scan s1\n\nRaw transcription\n\nMet Ana about the greenhouse irrigation plan."
	if err := db.UpsertNote(NoteRow{Path: "01_daily/2026-03-14.md", Title: "2026-03-14", Checksum: "1", UpdatedAt: time.Now()}, body, nil); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}

	results, err := db.Search("irrigation", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !strings.Contains(results[0].Snippet, "<b>irrigation</b>") {
		t.Errorf("snippet = %q", results[0].Snippet)
	}
}

func TestFTS5_ProvenanceRecordedBeforeNote(t *testing.T) {
	db := testDB(t)
	note := "01_daily/2026-03-14.md"
	// Startup sync may load a sidecar before its note is indexed.
	_ = db.RecordScans(note, []models.ScanRecord{{
		ScanID:         "s1",
		BatchID:        "nightbatch",
		CapturedAt:     time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Classification: models.Classification{Folder: "10_projects"},
	}})
	_ = db.UpsertNote(NoteRow{Path: note, Checksum: "1", UpdatedAt: time.Now()}, "text", nil)

	results, err := db.Search("nightbatch", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != note {
		t.Errorf("results = %+v", results)
	}
}

func TestFTS5_DeleteRemovesDocument(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "00_inbox/gone.md", Checksum: "g", UpdatedAt: time.Now()}, "vanishing content", nil)
	if err := db.DeleteNote("00_inbox/gone.md"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}

	results, err := db.Search("vanishing", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("deleted note still searchable: %+v", results)
	}
}
