package index

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "scanvault-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	for _, table := range []string{"notes", "links", "scans"} {
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := NoteRow{
		Path:      "01_daily/2026-03-14.md",
		Title:     "2026-03-14",
		Checksum:  "abc123",
		Tags:      []string{"daily", "meeting"},
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertNote(row, "Standup notes.", []Link{{Target: "10_projects/Atlas"}}); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
	cs, err := db.GetChecksum(row.Path)
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}

	got, err := db.GetNote(row.Path)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Title != "2026-03-14" || len(got.Tags) != 2 {
		t.Errorf("note = %+v", got)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetNote("missing.md"); err == nil {
		t.Error("expected error for missing note")
	}
}

func TestBacklinks(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertNote(NoteRow{Path: "01_daily/a.md", Checksum: "1", UpdatedAt: now}, "body", []Link{{Target: "10_projects/Atlas"}})
	_ = db.UpsertNote(NoteRow{Path: "01_daily/c.md", Checksum: "2", UpdatedAt: now}, "body", []Link{{Target: "10_projects/Atlas.md", Type: LinkEntity}})

	for _, target := range []string{"10_projects/Atlas", "10_projects/Atlas.md"} {
		bl, err := db.Backlinks(target)
		if err != nil {
			t.Fatalf("Backlinks: %v", err)
		}
		if len(bl) != 2 || bl[0] != "01_daily/a.md" || bl[1] != "01_daily/c.md" {
			t.Errorf("Backlinks(%q) = %v", target, bl)
		}
	}
}

func TestDeleteNote(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "del.md", Checksum: "x", UpdatedAt: time.Now()}, "body", []Link{{Target: "target"}})

	if err := db.DeleteNote("del.md"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	cs, _ := db.GetChecksum("del.md")
	if cs != "" {
		t.Errorf("deleted note still has checksum %q", cs)
	}
	bl, _ := db.Backlinks("target")
	if len(bl) != 0 {
		t.Errorf("expected 0 backlinks after delete, got %d", len(bl))
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertNote(NoteRow{Path: "up.md", Title: "Old", Checksum: "1", UpdatedAt: now}, "old body", []Link{{Target: "x"}})
	_ = db.UpsertNote(NoteRow{Path: "up.md", Title: "New", Checksum: "2", Tags: []string{"new"}, UpdatedAt: now}, "new body", []Link{{Target: "y"}})

	cs, _ := db.GetChecksum("up.md")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	bl, _ := db.Backlinks("x")
	if len(bl) != 0 {
		t.Error("old link should be removed on upsert")
	}
	bl, _ = db.Backlinks("y")
	if len(bl) != 1 {
		t.Error("new link should exist")
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "s.md", Title: "Search Me", Checksum: "1", UpdatedAt: time.Now()}, "uniqueword appears here", nil)

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.md" {
		t.Errorf("search results = %+v, want 1 hit for s.md", results)
	}
}

func TestSearch_ScanProvenance(t *testing.T) {
	db := testDB(t)
	note := "01_daily/2026-03-14.md"
	_ = db.UpsertNote(NoteRow{Path: note, Title: "2026-03-14", Checksum: "1", UpdatedAt: time.Now()}, "Call Alice about the budget", nil)
	_ = db.UpsertNote(NoteRow{Path: "00_inbox/other.md", Title: "Other", Checksum: "2", UpdatedAt: time.Now()}, "nothing relevant", nil)

	if err := db.RecordScans(note, []models.ScanRecord{{
		ScanID:         "scan7f3a",
		BatchID:        "batch91c2",
		CapturedAt:     time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC),
		Classification: models.Classification{Folder: "20_areas"},
	}}); err != nil {
		t.Fatalf("RecordScans: %v", err)
	}

	for _, q := range []string{"scan7f3a", "batch91c2", "20_areas"} {
		results, err := db.Search(q, 10)
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if len(results) != 1 || results[0].Path != note {
			t.Errorf("Search(%q) = %+v, want the daily note", q, results)
		}
	}

	if err := db.DeleteScans(note); err != nil {
		t.Fatalf("DeleteScans: %v", err)
	}
	results, err := db.Search("scan7f3a", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("provenance outlived its scans: %+v", results)
	}
}

func TestRecordScansAndScansOn(t *testing.T) {
	db := testDB(t)
	at := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	scans := []models.ScanRecord{
		{ScanID: "s2", BatchID: "b", CapturedAt: at.Add(time.Hour), ProcessingMode: models.ModeFast},
		{ScanID: "s1", BatchID: "b", CapturedAt: at, ImagePath: "scans/s1.jpg", Classification: models.Classification{Folder: "01_daily"}},
	}
	if err := db.RecordScans("01_daily/2026-03-14.md", scans); err != nil {
		t.Fatalf("RecordScans: %v", err)
	}

	got, err := db.ScansOn("2026-03-14")
	if err != nil {
		t.Fatalf("ScansOn: %v", err)
	}
	if len(got) != 2 || got[0].ScanID != "s1" || got[1].ScanID != "s2" {
		t.Fatalf("scans = %+v", got)
	}
	if !got[0].CapturedAt.Equal(at) || got[0].ImagePath != "scans/s1.jpg" || got[0].Folder != "01_daily" {
		t.Errorf("scan row = %+v", got[0])
	}
	if got[1].ProcessingMode != models.ModeFast {
		t.Errorf("mode = %q", got[1].ProcessingMode)
	}

	// Re-recording replaces rather than duplicates.
	if err := db.RecordScans("01_daily/2026-03-14.md", scans[:1]); err != nil {
		t.Fatalf("RecordScans: %v", err)
	}
	got, _ = db.ScansOn("2026-03-14")
	if len(got) != 1 {
		t.Errorf("after replace len = %d, want 1", len(got))
	}

	if _, err := db.ScansOn("14/03/2026"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestAppliedObserver(t *testing.T) {
	db := testDB(t)
	note := "---\ntitle: 2026-03-14\n---\n\n# 2026-03-14\n\n## Standup\n<!-- scan:s1 -->\n\nLinks: [[10_projects/Atlas|Atlas]]\nTags: #meeting\n"
	sidecar, _ := json.Marshal(models.Sidecar{
		Version:  1,
		NotePath: "01_daily/2026-03-14.md",
		Scans:    []models.ScanRecord{{ScanID: "s1", CapturedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}},
	})

	db.Applied(context.Background(), []models.FileOperation{
		models.CreateOp("01_daily/2026-03-14.md", note).WithMeta(models.NoteMeta{Links: []string{"10_projects/Atlas"}}),
		models.CreateOp("01_daily/2026-03-14.meta.json", string(sidecar)),
		models.CreateOp("10_projects/Atlas.md", "# Atlas\n\nFirst referenced in [[01_daily/2026-03-14]].\n"),
	})

	bl, _ := db.Backlinks("10_projects/Atlas.md")
	if len(bl) != 1 || bl[0] != "01_daily/2026-03-14.md" {
		t.Errorf("backlinks = %v", bl)
	}
	bl, _ = db.Backlinks("01_daily/2026-03-14")
	if len(bl) != 1 || bl[0] != "10_projects/Atlas.md" {
		t.Errorf("entity backlink = %v", bl)
	}
	scans, _ := db.ScansOn("2026-03-14")
	if len(scans) != 1 || scans[0].ScanID != "s1" {
		t.Errorf("scans = %+v", scans)
	}
	n, err := db.GetNote("01_daily/2026-03-14.md")
	if err != nil || n.Tags[0] != "meeting" {
		t.Errorf("note = %+v, %v", n, err)
	}

	db.Applied(context.Background(), []models.FileOperation{
		models.DeleteOp("01_daily/2026-03-14.md"),
		models.DeleteOp("01_daily/2026-03-14.meta.json"),
	})
	if cs, _ := db.GetChecksum("01_daily/2026-03-14.md"); cs != "" {
		t.Error("deleted note still indexed")
	}
	if scans, _ := db.ScansOn("2026-03-14"); len(scans) != 0 {
		t.Errorf("scans after delete = %+v", scans)
	}
}

func TestSyncReconcilesVault(t *testing.T) {
	db := testDB(t)
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Write("01_daily/2026-03-14.md", []byte("# 2026-03-14\n\nSee [[10_projects/Atlas]].\n"))
	sidecar, _ := json.Marshal(models.Sidecar{
		Version: 1,
		Scans:   []models.ScanRecord{{ScanID: "s1", CapturedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}},
	})
	_ = store.Write("01_daily/2026-03-14.meta.json", sidecar)
	_ = db.UpsertNote(NoteRow{Path: "stale.md", Checksum: "old", UpdatedAt: time.Now()}, "", nil)
	_ = db.UpsertNote(NoteRow{Path: "01_daily/2026-01-02.md", Checksum: "gone", UpdatedAt: time.Now()}, "", nil)
	_ = db.RecordScans("01_daily/2026-01-02.md", []models.ScanRecord{
		{ScanID: "old", CapturedAt: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)},
	})

	if err := Sync(db, store, db.logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if cs, _ := db.GetChecksum("stale.md"); cs != "" {
		t.Error("stale note not removed")
	}
	bl, _ := db.Backlinks("10_projects/Atlas")
	if len(bl) != 1 {
		t.Errorf("backlinks = %v", bl)
	}
	scans, _ := db.ScansOn("2026-03-14")
	if len(scans) != 1 {
		t.Errorf("scans = %+v", scans)
	}
	if stale, _ := db.ScansOn("2026-01-02"); len(stale) != 0 {
		t.Errorf("scans of a removed note survived sync: %+v", stale)
	}
}
