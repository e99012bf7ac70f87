package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/vaultpath"
)

// Link types.
const (
	LinkInline = "inline"
	LinkEntity = "entity"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link is an outgoing reference from a note. Target is a vault path
// without the .md extension.
type Link struct {
	Target string
	Type   string
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// ScanRow is one indexed scan record.
type ScanRow struct {
	NotePath           string                `json:"note_path"`
	ScanID             string                `json:"scan_id"`
	BatchID            string                `json:"batch_id"`
	CapturedAt         time.Time             `json:"captured_at"`
	ImagePath          string                `json:"image_path"`
	ProcessedImagePath string                `json:"processed_image_path,omitempty"`
	ProcessingMode     models.ProcessingMode `json:"processing_mode"`
	Folder             string                `json:"folder"`
	WrittenAt          time.Time             `json:"written_at"`
}

// LinkTarget normalizes a wikilink target or note path for storage.
func LinkTarget(s string) string {
	return vaultpath.WikiTarget(strings.TrimSpace(strings.ReplaceAll(s, "\\", "/")))
}

// UpsertNote inserts or replaces a note, its FTS entry, and links within a transaction.
func (db *DB) UpsertNote(n NoteRow, body string, links []Link) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if n.Tags == nil {
		n.Tags = []string{}
	}
	tagsJSON, _ := json.Marshal(n.Tags)

	_, err = tx.Exec(`
		INSERT INTO notes (path, title, checksum, tags, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, n.Path, n.Title, n.Checksum, string(tagsJSON), body, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// No-op without the sqlite_fts5 build tag.
	if err := ftsUpsert(tx, n.Path, n.Title, body, n.Tags); err != nil {
		return err
	}

	source := LinkTarget(n.Path)
	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, source); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target, type) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			typ := l.Type
			if typ == "" {
				typ = LinkInline
			}
			if _, err := stmt.Exec(source, LinkTarget(l.Target), typ); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteNote removes a note, its FTS entry, and outgoing links.
func (db *DB) DeleteNote(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, LinkTarget(path)); err != nil {
		return fmt.Errorf("index: delete links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a note, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// GetNote returns the indexed row for path.
func (db *DB) GetNote(path string) (*NoteRow, error) {
	var (
		n    NoteRow
		tags string
	)
	err := db.conn.QueryRow(`SELECT path, title, checksum, tags, updated_at FROM notes WHERE path = ?`, path).
		Scan(&n.Path, &n.Title, &n.Checksum, &tags, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		n.Tags = []string{}
	}
	return &n, nil
}

// AllChecksums returns path → checksum for every indexed note.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns all note paths that link to target, which may be given
// with or without the .md extension.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT n.path
		FROM links l
		JOIN notes n ON l.source = substr(n.path, 1, length(n.path) - 3)
		WHERE l.target = ?
		ORDER BY n.path
	`, LinkTarget(target))
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordScans replaces the scan rows of a daily note with the records of
// its sidecar.
func (db *DB) RecordScans(notePath string, scans []models.ScanRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM scans WHERE note_path = ?`, notePath); err != nil {
		return fmt.Errorf("index: clear scans: %w", err)
	}
	if len(scans) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO scans (note_path, seq, scan_id, batch_id, captured_at, capture_date,
			                   image_path, processed_image_path, processing_mode, folder, written_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("index: prepare scan insert: %w", err)
		}
		defer stmt.Close()
		for i, s := range scans {
			if _, err := stmt.Exec(notePath, i, s.ScanID, s.BatchID,
				s.CapturedAt.UTC().Format(time.RFC3339Nano), vaultpath.DateStamp(s.CapturedAt),
				s.ImagePath, s.ProcessedImagePath, string(s.ProcessingMode), s.Classification.Folder,
				s.WrittenAt.UTC().Format(time.RFC3339Nano)); err != nil {
				return fmt.Errorf("index: insert scan: %w", err)
			}
		}
	}
	if err := ftsProvenance(tx, notePath); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteScans removes the scan rows of a daily note.
func (db *DB) DeleteScans(notePath string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM scans WHERE note_path = ?`, notePath); err != nil {
		return fmt.Errorf("index: delete scans: %w", err)
	}
	if err := ftsProvenance(tx, notePath); err != nil {
		return err
	}
	return tx.Commit()
}

// scanResults drains search rows of (path, title, snippet). It closes rows.
func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ScansOn returns the scans captured on a UTC calendar date (yyyy-MM-dd)
// in capture order.
func (db *DB) ScansOn(date string) ([]ScanRow, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("index: %w: bad date %q", apperr.ErrCaptureTime, date)
	}
	rows, err := db.conn.Query(`
		SELECT note_path, scan_id, batch_id, captured_at, image_path, processed_image_path,
		       processing_mode, folder, written_at
		FROM scans
		WHERE capture_date = ?
		ORDER BY captured_at, note_path, seq
	`, date)
	if err != nil {
		return nil, fmt.Errorf("index: scans on %s: %w", date, err)
	}
	defer rows.Close()

	out := []ScanRow{}
	for rows.Next() {
		var (
			r                 ScanRow
			captured, written string
			mode              string
		)
		if err := rows.Scan(&r.NotePath, &r.ScanID, &r.BatchID, &captured, &r.ImagePath,
			&r.ProcessedImagePath, &mode, &r.Folder, &written); err != nil {
			return nil, err
		}
		r.CapturedAt, _ = time.Parse(time.RFC3339Nano, captured)
		r.WrittenAt, _ = time.Parse(time.RFC3339Nano, written)
		r.ProcessingMode = models.ProcessingMode(mode)
		out = append(out, r)
	}
	return out, rows.Err()
}
