//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

// Without FTS5 the notes and scans tables are searched directly, so there
// is no separate search document to maintain.
func initFTS(_ *sql.DB) error { return nil }

func ftsUpsert(_ *sql.Tx, _, _, _ string, _ []string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) error { return nil }

func ftsProvenance(_ *sql.Tx, _ string) error { return nil }

// Search matches query as a substring of note title, body, and tags, or of
// the scan ID, batch ID, or classification folder of a scan recorded for
// the note.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT path, title, substr(body, 1, 200)
		FROM notes
		WHERE title LIKE ? OR body LIKE ? OR tags LIKE ?
		   OR path IN (
		       SELECT note_path FROM scans
		       WHERE scan_id LIKE ? OR batch_id LIKE ? OR folder LIKE ?
		   )
		ORDER BY updated_at DESC, path
		LIMIT ?
	`, like, like, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}
