//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// vault_fts holds one search document per note. The provenance column
// carries the scan and batch IDs and classification folders recorded for
// the note, so a query for a scan ID or folder finds the daily note.
func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vault_fts USING fts5(
			path UNINDEXED,
			title,
			body,
			tags,
			provenance,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, path, title, body string, tags []string) error {
	prov, err := scanProvenance(tx, path)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM vault_fts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: clear search document: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO vault_fts (path, title, body, tags, provenance) VALUES (?, ?, ?, ?, ?)`,
		path, title, body, strings.Join(tags, " "), prov)
	if err != nil {
		return fmt.Errorf("index: upsert search document: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) error {
	if _, err := tx.Exec(`DELETE FROM vault_fts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete search document: %w", err)
	}
	return nil
}

// ftsProvenance refreshes the provenance column after the scan rows of
// notePath change. A note that is not indexed yet picks it up on upsert.
func ftsProvenance(tx *sql.Tx, notePath string) error {
	prov, err := scanProvenance(tx, notePath)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE vault_fts SET provenance = ? WHERE path = ?`, prov, notePath); err != nil {
		return fmt.Errorf("index: update provenance: %w", err)
	}
	return nil
}

func scanProvenance(tx *sql.Tx, notePath string) (string, error) {
	rows, err := tx.Query(`SELECT scan_id, batch_id, folder FROM scans WHERE note_path = ? ORDER BY seq`, notePath)
	if err != nil {
		return "", fmt.Errorf("index: read provenance: %w", err)
	}
	defer rows.Close()

	var terms []string
	seen := make(map[string]bool)
	for rows.Next() {
		var scanID, batchID, folder string
		if err := rows.Scan(&scanID, &batchID, &folder); err != nil {
			return "", err
		}
		for _, term := range []string{scanID, batchID, folder} {
			if term != "" && !seen[term] {
				seen[term] = true
				terms = append(terms, term)
			}
		}
	}
	return strings.Join(terms, " "), rows.Err()
}

// Search runs an FTS5 query over note text and scan provenance. Snippets
// come from the body column.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT path,
		       title,
		       snippet(vault_fts, 2, '<b>', '</b>', '...', 32)
		FROM vault_fts
		WHERE vault_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}
