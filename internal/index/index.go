package index

import (
	"github.com/starford/scanvault/internal/apply"
	"github.com/starford/scanvault/internal/models"
)

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string, links []Link) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	GetNote(path string) (*NoteRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	AllChecksums() (map[string]string, error)
	RecordScans(notePath string, scans []models.ScanRecord) error
	ScansOn(date string) ([]ScanRow, error)
	Close() error
}

// Verify *DB satisfies NoteIndex and the apply observer at compile time.
var (
	_ NoteIndex      = (*DB)(nil)
	_ apply.Observer = (*DB)(nil)
)
