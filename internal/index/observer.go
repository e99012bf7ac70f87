package index

import (
	"context"
	"log/slog"
	"strings"

	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/vaultpath"
)

// Applied keeps the index in step with a batch that reached disk. Markdown
// writes are parsed and upserted, sidecar writes reload the scans table,
// and deletes drop the matching rows. Failures are logged, never returned:
// the vault stays the source of truth and Sync repairs any drift.
func (db *DB) Applied(_ context.Context, ops []models.FileOperation) {
	for _, op := range ops {
		if err := db.applyOne(op); err != nil {
			db.logger.Warn("index update failed",
				slog.String("op", op.String()),
				slog.String("error", err.Error()))
		}
	}
}

func (db *DB) applyOne(op models.FileOperation) error {
	switch {
	case vaultpath.IsMetadataPath(op.Path):
		notePath := strings.TrimSuffix(op.Path, ".meta.json") + ".md"
		if op.Action == models.ActionDelete {
			return db.DeleteScans(notePath)
		}
		return indexSidecar(db, notePath, []byte(op.Body()))

	case strings.HasSuffix(op.Path, ".md"):
		if op.Action == models.ActionDelete {
			return db.DeleteNote(op.Path)
		}
		var entities []string
		if op.Meta != nil {
			entities = op.Meta.Links
		}
		return indexFile(db, op.Path, []byte(op.Body()), entities)
	}
	return nil
}
