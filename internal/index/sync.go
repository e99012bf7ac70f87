package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/checksum"
	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/parser"
	"github.com/starford/scanvault/internal/storage"
	"github.com/starford/scanvault/internal/vaultpath"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed notes are parsed and upserted
//   - notes removed from disk are deleted from the index
//   - daily note sidecars are reloaded into the scans table
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if strings.HasPrefix(m.Path, vaultpath.FolderDaily+"/") {
			if err := syncSidecar(db, store, m.Path); err != nil {
				logger.Warn("sync: sidecar failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			}
		}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, m.Path, data, nil); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteNote(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if err := db.DeleteScans(p); err != nil {
			logger.Warn("sync: delete scans failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("path", p))
	}

	return nil
}

// syncSidecar reloads the scans of a daily note from its sidecar.
func syncSidecar(db *DB, store storage.Provider, notePath string) error {
	data, err := store.Read(vaultpath.MetadataPath(notePath))
	if errors.Is(err, apperr.ErrNotFound) {
		return db.DeleteScans(notePath)
	}
	if err != nil {
		return err
	}
	return indexSidecar(db, notePath, data)
}

// indexSidecar decodes a sidecar and records its scans under notePath.
func indexSidecar(db *DB, notePath string, data []byte) error {
	var sc models.Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("index: decode sidecar for %s: %w", notePath, err)
	}
	return db.RecordScans(notePath, sc.Scans)
}

// indexFile parses data and upserts it into the DB. Entity links supplied
// by the writer are stored next to the inline wikilinks.
func indexFile(db *DB, path string, data []byte, entities []string) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}

	links := make([]Link, 0, len(res.Links)+len(entities))
	for _, target := range res.Links {
		links = append(links, Link{Target: target, Type: LinkInline})
	}
	for _, target := range entities {
		links = append(links, Link{Target: target, Type: LinkEntity})
	}

	row := NoteRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  checksum.Sum(data),
		Tags:      res.Tags,
		UpdatedAt: time.Now().UTC(),
	}
	return db.UpsertNote(row, res.Body, links)
}
