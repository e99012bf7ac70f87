// Package writer turns one structured transcription into the file
// operations that record it in the vault: the daily note section, its
// provenance sidecar, and stubs for newly referenced entities.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/storage"
	"github.com/starford/scanvault/internal/vaultpath"
)

// Applier executes a batch of file operations.
type Applier interface {
	Apply(ctx context.Context, ops []models.FileOperation) (*models.ApplySummary, error)
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the writer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithClock overrides the clock used for sidecar timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// Writer plans vault writes for a scan and hands them to an Applier. It
// reads the vault to decide between create and update but never writes.
type Writer struct {
	store   storage.Provider
	applier Applier
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Writer reading from store and writing through applier.
func New(store storage.Provider, applier Applier, opts ...Option) *Writer {
	w := &Writer{store: store, applier: applier, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("component", "writer")
	return w
}

// Plan is the batch computed for one input.
type Plan struct {
	NotePath     string
	MetadataPath string
	EntityPaths  []string
	Operations   []models.FileOperation
}

type entityLink struct {
	name string
	path string
}

// Apply records in and returns what was written. Failures from the
// Applier are returned unchanged.
func (w *Writer) Apply(ctx context.Context, in models.WriterInput) (*models.WriterResult, error) {
	plan, err := w.Plan(in)
	if err != nil {
		return nil, err
	}
	summary, err := w.applier.Apply(ctx, plan.Operations)
	if err != nil {
		return nil, err
	}

	w.logger.Info("scan recorded",
		slog.String("scan_id", in.ScanID),
		slog.String("note", plan.NotePath),
		slog.Int("entities", len(plan.EntityPaths)))
	return &models.WriterResult{
		NotePath:     plan.NotePath,
		MetadataPath: plan.MetadataPath,
		EntityPaths:  plan.EntityPaths,
		Summary:      *summary,
	}, nil
}

// Plan computes the operations for in against the current vault state.
func (w *Writer) Plan(in models.WriterInput) (*Plan, error) {
	notePath, err := vaultpath.DailyNotePath(in.CapturedAt)
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}
	plan := &Plan{
		NotePath:     notePath,
		MetadataPath: vaultpath.MetadataPath(notePath),
		EntityPaths:  []string{},
	}

	links := w.resolveLinks(in.Structure.Meta.Links)

	noteOp, err := w.noteOperation(notePath, in, links)
	if err != nil {
		return nil, err
	}
	sidecarOp, err := w.sidecarOperation(plan.MetadataPath, notePath, in)
	if err != nil {
		return nil, err
	}
	plan.Operations = append(plan.Operations, noteOp, sidecarOp)

	for _, l := range links {
		exists, err := w.store.Exists(l.path)
		if err != nil {
			return nil, fmt.Errorf("writer: check entity %s: %w", l.path, err)
		}
		if exists {
			continue
		}
		stub, err := renderEntityStub(l.name, notePath, in.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("writer: render entity %s: %w", l.path, err)
		}
		plan.Operations = append(plan.Operations, models.CreateOp(l.path, stub).WithMeta(models.NoteMeta{
			Title: l.name,
			Links: []string{vaultpath.WikiTarget(notePath)},
		}))
		plan.EntityPaths = append(plan.EntityPaths, l.path)
	}
	return plan, nil
}

// resolveLinks maps link names to entity paths, keeping the first name for
// each distinct path.
func (w *Writer) resolveLinks(names []string) []entityLink {
	seen := make(map[string]struct{}, len(names))
	out := make([]entityLink, 0, len(names))
	for _, name := range names {
		name = singleLine(name)
		p, err := vaultpath.EntityPath(name)
		if err != nil {
			w.logger.Warn("skipping link", slog.String("link", name), slog.String("error", err.Error()))
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, entityLink{name: name, path: p})
	}
	return out
}

func (w *Writer) noteOperation(notePath string, in models.WriterInput, links []entityLink) (models.FileOperation, error) {
	section := renderSection(in, links)
	meta := in.Structure.Meta
	meta.Links = make([]string, len(links))
	for i, l := range links {
		meta.Links[i] = vaultpath.WikiTarget(l.path)
	}

	existing, err := w.store.Read(notePath)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		header, err := renderDailyHeader(vaultpath.DateStamp(in.CapturedAt))
		if err != nil {
			return models.FileOperation{}, fmt.Errorf("writer: render header: %w", err)
		}
		return models.CreateOp(notePath, header+"\n"+section).WithMeta(meta), nil
	case err != nil:
		return models.FileOperation{}, fmt.Errorf("writer: read note: %w", err)
	}

	content := string(existing)
	if strings.Contains(content, section) {
		w.logger.Debug("section already present", slog.String("scan_id", in.ScanID), slog.String("note", notePath))
		return models.UpdateOp(notePath, content).WithMeta(meta), nil
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return models.UpdateOp(notePath, content+"\n"+section).WithMeta(meta), nil
}

func (w *Writer) sidecarOperation(metaPath, notePath string, in models.WriterInput) (models.FileOperation, error) {
	sidecar := models.Sidecar{Version: models.SidecarVersion, NotePath: notePath}
	action := models.ActionCreate

	existing, err := w.store.Read(metaPath)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		return models.FileOperation{}, fmt.Errorf("writer: read sidecar: %w", err)
	default:
		if err := json.Unmarshal(existing, &sidecar); err != nil {
			return models.FileOperation{}, fmt.Errorf("writer: decode sidecar %s: %w", metaPath, err)
		}
		action = models.ActionUpdate
		sidecar.Version = models.SidecarVersion
		sidecar.NotePath = notePath
	}

	record := w.scanRecord(in)
	replaced := false
	for i, r := range sidecar.Scans {
		if r.SameScan(record) {
			replaced = true
			record.WrittenAt = r.WrittenAt
			sidecar.Scans[i] = record
			break
		}
	}
	if !replaced {
		sidecar.Scans = append(sidecar.Scans, record)
	}

	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return models.FileOperation{}, fmt.Errorf("writer: encode sidecar: %w", err)
	}
	content := string(data) + "\n"
	return models.FileOperation{Action: action, Path: metaPath, Content: &content}, nil
}

func (w *Writer) scanRecord(in models.WriterInput) models.ScanRecord {
	mode := in.Mode
	if mode == "" {
		mode = models.ModeBalanced
	}
	return models.ScanRecord{
		ScanID:             in.ScanID,
		BatchID:            in.BatchID,
		CapturedAt:         in.CapturedAt.UTC(),
		ImagePath:          in.ImagePath,
		ProcessedImagePath: in.ProcessedImagePath,
		ProcessingMode:     mode,
		Classification:     in.Structure.Classification,
		TranscriptJSON:     in.TranscriptJSON,
		StructureJSON:      in.StructureJSON,
		WrittenAt:          w.now().UTC(),
	}
}
