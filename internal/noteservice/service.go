// Package noteservice is the single entry point the HTTP API and the MCP
// server share: it ingests scans, applies raw operations, mirrors the vault,
// and answers read queries from storage and the index.
package noteservice

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/apply"
	"github.com/starford/scanvault/internal/checksum"
	"github.com/starford/scanvault/internal/index"
	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/parser"
	"github.com/starford/scanvault/internal/pipeline"
	"github.com/starford/scanvault/internal/storage"
	"github.com/starford/scanvault/internal/syncer"
	"github.com/starford/scanvault/internal/vaultpath"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Links       []string       `json:"links"`
	ScanIDs     []string       `json:"scan_ids"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Backlinks   []string       `json:"backlinks"`
}

// SyncResult reports one mirror run.
type SyncResult struct {
	Destination string        `json:"destination"`
	Stats       *syncer.Stats `json:"stats"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// SyncHook is called after every successful mirror run.
type SyncHook func(res *SyncResult)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithProcessingMode sets the mode used when a scan request names none.
func WithProcessingMode(mode models.ProcessingMode) Option {
	return func(s *Service) {
		s.mode = mode
	}
}

// WithMirror enables Sync with dest as the default destination.
func WithMirror(sy *syncer.Syncer, dest string) Option {
	return func(s *Service) {
		s.syncer = sy
		s.mirror = dest
	}
}

// WithSyncHook registers a callback run after each mirror run.
func WithSyncHook(hook SyncHook) Option {
	return func(s *Service) {
		s.onSync = hook
	}
}

// Service coordinates the write pipeline with storage and index reads.
type Service struct {
	store    storage.Provider
	db       index.NoteIndex
	applier  *apply.Service
	pipeline *pipeline.Pipeline
	syncer   *syncer.Syncer
	mirror   string
	mode     models.ProcessingMode
	onSync   SyncHook
	md       goldmark.Markdown
	logger   *slog.Logger
}

// NewService creates a new note service.
func NewService(store storage.Provider, db index.NoteIndex, applier *apply.Service, p *pipeline.Pipeline, opts ...Option) *Service {
	s := &Service{
		store:    store,
		db:       db,
		applier:  applier,
		pipeline: p,
		mode:     models.ModeBalanced,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithXHTML()),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Ingest decodes one scan's model responses and records it in the vault.
// An empty mode falls back to the configured processing mode.
func (s *Service) Ingest(ctx context.Context, req pipeline.Request, mode string) (*models.WriterResult, error) {
	m := s.mode
	if mode != "" {
		parsed, err := models.ParseProcessingMode(mode)
		if err != nil {
			return nil, fmt.Errorf("noteservice: %w: %w", apperr.ErrInvalidOperation, err)
		}
		m = parsed
	}
	return s.pipeline.Process(ctx, req, m)
}

// ApplyOperations executes a caller-supplied batch of file operations.
func (s *Service) ApplyOperations(ctx context.Context, ops []models.FileOperation) (*models.ApplySummary, error) {
	return s.applier.Apply(ctx, ops)
}

// Sync mirrors the vault into dest, or into the configured mirror when
// dest is empty.
func (s *Service) Sync(ctx context.Context, dest string) (*SyncResult, error) {
	if s.syncer == nil {
		return nil, fmt.Errorf("noteservice: %w: mirror is not configured", apperr.ErrInvalidOperation)
	}
	if dest == "" {
		dest = s.mirror
	}
	if dest == "" {
		return nil, fmt.Errorf("noteservice: %w: destination is required", apperr.ErrInvalidOperation)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stats, err := s.syncer.SyncVault(dest)
	if err != nil {
		return nil, err
	}
	res := &SyncResult{Destination: dest, Stats: stats, FinishedAt: time.Now().UTC()}
	if s.onSync != nil {
		s.onSync(res)
	}
	return res, nil
}

// GetNote reads a note from storage, parses it, and enriches it with backlinks.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	clean, err := vaultpath.Normalize(path)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(clean)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(clean, data)
}

// RenderHTML renders the body of a note, without frontmatter, as HTML.
func (s *Service) RenderHTML(_ context.Context, path string) ([]byte, error) {
	clean, err := vaultpath.Normalize(path)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(clean)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(res.Body), &buf); err != nil {
		return nil, fmt.Errorf("noteservice: render %s: %w", clean, err)
	}
	return buf.Bytes(), nil
}

// ListNotes lists the notes under folder, or the whole vault when folder
// is empty.
func (s *Service) ListNotes(_ context.Context, folder string) ([]models.NoteMetadata, error) {
	if folder != "" {
		clean, err := vaultpath.Normalize(folder)
		if err != nil {
			return nil, err
		}
		folder = clean
	}
	metas, err := s.store.List(folder)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(metas), nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	results, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(results), nil
}

// Backlinks returns all note paths that link to the given target.
func (s *Service) Backlinks(_ context.Context, target string) ([]string, error) {
	bl, err := s.db.Backlinks(target)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(bl), nil
}

// ScansOn lists the scans recorded for a YYYY-MM-DD capture date.
func (s *Service) ScansOn(_ context.Context, date string) ([]index.ScanRow, error) {
	rows, err := s.db.ScansOn(date)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(rows), nil
}

// buildNoteDetail constructs a NoteDetail from raw data without re-reading the file.
func (s *Service) buildNoteDetail(path string, data []byte) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(path)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{
		Path:        path,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Links:       nonNilSlice(res.Links),
		ScanIDs:     nonNilSlice(res.ScanIDs),
		Frontmatter: res.Frontmatter,
		Backlinks:   nonNilSlice(bl),
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
