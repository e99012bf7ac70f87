// Package pipeline turns raw transcription and structuring responses into a
// recorded vault entry.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/extract"
	"github.com/starford/scanvault/internal/models"
)

// Recorder writes a decoded scan to the vault.
type Recorder interface {
	Apply(ctx context.Context, in models.WriterInput) (*models.WriterResult, error)
}

// Request is one scan's raw model output plus its capture metadata.
// CapturedAt is RFC 3339; an empty ScanID or BatchID is generated.
type Request struct {
	ScanID             string `json:"scan_id"`
	BatchID            string `json:"batch_id"`
	CapturedAt         string `json:"captured_at"`
	ImagePath          string `json:"image_path"`
	ProcessedImagePath string `json:"processed_image_path,omitempty"`
	TranscriptResponse string `json:"transcript_response"`
	StructureResponse  string `json:"structure_response"`
}

// Pipeline decodes requests and records them.
type Pipeline struct {
	recorder Recorder
	logger   *slog.Logger
}

// New creates a Pipeline recording through r.
func New(r Recorder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{recorder: r, logger: logger.With("component", "pipeline")}
}

// Process decodes req and records it with the given processing mode.
func (p *Pipeline) Process(ctx context.Context, req Request, mode models.ProcessingMode) (*models.WriterResult, error) {
	in, err := Decode(req, mode)
	if err != nil {
		p.logger.Warn("scan rejected",
			slog.String("scan_id", req.ScanID),
			slog.String("kind", apperr.Kind(err)),
			slog.String("error", err.Error()))
		return nil, err
	}
	res, err := p.recorder.Apply(ctx, in)
	if err != nil {
		return nil, err
	}
	p.logger.Info("scan processed",
		slog.String("scan_id", in.ScanID),
		slog.String("batch_id", in.BatchID),
		slog.String("mode", string(in.Mode)),
		slog.String("note", res.NotePath))
	return res, nil
}

// Decode validates req and builds the writer input without touching the
// vault.
func Decode(req Request, mode models.ProcessingMode) (models.WriterInput, error) {
	capturedAt, err := ParseCaptureTime(req.CapturedAt)
	if err != nil {
		return models.WriterInput{}, err
	}

	transcript, transcriptJSON, err := extract.Decode[models.TranscriptionPayload](req.TranscriptResponse)
	if err != nil {
		return models.WriterInput{}, fmt.Errorf("pipeline: transcript: %w", err)
	}
	structure, structureJSON, err := extract.Decode[models.StructurePayload](req.StructureResponse)
	if err != nil {
		return models.WriterInput{}, fmt.Errorf("pipeline: structure: %w", err)
	}

	if mode == "" {
		mode = models.ModeBalanced
	}
	return models.WriterInput{
		ScanID:             orNewID(req.ScanID),
		BatchID:            orNewID(req.BatchID),
		CapturedAt:         capturedAt,
		ImagePath:          req.ImagePath,
		ProcessedImagePath: req.ProcessedImagePath,
		Transcript:         transcript,
		TranscriptJSON:     transcriptJSON,
		Structure:          structure,
		StructureJSON:      structureJSON,
		Mode:               mode,
	}, nil
}

// ParseCaptureTime parses an RFC 3339 timestamp.
func ParseCaptureTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("pipeline: %w: missing captured_at", apperr.ErrCaptureTime)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("pipeline: %w: %v", apperr.ErrCaptureTime, err)
	}
	return t, nil
}

func orNewID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}
