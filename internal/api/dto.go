package api

import (
	"github.com/starford/scanvault/internal/index"
	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/noteservice"
	"github.com/starford/scanvault/internal/pipeline"
)

// ScanRequest is the request body for ingesting one scan. Mode overrides
// the configured processing mode.
type ScanRequest struct {
	pipeline.Request
	Mode string `json:"mode,omitempty" example:"balanced" enums:"fast,balanced,accurate"`
}

// OperationsRequest is the request body for applying a raw batch.
type OperationsRequest struct {
	Operations []models.FileOperation `json:"operations" validate:"required"`
}

// SyncRequest is the optional request body for a mirror run.
type SyncRequest struct {
	Destination string `json:"destination,omitempty" example:"/mnt/backup/vault"`
}

// WriterResult is the response to an ingested scan (aliased from the domain layer).
type WriterResult = models.WriterResult

// ApplySummary is the response to an applied batch (aliased from the domain layer).
type ApplySummary = models.ApplySummary

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// SyncResult is the response to a mirror run (aliased from the domain layer).
type SyncResult = noteservice.SyncResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// BacklinksResponse wraps the notes linking to a target.
type BacklinksResponse struct {
	Target    string   `json:"target" example:"10_projects/Atlas.md" validate:"required"`
	Backlinks []string `json:"backlinks" validate:"required"`
}

// ScansResponse wraps the scans captured on one date.
type ScansResponse struct {
	Date  string          `json:"date" example:"2026-03-14" validate:"required"`
	Scans []index.ScanRow `json:"scans" validate:"required"`
}
