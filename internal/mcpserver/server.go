// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes scanvault tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/apply"
	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/noteservice"
	"github.com/starford/scanvault/internal/pipeline"
)

const noteFormatURI = "scanvault://note-format"

// Server wraps the MCP server with scanvault tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all scanvault tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Scanvault",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("ingest_scan",
		mcp.WithDescription("Record one scanned page in the vault from the raw transcription and "+
			"structuring model responses. Appends a section to the daily note for the capture "+
			"date, updates its sidecar and creates stubs for new entity links."),
		mcp.WithString("captured_at", mcp.Required(), mcp.Description("Capture time, RFC 3339 (e.g. 2026-03-14T09:26:00Z)")),
		mcp.WithString("transcript_response", mcp.Required(), mcp.Description("Raw text returned by the transcription model")),
		mcp.WithString("structure_response", mcp.Required(), mcp.Description("Raw text returned by the structuring model")),
		mcp.WithString("scan_id", mcp.Description("Scan identifier; generated when empty")),
		mcp.WithString("batch_id", mcp.Description("Batch identifier; generated when empty")),
		mcp.WithString("image_path", mcp.Description("Path of the original image")),
		mcp.WithString("processed_image_path", mcp.Description("Path of the preprocessed image")),
		mcp.WithString("mode", mcp.Description("Processing mode override"), mcp.Enum(
			string(models.ModeFast), string(models.ModeBalanced), string(models.ModeAccurate))),
	), s.ingestScan)

	s.mcp.AddTool(mcp.NewTool("apply_operations",
		mcp.WithDescription("Apply an ordered batch of file operations to the vault. "+
			"Read the layout first via get_note_contract or the "+noteFormatURI+" resource."),
		mcp.WithString("operations", mcp.Required(),
			mcp.Description(`JSON array of {"action": "create|update|delete", "path": "...", "content": "..."}`)),
	), s.applyOperations)

	s.mcp.AddTool(mcp.NewTool("sync_vault",
		mcp.WithDescription("Mirror the vault into a destination folder. Files only in the destination are kept."),
		mcp.WithString("destination", mcp.Description("Destination folder; defaults to the configured mirror")),
	), s.syncVault)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. 01_daily/2026-03-14.md)")),
		mcp.WithString("format", mcp.Description("markdown (default) or html"), mcp.Enum("markdown", "html")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through notes content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default: 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all notes or notes in a specific folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_scans",
		mcp.WithDescription("List the scans captured on a date with their provenance."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Capture date, YYYY-MM-DD (UTC)")),
	), s.listScans)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the vault layout: folders, daily note sections, sidecars and entity notes."),
	), s.getNoteContract)

	// Resource: vault layout contract.
	s.mcp.AddResource(
		mcp.NewResource(noteFormatURI, "Vault Layout",
			mcp.WithResourceDescription("How scanvault lays out daily notes, sidecars and entity notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError reports err with its stable kind so callers can branch on it.
func toolError(err error) *mcp.CallToolResult {
	msg := fmt.Sprintf("%s: %s", apperr.Kind(err), err.Error())
	var be *apply.BatchError
	if errors.As(err, &be) && len(be.Applied) > 0 {
		msg += "\napplied: " + strings.Join(be.AppliedPaths(), ", ")
	}
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) ingestScan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	capturedAt, err := req.RequireString("captured_at")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	transcript, err := req.RequireString("transcript_response")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	structure, err := req.RequireString("structure_response")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Ingest(ctx, pipeline.Request{
		ScanID:             req.GetString("scan_id", ""),
		BatchID:            req.GetString("batch_id", ""),
		CapturedAt:         capturedAt,
		ImagePath:          req.GetString("image_path", ""),
		ProcessedImagePath: req.GetString("processed_image_path", ""),
		TranscriptResponse: transcript,
		StructureResponse:  structure,
	}, req.GetString("mode", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

func (s *Server) applyOperations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("operations")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var ops []models.FileOperation
	if err := json.Unmarshal([]byte(raw), &ops); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: operations must be a JSON array: %s",
			apperr.KindInvalidOperation, err.Error())), nil
	}
	sum, err := s.svc.ApplyOperations(ctx, ops)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(sum)
}

func (s *Server) syncVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Sync(ctx, req.GetString("destination", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetString("format", "") == "html" {
		out, err := s.svc.RenderHTML(ctx, path)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
	note, err := s.svc.GetNote(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results)
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.svc.ListNotes(ctx, req.GetString("folder", ""))
	if err != nil {
		return toolError(err), nil
	}
	paths := make([]string, len(metas))
	for i, m := range metas {
		paths[i] = m.Path
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) listScans(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scans, err := s.svc.ScansOn(ctx, date)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(scans)
}

func (s *Server) getNoteContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      noteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
