package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/scanvault/internal/noteservice"
)

const maxBody = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the vault path from the wildcard segment.
// Supports encoded slashes from OpenAPI clients (e.g. 01_daily%2F2026-03-14.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// decodeBody decodes a JSON request body into v. An empty body is allowed
// when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
	return false
}

// IngestScan handles POST /api/scans.
//
//	@Summary		Record one scan's transcription in the vault
//	@Tags			scans
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ScanRequest	true	"Scan and raw model responses"
//	@Success		201		{object}	WriterResult
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/scans [post]
func (h *Handler) IngestScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	res, err := h.svc.Ingest(r.Context(), req.Request, req.Mode)
	if err != nil {
		writeError(w, "ingest scan", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ApplyOperations handles POST /api/operations.
//
//	@Summary		Apply a batch of file operations
//	@Tags			operations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OperationsRequest	true	"Ordered operations"
//	@Success		200		{object}	ApplySummary
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse	"Partial batch; applied lists the paths written"
//	@Security		BearerAuth
//	@Router			/operations [post]
func (h *Handler) ApplyOperations(w http.ResponseWriter, r *http.Request) {
	var req OperationsRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	sum, err := h.svc.ApplyOperations(r.Context(), req.Operations)
	if err != nil {
		writeError(w, "apply operations", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Sync handles POST /api/sync.
//
//	@Summary		Mirror the vault into a destination folder
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SyncRequest	false	"Destination override"
//	@Success		200		{object}	SyncResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	res, err := h.svc.Sync(r.Context(), req.Destination)
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json,html
//	@Param			path	path		string	true	"Note path"
//	@Param			format	query		string	false	"Response format"	Enums(json, html)
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if r.URL.Query().Get("format") == "html" {
		out, err := h.svc.RenderHTML(r.Context(), path)
		if err != nil {
			writeError(w, "render note", err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(out); err != nil {
			slog.Error("write html failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		List notes linking to a path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Target note path"
//	@Success		200		{object}	BacklinksResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	target := notePath(r)
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), target)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Target: target, Backlinks: bl})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// ListScans handles GET /api/scans.
//
//	@Summary		List scans captured on a date
//	@Tags			scans
//	@Produce		json
//	@Param			date	query		string	true	"Capture date (YYYY-MM-DD, UTC)"
//	@Success		200		{object}	ScansResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/scans [get]
func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'date' is required"))
		return
	}
	scans, err := h.svc.ScansOn(r.Context(), date)
	if err != nil {
		writeError(w, "list scans", err)
		return
	}
	writeJSON(w, http.StatusOK, ScansResponse{Date: date, Scans: scans})
}
