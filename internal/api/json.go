package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/apply"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error   string   `json:"error" validate:"required"`
	Kind    string   `json:"kind,omitempty" example:"invalid_json"`
	Applied []string `json:"applied,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidOperation, apperr.KindOutsideVault:
		return http.StatusBadRequest
	case apperr.KindInvalidJSON, apperr.KindCaptureTime:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err with its stable kind. Filesystem failures are
// logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, op string, err error) {
	kind := apperr.Kind(err)
	body := errResponse{Error: err.Error(), Kind: kind}

	var be *apply.BatchError
	if errors.As(err, &be) {
		body.Applied = be.AppliedPaths()
	}
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("kind", kind), slog.String("error", err.Error()))
		if body.Applied == nil {
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}
