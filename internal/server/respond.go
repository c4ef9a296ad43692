package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/voyagen/iptvdeck/internal/apperr"
	xlog "github.com/voyagen/iptvdeck/internal/log"
)

// maxBodyBytes bounds JSON request bodies. Pasted playlists can be large.
const maxBodyBytes = 32 << 20

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status  int      `json:"status"`
	Error   string   `json:"error"`
	Detail  string   `json:"detail,omitempty"`
	Details []string `json:"details,omitempty"`
}

// parseID extracts a path parameter by name and parses it as a positive int64.
func parseID(r *http.Request, param string) (int64, error) {
	v := chi.URLParam(r, param)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s: %s", param, v)
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body exceeds %d bytes", tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid JSON: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := xlog.WithComponent("server")
		logger.Warn().Err(err).Msg("writeJSON")
	}
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	body := APIError{Status: status, Error: http.StatusText(status), Detail: err.Error()}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) && len(ve.Details) > 0 {
		body.Detail = ve.Msg
		body.Details = ve.Details
	}
	writeJSON(w, status, body)
}

// fail maps err through apperr.HTTPStatus and writes the envelope.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		logger := xlog.FromContext(r.Context(), xlog.WithComponent("server"))
		logger.Error().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	}
	if status == http.StatusInternalServerError {
		writeErr(w, status, fmt.Errorf("internal error"))
		return
	}
	writeErr(w, status, err)
}
