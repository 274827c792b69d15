package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/osservatorio-istat/osservatorio/internal/apperrors"
	"github.com/osservatorio-istat/osservatorio/internal/logging"
)

// errorResponse is the JSON body every WriteError call emits.
type errorResponse struct {
	Error string `json:"error"`
}

// WriteError classifies err against the apperrors taxonomy of §7 and
// writes the matching status code and a JSON error body. Every handler
// in this package funnels its failures through here, mirroring the
// teacher's single central error-to-response mapping function.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrUpstream):
		status = http.StatusBadGateway
	case errors.Is(err, apperrors.ErrMalformedUpstream):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrAuth):
		status = http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrStorage):
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).Str("path", r.URL.Path).Str("method", r.Method).Msg("request failed")
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("write json response failed")
	}
}
