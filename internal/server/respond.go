package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/swamp-dev/commanddeck/internal/store"
)

const maxBodyBytes = 1 << 20

// envelope is a JSON response body. Success bodies carry ok=true.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, status int, body envelope) {
	if body == nil {
		body = envelope{}
	}
	body["ok"] = true
	writeJSON(w, status, body)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{"ok": false, "error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrImmutable):
		return http.StatusMethodNotAllowed
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorStatus(w, r, statusFor(err), err)
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeFailure(w, status, "internal server error")
		return
	}
	writeFailure(w, status, err.Error())
}

// decodeBody reads a JSON object into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return &store.ValidationError{Message: "request body too large"}
		}
		return &store.ValidationError{Message: "invalid JSON body"}
	}
	return nil
}

// intParam parses a query parameter, returning 0 when it is absent or not a
// number so callers fall back to their default.
func intParam(r *http.Request, name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return 0
	}
	return n
}

func boolParam(r *http.Request, name string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name))) {
	case "1", "true", "yes":
		return true
	}
	return false
}
