package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"budgeteer/internal/core"
	"budgeteer/internal/ledger"
	"budgeteer/internal/log"
	"budgeteer/internal/verdict"
)

const maxBodyBytes = 64 << 10

// persistenceWarning is attached to 2xx bodies when the change was applied
// but could not be saved.
const persistenceWarning = "change applied but not saved; it will be lost on restart"

var errBadJSON = errors.New("request body must be a JSON object")

// numberOrString accepts 12.5 and "12.5" alike.
type numberOrString string

func (n *numberOrString) UnmarshalJSON(b []byte) error {
	switch {
	case string(b) == "null":
		*n = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = numberOrString(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*n = numberOrString(num)
	return nil
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBadJSON
		}
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeResult writes body with status, adding the persistence warning when
// err says the change was kept only in memory. Any other error is written
// as an error response.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, status int, body map[string]any, err error, op string) {
	if err != nil && !errors.Is(err, ledger.ErrPersistence) {
		s.writeError(w, r, err, op)
		return
	}
	if err != nil {
		s.events.LogError(r.Context(), "Ledger change not persisted", err, op, log.ErrorTypePersistence)
		body["warning"] = persistenceWarning
	}
	writeJSON(w, status, body)
}

// writeError maps domain errors onto status codes. Unexpected errors are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": verr.Err.Error(),
			"field": verr.Field,
		})
	case errors.Is(err, errBadJSON):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, verdict.ErrNoLimit), errors.Is(err, verdict.ErrNotClosed):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "request cancelled"})
	default:
		s.events.LogError(r.Context(), "Request failed", err, op, log.ErrorTypeInternal)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

// sanitizeInput trims and drops control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
