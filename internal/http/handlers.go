package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"budgeteer/internal/export"
	"budgeteer/internal/log"
	"budgeteer/internal/services"
	"budgeteer/internal/voice"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := r.Context().Err(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"checks": map[string]any{
			"ledger":              "ok",
			"rate_limit_clients":  s.limiter.ActiveClients(),
			"rate_limit_hits":     s.limiter.Hits(),
			"suspicious_requests": s.detector.SuspiciousCount(),
			"requests_total":      s.tracer.TotalRequests(),
			"sheets_export":       s.exporter != nil,
		},
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.ledger.Dashboard(r.Context(), sanitizeInput(r.URL.Query().Get("q")))
	if err != nil {
		s.writeError(w, r, err, log.OpList)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs := s.ledger.Transactions(sanitizeInput(r.URL.Query().Get("q")))
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
	})
}

type entryBody struct {
	Description string         `json:"description"`
	Amount      numberOrString `json:"amount"`
	Category    string         `json:"category"`
	Type        string         `json:"type"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var body entryBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err, log.OpCreate)
		return
	}

	tx, err := s.ledger.AddEntry(r.Context(), services.EntryRequest{
		Description: sanitizeInput(body.Description),
		Amount:      sanitizeInput(string(body.Amount)),
		Category:    sanitizeInput(body.Category),
		Direction:   sanitizeInput(body.Type),
	})
	if err == nil {
		s.events.LogTransactionCreated(r.Context(), tx.ID, tx.Amount.Cents, tx.Category)
	}
	s.writeResult(w, r, http.StatusCreated, map[string]any{"transaction": tx}, err, log.OpCreate)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid transaction id"})
		return
	}

	err = s.ledger.RemoveEntry(r.Context(), id)
	s.writeResult(w, r, http.StatusOK, map[string]any{"id": id}, err, log.OpDelete)
}

type voiceBody struct {
	Transcript string `json:"transcript"`
	Submit     bool   `json:"submit"`
}

// handleVoice answers 200 with the draft even when no amount was heard, so
// the form can be filled in by hand.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	var body voiceBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err, log.OpVoice)
		return
	}

	res, err := s.ledger.SubmitVoice(r.Context(), sanitizeInput(body.Transcript), body.Submit)
	if errors.Is(err, voice.ErrNoAmountFound) {
		writeJSON(w, http.StatusOK, map[string]any{
			"draft":   res.Draft,
			"warning": err.Error(),
		})
		return
	}

	out := map[string]any{"draft": res.Draft}
	status := http.StatusOK
	if res.Transaction != nil {
		out["transaction"] = res.Transaction
		status = http.StatusCreated
	}
	s.writeResult(w, r, status, out, err, log.OpVoice)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"settings": s.ledger.Settings()})
}

type limitBody struct {
	Limit numberOrString `json:"limit"`
}

func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	var body limitBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err, log.OpUpdate)
		return
	}
	err := s.ledger.SetLimit(r.Context(), sanitizeInput(string(body.Limit)))
	s.writeSettings(w, r, err)
}

type currencyBody struct {
	Currency string `json:"currency"`
}

func (s *Server) handleSetCurrency(w http.ResponseWriter, r *http.Request) {
	var body currencyBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err, log.OpUpdate)
		return
	}
	err := s.ledger.SetCurrency(r.Context(), sanitizeInput(body.Currency))
	s.writeSettings(w, r, err)
}

type themeBody struct {
	Theme string `json:"theme"`
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var body themeBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err, log.OpUpdate)
		return
	}
	err := s.ledger.SetTheme(r.Context(), sanitizeInput(body.Theme))
	s.writeSettings(w, r, err)
}

func (s *Server) writeSettings(w http.ResponseWriter, r *http.Request, err error) {
	s.writeResult(w, r, http.StatusOK, map[string]any{"settings": s.ledger.Settings()}, err, log.OpUpdate)
}

func (s *Server) handleEvaluateMonth(w http.ResponseWriter, r *http.Request) {
	v, err := s.ledger.EvaluateMonth(r.Context())
	if err != nil {
		s.writeError(w, r, err, log.OpEvaluate)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verdict": v})
}

type acknowledgeBody struct {
	Confirmed bool `json:"confirmed"`
}

func (s *Server) handleAcknowledgeMonth(w http.ResponseWriter, r *http.Request) {
	var body acknowledgeBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err, log.OpReset)
		return
	}

	state, err := s.ledger.AcknowledgeMonth(r.Context(), body.Confirmed)
	s.writeResult(w, r, http.StatusOK, map[string]any{
		"state": state,
		"reset": body.Confirmed,
	}, err, log.OpReset)
}

func (s *Server) handleResetMonth(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.ResetMonth(r.Context())
	s.writeResult(w, r, http.StatusOK, map[string]any{"reset": true}, err, log.OpReset)
}

// handleExportCSV renders into memory first so a failure still gets a
// proper error status.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.ledger.ExportCSV(&buf); err != nil {
		s.writeError(w, r, err, log.OpExport)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	updated, err := s.ledger.ExportSheets(r.Context(), s.exporter)
	if err != nil {
		s.events.LogError(r.Context(), "Sheets export failed", err, log.OpExport, log.ErrorTypeInternal)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "export to Google Sheets failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated_range": updated})
}
