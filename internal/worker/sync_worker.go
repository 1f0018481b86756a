// Package worker turns ledger events into work outside the serving
// process: an audit log line per event and a Google Sheets mirror of the
// ledger that follows every change.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"budgeteer/internal/amqp"
	"budgeteer/internal/core"
	"budgeteer/internal/log"
	"budgeteer/internal/services"
)

// LedgerReader returns the ledger as currently persisted.
type LedgerReader func(ctx context.Context) ([]core.Transaction, error)

// SyncWorker consumes ledger events. Mirroring is batched: events only mark
// the sheet stale and Flush exports once per interval.
type SyncWorker struct {
	read     LedgerReader
	exporter services.SheetExporter
	logger   *slog.Logger

	mu       sync.Mutex
	stale    bool
	counts   map[amqp.EventType]int
	lastSync time.Time
}

// NewSyncWorker builds a worker. With a nil exporter it only audits.
func NewSyncWorker(read LedgerReader, exporter services.SheetExporter, logger *slog.Logger) *SyncWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncWorker{
		read:     read,
		exporter: exporter,
		logger:   logger,
		counts:   make(map[amqp.EventType]int),
	}
}

// HandleEvent logs ev and marks the mirror stale when the ledger changed.
// It never fails, so malformed-but-decodable events are not redelivered.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	attrs := []any{
		"event_id", ev.ID,
		log.FieldEventType, ev.Type,
		"timestamp", ev.Timestamp,
	}
	if ev.TransactionID != 0 {
		attrs = append(attrs, log.FieldTxID, ev.TransactionID)
	}
	if ev.Amount != 0 {
		attrs = append(attrs, log.FieldAmountCents, ev.Amount)
	}
	if ev.Category != "" {
		attrs = append(attrs, log.FieldCategory, ev.Category)
	}
	if ev.Outcome != "" {
		attrs = append(attrs, log.FieldOutcome, ev.Outcome)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch ev.Type {
	case amqp.EventTransactionCreated, amqp.EventTransactionRemoved, amqp.EventLedgerReset:
		w.stale = true
	case amqp.EventMonthEvaluated:
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown ledger event", attrs...)
		return nil
	}
	w.counts[ev.Type]++
	w.logger.InfoContext(ctx, "Ledger event", attrs...)
	return nil
}

// MarkStale forces the next Flush to export.
func (w *SyncWorker) MarkStale() {
	w.mu.Lock()
	w.stale = true
	w.mu.Unlock()
}

// Flush exports the ledger if it changed since the last export. On failure
// the mirror stays stale and the next Flush retries.
func (w *SyncWorker) Flush(ctx context.Context) error {
	if w.exporter == nil {
		return nil
	}

	w.mu.Lock()
	if !w.stale {
		w.mu.Unlock()
		return nil
	}
	w.stale = false
	w.mu.Unlock()

	txs, err := w.read(ctx)
	if err == nil {
		var updated string
		updated, err = w.exporter.Export(ctx, txs)
		if err == nil {
			w.mu.Lock()
			w.lastSync = time.Now()
			w.mu.Unlock()
			w.logger.InfoContext(ctx, "Ledger mirrored to Google Sheets",
				"transactions", len(txs),
				"updated_range", updated)
			return nil
		}
	}

	w.MarkStale()
	return fmt.Errorf("mirror ledger: %w", err)
}

// Run flushes every interval until ctx is done. Failed exports are logged
// and retried on the next tick.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic sheets sync failed", log.FieldError, err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Counts returns how many events of each type were handled.
func (w *SyncWorker) Counts() map[amqp.EventType]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[amqp.EventType]int, len(w.counts))
	for k, v := range w.counts {
		out[k] = v
	}
	return out
}

// LastSync is the time of the last successful export, zero if none.
func (w *SyncWorker) LastSync() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSync
}
