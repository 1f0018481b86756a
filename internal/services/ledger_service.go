package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"budgeteer/internal/amqp"
	"budgeteer/internal/analytics"
	"budgeteer/internal/cache"
	"budgeteer/internal/core"
	"budgeteer/internal/export"
	"budgeteer/internal/ledger"
	"budgeteer/internal/verdict"
	"budgeteer/internal/voice"
)

// DefaultCategory is used when an entry arrives without one.
const DefaultCategory = "Other"

// LedgerStore is what the service needs from the ledger.
type LedgerStore interface {
	verdict.Ledger
	Add(ctx context.Context, description string, amount core.Money, category string, date core.Date) (core.Transaction, error)
	Remove(ctx context.Context, id int64) error
	SetLimit(ctx context.Context, limit core.Money) error
	SetCurrency(ctx context.Context, symbol string) error
	SetTheme(ctx context.Context, theme string) error
	Revision() uint64
}

// EventPublisher sends audit events. *amqp.Client implements it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// SheetExporter mirrors the ledger somewhere else.
type SheetExporter interface {
	Export(ctx context.Context, txs []core.Transaction) (string, error)
}

// EntryRequest is a manually entered transaction. Amount is the unsigned
// magnitude as typed; Direction decides the sign.
type EntryRequest struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Direction   string `json:"type"`
}

// VoiceResult is the parsed draft and, when it was submitted, the stored
// transaction.
type VoiceResult struct {
	Draft       voice.Draft       `json:"draft"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
}

// Dashboard is everything the UI renders in one view.
type Dashboard struct {
	Totals       analytics.Totals        `json:"totals"`
	Categories   []core.CategoryAmount   `json:"categories"`
	Calendar     []analytics.DayBucket   `json:"calendar"`
	Progress     analytics.LimitProgress `json:"progress"`
	State        verdict.State           `json:"state"`
	Verdict      *verdict.Verdict        `json:"verdict,omitempty"`
	Transactions []core.Transaction      `json:"transactions"`
	Settings     core.Settings           `json:"settings"`
	Search       string                  `json:"search,omitempty"`
}

type Option func(*LedgerService)

func WithPublisher(p EventPublisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithDashboardCache(c cache.Cache[Dashboard]) Option {
	return func(s *LedgerService) { s.dashboards = c }
}

func WithDaysInMonth(days int) Option {
	return func(s *LedgerService) { s.daysInMonth = days }
}

func WithInterpreter(i *voice.Interpreter) Option {
	return func(s *LedgerService) { s.interpreter = i }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *LedgerService) { s.logger = logger }
}

// LedgerService is the single entry point for every user action.
type LedgerService struct {
	ledger      LedgerStore
	machine     *verdict.Machine
	interpreter *voice.Interpreter
	publisher   EventPublisher
	dashboards  cache.Cache[Dashboard]
	daysInMonth int
	now         func() time.Time
	logger      *slog.Logger
}

func NewLedgerService(store LedgerStore, opts ...Option) *LedgerService {
	s := &LedgerService{
		ledger:      store,
		machine:     verdict.NewMachine(store),
		interpreter: voice.NewInterpreter(nil, nil),
		daysInMonth: analytics.DefaultDaysInMonth,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddEntry parses and stores a manual entry dated today.
func (s *LedgerService) AddEntry(ctx context.Context, req EntryRequest) (core.Transaction, error) {
	dir, err := core.ParseDirection(req.Direction)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.Transaction{}, core.Invalid("amount", err)
	}
	if amount.IsNegative() {
		return core.Transaction{}, core.Invalid("amount", core.ErrInvalidAmount)
	}
	return s.add(ctx, req.Description, dir.Sign(amount), req.Category)
}

func (s *LedgerService) add(ctx context.Context, description string, amount core.Money, category string) (core.Transaction, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultCategory
	}

	tx, err := s.ledger.Add(ctx, description, amount, category, core.DateOf(s.now()))
	if err != nil && !errors.Is(err, ledger.ErrPersistence) {
		return core.Transaction{}, err
	}

	ev := amqp.NewLedgerEvent(amqp.EventTransactionCreated)
	ev.TransactionID = tx.ID
	ev.Amount = tx.Amount.Cents
	ev.Category = tx.Category
	s.publish(ctx, ev)

	return tx, err
}

// RemoveEntry deletes a transaction. Unknown ids are a silent no-op.
func (s *LedgerService) RemoveEntry(ctx context.Context, id int64) error {
	var removed *core.Transaction
	for _, tx := range s.ledger.Snapshot() {
		if tx.ID == id {
			removed = &tx
			break
		}
	}

	err := s.ledger.Remove(ctx, id)
	if removed != nil {
		ev := amqp.NewLedgerEvent(amqp.EventTransactionRemoved)
		ev.TransactionID = removed.ID
		ev.Amount = removed.Amount.Cents
		ev.Category = removed.Category
		s.publish(ctx, ev)
	}
	return err
}

// SetLimit parses a numeric limit. An empty value clears it, together with
// any verdict still on display.
func (s *LedgerService) SetLimit(ctx context.Context, value string) error {
	limit := core.Money{}
	if strings.TrimSpace(value) != "" {
		var err error
		if limit, err = core.ParseAmount(value); err != nil {
			return core.Invalid("limit", err)
		}
	}
	err := s.ledger.SetLimit(ctx, limit)
	if !s.ledger.Settings().LimitSet() {
		s.machine.Dismiss()
	}
	return err
}

func (s *LedgerService) SetCurrency(ctx context.Context, symbol string) error {
	return s.ledger.SetCurrency(ctx, symbol)
}

func (s *LedgerService) SetTheme(ctx context.Context, theme string) error {
	return s.ledger.SetTheme(ctx, theme)
}

func (s *LedgerService) Settings() core.Settings {
	return s.ledger.Settings()
}

// Transactions returns the ledger, filtered by description when search is set.
func (s *LedgerService) Transactions(search string) []core.Transaction {
	return analytics.FilterByDescription(s.ledger.Snapshot(), search)
}

// SubmitVoice parses a transcript. With submit set and a complete draft the
// entry is stored as if typed by hand. ErrNoAmountFound comes back together
// with the partial draft.
func (s *LedgerService) SubmitVoice(ctx context.Context, transcript string, submit bool) (VoiceResult, error) {
	if err := ctx.Err(); err != nil {
		return VoiceResult{}, err
	}

	draft, parseErr := s.interpreter.Parse(transcript)
	res := VoiceResult{Draft: draft}
	if parseErr != nil {
		return res, parseErr
	}
	if !submit || !draft.Complete() {
		return res, nil
	}

	tx, err := s.add(ctx, draft.Description, draft.SignedAmount(), draft.Category)
	if err != nil && !errors.Is(err, ledger.ErrPersistence) {
		return res, err
	}
	res.Transaction = &tx
	return res, err
}

// Dashboard builds the full view. Totals, categories and the calendar
// always cover the whole ledger; search only narrows the transaction list.
func (s *LedgerService) Dashboard(ctx context.Context, search string) (Dashboard, error) {
	if err := ctx.Err(); err != nil {
		return Dashboard{}, err
	}

	search = strings.TrimSpace(search)
	rev := s.ledger.Revision()
	state, v, closed := s.machine.Status()
	key := fmt.Sprintf("%d|%d|%s|%s", rev, s.daysInMonth, state, strings.ToLower(search))
	if s.dashboards != nil {
		if d, ok := s.dashboards.Get(key); ok {
			return d, nil
		}
	}

	snapshot := s.ledger.Snapshot()
	settings := s.ledger.Settings()
	totals := analytics.ComputeTotals(snapshot)

	d := Dashboard{
		Totals:       totals,
		Categories:   analytics.SortedBreakdown(analytics.ComputeCategoryBreakdown(snapshot)),
		Calendar:     analytics.ComputeCalendarBuckets(snapshot, s.daysInMonth),
		Progress:     analytics.ComputeLimitProgress(totals.Expense, settings.MonthlyLimit),
		State:        state,
		Transactions: analytics.FilterByDescription(snapshot, search),
		Settings:     settings,
		Search:       search,
	}
	if closed {
		d.Verdict = &v
	}

	// A mutation or evaluation that raced the build leaves the view out of
	// step with the key; serve it but do not keep it.
	if s.dashboards != nil && s.ledger.Revision() == rev && s.machine.State() == state {
		s.dashboards.Set(key, d)
	}
	return d, nil
}

// EvaluateMonth closes the month against the limit.
func (s *LedgerService) EvaluateMonth(ctx context.Context) (verdict.Verdict, error) {
	v, err := s.machine.Evaluate(ctx)
	if err != nil {
		return v, err
	}

	ev := amqp.NewLedgerEvent(amqp.EventMonthEvaluated)
	ev.Amount = v.Expense.Cents
	ev.Outcome = string(v.Outcome)
	s.publish(ctx, ev)
	return v, nil
}

// AcknowledgeMonth dismisses the verdict, clearing the ledger when confirmed.
func (s *LedgerService) AcknowledgeMonth(ctx context.Context, confirmed bool) (verdict.State, error) {
	state, err := s.machine.AcknowledgeAndReset(ctx, confirmed)
	if confirmed && (err == nil || errors.Is(err, ledger.ErrPersistence)) {
		s.publish(ctx, amqp.NewLedgerEvent(amqp.EventLedgerReset))
	}
	return state, err
}

// ResetMonth clears the ledger without evaluating. A verdict on display is
// dismissed along with it.
func (s *LedgerService) ResetMonth(ctx context.Context) error {
	var err error
	if s.machine.State().Closed() {
		_, err = s.machine.AcknowledgeAndReset(ctx, true)
	} else {
		err = s.ledger.ResetAll(ctx)
	}
	if err == nil || errors.Is(err, ledger.ErrPersistence) {
		s.publish(ctx, amqp.NewLedgerEvent(amqp.EventLedgerReset))
	}
	return err
}

func (s *LedgerService) ExportCSV(w io.Writer) error {
	return export.WriteCSV(w, s.ledger.Snapshot())
}

func (s *LedgerService) ExportSheets(ctx context.Context, exp SheetExporter) (string, error) {
	return exp.Export(ctx, s.ledger.Snapshot())
}

// publish never fails the caller; the ledger change already happened.
func (s *LedgerService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			"event_id", ev.ID,
			"type", ev.Type,
			"error", err)
	}
}
