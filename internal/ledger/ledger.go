// Package ledger owns the transaction list and the user settings. It is the
// only mutable state in the application; every other component reads a
// snapshot from it.
//
// Every mutator writes the affected keys to the kv store before returning.
// When that write fails the in-memory change is kept and the error wraps
// ErrPersistence, so callers can warn that durability was lost for that
// one call.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"budgeteer/internal/core"
	"budgeteer/internal/kv"
)

var ErrPersistence = errors.New("ledger not persisted")

type Option func(*Store)

// WithClock replaces time.Now for dates and id generation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store is the ledger. All methods are safe for concurrent use and run one
// at a time.
type Store struct {
	mu           sync.Mutex
	kv           kv.Store
	now          func() time.Time
	logger       *slog.Logger
	transactions []core.Transaction
	settings     core.Settings
	lastID       int64
	revision     uint64
}

// Open loads the ledger and settings from store. Missing keys fall back to
// defaults; an unreadable transaction list is an error.
func Open(ctx context.Context, store kv.Store, opts ...Option) (*Store, error) {
	s := &Store{
		kv:       store,
		now:      time.Now,
		logger:   slog.Default(),
		settings: core.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, ok, err := store.Get(ctx, kv.KeyTransactions)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	if ok {
		txs, err := decodeTransactions(raw)
		if err != nil {
			return nil, fmt.Errorf("load transactions: %w", err)
		}
		s.transactions = txs
		for _, tx := range txs {
			if tx.ID > s.lastID {
				s.lastID = tx.ID
			}
		}
	}

	if raw, ok, err := store.Get(ctx, kv.KeyMonthlyLimit); err != nil {
		return nil, fmt.Errorf("load monthly limit: %w", err)
	} else if ok {
		limit, err := decodeLimit(raw)
		if err != nil {
			s.logger.WarnContext(ctx, "Ignoring stored monthly limit", "value", raw, "error", err)
		} else {
			s.settings.MonthlyLimit = limit
		}
	}

	if raw, ok, err := store.Get(ctx, kv.KeyCurrency); err != nil {
		return nil, fmt.Errorf("load currency: %w", err)
	} else if ok && core.ValidateCurrency(raw) == nil {
		s.settings.Currency = raw
	}

	if raw, ok, err := store.Get(ctx, kv.KeyTheme); err != nil {
		return nil, fmt.Errorf("load theme: %w", err)
	} else if ok && raw == core.ThemeDark {
		s.settings.Theme = core.ThemeDark
	}

	s.logger.InfoContext(ctx, "Ledger loaded",
		"transactions", len(s.transactions),
		"monthly_limit", s.settings.MonthlyLimit.String(),
		"currency", s.settings.Currency)

	return s, nil
}

// ReadTransactions decodes the transaction list currently in store without
// opening a ledger. Processes that only mirror the ledger use it.
func ReadTransactions(ctx context.Context, store kv.Reader) ([]core.Transaction, error) {
	raw, ok, err := store.Get(ctx, kv.KeyTransactions)
	if err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}
	if !ok {
		return nil, nil
	}
	txs, err := decodeTransactions(raw)
	if err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}
	return txs, nil
}

// Add validates and appends a new transaction. A zero date means today.
func (s *Store) Add(ctx context.Context, description string, amount core.Money, category string, date core.Date) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if date.IsEmpty() {
		date = core.DateOf(s.now())
	}
	tx := core.Transaction{
		Description: description,
		Amount:      amount,
		Category:    category,
		Date:        date,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	tx.ID = s.nextID()
	s.transactions = append(s.transactions, tx)
	s.revision++

	return tx, s.persistTransactions(ctx)
}

// Remove deletes the transaction with id. Unknown ids are not an error.
func (s *Store) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.transactions[:0:0]
	for _, tx := range s.transactions {
		if tx.ID != id {
			kept = append(kept, tx)
		}
	}
	if len(kept) != len(s.transactions) {
		s.revision++
	}
	s.transactions = kept

	return s.persistTransactions(ctx)
}

// ResetAll clears every transaction and keeps the settings.
func (s *Store) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = nil
	s.revision++

	return s.persistTransactions(ctx)
}

// Snapshot returns a copy of the transactions in insertion order.
func (s *Store) Snapshot() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.transactions...)
}

func (s *Store) Settings() core.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Revision changes after every mutation; equal revisions mean equal state.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// SetLimit stores the monthly limit. Zero clears it.
func (s *Store) SetLimit(ctx context.Context, limit core.Money) error {
	if err := core.ValidateLimit(limit); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.MonthlyLimit = limit
	s.revision++
	return s.persist(ctx, kv.KeyMonthlyLimit, limit.Decimal().String())
}

func (s *Store) SetCurrency(ctx context.Context, symbol string) error {
	if err := core.ValidateCurrency(symbol); err != nil {
		return err
	}
	symbol = strings.TrimSpace(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.Currency = symbol
	s.revision++
	return s.persist(ctx, kv.KeyCurrency, symbol)
}

// SetTheme keeps "dark"; any other value removes the preference.
func (s *Store) SetTheme(ctx context.Context, theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision++
	if strings.EqualFold(strings.TrimSpace(theme), core.ThemeDark) {
		s.settings.Theme = core.ThemeDark
		return s.persist(ctx, kv.KeyTheme, core.ThemeDark)
	}

	s.settings.Theme = ""
	if err := s.kv.Delete(ctx, kv.KeyTheme); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrPersistence, kv.KeyTheme, err)
	}
	return nil
}

// nextID never hands out an id twice: it is above every id issued by this
// process, every id in the ledger and the current clock in milliseconds.
func (s *Store) nextID() int64 {
	next := s.lastID + 1
	if ms := s.now().UnixMilli(); ms > next {
		next = ms
	}
	s.lastID = next
	return next
}

func (s *Store) persistTransactions(ctx context.Context) error {
	raw, err := encodeTransactions(s.transactions)
	if err != nil {
		return fmt.Errorf("%w: encode transactions: %w", ErrPersistence, err)
	}
	return s.persist(ctx, kv.KeyTransactions, raw)
}

func (s *Store) persist(ctx context.Context, key, value string) error {
	if err := s.kv.Set(ctx, key, value); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist ledger key", "key", key, "error", err)
		return fmt.Errorf("%w: save %s: %w", ErrPersistence, key, err)
	}
	return nil
}
