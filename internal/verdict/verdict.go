// Package verdict decides whether the month was won or lost against the
// monthly limit and drives the month-end reset.
package verdict

import (
	"context"
	"errors"
	"sync"

	"budgeteer/internal/analytics"
	"budgeteer/internal/core"
)

var (
	ErrNoLimit   = errors.New("set a monthly limit first")
	ErrNotClosed = errors.New("month has not been evaluated")
)

type State string

const (
	NoLimitSet State = "no_limit_set"
	InProgress State = "in_progress"
	ClosedWin  State = "closed_win"
	ClosedLose State = "closed_lose"
)

// Closed reports whether a verdict is showing.
func (s State) Closed() bool {
	return s == ClosedWin || s == ClosedLose
}

type Outcome string

const (
	Win  Outcome = "win"
	Lose Outcome = "lose"
)

// EvaluateMonthEnd is the month-end decision. Spending exactly the limit
// is a win.
func EvaluateMonthEnd(expense, limit core.Money) (Outcome, error) {
	if limit.IsZero() {
		return "", ErrNoLimit
	}
	if expense.Cents <= limit.Cents {
		return Win, nil
	}
	return Lose, nil
}

// Verdict is what the user sees after the month is evaluated.
type Verdict struct {
	Outcome Outcome    `json:"outcome"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Expense core.Money `json:"expense"`
	Limit   core.Money `json:"limit"`
}

func NewVerdict(outcome Outcome, expense, limit core.Money) Verdict {
	v := Verdict{Outcome: outcome, Expense: expense, Limit: limit}
	if outcome == Win {
		v.Title, v.Message = "Win!", "Reward: Treat yourself!"
	} else {
		v.Title, v.Message = "Fail!", "Punishment: No eating out!"
	}
	return v
}

// Ledger is the part of the ledger store the machine needs.
type Ledger interface {
	Snapshot() []core.Transaction
	Settings() core.Settings
	ResetAll(ctx context.Context) error
}

// Machine tracks whether the month has been evaluated since the last reset.
// That flag lives only in memory; everything else is derived from the
// ledger on every call.
type Machine struct {
	mu      sync.Mutex
	ledger  Ledger
	current *Verdict
}

func NewMachine(ledger Ledger) *Machine {
	return &Machine{ledger: ledger}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Machine) stateLocked() State {
	if m.current != nil {
		if m.current.Outcome == Win {
			return ClosedWin
		}
		return ClosedLose
	}
	if !m.ledger.Settings().LimitSet() {
		return NoLimitSet
	}
	return InProgress
}

// Current returns the verdict on display, if any.
func (m *Machine) Current() (Verdict, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Verdict{}, false
	}
	return *m.current, true
}

// Status returns the state together with the verdict it was derived from.
func (m *Machine) Status() (State, Verdict, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return m.stateLocked(), Verdict{}, false
	}
	return m.stateLocked(), *m.current, true
}

// Dismiss drops the verdict without touching the ledger.
func (m *Machine) Dismiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

// Evaluate closes the month with the ledger's current expense total.
// Without a limit it fails with ErrNoLimit and the state is unchanged.
// Evaluating an already closed month recomputes the verdict.
func (m *Machine) Evaluate(ctx context.Context) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	limit := m.ledger.Settings().MonthlyLimit
	expense := analytics.ComputeTotals(m.ledger.Snapshot()).Expense
	outcome, err := EvaluateMonthEnd(expense, limit)
	if err != nil {
		return Verdict{}, err
	}

	v := NewVerdict(outcome, expense, limit)
	m.current = &v
	return v, nil
}

// AcknowledgeAndReset dismisses the verdict. When confirmed the ledger is
// cleared and the state goes back to InProgress or NoLimitSet; when
// declined nothing changes and the verdict stays visible.
//
// A reset whose persistence failed still counts as a reset: the state moves
// on and the ledger error is returned alongside it.
func (m *Machine) AcknowledgeAndReset(ctx context.Context, confirmed bool) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return m.stateLocked(), ErrNotClosed
	}
	if !confirmed {
		return m.stateLocked(), nil
	}

	err := m.ledger.ResetAll(ctx)
	m.current = nil
	return m.stateLocked(), err
}
