package verdict

import (
	"context"
	"errors"
	"testing"

	"budgeteer/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	txs      []core.Transaction
	settings core.Settings
	resets   int
	resetErr error
}

func (f *fakeLedger) Snapshot() []core.Transaction { return f.txs }
func (f *fakeLedger) Settings() core.Settings      { return f.settings }

func (f *fakeLedger) ResetAll(context.Context) error {
	f.resets++
	f.txs = nil
	return f.resetErr
}

func spending(cents ...int64) []core.Transaction {
	var txs []core.Transaction
	for i, c := range cents {
		txs = append(txs, core.Transaction{
			ID:          int64(i + 1),
			Description: "entry",
			Amount:      core.Money{Cents: c},
			Category:    "food",
			Date:        core.NewDate(2025, 10, 1),
		})
	}
	return txs
}

func TestEvaluateMonthEnd(t *testing.T) {
	tests := []struct {
		name    string
		expense core.Money
		limit   core.Money
		want    Outcome
		err     error
	}{
		{"under the limit", core.Units(60), core.Units(100), Win, nil},
		{"over the limit", core.Units(150), core.Units(100), Lose, nil},
		{"exactly the limit", core.Units(100), core.Units(100), Win, nil},
		{"one cent over", core.Money{Cents: 10001}, core.Units(100), Lose, nil},
		{"no limit", core.Units(60), core.Money{}, "", ErrNoLimit},
		{"no limit and no spending", core.Money{}, core.Money{}, "", ErrNoLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateMonthEnd(tt.expense, tt.limit)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewVerdictMessages(t *testing.T) {
	win := NewVerdict(Win, core.Units(60), core.Units(100))
	assert.Equal(t, "Win!", win.Title)
	assert.Equal(t, "Reward: Treat yourself!", win.Message)

	lose := NewVerdict(Lose, core.Units(150), core.Units(100))
	assert.Equal(t, "Fail!", lose.Title)
	assert.Equal(t, "Punishment: No eating out!", lose.Message)
	assert.Equal(t, core.Units(150), lose.Expense)
}

func TestMachine_InitialState(t *testing.T) {
	l := &fakeLedger{settings: core.DefaultSettings()}
	m := NewMachine(l)
	assert.Equal(t, NoLimitSet, m.State())

	l.settings.MonthlyLimit = core.Units(100)
	assert.Equal(t, InProgress, m.State())

	_, ok := m.Current()
	assert.False(t, ok)
}

func TestMachine_EvaluateWithoutLimit(t *testing.T) {
	l := &fakeLedger{txs: spending(-6000), settings: core.DefaultSettings()}
	m := NewMachine(l)

	_, err := m.Evaluate(context.Background())
	assert.ErrorIs(t, err, ErrNoLimit)
	assert.Equal(t, NoLimitSet, m.State())
}

func TestMachine_WinThenConfirm(t *testing.T) {
	ctx := context.Background()
	l := &fakeLedger{
		txs:      spending(-2000, -4000, 100000),
		settings: core.Settings{MonthlyLimit: core.Units(100), Currency: "$"},
	}
	m := NewMachine(l)

	v, err := m.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, Win, v.Outcome)
	assert.Equal(t, core.Units(60), v.Expense)
	assert.Equal(t, ClosedWin, m.State())

	shown, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, v, shown)

	state, err := m.AcknowledgeAndReset(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, InProgress, state)
	assert.Equal(t, 1, l.resets)
	assert.Empty(t, l.txs)
	assert.Equal(t, core.Units(100), l.settings.MonthlyLimit, "settings survive the reset")
}

func TestMachine_LoseThenDecline(t *testing.T) {
	ctx := context.Background()
	l := &fakeLedger{
		txs:      spending(-15000),
		settings: core.Settings{MonthlyLimit: core.Units(100), Currency: "$"},
	}
	m := NewMachine(l)

	v, err := m.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, Lose, v.Outcome)

	state, err := m.AcknowledgeAndReset(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, ClosedLose, state)
	assert.Zero(t, l.resets)
	assert.Len(t, l.txs, 1)
}

func TestMachine_AcknowledgeWhileOpen(t *testing.T) {
	l := &fakeLedger{settings: core.Settings{MonthlyLimit: core.Units(100)}}
	m := NewMachine(l)

	state, err := m.AcknowledgeAndReset(context.Background(), true)
	assert.ErrorIs(t, err, ErrNotClosed)
	assert.Equal(t, InProgress, state)
	assert.Zero(t, l.resets)
}

func TestMachine_ResetBackToNoLimit(t *testing.T) {
	ctx := context.Background()
	l := &fakeLedger{settings: core.Settings{MonthlyLimit: core.Units(100)}}
	m := NewMachine(l)

	_, err := m.Evaluate(ctx)
	require.NoError(t, err)

	l.settings.MonthlyLimit = core.Money{}
	state, err := m.AcknowledgeAndReset(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, NoLimitSet, state)
}

func TestMachine_Dismiss(t *testing.T) {
	ctx := context.Background()
	l := &fakeLedger{txs: spending(-2000), settings: core.Settings{MonthlyLimit: core.Units(100)}}
	m := NewMachine(l)

	v, err := m.Evaluate(ctx)
	require.NoError(t, err)
	state, shown, ok := m.Status()
	assert.Equal(t, ClosedWin, state)
	require.True(t, ok)
	assert.Equal(t, v, shown)

	l.settings.MonthlyLimit = core.Money{}
	m.Dismiss()
	state, _, ok = m.Status()
	assert.Equal(t, NoLimitSet, state)
	assert.False(t, ok)
	assert.Len(t, l.txs, 1, "dismissing keeps the ledger")

	_, err = m.AcknowledgeAndReset(ctx, true)
	assert.ErrorIs(t, err, ErrNotClosed)
	assert.Zero(t, l.resets)
}

func TestMachine_ResetPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("store unavailable")
	l := &fakeLedger{
		txs:      spending(-100),
		settings: core.Settings{MonthlyLimit: core.Units(100)},
		resetErr: storeErr,
	}
	m := NewMachine(l)

	_, err := m.Evaluate(ctx)
	require.NoError(t, err)

	state, err := m.AcknowledgeAndReset(ctx, true)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, InProgress, state)
	assert.False(t, m.State().Closed())
}

func TestMachine_EvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMachine(&fakeLedger{settings: core.Settings{MonthlyLimit: core.Units(100)}})
	_, err := m.Evaluate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, InProgress, m.State())
}
