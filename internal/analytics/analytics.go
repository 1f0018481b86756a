// Package analytics derives every read-only view of the ledger: totals,
// the per-category expense breakdown, the daily spending calendar and the
// progress against the monthly limit.
//
// All functions are pure. They take a ledger snapshot and never keep state
// between calls, so calling them twice on the same input gives the same
// result.
package analytics

import (
	"sort"
	"strings"

	"budgeteer/internal/core"

	"github.com/shopspring/decimal"
)

const (
	Safe     Bucket = "safe"
	Moderate Bucket = "moderate"
	Heavy    Bucket = "heavy"
)

const (
	SeverityOK      Severity = "ok"
	SeverityWarning Severity = "warning"
	SeverityOver    Severity = "over"
)

// DefaultDaysInMonth is the calendar length used when none is configured.
const DefaultDaysInMonth = 30

var (
	// HeavyThreshold is the daily spend at which a day becomes heavy.
	HeavyThreshold = core.Units(50)

	warningPercent = decimal.NewFromInt(80)
	fullPercent    = decimal.NewFromInt(100)
)

type (
	Bucket   string
	Severity string

	Totals struct {
		Balance core.Money `json:"balance"`
		Income  core.Money `json:"income"`
		Expense core.Money `json:"expense"`
	}

	DayBucket struct {
		Day    int        `json:"day"`
		Spent  core.Money `json:"spent"`
		Bucket Bucket     `json:"bucket"`
	}

	// LimitProgress compares spending against the monthly limit.
	// Percentage is clamped to 100 for progress bars; Ratio is not.
	LimitProgress struct {
		Limit      core.Money `json:"limit"`
		Remaining  core.Money `json:"remaining"`
		Percentage float64    `json:"percentage"`
		Ratio      float64    `json:"ratio"`
		Severity   Severity   `json:"severity"`
	}
)

// ComputeTotals sums the snapshot. Expense is reported as a positive amount.
func ComputeTotals(txs []core.Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		t.Balance = t.Balance.Add(tx.Amount)
		if tx.IsExpense() {
			t.Expense = t.Expense.Add(tx.Amount.Abs())
		} else {
			t.Income = t.Income.Add(tx.Amount)
		}
	}
	return t
}

// ComputeCategoryBreakdown returns absolute expense totals keyed by the raw
// category string. Categories without expenses are absent.
func ComputeCategoryBreakdown(txs []core.Transaction) map[string]core.Money {
	out := make(map[string]core.Money)
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		out[tx.Category] = out[tx.Category].Add(tx.Amount.Abs())
	}
	return out
}

// SortedBreakdown orders a breakdown by amount descending, then by name.
func SortedBreakdown(breakdown map[string]core.Money) []core.CategoryAmount {
	out := make([]core.CategoryAmount, 0, len(breakdown))
	for name, amount := range breakdown {
		out = append(out, core.CategoryAmount{
			Name:   name,
			Label:  core.DisplayCategory(name),
			Amount: amount,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ComputeCalendarBuckets returns one entry per day 1..daysInMonth with the
// day's expense total and its bucket. Expenses dated past daysInMonth are
// left out of the calendar.
func ComputeCalendarBuckets(txs []core.Transaction, daysInMonth int) []DayBucket {
	if daysInMonth <= 0 {
		daysInMonth = DefaultDaysInMonth
	}
	spent := make([]core.Money, daysInMonth+1)
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		day := tx.Date.DayOfMonth()
		if day < 1 || day > daysInMonth {
			continue
		}
		spent[day] = spent[day].Add(tx.Amount.Abs())
	}

	out := make([]DayBucket, 0, daysInMonth)
	for day := 1; day <= daysInMonth; day++ {
		out = append(out, DayBucket{
			Day:    day,
			Spent:  spent[day],
			Bucket: Classify(spent[day]),
		})
	}
	return out
}

// Classify maps a day's spending onto a bucket. Exactly HeavyThreshold is heavy.
func Classify(spent core.Money) Bucket {
	switch {
	case spent.Cents == 0:
		return Safe
	case spent.Cents < HeavyThreshold.Cents:
		return Moderate
	default:
		return Heavy
	}
}

// ComputeLimitProgress measures expense against limit. With no limit set
// both percentages are zero.
func ComputeLimitProgress(expense, limit core.Money) LimitProgress {
	p := LimitProgress{
		Limit:     limit,
		Remaining: limit.Sub(expense),
		Severity:  SeverityOK,
	}
	if limit.Cents <= 0 {
		return p
	}

	ratio := expense.Decimal().Div(limit.Decimal()).Mul(fullPercent)
	p.Ratio = ratio.InexactFloat64()
	p.Percentage = decimal.Min(ratio, fullPercent).InexactFloat64()

	switch {
	case ratio.GreaterThan(fullPercent):
		p.Severity = SeverityOver
	case ratio.GreaterThan(warningPercent):
		p.Severity = SeverityWarning
	}
	return p
}

// FilterByDescription keeps transactions whose description contains term,
// ignoring case. An empty term keeps everything.
func FilterByDescription(txs []core.Transaction, term string) []core.Transaction {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return txs
	}
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if strings.Contains(strings.ToLower(tx.Description), term) {
			out = append(out, tx)
		}
	}
	return out
}
