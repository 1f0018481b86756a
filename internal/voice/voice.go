// Package voice turns a speech transcript into a draft transaction.
//
// The interpreter never touches the ledger. Callers submit the draft
// through the same path as a manually entered one.
package voice

import (
	"errors"
	"regexp"
	"strings"

	"budgeteer/internal/core"

	"github.com/shopspring/decimal"
)

var ErrNoAmountFound = errors.New("no amount found in transcript")

var (
	DefaultVocabulary  = []string{"food", "transport", "shopping", "bills", "entertainment", "salary", "freelance"}
	DefaultIncomeWords = []string{"received", "income"}

	digits = regexp.MustCompile(`[0-9]+`)
)

// Draft is a partially or fully filled entry form.
type Draft struct {
	Description string         `json:"description"`
	Amount      core.Money     `json:"amount"`
	Category    string         `json:"category"`
	Direction   core.Direction `json:"type"`
	HasAmount   bool           `json:"has_amount"`
}

// SignedAmount is the amount as it would be stored in the ledger.
func (d Draft) SignedAmount() core.Money {
	return d.Direction.Sign(d.Amount)
}

// Complete reports whether the draft can be submitted as is.
func (d Draft) Complete() bool {
	return d.HasAmount && !d.Amount.IsZero() && strings.TrimSpace(d.Description) != ""
}

type Interpreter struct {
	vocabulary  []string
	incomeWords []string
}

func NewInterpreter(vocabulary, incomeWords []string) *Interpreter {
	if len(vocabulary) == 0 {
		vocabulary = DefaultVocabulary
	}
	if len(incomeWords) == 0 {
		incomeWords = DefaultIncomeWords
	}
	return &Interpreter{vocabulary: vocabulary, incomeWords: incomeWords}
}

// Parse reads a transcript with the default vocabulary.
func Parse(transcript string) (Draft, error) {
	return NewInterpreter(nil, nil).Parse(transcript)
}

// Parse extracts the draft. The amount is the first run of digits, read as
// whole currency units. The category is the last vocabulary term, in
// vocabulary order, that occurs anywhere in the transcript, in display form;
// where it occurs does not matter. When no amount is present the draft is still returned,
// together with ErrNoAmountFound.
func (i *Interpreter) Parse(transcript string) (Draft, error) {
	lower := strings.ToLower(transcript)

	d := Draft{
		Description: transcript,
		Direction:   core.Expense,
	}

	for _, term := range i.vocabulary {
		if strings.Contains(lower, term) {
			d.Category = core.DisplayCategory(term)
		}
	}

	for _, word := range i.incomeWords {
		if strings.Contains(lower, word) {
			d.Direction = core.Income
			break
		}
	}

	run := digits.FindString(transcript)
	if run == "" {
		return d, ErrNoAmountFound
	}
	n, err := decimal.NewFromString(run)
	if err != nil {
		return d, ErrNoAmountFound
	}
	amount, err := core.FromDecimal(n)
	if err != nil {
		return d, core.Invalid("amount", err)
	}
	d.Amount = amount
	d.HasAmount = true
	return d, nil
}
