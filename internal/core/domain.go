package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	Expense Direction = "expense"
	Income  Direction = "income"
)

const (
	DefaultCurrency   = "$"
	ThemeDark         = "dark"
	maxCurrencyLength = 8
)

type (
	// Direction tells whether an entry adds to or takes from the balance.
	Direction string

	Date struct {
		time.Time
	}

	// Money is a signed fixed-point amount in cents.
	Money struct {
		Cents int64
	}

	Transaction struct {
		ID          int64  `json:"id"`
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		Category    string `json:"category"`
		Date        Date   `json:"date"`
	}

	Settings struct {
		MonthlyLimit Money  `json:"monthly_limit"`
		Currency     string `json:"currency"`
		Theme        string `json:"theme,omitempty"`
	}
)

var (
	ErrValidation       = errors.New("validation error")
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrNegativeLimit    = errors.New("limit must not be negative")
	ErrInvalidCurrency  = errors.New("invalid currency symbol")
	ErrInvalidDirection = errors.New("invalid direction")
)

// ValidationError reports a rejected input field. It matches both
// ErrValidation and the specific cause with errors.Is.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

// Invalid builds a ValidationError for field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// DayOfMonth returns the day component, 1..31.
func (d Date) DayOfMonth() int {
	return d.Time.Day()
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }

func (m Money) Abs() Money {
	if m.Cents < 0 {
		return m.Neg()
	}
	return m
}

// Sign returns amount signed according to the direction.
func (d Direction) Sign(amount Money) Money {
	amount = amount.Abs()
	if d == Expense {
		return amount.Neg()
	}
	return amount
}

func (d Direction) Validate() error {
	switch d {
	case Expense, Income:
		return nil
	default:
		return ErrInvalidDirection
	}
}

// ParseDirection maps user input onto a Direction, defaulting to Expense.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "expense", "minus", "-":
		return Expense, nil
	case "income", "plus", "+":
		return Income, nil
	default:
		return "", Invalid("type", ErrInvalidDirection)
	}
}

// IsExpense reports whether the transaction takes money out.
func (t Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return Invalid("description", ErrEmptyDescription)
	}
	if t.Amount.IsZero() {
		return Invalid("amount", ErrInvalidAmount)
	}
	if err := t.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	return nil
}

// ValidateLimit accepts zero (unset) and positive limits.
func ValidateLimit(limit Money) error {
	if limit.IsNegative() {
		return Invalid("monthly_limit", ErrNegativeLimit)
	}
	return nil
}

func ValidateCurrency(symbol string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || utf8.RuneCountInString(symbol) > maxCurrencyLength {
		return Invalid("currency", ErrInvalidCurrency)
	}
	return nil
}

// DisplayCategory upper-cases the first letter of a category label.
// Aggregation always keys on the raw stored string.
func DisplayCategory(category string) string {
	r, size := utf8.DecodeRuneInString(category)
	if r == utf8.RuneError {
		return category
	}
	return string(unicode.ToUpper(r)) + category[size:]
}

// DefaultSettings returns the settings used before anything is configured.
func DefaultSettings() Settings {
	return Settings{Currency: DefaultCurrency}
}

// LimitSet reports whether a monthly limit is configured.
func (s Settings) LimitSet() bool {
	return s.MonthlyLimit.Cents > 0
}
