// Package kv defines the key-value string store the ledger persists into.
package kv

import (
	"context"
	"errors"
)

// Keys the ledger reads and writes.
const (
	KeyTransactions = "transactions"
	KeyMonthlyLimit = "monthlyLimit"
	KeyCurrency     = "currency"
	KeyTheme        = "theme"
)

var ErrClosed = errors.New("kv store closed")

// Ports for outbound adapters.
type (
	Reader interface {
		// Get returns the stored value and whether the key exists.
		Get(ctx context.Context, key string) (value string, ok bool, err error)
	}

	Writer interface {
		Set(ctx context.Context, key, value string) error
		Delete(ctx context.Context, key string) error
	}

	Store interface {
		Reader
		Writer
	}
)
