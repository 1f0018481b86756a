// Package backend picks and opens the key-value store the ledger persists to.
package backend

import (
	"context"

	"budgeteer/internal/kv"
)

// CleanupFunc releases the store's resources.
type CleanupFunc func() error

// BackendResult is an opened store and how to close it.
type BackendResult struct {
	Store   kv.Store
	Cleanup CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	// memory
	SeedFile string

	// sqlite
	SQLiteDBPath string

	// postgres
	PostgresDSN string
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
