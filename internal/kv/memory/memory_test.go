package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"budgeteer/internal/kv"
)

func TestMemoryStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, ok, err := s.Get(ctx, kv.KeyCurrency); ok || err != nil {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, kv.KeyCurrency, "€"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, kv.KeyCurrency)
	if err != nil || !ok || v != "€" {
		t.Fatalf("unexpected get: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := s.Delete(ctx, kv.KeyCurrency); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, kv.KeyCurrency); ok {
		t.Fatalf("expected key to be gone")
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s := New()
	_ = s.Close()
	if err := s.Set(context.Background(), "k", "v"); !errors.Is(err, kv.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()

	// No file -> empty store
	s, err := NewFromFile(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if _, ok, _ := s.Get(context.Background(), kv.KeyTheme); ok {
		t.Fatalf("expected empty store")
	}

	path := filepath.Join(dir, "seed.json")
	if err := os.WriteFile(path, []byte(`{"theme":"dark","monthlyLimit":"100"}`), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s, err = NewFromFile(path)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if v, _, _ := s.Get(context.Background(), kv.KeyMonthlyLimit); v != "100" {
		t.Fatalf("unexpected seeded limit %q", v)
	}

	if err := os.WriteFile(path, []byte(`not json`), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := NewFromFile(path); err == nil {
		t.Fatalf("expected decode error")
	}
}
