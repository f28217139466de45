package inmem

import (
	"context"
	"testing"

	"github.com/metalalive/ecommerce-go/internal/store"
)

func TestSaveFetchDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateTable(ctx, "widgets"); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := s.Save(ctx, map[string]map[string]store.Row{
		"widgets": {"a": {"1"}, "b": {"2"}},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rows, err := s.Fetch(ctx, "widgets", []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows["a"][0] != "1" {
		t.Fatalf("expected row a to be [1], got %v", rows["a"])
	}

	n, err := s.Delete(ctx, "widgets", []string{"a", "missing"})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row deleted, got %d", n)
	}
	rows, _ = s.Fetch(ctx, "widgets", []string{"a", "b"})
	if _, ok := rows["a"]; ok {
		t.Fatalf("expected row a to be gone after delete")
	}
	if _, ok := rows["b"]; !ok {
		t.Fatalf("expected row b to survive delete")
	}
}

func TestFetchUnknownTableErrors(t *testing.T) {
	s := New()
	if _, err := s.Fetch(context.Background(), "nope", []string{"a"}); err == nil {
		t.Fatalf("expected fetch against unknown table to fail")
	}
}

func TestFetchAcquireSaveReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateTable(ctx, "widgets"); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	rows, lock, err := s.FetchAcquire(ctx, "widgets", []string{"a"})
	if err != nil {
		t.Fatalf("FetchAcquire: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no existing rows, got %v", rows)
	}
	n, err := s.SaveRelease(ctx, "widgets", map[string]store.Row{"a": {"new"}}, lock)
	if err != nil {
		t.Fatalf("SaveRelease: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row written, got %d", n)
	}

	got, err := s.Fetch(ctx, "widgets", []string{"a"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got["a"][0] != "new" {
		t.Fatalf("expected row a to be [new], got %v", got["a"])
	}
}

func TestSaveReleaseRejectsMismatchedLock(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateTable(ctx, "widgets"); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := s.CreateTable(ctx, "gadgets"); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	_, lock, err := s.FetchAcquire(ctx, "widgets", nil)
	if err != nil {
		t.Fatalf("FetchAcquire: %v", err)
	}
	defer lock.Release()
	if _, err := s.SaveRelease(ctx, "gadgets", map[string]store.Row{"a": {"x"}}, lock); err == nil {
		t.Fatalf("expected mismatched-table lock to be rejected")
	}
}

func TestFilterKeys(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateTable(ctx, "widgets"); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := s.Save(ctx, map[string]map[string]store.Row{
		"widgets": {"1:a": {"x"}, "1:b": {"y"}, "2:a": {"z"}},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	keys, err := s.FilterKeys(ctx, "widgets", func(key string, _ store.Row) bool {
		return len(key) >= 2 && key[:2] == "1:"
	})
	if err != nil {
		t.Fatalf("FilterKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 matching keys, got %v", keys)
	}
}
