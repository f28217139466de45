// Package inmem implements the data-store port over plain Go maps,
// guarded by one mutex per table. FetchAcquire holds that mutex for the
// whole acquire-to-release window: the caller must not suspend on
// another lock-taking call while holding it, or the process deadlocks
// against itself.
package inmem

import (
	"context"
	"sync"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/store"
)

type table struct {
	mu   sync.Mutex
	rows map[string]store.Row
}

type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
}

func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

func (s *Store) CreateTable(_ context.Context, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[label]; ok {
		return nil
	}
	s.tables[label] = &table{rows: make(map[string]store.Row)}
	return nil
}

func (s *Store) table(label string) (*table, error) {
	s.mu.RLock()
	t, ok := s.tables[label]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.DataTableNotExist, label)
	}
	return t, nil
}

func (s *Store) Save(_ context.Context, updates map[string]map[string]store.Row) (int, error) {
	written := 0
	for label, rows := range updates {
		t, err := s.table(label)
		if err != nil {
			return written, err
		}
		t.mu.Lock()
		for k, v := range rows {
			t.rows[k] = v
			written++
		}
		t.mu.Unlock()
	}
	return written, nil
}

func (s *Store) Fetch(_ context.Context, label string, keys []string) (map[string]store.Row, error) {
	t, err := s.table(label)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]store.Row, len(keys))
	for _, k := range keys {
		if r, ok := t.rows[k]; ok {
			out[k] = r
		}
	}
	return out, nil
}

type memLock struct {
	t    *table
	done bool
}

func (l *memLock) Release() {
	if !l.done {
		l.t.mu.Unlock()
		l.done = true
	}
}

func (s *Store) FetchAcquire(_ context.Context, label string, keys []string) (map[string]store.Row, store.Lock, error) {
	t, err := s.table(label)
	if err != nil {
		return nil, nil, err
	}
	t.mu.Lock()
	out := make(map[string]store.Row, len(keys))
	for _, k := range keys {
		if r, ok := t.rows[k]; ok {
			out[k] = r
		}
	}
	return out, &memLock{t: t}, nil
}

func (s *Store) SaveRelease(_ context.Context, label string, data map[string]store.Row, lock store.Lock) (int, error) {
	t, err := s.table(label)
	if err != nil {
		return 0, err
	}
	ml, ok := lock.(*memLock)
	if !ok || ml.t != t {
		return 0, apperr.New(apperr.DataCorruption, "lock does not match table "+label)
	}
	defer ml.Release()
	for k, v := range data {
		t.rows[k] = v
	}
	return len(data), nil
}

func (s *Store) Delete(_ context.Context, label string, keys []string) (int, error) {
	t, err := s.table(label)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := t.rows[k]; ok {
			delete(t.rows, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) FilterKeys(_ context.Context, label string, pred func(key string, row store.Row) bool) ([]string, error) {
	t, err := s.table(label)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for k, r := range t.rows {
		if pred(k, r) {
			out = append(out, k)
		}
	}
	return out, nil
}
