// Package ordersync is the order-sync lock: an at-most-one admitter per
// (usr, oid) pair, rejecting a second acquirer immediately with
// LoadOrderConflict rather than queueing. CreateCharge's order-fetch
// step needs mutual exclusion but not a persistent per-order goroutine,
// so this is a pure admission gate over one map of per-key state guarded
// by a mutex.
package ordersync

import (
	"sync"

	"github.com/metalalive/ecommerce-go/internal/apperr"
)

type key struct {
	usr uint32
	oid string
}

// Manager is the shared admission table every CreateCharge call consults
// before fetching and persisting an order replica.
type Manager struct {
	mu      sync.Mutex
	held    map[key]bool
}

func NewManager() *Manager {
	return &Manager{held: make(map[key]bool)}
}

// Ticket releases the admission slot it was issued for.
type Ticket struct {
	mgr *Manager
	k   key
}

func (t *Ticket) Release() {
	t.mgr.mu.Lock()
	delete(t.mgr.held, t.k)
	t.mgr.mu.Unlock()
}

// Acquire admits the caller if no other caller currently holds the lock
// for (usr, oid); otherwise it fails fast with LoadOrderConflict rather
// than queueing.
func (m *Manager) Acquire(usr uint32, oid string) (*Ticket, error) {
	k := key{usr: usr, oid: oid}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[k] {
		return nil, apperr.New(apperr.LoadOrderConflict, "order sync already in progress")
	}
	m.held[k] = true
	return &Ticket{mgr: m, k: k}, nil
}
