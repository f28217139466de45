package ordersync

import (
	"testing"

	"github.com/metalalive/ecommerce-go/internal/apperr"
)

func TestAcquireRejectsSecondAdmitter(t *testing.T) {
	m := NewManager()
	ticket, err := m.Acquire(1, "order-1")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	_, err = m.Acquire(1, "order-1")
	if err == nil {
		t.Fatalf("expected second Acquire for the same (usr, oid) to fail")
	}
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Kind != apperr.LoadOrderConflict {
		t.Fatalf("expected LoadOrderConflict, got %v", err)
	}

	ticket.Release()
	if _, err := m.Acquire(1, "order-1"); err != nil {
		t.Fatalf("expected Acquire to succeed after Release, got %v", err)
	}
}

func TestAcquireAllowsDistinctKeys(t *testing.T) {
	m := NewManager()
	if _, err := m.Acquire(1, "order-1"); err != nil {
		t.Fatalf("Acquire (usr=1): %v", err)
	}
	if _, err := m.Acquire(2, "order-1"); err != nil {
		t.Fatalf("expected a distinct usr to be admitted, got %v", err)
	}
	if _, err := m.Acquire(1, "order-2"); err != nil {
		t.Fatalf("expected a distinct oid to be admitted, got %v", err)
	}
}
