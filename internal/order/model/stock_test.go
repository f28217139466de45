package model

import (
	"testing"
	"time"
)

func TestProductStockAvailable(t *testing.T) {
	tests := []struct {
		name      string
		total     uint32
		booked    uint32
		cancelled uint32
		want      uint32
	}{
		{"fully available", 10, 0, 0, 10},
		{"partially booked", 10, 4, 0, 6},
		{"booked and cancelled", 10, 4, 3, 3},
		{"fully consumed", 10, 6, 4, 0},
		{"over-consumed clamps to zero", 10, 8, 4, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := ProductStock{Total: tc.total, Booked: tc.booked, Cancelled: tc.cancelled}
			if got := s.Available(); got != tc.want {
				t.Fatalf("Available() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestProductStockExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := ProductStock{Expiry: now}
	if !s.Expired(now) {
		t.Fatalf("expected batch to be expired exactly at its expiry")
	}
	if s.Expired(now.Add(-time.Second)) {
		t.Fatalf("expected batch to not be expired before its expiry")
	}
}

func TestProductStockCheckInvariants(t *testing.T) {
	t.Run("consistent state passes", func(t *testing.T) {
		s := ProductStock{
			Total: 10, Booked: 4, Cancelled: 2,
			Reservations: map[string]Reservation{"o1": {OrderID: "o1", Qty: 4}},
		}
		if err := s.CheckInvariants(); err != nil {
			t.Fatalf("expected valid state, got %v", err)
		}
	})

	t.Run("booked+cancelled exceeds total", func(t *testing.T) {
		s := ProductStock{Total: 5, Booked: 4, Cancelled: 4}
		if err := s.CheckInvariants(); err == nil {
			t.Fatalf("expected invariant violation")
		}
	})

	t.Run("reservation sum diverges from booked", func(t *testing.T) {
		s := ProductStock{
			Total: 10, Booked: 4,
			Reservations: map[string]Reservation{"o1": {OrderID: "o1", Qty: 3}},
		}
		if err := s.CheckInvariants(); err == nil {
			t.Fatalf("expected invariant violation")
		}
	})
}
