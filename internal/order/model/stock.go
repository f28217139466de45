package model

import (
	"time"

	"github.com/metalalive/ecommerce-go/internal/apperr"
)

// Reservation is one order's claim against a stock batch.
type Reservation struct {
	OrderID string
	Qty     uint32
	Expiry  time.Time
}

// ProductStock is one stock batch, keyed by (store, product, expiry)
// truncated to millisecond. total/booked/cancelled and the reservation
// map must always satisfy:
//   total >= booked + cancelled
//   booked == sum(reservations[*].Qty)
type ProductStock struct {
	PID              ProductID
	Expiry           time.Time
	Total            uint32
	Booked           uint32
	Cancelled        uint32
	PaidLastUpdate   time.Time
	Reservations     map[string]Reservation // keyed by order id
}

// Available is the quantity still free to reserve in this batch.
func (s ProductStock) Available() uint32 {
	used := s.Booked + s.Cancelled
	if used >= s.Total {
		return 0
	}
	return s.Total - used
}

// Expired reports whether this batch should no longer be considered
// for new reservations as of now.
func (s ProductStock) Expired(now time.Time) bool {
	return !now.Before(s.Expiry)
}

// CheckInvariants verifies the total/booked/cancelled/reservation-sum
// invariants for this batch.
func (s ProductStock) CheckInvariants() error {
	if s.Booked+s.Cancelled > s.Total {
		return apperr.New(apperr.DataCorruption, "booked+cancelled exceeds total")
	}
	var sum uint32
	for _, r := range s.Reservations {
		sum += r.Qty
	}
	if sum != s.Booked {
		return apperr.New(apperr.DataCorruption, "reservation sum diverges from booked")
	}
	return nil
}

// StoreStock is every stock batch a seller has for every product.
type StoreStock struct {
	StoreID uint32
	Batches []*ProductStock // ordered by product, then expiry ascending
}

// StockLevelSet is the StockLevelModelSet root aggregate: a view of
// every seller's batches relevant to one reservation attempt.
type StockLevelSet struct {
	Stores map[uint32]*StoreStock
}

func NewStockLevelSet() *StockLevelSet {
	return &StockLevelSet{Stores: make(map[uint32]*StoreStock)}
}

// BatchesFor returns the batches for one product, soonest-expiry-first,
// the order the reserve callback must consume them in.
func (s *StockLevelSet) BatchesFor(pid ProductID) []*ProductStock {
	store, ok := s.Stores[pid.StoreID]
	if !ok {
		return nil
	}
	out := make([]*ProductStock, 0, len(store.Batches))
	for _, b := range store.Batches {
		if b.PID == pid {
			out = append(out, b)
		}
	}
	return out // caller-maintained ordering: batches are appended expiry-ascending
}
