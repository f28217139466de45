// Package reservation is the order-side stock engine: reserve against
// expiry-ordered batches, apply realized payments onto reserved lines,
// and sweep unpaid reservations past their deadline. All three operate
// under the data-store port's fetch-acquire/save-release exclusive-locking
// contract rather than an in-process command channel, because the lock
// must hold across a real persistence round trip and the store port
// already serializes that for both backends.
package reservation

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/order/model"
	"github.com/metalalive/ecommerce-go/internal/store"
)

const stockTableLabel = "order_stock_level"

// LineCreateError is one line's reason for rejecting a reservation attempt.
type LineCreateError struct {
	PID    model.ProductID
	Kind   apperr.Kind
	Detail string
}

// OrderLineRequest is one requested line of a new reservation.
type OrderLineRequest struct {
	PID      model.ProductID
	Unit     model.LineAmount // Unit.Unit carries price; Qty carries requested quantity
	ReservedUntil time.Time
}

// ReserveRequest is the candidate order's lines plus the product
// policies governing them, keyed by product id.
type ReserveRequest struct {
	OrderID  string
	Lines    []OrderLineRequest
	Policies map[model.ProductID]model.ProductPolicy
}

// Engine serializes reservation attempts through the data-store port's
// exclusive lock, per batch key set.
type Engine struct {
	ds store.DataStore
}

func NewEngine(ds store.DataStore) *Engine {
	return &Engine{ds: ds}
}

func batchKey(pid model.ProductID, expiry time.Time) string {
	return fmtUint(pid.StoreID) + ":" + fmtUint(pid.ProductID) + ":" + expiry.UTC().Format("2006-01-02T15:04:05.000")
}

func fmtUint(v any) string {
	switch n := v.(type) {
	case uint32:
		return uitoa(uint64(n))
	case uint64:
		return uitoa(n)
	default:
		return ""
	}
}

func uitoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

type batchRow struct {
	StoreID        uint32                          `json:"store_id"`
	ProductID      uint64                          `json:"product_id"`
	Expiry         time.Time                       `json:"expiry"`
	Total          uint32                           `json:"total"`
	Booked         uint32                           `json:"booked"`
	Cancelled      uint32                           `json:"cancelled"`
	PaidLastUpdate time.Time                        `json:"paid_last_update"`
	Reservations   map[string]model.Reservation     `json:"reservations"`
}

func encodeBatch(b *model.ProductStock) store.Row {
	row := batchRow{
		StoreID: b.PID.StoreID, ProductID: b.PID.ProductID, Expiry: b.Expiry,
		Total: b.Total, Booked: b.Booked, Cancelled: b.Cancelled,
		PaidLastUpdate: b.PaidLastUpdate, Reservations: b.Reservations,
	}
	buf, _ := json.Marshal(row)
	return store.Row{string(buf)}
}

func decodeBatch(r store.Row) (*model.ProductStock, error) {
	if len(r) == 0 {
		return nil, apperr.New(apperr.DataCorruption, "empty stock row")
	}
	var row batchRow
	if err := json.Unmarshal([]byte(r[0]), &row); err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "decode stock row", err)
	}
	if row.Reservations == nil {
		row.Reservations = make(map[string]model.Reservation)
	}
	return &model.ProductStock{
		PID:            model.ProductID{StoreID: row.StoreID, ProductID: row.ProductID},
		Expiry:         row.Expiry,
		Total:          row.Total,
		Booked:         row.Booked,
		Cancelled:      row.Cancelled,
		PaidLastUpdate: row.PaidLastUpdate,
		Reservations:   row.Reservations,
	}, nil
}

// findCandidateKeys asks the store which batch keys exist for a pid,
// soonest-expiry-first, via FilterKeys over the shared table.
func (e *Engine) findCandidateKeys(ctx context.Context, pid model.ProductID) ([]string, error) {
	prefix := fmtUint(pid.StoreID) + ":" + fmtUint(pid.ProductID) + ":"
	keys, err := e.ds.FilterKeys(ctx, stockTableLabel, func(key string, _ store.Row) bool {
		return len(key) >= len(prefix) && key[:len(prefix)] == prefix
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys) // ISO timestamp suffix sorts lexicographically == chronologically
	return keys, nil
}

// TryReserve loads every batch covering the requested lines under a
// write lock, attempts to satisfy each line from its soonest-non-expired
// batches, and persists atomically only if every line succeeds.
func (e *Engine) TryReserve(ctx context.Context, now time.Time, req ReserveRequest) ([]LineCreateError, error) {
	if len(req.Lines) == 0 {
		return []LineCreateError{{Kind: apperr.EmptyInputData, Detail: "no lines in request"}}, nil
	}

	allKeys := make([]string, 0, len(req.Lines)*2)
	perLineKeys := make(map[model.ProductID][]string, len(req.Lines))
	for _, line := range req.Lines {
		keys, err := e.findCandidateKeys(ctx, line.PID)
		if err != nil {
			return nil, err
		}
		perLineKeys[line.PID] = keys
		allKeys = append(allKeys, keys...)
	}

	data, lock, err := e.ds.FetchAcquire(ctx, stockTableLabel, allKeys)
	if err != nil {
		return nil, err
	}
	defer func() {
		if lock != nil {
			lock.Release()
		}
	}()

	batches := make(map[string]*model.ProductStock, len(data))
	for k, row := range data {
		b, err := decodeBatch(row)
		if err != nil {
			return nil, err
		}
		batches[k] = b
	}

	var lineErrs []LineCreateError
	updated := make(map[string]*model.ProductStock)

	for _, line := range req.Lines {
		if line.Unit.Qty == 0 {
			lineErrs = append(lineErrs, LineCreateError{PID: line.PID, Kind: apperr.InvalidQuantity, Detail: "zero quantity"})
			continue
		}
		if pol, ok := req.Policies[line.PID]; ok && !pol.QuantityAllowed(line.Unit.Qty) {
			lineErrs = append(lineErrs, LineCreateError{PID: line.PID, Kind: apperr.QtyLimitExceed, Detail: "quantity outside policy bounds"})
			continue
		}
		remain := line.Unit.Qty
		var touched []*model.ProductStock
		for _, key := range perLineKeys[line.PID] {
			b, ok := batches[key]
			if !ok || b.Expired(now) {
				continue
			}
			avail := b.Available()
			if avail == 0 {
				continue
			}
			take := remain
			if take > avail {
				take = avail
			}
			b.Booked += take
			if b.Reservations == nil {
				b.Reservations = make(map[string]model.Reservation)
			}
			existing := b.Reservations[req.OrderID]
			existing.OrderID = req.OrderID
			existing.Qty += take
			existing.Expiry = line.ReservedUntil
			b.Reservations[req.OrderID] = existing
			updated[key] = b
			touched = append(touched, b)
			remain -= take
			if remain == 0 {
				break
			}
		}
		if remain > 0 {
			// roll back this line's partial bookings before reporting failure
			for _, b := range touched {
				res := b.Reservations[req.OrderID]
				b.Booked -= res.Qty
				delete(b.Reservations, req.OrderID)
			}
			lineErrs = append(lineErrs, LineCreateError{PID: line.PID, Kind: apperr.ReservationExpired, Detail: "insufficient unexpired stock"})
		}
	}

	if len(lineErrs) > 0 {
		return lineErrs, nil
	}

	for _, b := range updated {
		if err := b.CheckInvariants(); err != nil {
			return nil, err
		}
	}

	toSave := make(map[string]store.Row, len(updated))
	for key, b := range updated {
		toSave[key] = encodeBatch(b)
	}
	if _, err := e.ds.SaveRelease(ctx, stockTableLabel, toSave, lock); err != nil {
		return nil, err
	}
	lock = nil // SaveRelease already released it
	return nil, nil
}

// ReturnError is one item's reason for rejecting a return-cancelled request.
type ReturnError struct {
	PID    model.ProductID
	Kind   apperr.Kind
	Detail string
}

// ReturnItem is one requested item of rpc.order.stock_return_cancelled:
// a batch identified by (pid, expiry) gets qty moved back out of
// Cancelled, undoing an earlier DiscardUnpaid sweep or manual cancel.
type ReturnItem struct {
	PID    model.ProductID
	Expiry time.Time
	Qty    uint32
}

// ReturnCancelled implements the inventory-service-driven "undo a
// cancellation" operation: for each item, locate its batch and move qty
// out of Cancelled back into available headroom. A batch missing or
// holding less than qty cancelled is reported per-item rather than
// aborting the whole request.
func (e *Engine) ReturnCancelled(ctx context.Context, items []ReturnItem) ([]ReturnError, error) {
	if len(items) == 0 {
		return nil, nil
	}
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = batchKey(it.PID, it.Expiry)
	}
	data, lock, err := e.ds.FetchAcquire(ctx, stockTableLabel, keys)
	if err != nil {
		return nil, err
	}
	defer func() {
		if lock != nil {
			lock.Release()
		}
	}()

	var errs []ReturnError
	toSave := make(map[string]store.Row)
	for i, it := range items {
		key := keys[i]
		row, ok := data[key]
		if !ok {
			errs = append(errs, ReturnError{PID: it.PID, Kind: apperr.NotExist, Detail: "stock batch not found"})
			continue
		}
		b, err := decodeBatch(row)
		if err != nil {
			return nil, err
		}
		if it.Qty > b.Cancelled {
			errs = append(errs, ReturnError{PID: it.PID, Kind: apperr.QtyLimitExceed, Detail: "return quantity exceeds cancelled quantity"})
			continue
		}
		b.Cancelled -= it.Qty
		if err := b.CheckInvariants(); err != nil {
			return nil, err
		}
		toSave[key] = encodeBatch(b)
	}

	if len(toSave) > 0 {
		if _, err := e.ds.SaveRelease(ctx, stockTableLabel, toSave, lock); err != nil {
			return nil, err
		}
	} else {
		lock.Release()
	}
	lock = nil
	return errs, nil
}
