package reservation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/order/model"
	"github.com/metalalive/ecommerce-go/internal/store"
)

const orderLineTableLabel = "order_line_set"

// PaidLineUpdate is one input line of UpdateLinesPayment: the quantity
// to add to paid.qty for a given product within an order.
type PaidLineUpdate struct {
	PID        model.ProductID
	AddQty     uint32
	ChargeTime time.Time
}

// LineRepo is the narrow persistence seam UpdateLinesPayment and the
// discard sweep need against order-line sets; a concrete repository
// (internal/order/repo) implements this against the data-store port.
type LineRepo interface {
	FetchAcquireLines(ctx context.Context, orderID string) (*model.OrderLineSet, store.Lock, error)
	SaveReleaseLines(ctx context.Context, set *model.OrderLineSet, lock store.Lock) error
	FetchLinesByReserveTime(ctx context.Context, from, to time.Time) ([]*model.OrderLineSet, error)
}

// UpdatePaymentError is what UpdateLinesPayment returns per
// unmatched/invalid line.
type UpdatePaymentError struct {
	PID  model.ProductID
	Kind apperr.Kind
}

// UpdateLinesPayment loads the identified order, applies each update,
// fails per-line (NotExist / InvalidQuantity / ReservationExpired /
// Omitted), and persists atomically only when at least one line applies.
func UpdateLinesPayment(ctx context.Context, repo LineRepo, orderID string, updates []PaidLineUpdate) ([]UpdatePaymentError, error) {
	set, lock, err := repo.FetchAcquireLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	released := false
	release := func() {
		if !released {
			lock.Release()
			released = true
		}
	}
	defer release()

	byPID := make(map[model.ProductID]*model.OrderLine, len(set.Lines))
	for i := range set.Lines {
		byPID[set.Lines[i].PID] = &set.Lines[i]
	}

	var errs []UpdatePaymentError
	dirty := false
	for _, u := range updates {
		line, ok := byPID[u.PID]
		if !ok {
			errs = append(errs, UpdatePaymentError{PID: u.PID, Kind: apperr.NotExist})
			continue
		}
		if line.PaidTotal.Qty+u.AddQty > line.RsvTotal.Qty {
			errs = append(errs, UpdatePaymentError{PID: u.PID, Kind: apperr.InvalidQuantity})
			continue
		}
		if !u.ChargeTime.Before(line.ReservedUntil) && line.PaidTotal.Qty == 0 {
			errs = append(errs, UpdatePaymentError{PID: u.PID, Kind: apperr.ReservationExpired})
			continue
		}
		if u.AddQty == 0 {
			errs = append(errs, UpdatePaymentError{PID: u.PID, Kind: apperr.Omitted})
			continue
		}
		line.PaidTotal.Qty += u.AddQty
		line.PaidTotal.Unit = line.RsvTotal.Unit
		line.PaidTotal.Total = line.PaidTotal.Unit.Mul(decimal.NewFromInt(int64(line.PaidTotal.Qty)))
		line.PaidLastUpdate = u.ChargeTime
		dirty = true
	}

	if dirty {
		if err := repo.SaveReleaseLines(ctx, set, lock); err != nil {
			return nil, err
		}
		released = true
	}
	return errs, nil
}

// DiscardUnpaid sweeps unpaid reservations: every line whose reservation
// window closed in [from, now] and whose paid.qty is still short of
// rsv.qty has the shortfall moved from booked to cancelled on its
// backing stock batch, and the reservation entry for that order is
// removed so a repeated sweep is a no-op.
func DiscardUnpaid(ctx context.Context, lineRepo LineRepo, stockEngine *Engine, from, now time.Time) error {
	sets, err := lineRepo.FetchLinesByReserveTime(ctx, from, now)
	if err != nil {
		return err
	}
	for _, set := range sets {
		if err := sweepOne(ctx, stockEngine, set, now); err != nil {
			return err
		}
	}
	return nil
}

func sweepOne(ctx context.Context, engine *Engine, set *model.OrderLineSet, now time.Time) error {
	var toSweep []model.OrderLine
	for _, l := range set.Lines {
		if l.Expired(now) && l.PaidTotal.Qty < l.RsvTotal.Qty {
			toSweep = append(toSweep, l)
		}
	}
	if len(toSweep) == 0 {
		return nil
	}

	allKeys := make([]string, 0, len(toSweep))
	perPID := make(map[model.ProductID][]string, len(toSweep))
	for _, l := range toSweep {
		keys, err := engine.findCandidateKeys(ctx, l.PID)
		if err != nil {
			return err
		}
		perPID[l.PID] = keys
		allKeys = append(allKeys, keys...)
	}

	data, lock, err := engine.ds.FetchAcquire(ctx, stockTableLabel, allKeys)
	if err != nil {
		return err
	}
	released := false
	defer func() {
		if !released {
			lock.Release()
		}
	}()

	toSave := make(map[string]store.Row)
	for _, l := range toSweep {
		shortfall := l.RsvTotal.Qty - l.PaidTotal.Qty
		for _, key := range perPID[l.PID] {
			row, ok := data[key]
			if !ok {
				continue
			}
			b, err := decodeBatch(row)
			if err != nil {
				return err
			}
			res, ok := b.Reservations[set.OrderID]
			if !ok || res.Qty == 0 {
				continue
			}
			take := shortfall
			if take > res.Qty {
				take = res.Qty
			}
			b.Booked -= take
			b.Cancelled += take
			res.Qty -= take
			if res.Qty == 0 {
				delete(b.Reservations, set.OrderID)
			} else {
				b.Reservations[set.OrderID] = res
			}
			toSave[key] = encodeBatch(b)
			shortfall -= take
			if shortfall == 0 {
				break
			}
		}
	}

	if _, err := engine.ds.SaveRelease(ctx, stockTableLabel, toSave, lock); err != nil {
		return err
	}
	released = true
	return nil
}
