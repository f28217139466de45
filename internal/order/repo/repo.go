// Package repo is the order-side repository layer: a thin typed wrapper
// over the data-store port (internal/store) that encodes/decodes
// OrderLineSet, BillingModel, and ShippingModel into store.Row values.
// It implements reservation.LineRepo so the reservation engine never
// imports persistence details directly.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/order/model"
	"github.com/metalalive/ecommerce-go/internal/order/returns"
	"github.com/metalalive/ecommerce-go/internal/store"
)

const (
	lineSetTable = "order_line_set"
	billingTable = "order_billing"
	shippingTable = "order_shipping"
	returnsTable  = "order_returns"
)

type OrderRepo struct {
	ds store.DataStore
}

func New(ds store.DataStore) *OrderRepo {
	return &OrderRepo{ds: ds}
}

type lineSetRow struct {
	OrderID          string                           `json:"order_id"`
	BuyerID          uint32                           `json:"buyer_id"`
	CreateTime       time.Time                        `json:"create_time"`
	CurrencySnapshot map[uint32]model.CurrencyEntry    `json:"currency_snapshot"`
	Lines            []model.OrderLine                `json:"lines"`
}

func encodeLineSet(s *model.OrderLineSet) (store.Row, error) {
	row := lineSetRow{
		OrderID: s.OrderID, BuyerID: s.BuyerID, CreateTime: s.CreateTime,
		CurrencySnapshot: s.CurrencySnapshot, Lines: s.Lines,
	}
	buf, err := json.Marshal(row)
	if err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "encode order line set", err)
	}
	return store.Row{string(buf)}, nil
}

func decodeLineSet(r store.Row) (*model.OrderLineSet, error) {
	if len(r) == 0 {
		return nil, apperr.New(apperr.NotExist, "order not found")
	}
	var row lineSetRow
	if err := json.Unmarshal([]byte(r[0]), &row); err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "decode order line set", err)
	}
	return &model.OrderLineSet{
		OrderID: row.OrderID, BuyerID: row.BuyerID, CreateTime: row.CreateTime,
		CurrencySnapshot: row.CurrencySnapshot, Lines: row.Lines,
	}, nil
}

func (r *OrderRepo) CreateOrder(ctx context.Context, set *model.OrderLineSet, billing *model.BillingModel, shipping *model.ShippingModel) error {
	if err := set.Validate(); err != nil {
		return err
	}
	lineRow, err := encodeLineSet(set)
	if err != nil {
		return err
	}
	billingBuf, err := json.Marshal(billing)
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode billing", err)
	}
	shippingBuf, err := json.Marshal(shipping)
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode shipping", err)
	}
	updates := map[string]map[string]store.Row{
		lineSetTable:  {set.OrderID: lineRow},
		billingTable:  {set.OrderID: {string(billingBuf)}},
		shippingTable: {set.OrderID: {string(shippingBuf)}},
	}
	_, err = r.ds.Save(ctx, updates)
	return err
}

// GetUnpaidLines loads an order's line set if any line is still short of
// fully paid.
func (r *OrderRepo) GetUnpaidLines(ctx context.Context, orderID string) (*model.OrderLineSet, error) {
	rows, err := r.ds.Fetch(ctx, lineSetTable, []string{orderID})
	if err != nil {
		return nil, err
	}
	row, ok := rows[orderID]
	if !ok {
		return nil, apperr.New(apperr.NotExist, "order not found")
	}
	set, err := decodeLineSet(row)
	if err != nil {
		return nil, err
	}
	for _, l := range set.Lines {
		if l.PaidTotal.Qty < l.RsvTotal.Qty {
			return set, nil
		}
	}
	return nil, apperr.New(apperr.NotExist, "order fully paid")
}

// GetLines loads an order's line set regardless of payment completeness,
// for projections (e.g. the refund replica) that need paid orders too.
func (r *OrderRepo) GetLines(ctx context.Context, orderID string) (*model.OrderLineSet, error) {
	rows, err := r.ds.Fetch(ctx, lineSetTable, []string{orderID})
	if err != nil {
		return nil, err
	}
	row, ok := rows[orderID]
	if !ok {
		return nil, apperr.New(apperr.NotExist, "order not found")
	}
	return decodeLineSet(row)
}

func (r *OrderRepo) FetchAcquireLines(ctx context.Context, orderID string) (*model.OrderLineSet, store.Lock, error) {
	rows, lock, err := r.ds.FetchAcquire(ctx, lineSetTable, []string{orderID})
	if err != nil {
		return nil, nil, err
	}
	row, ok := rows[orderID]
	if !ok {
		lock.Release()
		return nil, nil, apperr.New(apperr.NotExist, "order not found")
	}
	set, err := decodeLineSet(row)
	if err != nil {
		lock.Release()
		return nil, nil, err
	}
	return set, lock, nil
}

func (r *OrderRepo) SaveReleaseLines(ctx context.Context, set *model.OrderLineSet, lock store.Lock) error {
	row, err := encodeLineSet(set)
	if err != nil {
		return err
	}
	_, err = r.ds.SaveRelease(ctx, lineSetTable, map[string]store.Row{set.OrderID: row}, lock)
	return err
}

// FetchLinesByReserveTime loads every order-line set with at least one
// line whose reserved_until falls in [from, to], for the discard-unpaid
// sweep.
func (r *OrderRepo) FetchLinesByReserveTime(ctx context.Context, from, to time.Time) ([]*model.OrderLineSet, error) {
	keys, err := r.ds.FilterKeys(ctx, lineSetTable, func(_ string, row store.Row) bool {
		set, err := decodeLineSet(row)
		if err != nil {
			return false
		}
		for _, l := range set.Lines {
			if !l.ReservedUntil.Before(from) && !l.ReservedUntil.After(to) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	rows, err := r.ds.Fetch(ctx, lineSetTable, keys)
	if err != nil {
		return nil, err
	}
	out := make([]*model.OrderLineSet, 0, len(rows))
	for _, row := range rows {
		set, err := decodeLineSet(row)
		if err != nil {
			return nil, err
		}
		out = append(out, set)
	}
	return out, nil
}

// schedulerTable holds the last-run watermark for periodic sweep jobs.
const schedulerTable = "job_scheduler"

func (r *OrderRepo) CancelUnpaidLastTime(ctx context.Context) (time.Time, error) {
	rows, err := r.ds.Fetch(ctx, schedulerTable, []string{"discard_unpaid"})
	if err != nil {
		return time.Time{}, err
	}
	row, ok := rows["discard_unpaid"]
	if !ok || len(row) == 0 {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.DataCorruption, "parse scheduler time", err)
	}
	return t, nil
}

func (r *OrderRepo) CancelUnpaidTimeUpdate(ctx context.Context, at time.Time) error {
	_, err := r.ds.Save(ctx, map[string]map[string]store.Row{
		schedulerTable: {"discard_unpaid": {at.UTC().Format(time.RFC3339Nano)}},
	})
	return err
}

// credentialTable holds buyer registration credentials: email -> bcrypt
// hash + buyer ID.
const credentialTable = "order_buyer_credential"

func (r *OrderRepo) SaveBuyerCredential(ctx context.Context, email string, buyerID uint32, hash []byte) error {
	row := store.Row{fmt.Sprintf("%d", buyerID), string(hash)}
	_, err := r.ds.Save(ctx, map[string]map[string]store.Row{credentialTable: {email: row}})
	return err
}

func (r *OrderRepo) GetBuyerCredential(ctx context.Context, email string) (uint32, []byte, error) {
	rows, err := r.ds.Fetch(ctx, credentialTable, []string{email})
	if err != nil {
		return 0, nil, err
	}
	row, ok := rows[email]
	if !ok || len(row) < 2 {
		return 0, nil, apperr.New(apperr.InvalidCredential, "no such account")
	}
	var buyerID uint32
	if _, err := fmt.Sscanf(row[0], "%d", &buyerID); err != nil {
		return 0, nil, apperr.Wrap(apperr.DataCorruption, "parse buyer id", err)
	}
	return buyerID, []byte(row[1]), nil
}

// GetBilling loads the billing contact an order was created with.
func (r *OrderRepo) GetBilling(ctx context.Context, orderID string) (*model.BillingModel, error) {
	rows, err := r.ds.Fetch(ctx, billingTable, []string{orderID})
	if err != nil {
		return nil, err
	}
	row, ok := rows[orderID]
	if !ok || len(row) == 0 {
		return nil, apperr.New(apperr.NotExist, "billing not found")
	}
	var out model.BillingModel
	if err := json.Unmarshal([]byte(row[0]), &out); err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "decode billing", err)
	}
	return &out, nil
}

func (r *OrderRepo) SaveBilling(ctx context.Context, billing *model.BillingModel) error {
	buf, err := json.Marshal(billing)
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode billing", err)
	}
	_, err = r.ds.Save(ctx, map[string]map[string]store.Row{billingTable: {billing.OrderID: {string(buf)}}})
	return err
}

// GetShipping loads the shipping contact an order was created with.
func (r *OrderRepo) GetShipping(ctx context.Context, orderID string) (*model.ShippingModel, error) {
	rows, err := r.ds.Fetch(ctx, shippingTable, []string{orderID})
	if err != nil {
		return nil, err
	}
	row, ok := rows[orderID]
	if !ok || len(row) == 0 {
		return nil, apperr.New(apperr.NotExist, "shipping not found")
	}
	var out model.ShippingModel
	if err := json.Unmarshal([]byte(row[0]), &out); err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "decode shipping", err)
	}
	return &out, nil
}

func (r *OrderRepo) SaveShipping(ctx context.Context, shipping *model.ShippingModel) error {
	buf, err := json.Marshal(shipping)
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode shipping", err)
	}
	_, err = r.ds.Save(ctx, map[string]map[string]store.Row{shippingTable: {shipping.OrderID: {string(buf)}}})
	return err
}

// GetReturns loads the running return ledger for an order, handing back
// a fresh empty model the first time a return is recorded against it.
func (r *OrderRepo) GetReturns(ctx context.Context, orderID string) (*returns.OrderReturnModel, error) {
	rows, err := r.ds.Fetch(ctx, returnsTable, []string{orderID})
	if err != nil {
		return nil, err
	}
	row, ok := rows[orderID]
	if !ok || len(row) == 0 {
		return returns.NewOrderReturnModel(orderID), nil
	}
	var out returns.OrderReturnModel
	if err := json.Unmarshal([]byte(row[0]), &out); err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "decode order returns", err)
	}
	return &out, nil
}

func (r *OrderRepo) SaveReturns(ctx context.Context, m *returns.OrderReturnModel) error {
	buf, err := json.Marshal(m)
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode order returns", err)
	}
	_, err = r.ds.Save(ctx, map[string]map[string]store.Row{returnsTable: {m.OrderID: {string(buf)}}})
	return err
}
