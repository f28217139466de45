// Package repo is the payment-side repository layer: a typed wrapper
// over the data-store port encoding ChargeBuyerModel, MerchantProfileModel,
// PayoutModel, and OrderRefundModel into store.Row values, the same way
// internal/order/repo does for the order side.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/payment/model"
	"github.com/metalalive/ecommerce-go/internal/store"
)

const (
	chargeTable   = "charge_buyer_toplvl"
	merchantTable = "merchant_profile"
	payoutTable   = "payout_meta"
	refundTable   = "order_refund"
)

type PaymentRepo struct {
	ds store.DataStore
}

func New(ds store.DataStore) *PaymentRepo {
	return &PaymentRepo{ds: ds}
}

func chargeKey(owner uint32, createTime time.Time) string {
	return uitoa(uint64(owner)) + ":" + createTime.UTC().Format("2006-01-02T15:04:05.000000")
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

func encodeCharge(c *model.ChargeBuyerModel) (store.Row, error) {
	buf, err := json.Marshal(c)
	if err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "encode charge", err)
	}
	return store.Row{string(buf)}, nil
}

func decodeCharge(r store.Row) (*model.ChargeBuyerModel, error) {
	if len(r) == 0 {
		return nil, apperr.New(apperr.MissingCharge, "charge not found")
	}
	var c model.ChargeBuyerModel
	if err := json.Unmarshal([]byte(r[0]), &c); err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "decode charge", err)
	}
	return &c, nil
}

// GetCharge loads one charge by its natural (owner, create_time) key.
func (r *PaymentRepo) GetCharge(ctx context.Context, owner uint32, createTime time.Time) (*model.ChargeBuyerModel, error) {
	key := chargeKey(owner, createTime)
	rows, err := r.ds.Fetch(ctx, chargeTable, []string{key})
	if err != nil {
		return nil, err
	}
	row, ok := rows[key]
	if !ok {
		return nil, apperr.New(apperr.MissingCharge, "charge not found")
	}
	return decodeCharge(row)
}

// FetchAcquireCharge locks a single charge row for read-modify-write
// (used by RefreshChargeStatus and CaptureCharge).
func (r *PaymentRepo) FetchAcquireCharge(ctx context.Context, owner uint32, createTime time.Time) (*model.ChargeBuyerModel, store.Lock, error) {
	key := chargeKey(owner, createTime)
	rows, lock, err := r.ds.FetchAcquire(ctx, chargeTable, []string{key})
	if err != nil {
		return nil, nil, err
	}
	row, ok := rows[key]
	if !ok {
		lock.Release()
		return nil, nil, apperr.New(apperr.MissingCharge, "charge not found")
	}
	c, err := decodeCharge(row)
	if err != nil {
		lock.Release()
		return nil, nil, err
	}
	return c, lock, nil
}

func (r *PaymentRepo) SaveReleaseCharge(ctx context.Context, c *model.ChargeBuyerModel, lock store.Lock) error {
	row, err := encodeCharge(c)
	if err != nil {
		return err
	}
	key := chargeKey(c.Meta.Owner, c.Meta.CreateTime)
	_, err = r.ds.SaveRelease(ctx, chargeTable, map[string]store.Row{key: row}, lock)
	return err
}

// CreateCharge persists a brand-new charge. It does not check for an
// existing row itself and overwrites any row at the same key; idempotent
// pay-in relies on the caller checking GetCharge first.
func (r *PaymentRepo) CreateCharge(ctx context.Context, c *model.ChargeBuyerModel) error {
	row, err := encodeCharge(c)
	if err != nil {
		return err
	}
	key := chargeKey(c.Meta.Owner, c.Meta.CreateTime)
	_, err = r.ds.Save(ctx, map[string]map[string]store.Row{chargeTable: {key: row}})
	return err
}

// ChargeIDsForOrder scans for every charge belonging to an order, for
// FinalizeRefund to spread a refund across.
func (r *PaymentRepo) ChargeIDsForOrder(ctx context.Context, orderID string) ([]string, error) {
	return r.ds.FilterKeys(ctx, chargeTable, func(_ string, row store.Row) bool {
		c, err := decodeCharge(row)
		return err == nil && c.Meta.OrderID == orderID
	})
}

// FetchAcquireChargeByKey locks a charge row addressed by its raw key
// (as returned by ChargeIDsForOrder), for FinalizeRefund which discovers
// charges by scan rather than by natural (owner, create_time) key.
func (r *PaymentRepo) FetchAcquireChargeByKey(ctx context.Context, key string) (*model.ChargeBuyerModel, store.Lock, error) {
	rows, lock, err := r.ds.FetchAcquire(ctx, chargeTable, []string{key})
	if err != nil {
		return nil, nil, err
	}
	row, ok := rows[key]
	if !ok {
		lock.Release()
		return nil, nil, apperr.New(apperr.MissingCharge, "charge not found")
	}
	c, err := decodeCharge(row)
	if err != nil {
		lock.Release()
		return nil, nil, err
	}
	return c, lock, nil
}

// FetchChargesByMerchant scans every charge touching storeID whose
// create_time falls in [from, to], for the reporting use case.
func (r *PaymentRepo) FetchChargesByMerchant(ctx context.Context, storeID uint32, from, to time.Time) ([]*model.ChargeBuyerModel, error) {
	keys, err := r.ds.FilterKeys(ctx, chargeTable, func(_ string, row store.Row) bool {
		c, err := decodeCharge(row)
		if err != nil {
			return false
		}
		if c.Meta.CreateTime.Before(from) || c.Meta.CreateTime.After(to) {
			return false
		}
		for _, l := range c.Lines {
			if l.PID.StoreID == storeID {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	rows, err := r.ds.Fetch(ctx, chargeTable, keys)
	if err != nil {
		return nil, err
	}
	out := make([]*model.ChargeBuyerModel, 0, len(keys))
	for _, key := range keys {
		c, err := decodeCharge(rows[key])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func merchantKey(storeID uint32) string { return uitoa(uint64(storeID)) }

func (r *PaymentRepo) GetMerchant(ctx context.Context, storeID uint32) (*model.MerchantProfileModel, error) {
	key := merchantKey(storeID)
	rows, err := r.ds.Fetch(ctx, merchantTable, []string{key})
	if err != nil {
		return nil, err
	}
	row, ok := rows[key]
	if !ok {
		return nil, apperr.New(apperr.MissingMerchant, "merchant not found")
	}
	var m model.MerchantProfileModel
	if err := json.Unmarshal([]byte(row[0]), &m); err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "decode merchant", err)
	}
	return &m, nil
}

func (r *PaymentRepo) SaveMerchant(ctx context.Context, m *model.MerchantProfileModel) error {
	buf, err := json.Marshal(m)
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode merchant", err)
	}
	_, err = r.ds.Save(ctx, map[string]map[string]store.Row{
		merchantTable: {merchantKey(m.StoreID): {string(buf)}},
	})
	return err
}

func payoutKey(buyerID uint32, chargeCTime time.Time, storeID uint32) string {
	return chargeKey(buyerID, chargeCTime) + ":" + uitoa(uint64(storeID))
}

func (r *PaymentRepo) GetPayout(ctx context.Context, buyerID uint32, chargeCTime time.Time, storeID uint32) (*model.PayoutModel, error) {
	key := payoutKey(buyerID, chargeCTime, storeID)
	rows, err := r.ds.Fetch(ctx, payoutTable, []string{key})
	if err != nil {
		return nil, err
	}
	row, ok := rows[key]
	if !ok || len(row) == 0 {
		return nil, nil
	}
	var p model.PayoutModel
	if err := json.Unmarshal([]byte(row[0]), &p); err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "decode payout", err)
	}
	return &p, nil
}

func (r *PaymentRepo) SavePayout(ctx context.Context, p *model.PayoutModel) error {
	buf, err := json.Marshal(p)
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode payout", err)
	}
	key := payoutKey(p.BuyerID, p.ChargeCTime, p.MerchantID)
	_, err = r.ds.Save(ctx, map[string]map[string]store.Row{payoutTable: {key: {string(buf)}}})
	return err
}

func (r *PaymentRepo) GetRefund(ctx context.Context, orderID string) (*model.OrderRefundModel, error) {
	rows, err := r.ds.Fetch(ctx, refundTable, []string{orderID})
	if err != nil {
		return nil, err
	}
	row, ok := rows[orderID]
	if !ok || len(row) == 0 {
		return &model.OrderRefundModel{OrderID: orderID}, nil
	}
	var m model.OrderRefundModel
	if err := json.Unmarshal([]byte(row[0]), &m); err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "decode refund", err)
	}
	return &m, nil
}

func (r *PaymentRepo) SaveRefund(ctx context.Context, m *model.OrderRefundModel) error {
	buf, err := json.Marshal(m)
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode refund", err)
	}
	_, err = r.ds.Save(ctx, map[string]map[string]store.Row{refundTable: {m.OrderID: {string(buf)}}})
	return err
}

const orderReplicaCacheTable = "order_replica_cache"

// GetCachedOrderReplica loads the local copy of an order replica
// fetched on an earlier CreateCharge, so a repeat call skips the RPC hop.
func (r *PaymentRepo) GetCachedOrderReplica(ctx context.Context, orderID string) (*model.CachedOrderReplica, error) {
	rows, err := r.ds.Fetch(ctx, orderReplicaCacheTable, []string{orderID})
	if err != nil {
		return nil, err
	}
	row, ok := rows[orderID]
	if !ok || len(row) == 0 {
		return nil, apperr.New(apperr.NotExist, "no cached order replica")
	}
	var replica model.CachedOrderReplica
	if err := json.Unmarshal([]byte(row[0]), &replica); err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "decode cached order replica", err)
	}
	return &replica, nil
}

func (r *PaymentRepo) SaveCachedOrderReplica(ctx context.Context, replica *model.CachedOrderReplica) error {
	buf, err := json.Marshal(replica)
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode cached order replica", err)
	}
	_, err = r.ds.Save(ctx, map[string]map[string]store.Row{
		orderReplicaCacheTable: {replica.OrderID: {string(buf)}},
	})
	return err
}

const schedulerTable = "job_scheduler"

func (r *PaymentRepo) LastTimeSynced(ctx context.Context) (time.Time, error) {
	rows, err := r.ds.Fetch(ctx, schedulerTable, []string{"sync_refund_req"})
	if err != nil {
		return time.Time{}, err
	}
	row, ok := rows["sync_refund_req"]
	if !ok || len(row) == 0 {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.DataCorruption, "parse scheduler time", err)
	}
	return t, nil
}

func (r *PaymentRepo) UpdateSyncedTime(ctx context.Context, at time.Time) error {
	n, err := r.ds.Save(ctx, map[string]map[string]store.Row{
		schedulerTable: {"sync_refund_req": {at.UTC().Format(time.RFC3339Nano)}},
	})
	if err != nil {
		return err
	}
	if n != 1 && n != 2 {
		return apperr.New(apperr.DataCorruption, "unexpected affected row count updating sync watermark")
	}
	return nil
}
