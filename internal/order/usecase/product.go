package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/currency"
	"github.com/metalalive/ecommerce-go/internal/order/model"
	"github.com/metalalive/ecommerce-go/internal/store"
)

const (
	productPriceTable  = "order_product_price"
	productPolicyTable = "order_product_policy"
)

// EditProductPriceRequest is the inbound shape for price edits a store
// pushes down via rpc.order.update_store_products: replace the whole
// price set for a store/currency pair in one write.
type EditProductPriceRequest struct {
	StoreID  uint32
	Currency string
	Items    []model.PriceItem
}

func (s *Service) EditProductPrice(ctx context.Context, req EditProductPriceRequest) error {
	set := model.ProductPriceSet{StoreID: req.StoreID, Currency: currency.Label(req.Currency), Items: req.Items}
	buf, err := json.Marshal(set)
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode product price set", err)
	}
	_, err = s.ds.Save(ctx, map[string]map[string]store.Row{
		productPriceTable: {storeKey(req.StoreID): {string(buf)}},
	})
	return err
}

func storeKey(storeID uint32) string {
	return "store:" + decimal.NewFromInt(int64(storeID)).String()
}

// EditProductPolicyRequest updates the auto-cancel/warranty/quantity
// bounds for one product.
type EditProductPolicyRequest struct {
	Policy model.ProductPolicy
}

func (s *Service) EditProductPolicy(ctx context.Context, req EditProductPolicyRequest) error {
	if err := req.Policy.Validate(); err != nil {
		return err
	}
	buf, err := json.Marshal(req.Policy)
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode product policy", err)
	}
	key := policyKey(req.Policy.PID)
	_, err = s.ds.Save(ctx, map[string]map[string]store.Row{
		productPolicyTable: {key: {string(buf)}},
	})
	return err
}

func policyKey(pid model.ProductID) string {
	return storeKey(pid.StoreID) + ":" + decimal.NewFromInt(int64(pid.ProductID)).String()
}

// LoadPolicies fetches the ProductPolicy rows for a set of product ids.
// AddReturn uses it; CreateOrder takes its policies from the request
// instead.
func (s *Service) LoadPolicies(ctx context.Context, pids []model.ProductID) (map[model.ProductID]model.ProductPolicy, error) {
	keys := make([]string, len(pids))
	for i, p := range pids {
		keys[i] = policyKey(p)
	}
	rows, err := s.ds.Fetch(ctx, productPolicyTable, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[model.ProductID]model.ProductPolicy, len(rows))
	for i, p := range pids {
		row, ok := rows[keys[i]]
		if !ok || len(row) == 0 {
			continue
		}
		var pol model.ProductPolicy
		if err := json.Unmarshal([]byte(row[0]), &pol); err != nil {
			return nil, apperr.Wrap(apperr.DataCorruption, "decode product policy", err)
		}
		out[p] = pol
	}
	return out, nil
}

// StockLevelRequest edits a store's stock batches directly via
// rpc.order.stock_level_edit: create-on-first-edit, mutate thereafter,
// never delete.
type StockLevelRequest struct {
	StoreID uint32
	Batches []StockBatchEdit
}

type StockBatchEdit struct {
	ProductID uint64
	Expiry    time.Time
	Total     uint32
}

func (s *Service) StockLevel(ctx context.Context, req StockLevelRequest) error {
	updates := make(map[string]store.Row, len(req.Batches))
	keys := make([]string, len(req.Batches))
	for i, b := range req.Batches {
		keys[i] = stockEditKey(req.StoreID, b.ProductID, b.Expiry)
	}
	existing, err := s.ds.Fetch(ctx, "order_stock_level", keys)
	if err != nil {
		return err
	}
	for i, b := range req.Batches {
		key := keys[i]
		var booked, cancelled uint32
		reservations := map[string]model.Reservation{}
		if row, ok := existing[key]; ok && len(row) > 0 {
			var prior stockRow
			if err := json.Unmarshal([]byte(row[0]), &prior); err == nil {
				booked, cancelled, reservations = prior.Booked, prior.Cancelled, prior.Reservations
			}
		}
		out := stockRow{
			StoreID: req.StoreID, ProductID: b.ProductID, Expiry: b.Expiry,
			Total: b.Total, Booked: booked, Cancelled: cancelled, Reservations: reservations,
		}
		buf, err := json.Marshal(out)
		if err != nil {
			return apperr.Wrap(apperr.DataCorruption, "encode stock batch", err)
		}
		updates[key] = store.Row{string(buf)}
	}
	_, err = s.ds.Save(ctx, map[string]map[string]store.Row{"order_stock_level": updates})
	return err
}

type stockRow struct {
	StoreID      uint32                       `json:"store_id"`
	ProductID    uint64                       `json:"product_id"`
	Expiry       time.Time                    `json:"expiry"`
	Total        uint32                       `json:"total"`
	Booked       uint32                       `json:"booked"`
	Cancelled    uint32                       `json:"cancelled"`
	Reservations map[string]model.Reservation `json:"reservations"`
}

func stockEditKey(storeID uint32, productID uint64, expiry time.Time) string {
	return decimal.NewFromInt(int64(storeID)).String() + ":" + decimal.NewFromInt(int64(productID)).String() + ":" + expiry.UTC().Format("2006-01-02T15:04:05.000")
}
