package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/order/model"
)

// OrderReplicaPayment is the projection payment's CreateCharge RPCs for
// when it fetches an order replica. It mirrors what the order service
// returns on rpc.order.order_reserved_replica_payment; its field names
// and JSON shape match internal/payment/model.CachedOrderReplica on the
// consuming side.
type OrderReplicaPayment struct {
	OrderID          string
	BuyerID          uint32
	CreateTime       time.Time
	CurrencySnapshot map[uint32]model.CurrencyEntry
	Lines            []OrderReplicaLine
}

type OrderReplicaLine struct {
	PID           model.ProductID
	Unit          decimal.Decimal
	Total         decimal.Decimal
	Qty           uint32
	ReservedUntil time.Time
}

// BuildOrderReplicaPayment projects a persisted OrderLineSet into the
// payment-facing replica DTO, used both to answer the RPC route
// directly and, in tests, to assert the projection's shape.
func (s *Service) BuildOrderReplicaPayment(ctx context.Context, orderID string) (*OrderReplicaPayment, error) {
	set, err := s.Repo.GetUnpaidLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := &OrderReplicaPayment{
		OrderID: set.OrderID, BuyerID: set.BuyerID,
		CreateTime:       set.CreateTime,
		CurrencySnapshot: set.CurrencySnapshot,
	}
	for _, l := range set.Lines {
		out.Lines = append(out.Lines, OrderReplicaLine{
			PID: l.PID, Unit: l.RsvTotal.Unit, Total: l.RsvTotal.Total, Qty: l.RsvTotal.Qty,
			ReservedUntil: l.ReservedUntil,
		})
	}
	return out, nil
}

// OrderReplicaInventory is the projection rpc.order.order_reserved_replica_inventory
// answers: which (store,product) quantities are committed against this
// order, used by inventory-facing consumers that never need price.
type OrderReplicaInventory struct {
	OrderID string
	Lines   []InventoryLine
}

type InventoryLine struct {
	PID model.ProductID
	Qty uint32
}

func (s *Service) BuildOrderReplicaInventory(ctx context.Context, orderID string) (*OrderReplicaInventory, error) {
	set, err := s.Repo.GetUnpaidLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := &OrderReplicaInventory{OrderID: set.OrderID}
	for _, l := range set.Lines {
		out.Lines = append(out.Lines, InventoryLine{PID: l.PID, Qty: l.RsvTotal.Qty})
	}
	return out, nil
}

// OrderReplicaRefund answers rpc.order.order_returned_replica_refund:
// the paid amount per line, which FinalizeRefund (payment side) uses to
// bound how much may be refunded.
type OrderReplicaRefund struct {
	OrderID string
	Lines   []RefundableLine
}

type RefundableLine struct {
	PID      model.ProductID
	PaidQty  uint32
	PaidUnit decimal.Decimal
}

func (s *Service) BuildOrderReplicaRefund(ctx context.Context, orderID string) (*OrderReplicaRefund, error) {
	set, err := s.Repo.GetLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := &OrderReplicaRefund{OrderID: set.OrderID}
	for _, l := range set.Lines {
		out.Lines = append(out.Lines, RefundableLine{PID: l.PID, PaidQty: l.PaidTotal.Qty, PaidUnit: l.PaidTotal.Unit})
	}
	return out, nil
}
