// Package usecase is the order service's orchestration layer: CreateOrder,
// EditProductPrice, StockLevel, the OrderReplica{Payment,Inventory,Refund}
// RPC-facing projections, OrderPaymentUpdate, DiscardUnpaid, returns, and
// cart management. Each use case opens one request-scoped unit of work
// against the repo and emits a reply DTO.
package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/order/model"
	"github.com/metalalive/ecommerce-go/internal/order/repo"
	"github.com/metalalive/ecommerce-go/internal/order/reservation"
	"github.com/metalalive/ecommerce-go/internal/store"
)

// OrderLineInput is a caller-supplied line of a reservation attempt.
type OrderLineInput struct {
	PID           model.ProductID
	UnitPrice     decimal.Decimal
	Qty           uint32
	ReservedUntil time.Time
}

// CreateOrderRequest is the inbound shape of CreateOrder.
type CreateOrderRequest struct {
	BuyerID          uint32
	Lines            []OrderLineInput
	Billing          model.BillingModel
	Shipping         model.ShippingModel
	CurrencySnapshot map[uint32]model.CurrencyEntry
	Policies         map[model.ProductID]model.ProductPolicy
}

// Service bundles the order repo, reservation engine, and raw data-store
// handle every order-side use case is built from.
type Service struct {
	Repo   *repo.OrderRepo
	Engine *reservation.Engine
	ds     store.DataStore
}

func NewService(ds store.DataStore) *Service {
	return &Service{Repo: repo.New(ds), Engine: reservation.NewEngine(ds), ds: ds}
}

// CreateOrder reserves stock for every requested line and, only if every
// line succeeds, persists the new order atomically.
func (s *Service) CreateOrder(ctx context.Context, now time.Time, orderID string, req CreateOrderRequest) ([]reservation.LineCreateError, error) {
	rsvLines := make([]reservation.OrderLineRequest, 0, len(req.Lines))
	lines := make([]model.OrderLine, 0, len(req.Lines))
	for _, in := range req.Lines {
		amt, err := model.NewLineAmount(in.UnitPrice, in.Qty)
		if err != nil {
			return nil, err
		}
		if !in.ReservedUntil.After(now) {
			return []reservation.LineCreateError{{PID: in.PID, Kind: apperr.ReservationExpired, Detail: "reserved_until in the past"}}, nil
		}
		rsvLines = append(rsvLines, reservation.OrderLineRequest{PID: in.PID, Unit: amt, ReservedUntil: in.ReservedUntil})
		lines = append(lines, model.OrderLine{PID: in.PID, RsvTotal: amt, ReservedUntil: in.ReservedUntil})
	}

	lineErrs, err := s.Engine.TryReserve(ctx, now, reservation.ReserveRequest{OrderID: orderID, Lines: rsvLines, Policies: req.Policies})
	if err != nil {
		return nil, err
	}
	if len(lineErrs) > 0 {
		return lineErrs, nil
	}

	set := &model.OrderLineSet{
		OrderID: orderID, BuyerID: req.BuyerID, CreateTime: now,
		CurrencySnapshot: req.CurrencySnapshot, Lines: lines,
	}
	req.Billing.OrderID = orderID
	req.Shipping.OrderID = orderID
	if err := s.Repo.CreateOrder(ctx, set, &req.Billing, &req.Shipping); err != nil {
		return nil, err
	}
	return nil, nil
}

// OrderPaymentUpdate applies a charge's realized payment onto the
// matching order lines, invoked off the rpc.order.order_reserved_update_payment
// route.
func (s *Service) OrderPaymentUpdate(ctx context.Context, orderID string, updates []reservation.PaidLineUpdate) ([]reservation.UpdatePaymentError, error) {
	return reservation.UpdateLinesPayment(ctx, s.Repo, orderID, updates)
}

// ReturnCancelledStock implements rpc.order.stock_return_cancelled: the
// inventory service telling the order service that previously-cancelled
// quantity for a set of batches has been physically restocked.
func (s *Service) ReturnCancelledStock(ctx context.Context, items []reservation.ReturnItem) ([]reservation.ReturnError, error) {
	return s.Engine.ReturnCancelled(ctx, items)
}

// DiscardUnpaid runs the periodic unpaid-reservation sweep: determine
// [last_run, now], sweep, then advance the watermark.
func (s *Service) DiscardUnpaid(ctx context.Context, now time.Time) error {
	from, err := s.Repo.CancelUnpaidLastTime(ctx)
	if err != nil {
		return err
	}
	if err := reservation.DiscardUnpaid(ctx, s.Repo, s.Engine, from, now); err != nil {
		return err
	}
	return s.Repo.CancelUnpaidTimeUpdate(ctx, now)
}
