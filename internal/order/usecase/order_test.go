package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/order/model"
	"github.com/metalalive/ecommerce-go/internal/order/reservation"
)

func seedStock(t *testing.T, s *Service, pid model.ProductID, expiry time.Time, total uint32) {
	t.Helper()
	if err := s.StockLevel(context.Background(), StockLevelRequest{
		StoreID: pid.StoreID,
		Batches: []StockBatchEdit{{ProductID: pid.ProductID, Expiry: expiry, Total: total}},
	}); err != nil {
		t.Fatalf("StockLevel: %v", err)
	}
}

func TestCreateOrderHappyPath(t *testing.T) {
	s := newTestService(t)
	now := time.Now().UTC()
	pid := model.ProductID{StoreID: 1, ProductID: 9}
	seedStock(t, s, pid, now.Add(time.Hour), 10)

	lineErrs, err := s.CreateOrder(context.Background(), now, "order-1", CreateOrderRequest{
		BuyerID: 42,
		Lines: []OrderLineInput{
			{PID: pid, UnitPrice: decimal.RequireFromString("9.99"), Qty: 2, ReservedUntil: now.Add(30 * time.Minute)},
		},
		Billing:  model.BillingModel{Contact: model.Contact{FirstName: "A", LastName: "B"}},
		Shipping: model.ShippingModel{Contact: model.Contact{FirstName: "A", LastName: "B"}},
		CurrencySnapshot: map[uint32]model.CurrencyEntry{
			42: {Label: "USD", Rate: decimal.NewFromInt(1)},
			1:  {Label: "USD", Rate: decimal.NewFromInt(1)},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(lineErrs) != 0 {
		t.Fatalf("expected no line errors, got %+v", lineErrs)
	}

	set, err := s.Repo.GetLines(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("GetLines: %v", err)
	}
	if len(set.Lines) != 1 || set.Lines[0].RsvTotal.Qty != 2 {
		t.Fatalf("expected one persisted line with qty 2, got %+v", set.Lines)
	}
}

func TestCreateOrderReportsInsufficientStock(t *testing.T) {
	s := newTestService(t)
	now := time.Now().UTC()
	pid := model.ProductID{StoreID: 1, ProductID: 9}
	seedStock(t, s, pid, now.Add(time.Hour), 1)

	lineErrs, err := s.CreateOrder(context.Background(), now, "order-2", CreateOrderRequest{
		BuyerID: 42,
		Lines: []OrderLineInput{
			{PID: pid, UnitPrice: decimal.RequireFromString("9.99"), Qty: 5, ReservedUntil: now.Add(30 * time.Minute)},
		},
		CurrencySnapshot: map[uint32]model.CurrencyEntry{
			42: {Label: "USD", Rate: decimal.NewFromInt(1)}, 1: {Label: "USD", Rate: decimal.NewFromInt(1)},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(lineErrs) != 1 {
		t.Fatalf("expected one line error for insufficient stock, got %+v", lineErrs)
	}

	if _, err := s.Repo.GetLines(context.Background(), "order-2"); err == nil {
		t.Fatalf("expected a failed reservation to leave no persisted order")
	}
}

func TestCreateOrderRejectsExpiredReservation(t *testing.T) {
	s := newTestService(t)
	now := time.Now().UTC()
	pid := model.ProductID{StoreID: 1, ProductID: 9}
	seedStock(t, s, pid, now.Add(time.Hour), 10)

	lineErrs, err := s.CreateOrder(context.Background(), now, "order-3", CreateOrderRequest{
		BuyerID: 42,
		Lines: []OrderLineInput{
			{PID: pid, UnitPrice: decimal.RequireFromString("9.99"), Qty: 1, ReservedUntil: now.Add(-time.Minute)},
		},
		CurrencySnapshot: map[uint32]model.CurrencyEntry{
			42: {Label: "USD", Rate: decimal.NewFromInt(1)}, 1: {Label: "USD", Rate: decimal.NewFromInt(1)},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(lineErrs) != 1 {
		t.Fatalf("expected exactly one line error for an already-expired reservation, got %+v", lineErrs)
	}
}

func TestDiscardUnpaidAdvancesWatermark(t *testing.T) {
	s := newTestService(t)
	now := time.Now().UTC()
	if err := s.DiscardUnpaid(context.Background(), now); err != nil {
		t.Fatalf("DiscardUnpaid: %v", err)
	}
	watermark, err := s.Repo.CancelUnpaidLastTime(context.Background())
	if err != nil {
		t.Fatalf("CancelUnpaidLastTime: %v", err)
	}
	if !watermark.Equal(now) {
		t.Fatalf("watermark = %v, want %v", watermark, now)
	}
}

func TestReturnCancelledStockReportsMissingBatch(t *testing.T) {
	s := newTestService(t)
	pid := model.ProductID{StoreID: 1, ProductID: 9}
	errs, err := s.ReturnCancelledStock(context.Background(), []reservation.ReturnItem{
		{PID: pid, Expiry: time.Now(), Qty: 1},
	})
	if err != nil {
		t.Fatalf("ReturnCancelledStock: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected one error for a nonexistent batch, got %+v", errs)
	}
}
