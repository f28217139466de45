package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/order/model"
)

func createPaidOrder(t *testing.T, s *Service, orderID string, pid model.ProductID, qty uint32, warrantyHours uint32) (time.Time, model.OrderLineSet) {
	t.Helper()
	now := time.Now().UTC()
	seedStock(t, s, pid, now.Add(time.Hour), qty)

	if err := s.EditProductPolicy(context.Background(), EditProductPolicyRequest{
		Policy: model.ProductPolicy{PID: pid, WarrantyHours: warrantyHours},
	}); err != nil {
		t.Fatalf("EditProductPolicy: %v", err)
	}

	lineErrs, err := s.CreateOrder(context.Background(), now, orderID, CreateOrderRequest{
		BuyerID: 42,
		Lines: []OrderLineInput{
			{PID: pid, UnitPrice: decimal.RequireFromString("10"), Qty: qty, ReservedUntil: now.Add(30 * time.Minute)},
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

	set, lock, err := s.Repo.FetchAcquireLines(context.Background(), orderID)
	if err != nil {
		t.Fatalf("FetchAcquireLines: %v", err)
	}
	for i := range set.Lines {
		set.Lines[i].PaidTotal = set.Lines[i].RsvTotal
	}
	if err := s.Repo.SaveReleaseLines(context.Background(), set, lock); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	return now, *set
}

func TestAddReturnHappyPath(t *testing.T) {
	s := newTestService(t)
	pid := model.ProductID{StoreID: 1, ProductID: 9}
	_, _ = createPaidOrder(t, s, "order-return-1", pid, 5, 24)

	err := s.AddReturn(context.Background(), time.Now().UTC(), AddReturnRequest{
		OrderID: "order-return-1", PID: pid, At: time.Now().UTC(), Qty: 2, RefundAmount: decimal.RequireFromString("20"),
	})
	if err != nil {
		t.Fatalf("AddReturn: %v", err)
	}

	ledger, err := s.Repo.GetReturns(context.Background(), "order-return-1")
	if err != nil {
		t.Fatalf("GetReturns: %v", err)
	}
	if got := ledger.Lines[pid]; len(got) != 1 {
		t.Fatalf("expected one recorded return, got %+v", got)
	}
}

func TestAddReturnRejectsUnknownLine(t *testing.T) {
	s := newTestService(t)
	pid := model.ProductID{StoreID: 1, ProductID: 9}
	_, _ = createPaidOrder(t, s, "order-return-2", pid, 5, 24)

	other := model.ProductID{StoreID: 1, ProductID: 999}
	err := s.AddReturn(context.Background(), time.Now().UTC(), AddReturnRequest{
		OrderID: "order-return-2", PID: other, At: time.Now().UTC(), Qty: 1,
	})
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Kind != apperr.NotExist {
		t.Fatalf("expected NotExist, got %v", err)
	}
}

func TestAddReturnPersistsAcrossCalls(t *testing.T) {
	s := newTestService(t)
	pid := model.ProductID{StoreID: 1, ProductID: 9}
	_, _ = createPaidOrder(t, s, "order-return-3", pid, 5, 24)

	at := time.Now().UTC()
	if err := s.AddReturn(context.Background(), at, AddReturnRequest{
		OrderID: "order-return-3", PID: pid, At: at, Qty: 1,
	}); err != nil {
		t.Fatalf("first AddReturn: %v", err)
	}
	if err := s.AddReturn(context.Background(), at, AddReturnRequest{
		OrderID: "order-return-3", PID: pid, At: at.Add(time.Minute), Qty: 1,
	}); err != nil {
		t.Fatalf("second AddReturn: %v", err)
	}

	ledger, err := s.Repo.GetReturns(context.Background(), "order-return-3")
	if err != nil {
		t.Fatalf("GetReturns: %v", err)
	}
	if got := len(ledger.Lines[pid]); got != 2 {
		t.Fatalf("expected two recorded returns, got %d", got)
	}
}
