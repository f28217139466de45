package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/currency"
	"github.com/metalalive/ecommerce-go/internal/payment/model"
	"github.com/metalalive/ecommerce-go/internal/payment/repo"
	"github.com/metalalive/ecommerce-go/internal/processor"
	"github.com/metalalive/ecommerce-go/internal/processor/mock"
	"github.com/metalalive/ecommerce-go/internal/rpcport/dummy"
	"github.com/metalalive/ecommerce-go/internal/store/inmem"
)

func newTestPaymentService(t *testing.T) *Service {
	t.Helper()
	ds := inmem.New()
	ctx := context.Background()
	for _, table := range []string{
		"charge_buyer_toplvl", "merchant_profile", "payout_meta",
		"order_refund", "order_replica_cache", "job_scheduler",
	} {
		if err := ds.CreateTable(ctx, table); err != nil {
			t.Fatalf("CreateTable(%s): %v", table, err)
		}
	}
	return NewService(repo.New(ds), mock.New(), dummy.New(), currency.NewPort(nil))
}

func seedReplica(t *testing.T, s *Service, orderID string, pid model.ProductID, unit decimal.Decimal, qty uint32, reservedUntil time.Time) {
	t.Helper()
	total := unit.Mul(decimal.NewFromInt(int64(qty)))
	replica := &model.CachedOrderReplica{
		OrderID:    orderID,
		BuyerID:    1,
		CreateTime: time.Now(),
		CurrencySnapshot: map[uint32]model.CurrencyEntry{
			1:         {Label: "USD", Rate: decimal.NewFromInt(1)},
			pid.StoreID: {Label: "USD", Rate: decimal.NewFromInt(1)},
		},
		Lines: []model.CachedOrderReplicaLine{
			{PID: pid, Unit: unit, Total: total, Qty: qty, ReservedUntil: reservedUntil},
		},
	}
	if err := s.Repo.SaveCachedOrderReplica(context.Background(), replica); err != nil {
		t.Fatalf("SaveCachedOrderReplica: %v", err)
	}
}

func TestCreateChargeCacheHitHappyPath(t *testing.T) {
	s := newTestPaymentService(t)
	now := time.Now().UTC()
	pid := model.ProductID{StoreID: 2, ProductID: 9}
	seedReplica(t, s, "order-1", pid, decimal.RequireFromString("9.99"), 3, now.Add(time.Hour))

	charge, err := s.CreateCharge(context.Background(), now, CreateChargeRequest{
		Owner: 1, OrderID: "order-1",
		Lines:  []model.ChargeLine{{PID: pid, Amount: decimal.RequireFromString("29.97")}},
		Method: processor.PayInMethodRequest{Method: "card"},
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if charge.Meta.State != model.StateProcessorAccepted {
		t.Fatalf("state = %s, want %s", charge.Meta.State, model.StateProcessorAccepted)
	}
	if !charge.Meta.Method.Valid() {
		t.Fatalf("expected a valid processor method to be recorded")
	}
}

func TestCreateChargeIdempotentOnRetry(t *testing.T) {
	s := newTestPaymentService(t)
	now := time.Now().UTC()
	pid := model.ProductID{StoreID: 2, ProductID: 9}
	seedReplica(t, s, "order-1", pid, decimal.RequireFromString("10"), 1, now.Add(time.Hour))

	req := CreateChargeRequest{
		Owner: 1, OrderID: "order-1",
		Lines:  []model.ChargeLine{{PID: pid, Amount: decimal.RequireFromString("10")}},
		Method: processor.PayInMethodRequest{Method: "card"},
	}
	first, err := s.CreateCharge(context.Background(), now, req)
	if err != nil {
		t.Fatalf("first CreateCharge: %v", err)
	}
	second, err := s.CreateCharge(context.Background(), now, req)
	if err != nil {
		t.Fatalf("second CreateCharge: %v", err)
	}
	if first.Meta.Token != second.Meta.Token {
		t.Fatalf("expected the retried call to return the same charge, got different tokens")
	}
}

func TestCreateChargeRejectsExpiredReservation(t *testing.T) {
	s := newTestPaymentService(t)
	now := time.Now().UTC()
	pid := model.ProductID{StoreID: 2, ProductID: 9}
	seedReplica(t, s, "order-1", pid, decimal.RequireFromString("10"), 1, now.Add(-time.Minute))

	_, err := s.CreateCharge(context.Background(), now, CreateChargeRequest{
		Owner: 1, OrderID: "order-1",
		Lines:  []model.ChargeLine{{PID: pid, Amount: decimal.RequireFromString("10")}},
		Method: processor.PayInMethodRequest{Method: "card"},
	})
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Kind != apperr.ReservationExpired {
		t.Fatalf("expected ReservationExpired, got %v", err)
	}
}

func TestCreateChargeRejectsAmountMismatch(t *testing.T) {
	s := newTestPaymentService(t)
	now := time.Now().UTC()
	pid := model.ProductID{StoreID: 2, ProductID: 9}
	seedReplica(t, s, "order-1", pid, decimal.RequireFromString("10"), 1, now.Add(time.Hour))

	_, err := s.CreateCharge(context.Background(), now, CreateChargeRequest{
		Owner: 1, OrderID: "order-1",
		Lines:  []model.ChargeLine{{PID: pid, Amount: decimal.RequireFromString("5")}},
		Method: processor.PayInMethodRequest{Method: "card"},
	})
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Kind != apperr.AmountMismatch {
		t.Fatalf("expected AmountMismatch, got %v", err)
	}
}
