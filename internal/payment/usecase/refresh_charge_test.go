package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/currency"
	"github.com/metalalive/ecommerce-go/internal/idutil"
	"github.com/metalalive/ecommerce-go/internal/payment/model"
	"github.com/metalalive/ecommerce-go/internal/payment/repo"
	"github.com/metalalive/ecommerce-go/internal/processor"
	"github.com/metalalive/ecommerce-go/internal/processor/mock"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
	"github.com/metalalive/ecommerce-go/internal/rpcport/dummy"
	"github.com/metalalive/ecommerce-go/internal/store/inmem"
)

func newTestPaymentServiceWithOrderSync(t *testing.T) (*Service, *int) {
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
	rpc := dummy.New()
	calls := 0
	rpc.Register("rpc.order.order_reserved_update_payment", func(_ context.Context, _ rpcport.ClientRequest) (rpcport.Reply, error) {
		calls++
		return rpcport.Reply{Message: []byte(`{}`)}, nil
	})
	s := NewService(repo.New(ds), mock.New(), rpc, currency.NewPort(nil))
	return s, &calls
}

func TestRefreshChargeStatusCompletesAndSyncs(t *testing.T) {
	s, calls := newTestPaymentServiceWithOrderSync(t)
	now := time.Now().UTC()
	token := idutil.ChargeToken(1, now)
	stripe := &processor.Stripe{
		SessionID: "cs_1", PaymentIntentID: "pi_1",
		SessionState: processor.SessionOpen, PaymentState: processor.PaymentUnpaid, Expiry: now.Add(time.Hour),
	}
	charge := &model.ChargeBuyerModel{
		Meta: model.ChargeMeta{
			Owner: 1, CreateTime: now, Token: token, OrderID: "order-1",
			State: model.StateProcessorAccepted, Method: processor.Charge3party{Stripe: stripe},
		},
		Lines: []model.ChargeLine{{PID: model.ProductID{StoreID: 2, ProductID: 7}, Amount: decimal.RequireFromString("10"), Qty: 1}},
	}
	if err := s.Repo.CreateCharge(context.Background(), charge); err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	got, err := s.RefreshChargeStatus(context.Background(), now, 1, token)
	if err != nil {
		t.Fatalf("RefreshChargeStatus: %v", err)
	}
	if got.Meta.State != model.StateOrderAppSynced {
		t.Fatalf("state = %s, want %s", got.Meta.State, model.StateOrderAppSynced)
	}
	if *calls != 1 {
		t.Fatalf("expected exactly one order-sync RPC call, got %d", *calls)
	}
}

func TestRefreshChargeStatusRejectsWrongOwner(t *testing.T) {
	s, _ := newTestPaymentServiceWithOrderSync(t)
	now := time.Now().UTC()
	token := idutil.ChargeToken(1, now)

	_, err := s.RefreshChargeStatus(context.Background(), now, 99, token)
	if err == nil {
		t.Fatalf("expected an authenticated-user mismatch to be rejected")
	}
}

func TestRefreshChargeStatusIsNoopOnAlreadySyncedCharge(t *testing.T) {
	s, calls := newTestPaymentServiceWithOrderSync(t)
	now := time.Now().UTC()
	token := seedSyncedCharge(t, s, 1, 2, now, decimal.RequireFromString("10"))

	got, err := s.RefreshChargeStatus(context.Background(), now, 1, token)
	if err != nil {
		t.Fatalf("RefreshChargeStatus: %v", err)
	}
	if got.Meta.State != model.StateOrderAppSynced {
		t.Fatalf("state = %s, want %s", got.Meta.State, model.StateOrderAppSynced)
	}
	if *calls != 0 {
		t.Fatalf("expected no RPC call against an already-synced charge, got %d", *calls)
	}
}
