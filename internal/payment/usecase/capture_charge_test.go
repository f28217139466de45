package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/idutil"
	"github.com/metalalive/ecommerce-go/internal/payment/model"
	"github.com/metalalive/ecommerce-go/internal/processor"
)

func seedSyncedCharge(t *testing.T, s *Service, owner, storeID uint32, createTime time.Time, amount decimal.Decimal) string {
	t.Helper()
	token := idutil.ChargeToken(owner, createTime)
	charge := &model.ChargeBuyerModel{
		Meta: model.ChargeMeta{
			Owner: owner, CreateTime: createTime, Token: token,
			OrderID: "order-1", State: model.StateOrderAppSynced,
		},
		Lines: []model.ChargeLine{{PID: model.ProductID{StoreID: storeID, ProductID: 7}, Amount: amount, Qty: 1}},
		CurrencySnapshot: map[uint32]model.CurrencyEntry{
			owner:   {Label: "USD", Rate: decimal.NewFromInt(1)},
			storeID: {Label: "USD", Rate: decimal.NewFromInt(1)},
		},
	}
	if err := s.Repo.CreateCharge(context.Background(), charge); err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	return token
}

func seedPayableMerchant(t *testing.T, s *Service, storeID, staffID uint32, now time.Time) {
	t.Helper()
	merchant := &model.MerchantProfileModel{
		StoreID: storeID, Active: true,
		Staff: []model.MerchantStaff{{StaffID: staffID, StartAfter: now.Add(-time.Hour), EndBefore: now.Add(time.Hour)}},
		ThreeParty: processor.Merchant3party{
			ID: "acct_1", Transfers: processor.TransferActive,
			ChargesEnabled: true, PayoutsEnabled: true, SupportsSuccessiveTransfers: true,
		},
	}
	if err := s.Repo.SaveMerchant(context.Background(), merchant); err != nil {
		t.Fatalf("SaveMerchant: %v", err)
	}
}

func TestCaptureChargeHappyPath(t *testing.T) {
	s := newTestPaymentService(t)
	now := time.Now().UTC()
	token := seedSyncedCharge(t, s, 1, 2, now, decimal.RequireFromString("20"))
	seedPayableMerchant(t, s, 2, 5, now)

	payout, err := s.CaptureCharge(context.Background(), now, CaptureChargeRequest{ChargeID: token, StoreID: 2, StaffID: 5})
	if err != nil {
		t.Fatalf("CaptureCharge: %v", err)
	}
	if !payout.Amount.TotalBase.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("TotalBase = %s, want 20", payout.Amount.TotalBase)
	}
}

func TestCaptureChargeRejectsUnsyncedCharge(t *testing.T) {
	s := newTestPaymentService(t)
	now := time.Now().UTC()
	token := idutil.ChargeToken(1, now)
	charge := &model.ChargeBuyerModel{
		Meta:  model.ChargeMeta{Owner: 1, CreateTime: now, Token: token, OrderID: "order-1", State: model.StateProcessorAccepted},
		Lines: []model.ChargeLine{{PID: model.ProductID{StoreID: 2, ProductID: 7}, Amount: decimal.RequireFromString("20"), Qty: 1}},
		CurrencySnapshot: map[uint32]model.CurrencyEntry{
			1: {Label: "USD", Rate: decimal.NewFromInt(1)}, 2: {Label: "USD", Rate: decimal.NewFromInt(1)},
		},
	}
	if err := s.Repo.CreateCharge(context.Background(), charge); err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	seedPayableMerchant(t, s, 2, 5, now)

	_, err := s.CaptureCharge(context.Background(), now, CaptureChargeRequest{ChargeID: token, StoreID: 2, StaffID: 5})
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Kind != apperr.PayInNotCompleted {
		t.Fatalf("expected PayInNotCompleted, got %v", err)
	}
}

func TestCaptureChargeRejectsInactiveStaff(t *testing.T) {
	s := newTestPaymentService(t)
	now := time.Now().UTC()
	token := seedSyncedCharge(t, s, 1, 2, now, decimal.RequireFromString("20"))
	seedPayableMerchant(t, s, 2, 5, now)

	_, err := s.CaptureCharge(context.Background(), now, CaptureChargeRequest{ChargeID: token, StoreID: 2, StaffID: 99})
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Kind != apperr.InvalidMerchantStaff {
		t.Fatalf("expected InvalidMerchantStaff, got %v", err)
	}
}

func TestCaptureChargeSecondCallOnFullyCapturedChargeRejected(t *testing.T) {
	s := newTestPaymentService(t)
	now := time.Now().UTC()
	token := seedSyncedCharge(t, s, 1, 2, now, decimal.RequireFromString("20"))
	seedPayableMerchant(t, s, 2, 5, now)

	if _, err := s.CaptureCharge(context.Background(), now, CaptureChargeRequest{ChargeID: token, StoreID: 2, StaffID: 5}); err != nil {
		t.Fatalf("first CaptureCharge: %v", err)
	}
	_, err := s.CaptureCharge(context.Background(), now, CaptureChargeRequest{ChargeID: token, StoreID: 2, StaffID: 5})
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Kind != apperr.AmountNotEnough {
		t.Fatalf("expected AmountNotEnough on a fully-captured charge, got %v", err)
	}
}
