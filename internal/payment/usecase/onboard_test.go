package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/processor"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
)

func registerStoreProfile(t *testing.T, s *Service, storeID uint32, active bool) {
	t.Helper()
	rpc, ok := s.RPC.(interface {
		Register(string, rpcport.Handler)
	})
	if !ok {
		t.Fatalf("RPC client does not support route registration")
	}
	rpc.Register("rpc.store.profile_replica", func(_ context.Context, _ rpcport.ClientRequest) (rpcport.Reply, error) {
		body, _ := json.Marshal(map[string]interface{}{
			"StoreID": storeID, "Active": active, "SupervisorID": 1,
			"Staff": []map[string]interface{}{
				{"StaffID": 5, "StartAfter": "2020-01-01 00:00:00", "EndBefore": "2099-01-01 00:00:00"},
			},
		})
		return rpcport.Reply{Message: body}, nil
	})
}

func TestOnboardStoreHappyPath(t *testing.T) {
	s := newTestPaymentService(t)
	registerStoreProfile(t, s, 2, true)

	merchant, err := s.OnboardStore(context.Background(), time.Now().UTC(), 2, processor.MerchantOnboardRequest{StoreID: 2})
	if err != nil {
		t.Fatalf("OnboardStore: %v", err)
	}
	if len(merchant.Staff) != 1 || merchant.Staff[0].StaffID != 5 {
		t.Fatalf("expected one active staff entry, got %+v", merchant.Staff)
	}
	if merchant.ThreeParty.ID == "" {
		t.Fatalf("expected a processor account id to be assigned")
	}
}

func TestOnboardStoreRejectsInactiveStore(t *testing.T) {
	s := newTestPaymentService(t)
	registerStoreProfile(t, s, 2, false)

	_, err := s.OnboardStore(context.Background(), time.Now().UTC(), 2, processor.MerchantOnboardRequest{StoreID: 2})
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Kind != apperr.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestRefreshOnboardStatusActivatesOnceDetailsSubmitted(t *testing.T) {
	s := newTestPaymentService(t)
	registerStoreProfile(t, s, 2, true)
	now := time.Now().UTC()
	if _, err := s.OnboardStore(context.Background(), now, 2, processor.MerchantOnboardRequest{StoreID: 2}); err != nil {
		t.Fatalf("OnboardStore: %v", err)
	}
	// mock.RefreshOnboardStatus only activates the account once TosAccepted
	// is already true, which a fresh onboarding never sets; drive it there
	// directly the way a webhook-driven update would in production.
	merchant, err := s.Repo.GetMerchant(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetMerchant: %v", err)
	}
	merchant.ThreeParty.TosAccepted = true
	if err := s.Repo.SaveMerchant(context.Background(), merchant); err != nil {
		t.Fatalf("SaveMerchant: %v", err)
	}

	updated, err := s.RefreshOnboardStatus(context.Background(), now, 2, processor.MerchantOnboardRequest{StoreID: 2})
	if err != nil {
		t.Fatalf("RefreshOnboardStatus: %v", err)
	}
	if !updated.ThreeParty.ChargesEnabled || !updated.ThreeParty.PayoutsEnabled {
		t.Fatalf("expected charges/payouts to be enabled once TOS is accepted, got %+v", updated.ThreeParty)
	}
}
