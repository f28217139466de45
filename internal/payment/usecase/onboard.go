package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/payment/model"
	"github.com/metalalive/ecommerce-go/internal/processor"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
)

// storeProfileReplicaDto mirrors what rpc.store.profile_replica answers:
// the store's active flag, supervisor, and staff roster.
type storeProfileReplicaDto struct {
	StoreID      uint32
	Active       bool
	SupervisorID uint32
	Staff        []storeStaffDto
}

type storeStaffDto struct {
	StaffID    uint32
	StartAfter string
	EndBefore  string
}

const staffTimeLayout = "2006-01-02 15:04:05"

// OnboardStore fetches the store's profile replica, builds a merchant
// profile from its active staff roster, registers the merchant with the
// processor, and persists the result.
func (s *Service) OnboardStore(ctx context.Context, now time.Time, storeID uint32, req processor.MerchantOnboardRequest) (*model.MerchantProfileModel, error) {
	profile, err := s.fetchStoreProfile(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !profile.Active {
		return nil, apperr.New(apperr.InvalidInput, "store is not active")
	}

	merchant := model.MerchantProfileModel{StoreID: storeID, Active: profile.Active, SupervisorID: profile.SupervisorID}
	for _, st := range profile.Staff {
		startAfter, err := time.Parse(staffTimeLayout, st.StartAfter)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, "unparseable staff start_after", err)
		}
		endBefore, err := time.Parse(staffTimeLayout, st.EndBefore)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, "unparseable staff end_before", err)
		}
		if !endBefore.After(now) {
			continue // staff term already expired, not carried into the profile
		}
		merchant.Staff = append(merchant.Staff, model.MerchantStaff{StaffID: st.StaffID, StartAfter: startAfter, EndBefore: endBefore})
	}

	_, m3party, err := s.Processor.OnboardMerchant(ctx, req)
	if err != nil {
		return nil, err
	}
	merchant.ThreeParty = m3party

	if err := s.Repo.SaveMerchant(ctx, &merchant); err != nil {
		return nil, err
	}
	return &merchant, nil
}

// RefreshOnboardStatus re-polls the processor for the merchant's
// onboarding state and updates the stored profile's link/flags.
func (s *Service) RefreshOnboardStatus(ctx context.Context, now time.Time, storeID uint32, req processor.MerchantOnboardRequest) (*model.MerchantProfileModel, error) {
	merchant, err := s.Repo.GetMerchant(ctx, storeID)
	if err != nil {
		return nil, err
	}

	dto, m3party, err := s.Processor.RefreshOnboardStatus(ctx, merchant.ThreeParty, req)
	if err != nil {
		return nil, err
	}

	if m3party.DetailsSubmitted && m3party.ChargesEnabled {
		m3party.UpdateLink = ""
		m3party.TosAccepted = true
		m3party.PayoutsEnabled = true
	} else {
		m3party.UpdateLink = dto.AccountLink
		m3party.UpdateLinkExpiry = dto.Expiry
	}
	merchant.ThreeParty = m3party

	if err := s.Repo.SaveMerchant(ctx, merchant); err != nil {
		return nil, err
	}
	return merchant, nil
}

func (s *Service) fetchStoreProfile(ctx context.Context, storeID uint32) (*storeProfileReplicaDto, error) {
	body, _ := json.Marshal(map[string]uint32{"store_id": storeID})
	reply, err := rpcport.CallWithRetry(ctx, s.RPC, rpcport.ClientRequest{
		UsrID: storeID, Time: time.Now().UTC(), Route: "rpc.store.profile_replica", Message: body,
	}, s.RPCTTL, 3)
	if err != nil {
		return nil, err
	}
	var dto storeProfileReplicaDto
	if err := json.Unmarshal(reply.Message, &dto); err != nil {
		return nil, apperr.Wrap(apperr.RpcRemoteInvalidReply, "decode store profile replica", err)
	}
	return &dto, nil
}
