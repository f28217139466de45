// Package mock is a Stripe-shaped processor.Port backend for tests: every
// call succeeds deterministically and immediately, with no network hop.
// It grounds PayInCompleted/PayOut/Onboard behavior on the same state
// names (session_state, payment_state, capabilities.transfers) the real
// Stripe API exposes, so use-case code exercises the same branches it
// would against the genuine SDK.
package mock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/metalalive/ecommerce-go/internal/processor"
)

type Backend struct {
	seq uint64
}

func New() *Backend { return &Backend{} }

func (b *Backend) nextID(prefix string) string {
	n := atomic.AddUint64(&b.seq, 1)
	return fmt.Sprintf("%s_%d", prefix, n)
}

func (b *Backend) PayInStart(_ context.Context, req processor.ChargeRequest) (processor.PayInResult, processor.Charge3party, error) {
	sess := &processor.Stripe{
		SessionID:       b.nextID("cs"),
		PaymentIntentID: b.nextID("pi"),
		SessionState:    processor.SessionOpen,
		PaymentState:    processor.PaymentUnpaid,
		Expiry:          time.Now().Add(30 * time.Minute),
	}
	method := processor.Charge3party{Stripe: sess}
	result := processor.PayInResult{
		ChargeID: sess.PaymentIntentID,
		Method:   req.Method.Method,
		State:    string(sess.SessionState),
	}
	return result, method, nil
}

// PayInProgress simulates immediate completion: any still-open session
// flips to complete/paid on the first poll.
func (b *Backend) PayInProgress(_ context.Context, method processor.Charge3party) (processor.Charge3party, error) {
	if method.Stripe == nil {
		return processor.Charge3party{Unknown: true}, nil
	}
	updated := *method.Stripe
	if updated.SessionState == processor.SessionOpen {
		updated.SessionState = processor.SessionComplete
		updated.PaymentState = processor.PaymentPaid
	}
	return processor.Charge3party{Stripe: &updated}, nil
}

func (b *Backend) PayOut(_ context.Context, req processor.PayoutRequest) (processor.PayoutDto, processor.PayoutModel, error) {
	dto := processor.PayoutDto{TransferID: b.nextID("tr"), Amount: req.Amount}
	model := processor.PayoutModel{
		TransferGroup: req.TransferGroup,
		DestAcctID:    req.DestAcctID,
		TransferID:    dto.TransferID,
		Amount:        req.Amount,
	}
	return dto, model, nil
}

func (b *Backend) OnboardMerchant(_ context.Context, req processor.MerchantOnboardRequest) (processor.MerchantOnboardDto, processor.Merchant3party, error) {
	dto := processor.MerchantOnboardDto{
		AccountLink: "https://connect.example/onboard/" + b.nextID("acctlink"),
		Expiry:      time.Now().Add(24 * time.Hour),
	}
	m3 := processor.Merchant3party{
		ID:                          b.nextID("acct"),
		Country:                     req.Country,
		Email:                       req.Email,
		Transfers:                   processor.TransferPending,
		Created:                     time.Now(),
		UpdateLink:                  dto.AccountLink,
		UpdateLinkExpiry:            dto.Expiry,
		SupportsSuccessiveTransfers: true,
	}
	return dto, m3, nil
}

func (b *Backend) RefreshOnboardStatus(_ context.Context, existing processor.Merchant3party, req processor.MerchantOnboardRequest) (processor.MerchantOnboardDto, processor.Merchant3party, error) {
	if existing.TosAccepted {
		updated := existing
		updated.Transfers = processor.TransferActive
		updated.ChargesEnabled = true
		updated.PayoutsEnabled = true
		updated.DetailsSubmitted = true
		updated.UpdateLink = ""
		return processor.MerchantOnboardDto{}, updated, nil
	}
	dto := processor.MerchantOnboardDto{
		AccountLink: "https://connect.example/onboard/" + b.nextID("acctlink"),
		Expiry:      time.Now().Add(24 * time.Hour),
	}
	updated := existing
	updated.UpdateLink = dto.AccountLink
	updated.UpdateLinkExpiry = dto.Expiry
	return dto, updated, nil
}

func (b *Backend) Refund(_ context.Context, _ processor.Charge3party, req processor.RefundResolveRequest) (processor.RefundResult, error) {
	return processor.RefundResult{RefundID: b.nextID("re"), Amount: req.Amount}, nil
}

var _ processor.Port = (*Backend)(nil)
