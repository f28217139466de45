// Package processor is the pluggable external-payment-processor port:
// pay-in start/progress, pay-out, merchant onboarding and refresh, and
// refund. Concrete backends (a Stripe-shaped mock lives in
// internal/processor/mock) are tagged variants selected at startup, so
// settlement is an injected dependency rather than inline code.
package processor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SessionState is the processor-side lifecycle of a hosted pay-in session.
type SessionState string

const (
	SessionOpen    SessionState = "open"
	SessionComplete SessionState = "complete"
	SessionExpired  SessionState = "expired"
)

// PaymentState is the processor's view of whether funds actually moved.
type PaymentState string

const (
	PaymentPaid           PaymentState = "paid"
	PaymentUnpaid         PaymentState = "unpaid"
	PaymentNoneRequired   PaymentState = "no_payment_required"
)

// Stripe is the only supported Charge3party variant. Unknown third-party
// methods are rejected wherever a Charge3party is written.
type Stripe struct {
	SessionID       string
	PaymentIntentID string
	SessionState    SessionState
	PaymentState    PaymentState
	Expiry          time.Time
}

// PayInCompleted reports whether this session has reached a terminal,
// successful payment state, per ChargeBuyerMetaModel.method.pay_in_completed.
// true = done, false = expired/refused terminal failure, nil = still pending.
func (s Stripe) PayInCompleted() *bool {
	switch {
	case s.PaymentState == PaymentPaid || s.PaymentState == PaymentNoneRequired:
		v := true
		return &v
	case s.SessionState == SessionExpired:
		v := false
		return &v
	default:
		return nil
	}
}

// Charge3party is the tagged union of supported pay-in methods. Unknown
// is never valid to persist; it exists only to reject malformed input.
type Charge3party struct {
	Stripe  *Stripe
	Unknown bool
}

func (c Charge3party) Valid() bool { return c.Stripe != nil && !c.Unknown }

// TransferCapability mirrors Stripe Connect's capabilities.transfers field.
type TransferCapability string

const (
	TransferActive   TransferCapability = "active"
	TransferInactive TransferCapability = "inactive"
	TransferPending  TransferCapability = "pending"
)

// Merchant3party is the Stripe Connect account state for one merchant.
type Merchant3party struct {
	ID               string
	Country          string
	Email            string
	Transfers        TransferCapability
	TosAccepted      bool
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	Created          time.Time
	UpdateLink       string
	UpdateLinkExpiry time.Time

	// SupportsSuccessiveTransfers records whether multiple payouts may
	// share one transfer group. Stripe Connect standard accounts do;
	// some platform configurations don't.
	SupportsSuccessiveTransfers bool
}

func (m Merchant3party) CanPerformPayout() bool {
	return m.PayoutsEnabled && m.ChargesEnabled && m.Transfers == TransferActive
}

// PayInMethodRequest is the buyer-chosen pay-in method, before the
// processor has opened a session for it.
type PayInMethodRequest struct {
	Method       string
	ReturnURL    string
	CurrencyCode string
}

// PayInResult is what pay_in_start/pay_in_progress return on the charge
// side.
type PayInResult struct {
	ChargeID  string
	Method    string
	State     string
	Completed bool
}

// ChargeLine is one line of a charge being started or refunded.
type ChargeLine struct {
	StoreID   uint32
	ProductID uint64
	Amount    decimal.Decimal
}

// ChargeRequest is everything pay_in_start needs to open a processor
// session for one charge.
type ChargeRequest struct {
	Owner   uint32
	OrderID string
	Token   string
	Lines   []ChargeLine
	Method  PayInMethodRequest
}

// PayoutRequest is what pay_out needs to move captured funds to a
// merchant's connected account.
type PayoutRequest struct {
	TransferGroup string // hex charge token, idempotency key
	DestAcctID    string // merchant 3party ID
	Amount        decimal.Decimal
	Currency      string
}

type PayoutDto struct {
	TransferID string
	Amount     decimal.Decimal
}

type PayoutModel struct {
	TransferGroup string
	DestAcctID    string
	TransferID    string
	Amount        decimal.Decimal
}

// MerchantOnboardRequest carries whatever the onboarding endpoint needs
// to request (or refresh) a processor account link.
type MerchantOnboardRequest struct {
	StoreID      uint32
	Country      string
	Email        string
	RefreshURL   string
	ReturnURL    string
}

type MerchantOnboardDto struct {
	AccountLink string
	Expiry      time.Time
}

// RefundResolveRequest is one charge's share of a refund being resolved
// across potentially several charges.
type RefundResolveRequest struct {
	Charge3party Charge3party
	Amount       decimal.Decimal
	Reason       string
}

type RefundResult struct {
	RefundID string
	Amount   decimal.Decimal
}

// Port is the abstract processor capability set. Every method is a
// suspension point where control may yield to an external call.
type Port interface {
	PayInStart(ctx context.Context, req ChargeRequest) (PayInResult, Charge3party, error)
	PayInProgress(ctx context.Context, method Charge3party) (Charge3party, error)
	PayOut(ctx context.Context, req PayoutRequest) (PayoutDto, PayoutModel, error)
	OnboardMerchant(ctx context.Context, req MerchantOnboardRequest) (MerchantOnboardDto, Merchant3party, error)
	RefreshOnboardStatus(ctx context.Context, existing Merchant3party, req MerchantOnboardRequest) (MerchantOnboardDto, Merchant3party, error)
	Refund(ctx context.Context, charge Charge3party, req RefundResolveRequest) (RefundResult, error)
}
