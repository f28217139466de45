// Package model is the payment-side aggregate set: the charge state
// machine, merchant profile/3party, payout, and order-refund models.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/currency"
	"github.com/metalalive/ecommerce-go/internal/processor"
)

// ChargeState is the charge's pay-in lifecycle: Initialized ->
// ProcessorAccepted -> ProcessorCompleted -> OrderAppSynced, with
// OrderAppExpired as the only other terminal state. State never regresses.
type ChargeState string

const (
	StateInitialized       ChargeState = "Initialized"
	StateProcessorAccepted ChargeState = "ProcessorAccepted"
	StateProcessorCompleted ChargeState = "ProcessorCompleted"
	StateOrderAppSynced    ChargeState = "OrderAppSynced"
	StateOrderAppExpired   ChargeState = "OrderAppExpired"
)

var stateOrder = map[ChargeState]int{
	StateInitialized:        0,
	StateProcessorAccepted:  1,
	StateProcessorCompleted: 2,
	StateOrderAppSynced:     3,
	StateOrderAppExpired:    3, // terminal failure, not reachable from OrderAppSynced or vice versa
}

// CanAdvanceTo reports whether transitioning from s to next respects
// monotonicity; OrderAppSynced and OrderAppExpired are both terminal and
// neither can transition to the other.
func (s ChargeState) CanAdvanceTo(next ChargeState) bool {
	if s == StateOrderAppSynced || s == StateOrderAppExpired {
		return false
	}
	return stateOrder[next] >= stateOrder[s]
}

// ChargeMeta is a charge's identity, lifecycle timestamps, and the
// processor-side method snapshot.
type ChargeMeta struct {
	Owner                 uint32
	CreateTime             time.Time
	Token                  string
	OrderID                string
	State                  ChargeState
	ProcessorAcceptedTime  time.Time
	ProcessorCompletedTime time.Time
	OrderAppSyncedTime     time.Time
	Method                 processor.Charge3party
}

// PayInCompleted reports the processor's pay-in verdict: nil while
// pending, true/false once the processor has a terminal verdict.
func (m ChargeMeta) PayInCompleted() *bool {
	if m.Method.Stripe == nil {
		return nil
	}
	return m.Method.Stripe.PayInCompleted()
}

// ChargeLine is one product line of a charge.
type ChargeLine struct {
	PID    ProductID
	Amount decimal.Decimal
	Qty    uint32
}

type ProductID struct {
	StoreID   uint32
	ProductID uint64
}

// ChargeBuyerModel is the charge aggregate: metadata, lines, and the FX
// snapshot taken from the owning order.
type ChargeBuyerModel struct {
	Meta             ChargeMeta
	Lines            []ChargeLine
	CurrencySnapshot map[uint32]CurrencyEntry
}

type CurrencyEntry struct {
	Label currency.Label
	Rate  decimal.Decimal
}

// Advance moves the charge to next, rejecting any non-monotonic
// transition and recording the matching timestamp.
func (c *ChargeBuyerModel) Advance(next ChargeState, at time.Time) error {
	if !c.Meta.State.CanAdvanceTo(next) {
		return apperr.New(apperr.DataCorruption, "charge state transition would regress")
	}
	c.Meta.State = next
	switch next {
	case StateProcessorAccepted:
		c.Meta.ProcessorAcceptedTime = at
	case StateProcessorCompleted:
		c.Meta.ProcessorCompletedTime = at
	case StateOrderAppSynced:
		c.Meta.OrderAppSyncedTime = at
	}
	return nil
}

// TotalAmount sums every line; CaptureCharge discounts payouts against
// this base amount.
func (c ChargeBuyerModel) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Amount)
	}
	return total
}

// MerchantStaff is one entry of MerchantProfileModel.staff.
type MerchantStaff struct {
	StaffID    uint32
	StartAfter time.Time
	EndBefore  time.Time
}

func (s MerchantStaff) ActiveAt(now time.Time) bool {
	return !now.Before(s.StartAfter) && now.Before(s.EndBefore)
}

// MerchantProfileModel is a store's merchant profile: which staff may
// act on behalf of the store, and whether onboarding is active.
type MerchantProfileModel struct {
	StoreID      uint32
	Active       bool
	SupervisorID uint32
	Staff        []MerchantStaff
	ThreeParty   processor.Merchant3party
}

func (m MerchantProfileModel) StaffActiveAt(staffID uint32, now time.Time) bool {
	for _, s := range m.Staff {
		if s.StaffID == staffID && s.ActiveAt(now) {
			return true
		}
	}
	return false
}

// PayoutAmountModel tracks how much of a charge has been captured so
// far, supporting partial/multi-payout capture.
type PayoutAmountModel struct {
	TotalBase      decimal.Decimal
	TargetRate     decimal.Decimal
	CurrencySeller currency.Label
	CurrencyBuyer  currency.Label
}

// TryUpdate subtracts a previously paid-out amount from a new capture
// request, gated behind the merchant's SupportsSuccessiveTransfers
// capability.
func (p PayoutAmountModel) TryUpdate(alreadyPaid decimal.Decimal, merchant processor.Merchant3party) (decimal.Decimal, error) {
	remaining := p.TotalBase.Sub(alreadyPaid)
	if remaining.Sign() <= 0 {
		return decimal.Zero, apperr.New(apperr.AmountNotEnough, "no capturable amount remains")
	}
	if !alreadyPaid.IsZero() && !merchant.SupportsSuccessiveTransfers {
		return decimal.Zero, apperr.New(apperr.NotSupport, "processor account does not support successive transfers")
	}
	return remaining, nil
}

// PayoutModel is one capture event against a charge.
type PayoutModel struct {
	MerchantID   uint32
	CaptureTime  time.Time
	BuyerID      uint32
	ChargeCTime  time.Time
	StoreStaffID uint32
	Amount       PayoutAmountModel
	ThreeParty   processor.PayoutModel
}

// OrderRefundLine is one line of an OrderRefundModel.
type OrderRefundLine struct {
	PID        ProductID
	Qty        uint32
	Amount     decimal.Decimal
	CreateTime time.Time
}

// CachedOrderReplicaLine is one line of a locally cached order replica.
type CachedOrderReplicaLine struct {
	PID           ProductID
	Unit          decimal.Decimal
	Total         decimal.Decimal
	Qty           uint32
	ReservedUntil time.Time
}

// CachedOrderReplica is the payment service's local copy of an order
// replica, persisted on the first CreateCharge RPC fetch so subsequent
// calls for the same order skip the RPC hop entirely.
type CachedOrderReplica struct {
	OrderID          string
	BuyerID          uint32
	CreateTime       time.Time
	CurrencySnapshot map[uint32]CurrencyEntry
	Lines            []CachedOrderReplicaLine
}

// OrderRefundModel is the refund aggregate: every refund line recorded
// against an order, independent of which charge absorbed it.
type OrderRefundModel struct {
	OrderID string
	Lines   []OrderRefundLine
}

func (m *OrderRefundModel) RefundedQtyFor(pid ProductID) uint32 {
	var sum uint32
	for _, l := range m.Lines {
		if l.PID == pid {
			sum += l.Qty
		}
	}
	return sum
}
