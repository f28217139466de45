// Package model is the order-side aggregate set: order lines under
// reservation, billing/shipping contacts, product policy and price
// snapshots, and the stock model the reservation/cancellation engine
// operates over.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/currency"
)

// ProductID is the compound key identifying a product: {store, product}.
type ProductID struct {
	StoreID   uint32
	ProductID uint64
}

// LineAmount is {unit, total, qty} with the invariant total == unit*qty
// enforced at construction via NewLineAmount.
type LineAmount struct {
	Unit  decimal.Decimal
	Total decimal.Decimal
	Qty   uint32
}

func NewLineAmount(unit decimal.Decimal, qty uint32) (LineAmount, error) {
	if qty == 0 {
		return LineAmount{}, apperr.New(apperr.InvalidQuantity, "zero quantity")
	}
	total := unit.Mul(decimal.NewFromInt(int64(qty)))
	return LineAmount{Unit: unit, Total: total, Qty: qty}, nil
}

// OrderLine is one reserved line within an OrderLineModelSet.
type OrderLine struct {
	PID            ProductID
	RsvTotal       LineAmount
	PaidTotal      LineAmount
	ReservedUntil  time.Time
	AttrSetSeq     uint64
	PaidLastUpdate time.Time
}

// Expired reports whether the reservation window has closed as of now.
func (l OrderLine) Expired(now time.Time) bool {
	return !now.Before(l.ReservedUntil)
}

func (l OrderLine) validate() error {
	if l.RsvTotal.Qty == 0 {
		return apperr.New(apperr.InvalidQuantity, "zero quantity")
	}
	if !l.PaidTotal.Unit.Equal(l.RsvTotal.Unit) && !l.PaidTotal.Unit.IsZero() {
		return apperr.New(apperr.AmountMismatch, "paid unit diverges from reserved unit")
	}
	if l.PaidTotal.Qty > l.RsvTotal.Qty {
		return apperr.New(apperr.InvalidQuantity, "paid quantity exceeds reserved quantity")
	}
	expectedTotal := l.PaidTotal.Unit.Mul(decimal.NewFromInt(int64(l.PaidTotal.Qty)))
	if !l.PaidTotal.Total.Equal(expectedTotal) {
		return apperr.New(apperr.AmountMismatch, "paid total diverges from unit*qty")
	}
	return nil
}

// CurrencyEntry is one row of a currency_snapshot map, keyed by user ID
// in the set that owns it.
type CurrencyEntry struct {
	Label currency.Label
	Rate  decimal.Decimal
}

// OrderLineSet is an order's lines plus the FX snapshot taken at
// creation time.
type OrderLineSet struct {
	OrderID          string
	BuyerID          uint32
	CreateTime       time.Time
	CurrencySnapshot map[uint32]CurrencyEntry
	Lines            []OrderLine
}

// Validate checks an OrderLineSet's invariants: non-empty lines, unique
// (store,product) per line, and a currency snapshot entry for the buyer
// and every distinct seller.
func (s OrderLineSet) Validate() error {
	if len(s.Lines) == 0 {
		return apperr.New(apperr.EmptyInputData, "order has no lines")
	}
	seen := make(map[ProductID]bool, len(s.Lines))
	for _, l := range s.Lines {
		if seen[l.PID] {
			return apperr.New(apperr.InvalidInput, "duplicate product id within order")
		}
		seen[l.PID] = true
		if err := l.validate(); err != nil {
			return err
		}
	}
	if _, ok := s.CurrencySnapshot[s.BuyerID]; !ok {
		return apperr.New(apperr.CurrencyInconsistent, "missing buyer currency snapshot")
	}
	for _, l := range s.Lines {
		if _, ok := s.CurrencySnapshot[l.PID.StoreID]; !ok {
			return apperr.New(apperr.CurrencyInconsistent, "missing seller currency snapshot")
		}
	}
	return nil
}

// Contact is the shared shape of BillingModel/ShippingModel's contact
// section: a name, one or more emails, one or more phones.
type Phone struct {
	Nation int
	Number string
}

type Contact struct {
	FirstName string
	LastName  string
	Emails    []string
	Phones    []Phone
}

type PhysicalAddress struct {
	Country  string
	Region   string
	City     string
	Distinct string
	Street   string
	Detail   string
}

type BillingModel struct {
	OrderID string
	Contact Contact
	Address *PhysicalAddress
}

type ShipOption struct {
	SellerID uint32
	Method   string
}

type ShippingModel struct {
	OrderID string
	Contact Contact
	Address *PhysicalAddress
	Options []ShipOption
}

// ProductPolicy caps a product's auto-cancel timeout, warranty window,
// and per-order reservation quantity.
type ProductPolicy struct {
	PID             ProductID
	AutoCancelSecs  uint32
	WarrantyHours   uint32
	MaxNumReserve   uint32
	MinNumReserve   uint32
}

const (
	MaxAutoCancelSecs = 86400
	MaxWarrantyHours  = 175200
)

func (p ProductPolicy) Validate() error {
	if p.AutoCancelSecs > MaxAutoCancelSecs {
		return apperr.New(apperr.ExceedingMaxLimit, "auto_cancel_secs exceeds 86400")
	}
	if p.WarrantyHours > MaxWarrantyHours {
		return apperr.New(apperr.ExceedingMaxLimit, "warranty_hours exceeds 175200")
	}
	return nil
}

// QuantityAllowed reports whether qty falls within [min, max] for this policy.
func (p ProductPolicy) QuantityAllowed(qty uint32) bool {
	if p.MaxNumReserve > 0 && qty > p.MaxNumReserve {
		return false
	}
	if p.MinNumReserve > 0 && qty < p.MinNumReserve {
		return false
	}
	return true
}

// PriceItem is one entry in a ProductPriceModelSet.
type PriceItem struct {
	Price       decimal.Decimal
	ProductID   uint64
	StartAfter  time.Time
	EndBefore   time.Time
	IsCreate    bool
}

type ProductPriceSet struct {
	StoreID  uint32
	Currency currency.Label
	Items    []PriceItem
}

// Active reports whether the item's validity window covers at.
func (p PriceItem) Active(at time.Time) bool {
	return !at.Before(p.StartAfter) && at.Before(p.EndBefore)
}
