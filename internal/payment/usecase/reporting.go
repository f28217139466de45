package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/payment/model"
)

// ReportTimeRange bounds a reporting query.
type ReportTimeRange struct {
	From time.Time
	To   time.Time
}

// ReportChargeLine is one aggregated (store, product) total within a
// reporting window.
type ReportChargeLine struct {
	PID   model.ProductID
	Qty   uint32
	Total decimal.Decimal
}

// ReportChargeSummary is the charge-reporting response, grouped by
// store and time window.
type ReportChargeSummary struct {
	StoreID uint32
	Range   ReportTimeRange
	Lines   []ReportChargeLine
}

// ReportChargeLines implements the read-only Reporting use case:
// validate the requesting staff against the merchant profile, then
// aggregate every charge line touching this store within the window.
func (s *Service) ReportChargeLines(ctx context.Context, now time.Time, storeID, staffID uint32, tr ReportTimeRange) (*ReportChargeSummary, error) {
	merchant, err := s.Repo.GetMerchant(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !merchant.StaffActiveAt(staffID, now) {
		return nil, apperr.New(apperr.InvalidMerchantStaff, "staff not active for this merchant at this time")
	}

	charges, err := s.Repo.FetchChargesByMerchant(ctx, storeID, tr.From, tr.To)
	if err != nil {
		return nil, err
	}

	totals := make(map[model.ProductID]*ReportChargeLine)
	for _, c := range charges {
		for _, l := range linesForStore(c, storeID) {
			agg, ok := totals[l.PID]
			if !ok {
				agg = &ReportChargeLine{PID: l.PID}
				totals[l.PID] = agg
			}
			agg.Qty += l.Qty
			agg.Total = agg.Total.Add(l.Amount)
		}
	}

	summary := &ReportChargeSummary{StoreID: storeID, Range: tr}
	for _, l := range totals {
		summary.Lines = append(summary.Lines, *l)
	}
	return summary, nil
}
