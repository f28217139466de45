package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/currency"
	"github.com/metalalive/ecommerce-go/internal/idutil"
	"github.com/metalalive/ecommerce-go/internal/payment/model"
	"github.com/metalalive/ecommerce-go/internal/processor"
)

// CaptureChargeRequest is the inbound shape of CaptureCharge.
type CaptureChargeRequest struct {
	ChargeID string
	StoreID  uint32
	StaffID  uint32
}

// CaptureCharge runs the merchant pay-out algorithm: locate the charge,
// authorize the requesting staff against the merchant profile, and
// capture the remaining payable amount through the processor.
func (s *Service) CaptureCharge(ctx context.Context, now time.Time, req CaptureChargeRequest) (*model.PayoutModel, error) {
	buyer, createTime, err := idutil.DecodeChargeToken(req.ChargeID)
	if err != nil {
		return nil, err
	}

	charge, err := s.Repo.GetCharge(ctx, buyer, createTime)
	if err != nil {
		return nil, err
	}
	storeLines := linesForStore(charge, req.StoreID)
	if len(storeLines) == 0 {
		return nil, apperr.New(apperr.MissingCharge, "no lines for this merchant on this charge")
	}
	if charge.Meta.State != model.StateOrderAppSynced {
		return nil, apperr.New(apperr.PayInNotCompleted, "charge has not completed order sync")
	}

	merchant, err := s.Repo.GetMerchant(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}
	if !merchant.StaffActiveAt(req.StaffID, now) {
		return nil, apperr.New(apperr.InvalidMerchantStaff, "staff not active for this merchant at this time")
	}
	if !merchant.ThreeParty.CanPerformPayout() {
		return nil, apperr.New(apperr.NotSupport, "merchant processor account cannot perform payout")
	}

	baseAmount := decimal.Zero
	for _, l := range storeLines {
		baseAmount = baseAmount.Add(l.Amount)
	}

	sellerRate, ok := charge.CurrencySnapshot[req.StoreID]
	if !ok {
		return nil, apperr.New(apperr.CurrencyInconsistent, "missing seller currency snapshot entry")
	}
	buyerRate, ok := charge.CurrencySnapshot[buyer]
	if !ok {
		return nil, apperr.New(apperr.CurrencyInconsistent, "missing buyer currency snapshot entry")
	}

	existing, err := s.Repo.GetPayout(ctx, buyer, createTime, req.StoreID)
	if err != nil {
		return nil, err
	}
	alreadyPaid := decimal.Zero
	if existing != nil {
		alreadyPaid = existing.Amount.TotalBase
	}

	payoutAmount := model.PayoutAmountModel{
		TotalBase: baseAmount, TargetRate: sellerRate.Rate,
		CurrencySeller: sellerRate.Label, CurrencyBuyer: buyerRate.Label,
	}
	remainingBase, err := payoutAmount.TryUpdate(alreadyPaid, merchant.ThreeParty)
	if err != nil {
		return nil, err
	}

	merchantAmount, err := currency.ConvertPayout(remainingBase, sellerRate.Rate, buyerRate.Rate, sellerRate.Label)
	if err != nil {
		return nil, err
	}

	_, threeParty, err := s.Processor.PayOut(ctx, processor.PayoutRequest{
		TransferGroup: req.ChargeID, DestAcctID: merchant.ThreeParty.ID,
		Amount: merchantAmount, Currency: string(sellerRate.Label),
	})
	if err != nil {
		return nil, err
	}

	payout := &model.PayoutModel{
		MerchantID: req.StoreID, CaptureTime: now, BuyerID: buyer, ChargeCTime: createTime,
		StoreStaffID: req.StaffID,
		Amount: model.PayoutAmountModel{
			TotalBase: alreadyPaid.Add(remainingBase), TargetRate: sellerRate.Rate,
			CurrencySeller: sellerRate.Label, CurrencyBuyer: buyerRate.Label,
		},
		ThreeParty: threeParty,
	}
	if err := s.Repo.SavePayout(ctx, payout); err != nil {
		return nil, err
	}
	return payout, nil
}

func linesForStore(charge *model.ChargeBuyerModel, storeID uint32) []model.ChargeLine {
	var out []model.ChargeLine
	for _, l := range charge.Lines {
		if l.PID.StoreID == storeID {
			out = append(out, l)
		}
	}
	return out
}
