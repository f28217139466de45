package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/order/model"
)

// AddReturnRequest is the inbound shape of a buyer-initiated return against
// one line of a paid order.
type AddReturnRequest struct {
	OrderID      string
	PID          model.ProductID
	At           time.Time
	Qty          uint32
	RefundAmount decimal.Decimal
}

// AddReturn records a return against an order line, checked against the
// line's warranty window and remaining paid quantity, and persists the
// updated return ledger.
func (s *Service) AddReturn(ctx context.Context, now time.Time, req AddReturnRequest) error {
	set, err := s.Repo.GetLines(ctx, req.OrderID)
	if err != nil {
		return err
	}
	var line *model.OrderLine
	for i := range set.Lines {
		if set.Lines[i].PID == req.PID {
			line = &set.Lines[i]
			break
		}
	}
	if line == nil {
		return apperr.New(apperr.NotExist, "no matching order line")
	}

	policies, err := s.LoadPolicies(ctx, []model.ProductID{req.PID})
	if err != nil {
		return err
	}
	policy := policies[req.PID]

	ledger, err := s.Repo.GetReturns(ctx, req.OrderID)
	if err != nil {
		return err
	}
	if err := ledger.AddReturn(set.CreateTime, line, policy, req.At, req.Qty, req.RefundAmount, now); err != nil {
		return err
	}
	return s.Repo.SaveReturns(ctx, ledger)
}
