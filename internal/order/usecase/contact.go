package usecase

import (
	"context"

	"github.com/metalalive/ecommerce-go/internal/order/model"
)

// UpdateContactRequest patches the billing and/or shipping contact of an
// already-created order. A nil field leaves that half of the order
// untouched.
type UpdateContactRequest struct {
	OrderID  string
	Billing  *model.Contact
	Shipping *model.Contact
}

// UpdateContact rewrites the billing and/or shipping contact attached to
// an order, leaving the address and shipping options as they were.
func (s *Service) UpdateContact(ctx context.Context, req UpdateContactRequest) error {
	if req.Billing != nil {
		billing, err := s.Repo.GetBilling(ctx, req.OrderID)
		if err != nil {
			return err
		}
		billing.Contact = *req.Billing
		if err := s.Repo.SaveBilling(ctx, billing); err != nil {
			return err
		}
	}
	if req.Shipping != nil {
		shipping, err := s.Repo.GetShipping(ctx, req.OrderID)
		if err != nil {
			return err
		}
		shipping.Contact = *req.Shipping
		if err := s.Repo.SaveShipping(ctx, shipping); err != nil {
			return err
		}
	}
	return nil
}
