package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/order/model"
)

func TestUpdateContactPatchesBillingAndShipping(t *testing.T) {
	s := newTestService(t)
	now := time.Now().UTC()
	pid := model.ProductID{StoreID: 1, ProductID: 9}
	seedStock(t, s, pid, now.Add(time.Hour), 10)

	_, err := s.CreateOrder(context.Background(), now, "order-contact-1", CreateOrderRequest{
		BuyerID: 42,
		Lines: []OrderLineInput{
			{PID: pid, UnitPrice: decimal.RequireFromString("9.99"), Qty: 1, ReservedUntil: now.Add(30 * time.Minute)},
		},
		Billing:  model.BillingModel{Contact: model.Contact{FirstName: "Old", LastName: "Billing"}},
		Shipping: model.ShippingModel{Contact: model.Contact{FirstName: "Old", LastName: "Shipping"}},
		CurrencySnapshot: map[uint32]model.CurrencyEntry{
			42: {Label: "USD", Rate: decimal.NewFromInt(1)}, 1: {Label: "USD", Rate: decimal.NewFromInt(1)},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	newBilling := model.Contact{FirstName: "New", LastName: "Billing", Emails: []string{"new@example.com"}}
	if err := s.UpdateContact(context.Background(), UpdateContactRequest{
		OrderID: "order-contact-1", Billing: &newBilling,
	}); err != nil {
		t.Fatalf("UpdateContact: %v", err)
	}

	billing, err := s.Repo.GetBilling(context.Background(), "order-contact-1")
	if err != nil {
		t.Fatalf("GetBilling: %v", err)
	}
	if billing.Contact.FirstName != "New" {
		t.Fatalf("billing contact not updated: %+v", billing.Contact)
	}

	shipping, err := s.Repo.GetShipping(context.Background(), "order-contact-1")
	if err != nil {
		t.Fatalf("GetShipping: %v", err)
	}
	if shipping.Contact.FirstName != "Old" {
		t.Fatalf("shipping contact should be untouched, got %+v", shipping.Contact)
	}
}

func TestUpdateContactRejectsUnknownOrder(t *testing.T) {
	s := newTestService(t)
	newBilling := model.Contact{FirstName: "New"}
	if err := s.UpdateContact(context.Background(), UpdateContactRequest{
		OrderID: "no-such-order", Billing: &newBilling,
	}); err == nil {
		t.Fatalf("expected error for unknown order")
	}
}
