package usecase

import (
	"context"
	"encoding/json"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/order/model"
	"github.com/metalalive/ecommerce-go/internal/store"
)

const cartTable = "order_cart"

// CartItem is one product a buyer has staged before checkout.
type CartItem struct {
	PID model.ProductID
	Qty uint32
}

// Cart is the buyer-scoped staging area for items picked before
// checkout. CreateOrder does not read it; a checkout request carries its
// own explicit line list.
type Cart struct {
	BuyerID uint32
	SeqNo   uint32 // a buyer may keep several concurrent carts, indexed by seq
	Items   []CartItem
}

func cartKey(buyerID uint32, seq uint32) string {
	return storeKey(buyerID) + ":" + storeKey(seq)
}

// GetCart loads one buyer's cart; an absent cart decodes as empty rather
// than NotExist, since "no items yet" is the ordinary starting state.
func (s *Service) GetCart(ctx context.Context, buyerID, seq uint32) (*Cart, error) {
	key := cartKey(buyerID, seq)
	rows, err := s.ds.Fetch(ctx, cartTable, []string{key})
	if err != nil {
		return nil, err
	}
	row, ok := rows[key]
	if !ok || len(row) == 0 {
		return &Cart{BuyerID: buyerID, SeqNo: seq}, nil
	}
	var cart Cart
	if err := json.Unmarshal([]byte(row[0]), &cart); err != nil {
		return nil, apperr.Wrap(apperr.DataCorruption, "decode cart", err)
	}
	return &cart, nil
}

// ModifyCart replaces a buyer's cart contents wholesale (PUT semantics).
func (s *Service) ModifyCart(ctx context.Context, cart Cart) error {
	dedup := make(map[model.ProductID]bool, len(cart.Items))
	for _, item := range cart.Items {
		if dedup[item.PID] {
			return apperr.New(apperr.InvalidInput, "duplicate product in cart")
		}
		dedup[item.PID] = true
		if item.Qty == 0 {
			return apperr.New(apperr.InvalidQuantity, "zero quantity cart item")
		}
	}
	buf, err := json.Marshal(cart)
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode cart", err)
	}
	_, err = s.ds.Save(ctx, map[string]map[string]store.Row{
		cartTable: {cartKey(cart.BuyerID, cart.SeqNo): {string(buf)}},
	})
	return err
}
