// Package rpcapi registers the order service's RPC routes:
// update_store_products, stock_level_edit, stock_return_cancelled,
// order_reserved_replica_{payment,inventory}, order_returned_replica_refund,
// order_reserved_update_payment, order_reserved_discard_unpaid. Each
// handler decodes a raw JSON body (no rpcport.Server implementation
// applies the celery envelope) and calls straight into
// internal/order/usecase.
package rpcapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/order/model"
	"github.com/metalalive/ecommerce-go/internal/order/reservation"
	"github.com/metalalive/ecommerce-go/internal/order/usecase"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
)

func pidOf(storeID uint32, productID uint64) model.ProductID {
	return model.ProductID{StoreID: storeID, ProductID: productID}
}

const (
	RouteUpdateStoreProducts      = "rpc.order.update_store_products"
	RouteStockLevelEdit           = "rpc.order.stock_level_edit"
	RouteStockReturnCancelled     = "rpc.order.stock_return_cancelled"
	RouteReplicaPayment           = "rpc.order.order_reserved_replica_payment"
	RouteReplicaInventory         = "rpc.order.order_reserved_replica_inventory"
	RouteReplicaRefund            = "rpc.order.order_returned_replica_refund"
	RouteReservedUpdatePayment    = "rpc.order.order_reserved_update_payment"
	RouteReservedDiscardUnpaid    = "rpc.order.order_reserved_discard_unpaid"
)

func Register(srv rpcport.Server, svc *usecase.Service) {
	srv.Register(RouteUpdateStoreProducts, handleUpdateStoreProducts(svc))
	srv.Register(RouteStockLevelEdit, handleStockLevelEdit(svc))
	srv.Register(RouteStockReturnCancelled, handleStockReturnCancelled(svc))
	srv.Register(RouteReplicaPayment, handleReplicaPayment(svc))
	srv.Register(RouteReplicaInventory, handleReplicaInventory(svc))
	srv.Register(RouteReplicaRefund, handleReplicaRefund(svc))
	srv.Register(RouteReservedUpdatePayment, handleUpdatePayment(svc))
	srv.Register(RouteReservedDiscardUnpaid, handleDiscardUnpaid(svc))
}

// handleUpdateStoreProducts answers rpc.order.update_store_products: the
// product-price edit push from the storefront service.
func handleUpdateStoreProducts(svc *usecase.Service) rpcport.Handler {
	return func(ctx context.Context, req rpcport.ClientRequest) (rpcport.Reply, error) {
		var body usecase.EditProductPriceRequest
		if err := json.Unmarshal(req.Message, &body); err != nil {
			return rpcport.Reply{}, apperr.Wrap(apperr.InvalidJsonFormat, "decode update store products request", err)
		}
		if err := svc.EditProductPrice(ctx, body); err != nil {
			return rpcport.Reply{}, err
		}
		return replyOK()
	}
}

type stockReturnItem struct {
	StoreID   uint32    `json:"store_id"`
	ProductID uint64    `json:"product_id"`
	Expiry    time.Time `json:"expiry"`
	Qty       uint32    `json:"qty"`
}

type stockReturnRequest struct {
	OrderID string            `json:"order_id"`
	Items   []stockReturnItem `json:"items"`
}

func handleStockReturnCancelled(svc *usecase.Service) rpcport.Handler {
	return func(ctx context.Context, req rpcport.ClientRequest) (rpcport.Reply, error) {
		var body stockReturnRequest
		if err := json.Unmarshal(req.Message, &body); err != nil {
			return rpcport.Reply{}, apperr.Wrap(apperr.InvalidJsonFormat, "decode stock return cancelled request", err)
		}
		items := make([]reservation.ReturnItem, len(body.Items))
		for i, it := range body.Items {
			items[i] = reservation.ReturnItem{PID: pidOf(it.StoreID, it.ProductID), Expiry: it.Expiry, Qty: it.Qty}
		}
		errs, err := svc.ReturnCancelledStock(ctx, items)
		if err != nil {
			return rpcport.Reply{}, err
		}
		return replyJSON(map[string]any{"errors": errs})
	}
}

func handleStockLevelEdit(svc *usecase.Service) rpcport.Handler {
	return func(ctx context.Context, req rpcport.ClientRequest) (rpcport.Reply, error) {
		var body usecase.StockLevelRequest
		if err := json.Unmarshal(req.Message, &body); err != nil {
			return rpcport.Reply{}, apperr.Wrap(apperr.InvalidJsonFormat, "decode stock level edit", err)
		}
		if err := svc.StockLevel(ctx, body); err != nil {
			return rpcport.Reply{}, err
		}
		return replyOK()
	}
}

func handleReplicaPayment(svc *usecase.Service) rpcport.Handler {
	return func(ctx context.Context, req rpcport.ClientRequest) (rpcport.Reply, error) {
		var body struct{ OrderID string `json:"order_id"` }
		if err := json.Unmarshal(req.Message, &body); err != nil {
			return rpcport.Reply{}, apperr.Wrap(apperr.InvalidJsonFormat, "decode replica payment request", err)
		}
		replica, err := svc.BuildOrderReplicaPayment(ctx, body.OrderID)
		if err != nil {
			return rpcport.Reply{}, err
		}
		return replyJSON(replica)
	}
}

func handleReplicaInventory(svc *usecase.Service) rpcport.Handler {
	return func(ctx context.Context, req rpcport.ClientRequest) (rpcport.Reply, error) {
		var body struct{ OrderID string `json:"order_id"` }
		if err := json.Unmarshal(req.Message, &body); err != nil {
			return rpcport.Reply{}, apperr.Wrap(apperr.InvalidJsonFormat, "decode replica inventory request", err)
		}
		replica, err := svc.BuildOrderReplicaInventory(ctx, body.OrderID)
		if err != nil {
			return rpcport.Reply{}, err
		}
		return replyJSON(replica)
	}
}

func handleReplicaRefund(svc *usecase.Service) rpcport.Handler {
	return func(ctx context.Context, req rpcport.ClientRequest) (rpcport.Reply, error) {
		var body struct{ OrderID string `json:"order_id"` }
		if err := json.Unmarshal(req.Message, &body); err != nil {
			return rpcport.Reply{}, apperr.Wrap(apperr.InvalidJsonFormat, "decode replica refund request", err)
		}
		replica, err := svc.BuildOrderReplicaRefund(ctx, body.OrderID)
		if err != nil {
			return rpcport.Reply{}, err
		}
		return replyJSON(replica)
	}
}

// updatePaymentRequest is what the payment service publishes once a
// charge settles: charge lines plus the charge's create_time as an
// idempotency key.
type updatePaymentRequest struct {
	OrderID    string                         `json:"order_id"`
	ChargeTime time.Time                      `json:"charge_time"`
	Lines      []updatePaymentRequestLine     `json:"lines"`
}

type updatePaymentRequestLine struct {
	StoreID   uint32 `json:"store_id"`
	ProductID uint64 `json:"product_id"`
	AddQty    uint32 `json:"add_qty"`
}

func handleUpdatePayment(svc *usecase.Service) rpcport.Handler {
	return func(ctx context.Context, req rpcport.ClientRequest) (rpcport.Reply, error) {
		var body updatePaymentRequest
		if err := json.Unmarshal(req.Message, &body); err != nil {
			return rpcport.Reply{}, apperr.Wrap(apperr.InvalidJsonFormat, "decode update payment request", err)
		}
		updates := make([]reservation.PaidLineUpdate, len(body.Lines))
		for i, l := range body.Lines {
			updates[i] = reservation.PaidLineUpdate{
				PID:        pidOf(l.StoreID, l.ProductID),
				AddQty:     l.AddQty,
				ChargeTime: body.ChargeTime,
			}
		}
		errs, err := svc.OrderPaymentUpdate(ctx, body.OrderID, updates)
		if err != nil {
			return rpcport.Reply{}, err
		}
		return replyJSON(map[string]any{"errors": errs})
	}
}

func handleDiscardUnpaid(svc *usecase.Service) rpcport.Handler {
	return func(ctx context.Context, req rpcport.ClientRequest) (rpcport.Reply, error) {
		if err := svc.DiscardUnpaid(ctx, time.Now().UTC()); err != nil {
			return rpcport.Reply{}, err
		}
		return replyOK()
	}
}

func replyOK() (rpcport.Reply, error) {
	return replyJSON(map[string]string{"status": "ok"})
}

func replyJSON(v any) (rpcport.Reply, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return rpcport.Reply{}, apperr.Wrap(apperr.DataCorruption, "encode rpc reply", err)
	}
	return rpcport.Reply{Message: buf}, nil
}
