// Package rpcapi would register the payment service's inbound RPC
// routes. Every RPC route payment participates in (rpc.order.*,
// rpc.store.profile_replica) is one payment publishes to and the
// order/storefront services answer — payment has no inbound RPC routes
// of its own to register. Register exists so cmd/payment can wire an
// rpcport.Server uniformly with cmd/order without a type switch, even
// though it has nothing to bind yet.
package rpcapi

import (
	"github.com/metalalive/ecommerce-go/internal/payment/usecase"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
)

func Register(srv rpcport.Server, svc *usecase.Service) {
	_ = srv
	_ = svc
}
