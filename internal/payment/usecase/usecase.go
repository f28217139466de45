// Package usecase is the payment service's orchestration layer:
// CreateCharge, RefreshChargeStatus, CaptureCharge, OnboardStore,
// RefreshOnboardStatus, FinalizeRefund, SyncRefundReq, and Reporting.
// Each owns a short-lived repo handle plus whichever of the
// processor/rpc/currency ports it needs.
package usecase

import (
	"time"

	"github.com/metalalive/ecommerce-go/internal/currency"
	"github.com/metalalive/ecommerce-go/internal/payment/ordersync"
	"github.com/metalalive/ecommerce-go/internal/payment/repo"
	"github.com/metalalive/ecommerce-go/internal/processor"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
)

// Service bundles every port the payment use cases are built from.
type Service struct {
	Repo      *repo.PaymentRepo
	Processor processor.Port
	RPC       rpcport.Client
	Currency  currency.Port
	Sync      *ordersync.Manager
	RPCTTL    time.Duration
}

func NewService(r *repo.PaymentRepo, p processor.Port, rpc rpcport.Client, cur currency.Port) *Service {
	return &Service{Repo: r, Processor: p, RPC: rpc, Currency: cur, Sync: ordersync.NewManager(), RPCTTL: 10 * time.Second}
}
