// Package scheduler runs the payment service's periodic background
// tasks: syncing refund requests from the order service.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metalalive/ecommerce-go/internal/payment/usecase"
)

// RunSyncRefundReq blocks, invoking SyncRefundReq on interval until ctx
// is canceled. The caller starts this as a goroutine at boot.
func RunSyncRefundReq(ctx context.Context, svc *usecase.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.SyncRefundReq(ctx, time.Now().UTC()); err != nil {
				log.Error().Str("component", "scheduler").Err(err).Msg("refund sync failed")
			}
		}
	}
}
