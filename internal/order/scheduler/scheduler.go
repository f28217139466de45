// Package scheduler runs the order service's periodic background tasks
// as detached loops with their own sleep interval: sweeping unpaid
// reservations past their deadline.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metalalive/ecommerce-go/internal/order/usecase"
)

// RunDiscardUnpaid blocks, invoking DiscardUnpaid on interval until ctx
// is canceled. The caller starts this as a goroutine at boot.
func RunDiscardUnpaid(ctx context.Context, svc *usecase.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.DiscardUnpaid(ctx, time.Now().UTC()); err != nil {
				log.Error().Str("component", "scheduler").Err(err).Msg("discard unpaid sweep failed")
			}
		}
	}
}
