// Package dummy is an RPC client/server backend used by tests: Call
// invokes the locally registered handler directly, with no network hop
// at all. It never needs a retry (the "call" can't fail transiently), so
// SupportsRetry reports false — a capability probe callers check instead
// of comparing against the backend's label string.
package dummy

import (
	"context"
	"time"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
)

type Backend struct {
	handlers map[string]rpcport.Handler
}

func New() *Backend {
	return &Backend{handlers: make(map[string]rpcport.Handler)}
}

func (b *Backend) Register(route string, h rpcport.Handler) {
	b.handlers[route] = h
}

func (b *Backend) Serve(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *Backend) SupportsRetry() bool { return false }

func (b *Backend) Call(ctx context.Context, req rpcport.ClientRequest, ttl time.Duration) (rpcport.Reply, error) {
	h, ok := b.handlers[req.Route]
	if !ok {
		return rpcport.Reply{}, apperr.New(apperr.NotImplemented, "no dummy handler for route "+req.Route)
	}
	callCtx := ctx
	var cancel context.CancelFunc
	if ttl > 0 {
		callCtx, cancel = context.WithTimeout(ctx, ttl)
		defer cancel()
	}
	return h(callCtx, req)
}
