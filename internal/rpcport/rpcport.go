// Package rpcport defines the RPC port: typed request/reply messaging
// around ClientRequest/Reply, with dummy, mock-file and broker backends
// (internal/rpcport/dummy, internal/rpcport/mockfile,
// internal/rpcport/broker) plus a Celery-compatible envelope
// (internal/rpcport/celery) layered on top.
package rpcport

import (
	"context"
	"time"

	"github.com/metalalive/ecommerce-go/internal/apperr"
)

// ClientRequest is the outbound message shape every RPC call sends.
type ClientRequest struct {
	UsrID   uint32
	Time    time.Time
	Route   string
	Message []byte
}

// Reply is what a request eventually resolves to.
type Reply struct {
	Message []byte
}

// Handler answers one route on the server side.
type Handler func(ctx context.Context, req ClientRequest) (Reply, error)

// Client publishes a request to a routing key, creates a reply
// correlation, and awaits exactly one reply or a TTL-driven timeout.
type Client interface {
	Call(ctx context.Context, req ClientRequest, ttl time.Duration) (Reply, error)

	// SupportsRetry reports whether a failed Call may be retried against
	// a freshly acquired connection: a capability probe rather than a
	// label comparison against the backend's name.
	SupportsRetry() bool
}

// Server consumes a subscribed route and dispatches to a handler table;
// an unrecognized route fails with NotImplemented.
type Server interface {
	Register(route string, h Handler)
	Serve(ctx context.Context) error
}

// CallWithRetry retries a transient dependency failure up to maxAttempts
// times, calling the same client again each time. Only errors whose
// category is CategoryDependency are retried.
func CallWithRetry(ctx context.Context, c Client, req ClientRequest, ttl time.Duration, maxAttempts int) (Reply, error) {
	if !c.SupportsRetry() || maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		reply, err := c.Call(ctx, req, ttl)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		ae, ok := err.(*apperr.Error)
		if !ok || ae.CategoryOf() != apperr.CategoryDependency {
			return Reply{}, err
		}
	}
	return Reply{}, lastErr
}
