// Package mockfile is the "Mock{test_data}" RPC backend config §6 names:
// canned replies loaded once from a JSON file, keyed by route, replayed
// verbatim on every Call. Useful for integration tests that want a fixed
// order-replica/store-profile fixture without a running broker.
package mockfile

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
)

type Backend struct {
	replies map[string][]byte
}

// Load reads a JSON object of route -> raw reply payload.
func Load(testDataPath string) (*Backend, error) {
	b, err := os.ReadFile(testDataPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "read mock rpc fixture", err)
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, apperr.Wrap(apperr.InvalidJsonFormat, "parse mock rpc fixture", err)
	}
	replies := make(map[string][]byte, len(raw))
	for route, msg := range raw {
		replies[route] = []byte(msg)
	}
	return &Backend{replies: replies}, nil
}

func (b *Backend) SupportsRetry() bool { return false }

func (b *Backend) Call(_ context.Context, req rpcport.ClientRequest, _ time.Duration) (rpcport.Reply, error) {
	msg, ok := b.replies[req.Route]
	if !ok {
		return rpcport.Reply{}, apperr.New(apperr.InvalidRoute, "no fixture for route "+req.Route)
	}
	return rpcport.Reply{Message: msg}, nil
}
