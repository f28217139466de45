// Package confidential implements the confidentiality port: read-only
// secret lookup by dotted path over a cached JSON tree.
// File I/O happens once at startup; after that every lookup is served
// from the in-memory tree behind a reader-writer lock — readers run
// concurrently, a Reload takes the writer side exclusively.
package confidential

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/metalalive/ecommerce-go/internal/apperr"
)

// Reader is the port every use case depends on.
type Reader interface {
	// Lookup resolves a dotted path ("third_parties.stripe.api_key")
	// against the cached tree.
	Lookup(path string) (string, error)
}

// UserSpace is the confidentiality backend config §6 names: a JSON
// document read once from sys_path and cached.
type UserSpace struct {
	mu   sync.RWMutex
	tree any
}

func LoadUserSpace(sysPath string) (*UserSpace, error) {
	b, err := os.ReadFile(sysPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "read confidentiality file", err)
	}
	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, apperr.Wrap(apperr.InvalidJsonFormat, "parse confidentiality file", err)
	}
	return &UserSpace{tree: tree}, nil
}

// Reload re-reads the file, taking the writer lock for the swap only —
// any lookup in flight against the old tree still completes cleanly.
func (u *UserSpace) Reload(sysPath string) error {
	fresh, err := LoadUserSpace(sysPath)
	if err != nil {
		return err
	}
	u.mu.Lock()
	u.tree = fresh.tree
	u.mu.Unlock()
	return nil
}

func (u *UserSpace) Lookup(path string) (string, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	cur := u.tree
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return "", apperr.New(apperr.NotExist, "no such path: "+path)
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return "", apperr.New(apperr.NotExist, "no such path: "+path)
			}
			cur = node[idx]
		default:
			return "", apperr.New(apperr.NotExist, "no such path: "+path)
		}
	}
	switch v := cur.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", apperr.Wrap(apperr.DataCorruption, "non-scalar confidential value", err)
		}
		return string(b), nil
	}
}
