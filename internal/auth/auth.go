// Package auth is the JWKS-backed auth-keystore port: a Keystore polls a
// JWKS endpoint on a ticker and verifies bearer tokens (RS256) against
// whichever key ID the token header names, so a key can rotate out
// without invalidating tokens signed moments earlier.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/metalalive/ecommerce-go/internal/apperr"
)

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// Principal is what a verified bearer token resolves to.
type Principal struct {
	UserID      uint32
	Roles       []string
	Permissions []string
	Quota       map[string]int
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDoc struct {
	Keys []jwk `json:"keys"`
}

// Keystore holds the current JWKS snapshot and refreshes it periodically.
type Keystore struct {
	url    string
	client *http.Client

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

func NewKeystore(url string) *Keystore {
	return &Keystore{url: url, client: &http.Client{Timeout: 5 * time.Second}, keys: make(map[string]*rsa.PublicKey)}
}

// Refresh fetches the JWKS document once and atomically swaps the key set.
func (k *Keystore) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return apperr.Wrap(apperr.LowLevelConn, "build jwks request", err)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.LowLevelConn, "fetch jwks", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.LowLevelConn, "read jwks body", err)
	}
	var doc jwksDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return apperr.Wrap(apperr.InvalidJsonFormat, "parse jwks", err)
	}
	next := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, key := range doc.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pub, err := decodeRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		next[key.Kid] = pub
	}
	k.mu.Lock()
	k.keys = next
	k.mu.Unlock()
	return nil
}

// RunRefreshLoop blocks, refreshing on interval until ctx is canceled.
// The caller starts this as a goroutine at boot, per spec's "out of
// scope, only the interface matters" note on keystore refresh.
func (k *Keystore) RunRefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = k.Refresh(ctx)
		}
	}
}

func (k *Keystore) lookup(kid string) (*rsa.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pub, ok := k.keys[kid]
	return pub, ok
}

func decodeRSAPublicKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64URLDecode(nB64)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64URLDecode(eB64)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// VerifyBearer parses and validates tokenStr against the current key set,
// returning the resolved principal claims.
func (k *Keystore) VerifyBearer(tokenStr string) (Principal, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		kid, _ := t.Header["kid"].(string)
		pub, ok := k.lookup(kid)
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return pub, nil
	})
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.InvalidCredential, "verify bearer token", err)
	}
	return principalFromClaims(claims), nil
}

func principalFromClaims(claims jwt.MapClaims) Principal {
	p := Principal{Quota: map[string]int{}}
	if sub, ok := claims["sub"].(string); ok {
		var id uint32
		fmt.Sscanf(sub, "%d", &id)
		p.UserID = id
	}
	if roles, ok := claims["roles"].([]any); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				p.Roles = append(p.Roles, s)
			}
		}
	}
	if perms, ok := claims["perms"].([]any); ok {
		for _, pm := range perms {
			if s, ok := pm.(string); ok {
				p.Permissions = append(p.Permissions, s)
			}
		}
	}
	if quota, ok := claims["quota"].(map[string]any); ok {
		for k, v := range quota {
			if f, ok := v.(float64); ok {
				p.Quota[k] = int(f)
			}
		}
	}
	return p
}
