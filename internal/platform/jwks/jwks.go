// Package jwks fetches and caches the public signing keys Supabase publishes
// for asymmetric (ES256/RS256) access tokens.
package jwks

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL = 6 * time.Hour
	// refreshFloor stops an unknown kid from turning every request into a fetch.
	refreshFloor = 30 * time.Second
)

var ErrKeyNotFound = errors.New("jwks: key not found")

// Cache resolves a key id to *rsa.PublicKey or *ecdsa.PublicKey.
type Cache struct {
	httpClient *http.Client
	url        string
	ttl        time.Duration
	now        func() time.Time

	mu          sync.RWMutex
	keys        map[string]any
	fetchedAt   time.Time
	attemptedAt time.Time
}

func New(url string, httpClient *http.Client) *Cache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Cache{
		httpClient: httpClient,
		url:        strings.TrimSpace(url),
		ttl:        DefaultTTL,
		now:        time.Now,
		keys:       map[string]any{},
	}
}

// Key returns the verification key for kid, refreshing the set when it is
// stale or kid is unknown. A failed refresh falls back to a cached key.
func (c *Cache) Key(ctx context.Context, kid string) (any, error) {
	if c == nil || c.url == "" {
		return nil, fmt.Errorf("jwks: url not configured")
	}
	c.mu.RLock()
	key := c.keys[kid]
	stale := c.now().Sub(c.fetchedAt) > c.ttl
	recent := c.now().Sub(c.attemptedAt) < refreshFloor
	c.mu.RUnlock()

	if key != nil && !stale {
		return key, nil
	}
	if recent {
		if key != nil {
			return key, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}

	if err := c.refresh(ctx); err != nil {
		if key != nil {
			return key, nil
		}
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if key = c.keys[kid]; key == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

type keySet struct {
	Keys []jsonKey `json:"keys"`
}

type jsonKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`

	N string `json:"n"`
	E string `json:"e"`

	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (c *Cache) refresh(ctx context.Context) error {
	c.mu.Lock()
	c.attemptedAt = c.now()
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jwks fetch: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("jwks fetch: %s", res.Status)
	}

	var set keySet
	if err := json.NewDecoder(res.Body).Decode(&set); err != nil {
		return fmt.Errorf("jwks decode: %w", err)
	}
	next := make(map[string]any, len(set.Keys))
	for _, k := range set.Keys {
		if strings.TrimSpace(k.Kid) == "" {
			continue
		}
		var (
			pub any
			err error
		)
		switch k.Kty {
		case "RSA":
			pub, err = rsaKey(k.N, k.E)
		case "EC":
			pub, err = ecKey(k.Crv, k.X, k.Y)
		default:
			continue
		}
		if err == nil {
			next[k.Kid] = pub
		}
	}
	if len(next) == 0 {
		return fmt.Errorf("jwks: no usable keys")
	}

	c.mu.Lock()
	c.keys = next
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return nil
}

func rsaKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eb {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

func ecKey(crv, xB64, yB64 string) (*ecdsa.PublicKey, error) {
	if crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve: %s", crv)
	}
	xb, err := base64.RawURLEncoding.DecodeString(xB64)
	if err != nil {
		return nil, err
	}
	yb, err := base64.RawURLEncoding.DecodeString(yB64)
	if err != nil {
		return nil, err
	}
	curve := elliptic.P256()
	x, y := new(big.Int).SetBytes(xb), new(big.Int).SetBytes(yb)
	if !curve.IsOnCurve(x, y) {
		return nil, fmt.Errorf("invalid EC point")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}
