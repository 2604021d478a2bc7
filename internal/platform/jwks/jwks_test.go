package jwks

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func ecJWKS(t *testing.T, kid string) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	enc := base64.RawURLEncoding
	body, _ := json.Marshal(map[string]any{"keys": []map[string]string{{
		"kty": "EC",
		"kid": kid,
		"alg": "ES256",
		"crv": "P-256",
		"x":   enc.EncodeToString(priv.PublicKey.X.FillBytes(make([]byte, 32))),
		"y":   enc.EncodeToString(priv.PublicKey.Y.FillBytes(make([]byte, 32))),
	}}})
	return priv, body
}

func TestCacheResolvesAndCachesKeys(t *testing.T) {
	priv, body := ecJWKS(t, "k1")
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	key, err := c.Key(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok || !pub.Equal(&priv.PublicKey) {
		t.Fatalf("unexpected key %#v", key)
	}
	if _, err := c.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("cached Key: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected one fetch, got %d", got)
	}
}

func TestCacheUnknownKidIsThrottled(t *testing.T) {
	_, body := ecJWKS(t, "k1")
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	now := time.Unix(1_700_000_000, 0)
	c := New(srv.URL, srv.Client())
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := c.Key(context.Background(), "nope"); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("attempt %d: expected ErrKeyNotFound, got %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected one fetch inside the refresh floor, got %d", got)
	}

	now = now.Add(time.Minute)
	_, _ = c.Key(context.Background(), "nope")
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected a second fetch after the floor, got %d", got)
	}
}

func TestCacheServesStaleKeyWhenFetchFails(t *testing.T) {
	_, body := ecJWKS(t, "k1")
	fail := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&fail) == 1 {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	now := time.Unix(1_700_000_000, 0)
	c := New(srv.URL, srv.Client())
	c.now = func() time.Time { return now }
	if _, err := c.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("Key: %v", err)
	}

	atomic.StoreInt32(&fail, 1)
	now = now.Add(DefaultTTL + time.Minute)
	if _, err := c.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("expected stale key fallback, got %v", err)
	}
}

func TestCacheWithoutURL(t *testing.T) {
	if _, err := New("", nil).Key(context.Background(), "k1"); err == nil {
		t.Fatalf("expected error without url")
	}
}
