package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

// fakeIDP serves a JWKS document and a token endpoint.
type fakeIDP struct {
	t         *testing.T
	srv       *httptest.Server
	mu        sync.Mutex
	keys      []jose.JSONWebKey
	jwksHits  atomic.Int32
	tokenForm url.Values
	tokenBody string
	tokenCode int
}

func newFakeIDP(t *testing.T) *fakeIDP {
	t.Helper()
	f := &fakeIDP{t: t, tokenCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		f.jwksHits.Add(1)
		f.mu.Lock()
		set := jose.JSONWebKeySet{Keys: append([]jose.JSONWebKey(nil), f.keys...)}
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	})
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.tokenForm = r.PostForm
		body, code := f.tokenBody, f.tokenCode
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// baseURL mirrors providers that publish their issuer with a trailing slash.
func (f *fakeIDP) baseURL() string { return f.srv.URL + "/" }

func (f *fakeIDP) publish(kid string, key crypto.PublicKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, jose.JSONWebKey{Key: key, KeyID: kid, Algorithm: string(jose.RS256), Use: "sig"})
}

func (f *fakeIDP) respond(code int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCode, f.tokenBody = code, body
}

func (f *fakeIDP) lastTokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenForm
}

func (f *fakeIDP) provider(t *testing.T) *Provider {
	t.Helper()
	endpoints, err := DefaultEndpoints(f.baseURL(), "/.well-known/jwks.json")
	if err != nil {
		t.Fatalf("DefaultEndpoints: %v", err)
	}
	return NewProvider(ProviderConfig{
		ClientID:     "app",
		ClientSecret: "s3cret",
		BaseURL:      f.baseURL(),
		CallbackPath: "/callback",
	}, endpoints)
}

func signToken(t *testing.T, method jwt.SigningMethod, kid string, key any, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(issuer string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":  issuer,
		"sub":  "user-123",
		"name": "Ada Lovelace",
		"iat":  now.Unix(),
		"exp":  now.Add(time.Hour).Unix(),
	}
}

// countingResolver records lookups and serves keys from a map.
type countingResolver struct {
	calls atomic.Int32
	keys  map[string]crypto.PublicKey
	err   error
}

func (c *countingResolver) Resolve(_ context.Context, kid string) (crypto.PublicKey, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	key, ok := c.keys[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return key, nil
}
