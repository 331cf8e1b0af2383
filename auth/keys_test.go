package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-jose/go-jose/v3"
)

func TestJWKSResolverCachesByKeyID(t *testing.T) {
	idp := newFakeIDP(t)
	key := newRSAKey(t)
	idp.publish("k1", &key.PublicKey)
	resolver := NewJWKSResolver(idp.srv.URL+"/.well-known/jwks.json", nil, discardLogger())

	for i := 0; i < 3; i++ {
		got, err := resolver.Resolve(context.Background(), "k1")
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		pub, ok := got.(*rsa.PublicKey)
		if !ok || pub.N.Cmp(key.PublicKey.N) != 0 {
			t.Fatalf("resolved key does not match published key")
		}
	}
	if hits := idp.jwksHits.Load(); hits != 1 {
		t.Fatalf("expected a single fetch, got %d", hits)
	}
}

func TestJWKSResolverRefetchesOnUnknownKeyID(t *testing.T) {
	idp := newFakeIDP(t)
	first := newRSAKey(t)
	idp.publish("k1", &first.PublicKey)
	resolver := NewJWKSResolver(idp.srv.URL+"/.well-known/jwks.json", nil, discardLogger())

	if _, err := resolver.Resolve(context.Background(), "k1"); err != nil {
		t.Fatalf("Resolve k1: %v", err)
	}

	rotated := newRSAKey(t)
	idp.publish("k2", &rotated.PublicKey)
	if _, err := resolver.Resolve(context.Background(), "k2"); err != nil {
		t.Fatalf("Resolve k2 after rotation: %v", err)
	}
	if hits := idp.jwksHits.Load(); hits != 2 {
		t.Fatalf("expected a refetch for the new key id, got %d fetches", hits)
	}

	// k1 stays cached even though the set was refetched.
	if _, err := resolver.Resolve(context.Background(), "k1"); err != nil {
		t.Fatalf("Resolve k1 again: %v", err)
	}
	if hits := idp.jwksHits.Load(); hits != 2 {
		t.Fatalf("cached key triggered a fetch")
	}
}

func TestJWKSResolverNotFound(t *testing.T) {
	idp := newFakeIDP(t)
	key := newRSAKey(t)
	idp.publish("k1", &key.PublicKey)
	resolver := NewJWKSResolver(idp.srv.URL+"/.well-known/jwks.json", nil, discardLogger())

	if _, err := resolver.Resolve(context.Background(), "nope"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), ""); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound for empty kid, got %v", err)
	}
}

func TestJWKSResolverFetchFailures(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{"))
		},
	}

	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			resolver := NewJWKSResolver(srv.URL, srv.Client(), discardLogger())
			if _, err := resolver.Resolve(context.Background(), "k1"); !errors.Is(err, ErrKeyFetch) {
				t.Fatalf("expected ErrKeyFetch, got %v", err)
			}
		})
	}
}

func TestJWKSResolverSkipsUndecodableKeys(t *testing.T) {
	key := newRSAKey(t)
	good, err := json.Marshal(jose.JSONWebKey{Key: &key.PublicKey, KeyID: "k1", Algorithm: "RS256", Use: "sig"})
	if err != nil {
		t.Fatalf("marshal jwk: %v", err)
	}
	bad := `{"kty":"EC","crv":"P-999","kid":"broken","x":"AA","y":"AA"}`
	body := `{"keys":[` + bad + `,` + string(good) + `]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	resolver := NewJWKSResolver(srv.URL, srv.Client(), discardLogger())
	got, err := resolver.Resolve(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if pub, ok := got.(*rsa.PublicKey); !ok || pub.N.Cmp(key.PublicKey.N) != 0 {
		t.Fatalf("resolved key does not match published key")
	}
	if _, err := resolver.Resolve(context.Background(), "broken"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound for the undecodable key, got %v", err)
	}
}
