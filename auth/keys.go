package auth

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-jose/go-jose/v3"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/patrickmn/go-cache"
)

var (
	// ErrKeyNotFound means the key endpoint does not publish the requested key id.
	ErrKeyNotFound = errors.New("signing key not found")
	// ErrKeyFetch means the key endpoint could not be read or decoded.
	ErrKeyFetch = errors.New("jwks fetch failed")
)

// KeyResolver looks up a provider signing key by key id.
type KeyResolver interface {
	Resolve(ctx context.Context, keyID string) (crypto.PublicKey, error)
}

// JWKSResolver resolves keys from a remote JSON Web Key Set. Keys are cached by
// key id without expiry; an unknown key id triggers a fresh fetch of the set.
// Concurrent misses may fetch the set more than once.
type JWKSResolver struct {
	url    string
	client *http.Client
	keys   *cache.Cache
	logger *slog.Logger
}

// NewJWKSResolver builds a resolver for jwksURL. A nil client uses a pooled
// cleanhttp client.
func NewJWKSResolver(jwksURL string, client *http.Client, logger *slog.Logger) *JWKSResolver {
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	return &JWKSResolver{
		url:    jwksURL,
		client: client,
		keys:   cache.New(cache.NoExpiration, 0),
		logger: logger,
	}
}

// Resolve returns the public key published under keyID.
func (r *JWKSResolver) Resolve(ctx context.Context, keyID string) (crypto.PublicKey, error) {
	if keyID == "" {
		return nil, fmt.Errorf("%w: token has no key id", ErrKeyNotFound)
	}
	if key, ok := r.keys.Get(keyID); ok {
		return key, nil
	}

	set, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}
	stored := 0
	for _, k := range set.Keys {
		if k.KeyID == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub := k.Public()
		if pub.Key == nil {
			continue
		}
		r.keys.Set(k.KeyID, pub.Key, cache.NoExpiration)
		stored++
	}
	r.logger.Debug("jwks fetched", "url", r.url, "keys", stored, "kid", keyID)

	if key, ok := r.keys.Get(keyID); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
}

func (r *JWKSResolver) fetch(ctx context.Context) (jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jose.JSONWebKeySet{}, fmt.Errorf("%w: %s", ErrKeyFetch, resp.Status)
	}

	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("%w: decode: %v", ErrKeyFetch, err)
	}

	// One key go-jose cannot read must not hide the others.
	var set jose.JSONWebKeySet
	for i, raw := range doc.Keys {
		var k jose.JSONWebKey
		if err := json.Unmarshal(raw, &k); err != nil {
			r.logger.Warn("jwks key skipped", "url", r.url, "index", i, "error", err)
			continue
		}
		set.Keys = append(set.Keys, k)
	}
	return set, nil
}
