package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DiscoverEndpoints reads the endpoints from the provider's discovery document.
func DiscoverEndpoints(ctx context.Context, baseURL string, client *http.Client) (Endpoints, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	op, err := oidc.NewProvider(ctx, baseURL)
	if err != nil {
		return Endpoints{}, fmt.Errorf("discover provider: %w", err)
	}
	var doc struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := op.Claims(&doc); err != nil {
		return Endpoints{}, fmt.Errorf("parse discovery document: %w", err)
	}
	ep := op.Endpoint()
	return Endpoints{AuthURL: ep.AuthURL, TokenURL: ep.TokenURL, JWKSURL: doc.JWKSURL}, nil
}
