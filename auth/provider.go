package auth

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ProviderConfig identifies this application to the identity provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	// BaseURL is the provider base URL. It is also the expected token issuer.
	BaseURL      string
	CallbackPath string
}

// Endpoints are the provider URLs the flow talks to.
type Endpoints struct {
	AuthURL  string
	TokenURL string
	JWKSURL  string
}

// DefaultEndpoints derives the endpoints from the base URL: "authorize" and
// "oauth/token" are appended verbatim, jwksPath is resolved as a reference.
func DefaultEndpoints(baseURL, jwksPath string) (Endpoints, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return Endpoints{}, fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(jwksPath)
	if err != nil {
		return Endpoints{}, fmt.Errorf("parse jwks path: %w", err)
	}
	return Endpoints{
		AuthURL:  baseURL + "authorize",
		TokenURL: baseURL + "oauth/token",
		JWKSURL:  base.ResolveReference(ref).String(),
	}, nil
}

// Provider builds authorize and token requests for one identity provider.
type Provider struct {
	cfg       ProviderConfig
	endpoints Endpoints
}

// NewProvider constructs a Provider.
func NewProvider(cfg ProviderConfig, endpoints Endpoints) *Provider {
	return &Provider{cfg: cfg, endpoints: endpoints}
}

// Issuer returns the issuer tokens must carry.
func (p *Provider) Issuer() string { return p.cfg.BaseURL }

// CallbackPath returns the path receiving the provider redirect.
func (p *Provider) CallbackPath() string { return p.cfg.CallbackPath }

// Endpoints returns the configured provider endpoints.
func (p *Provider) Endpoints() Endpoints { return p.endpoints }

// RedirectURL returns the callback URL for the request's scheme and host.
func (p *Provider) RedirectURL(r *http.Request) string {
	return RedirectURL(r, p.cfg.CallbackPath)
}

// AuthCodeURL returns the authorize URL that sends the browser back to the
// callback with state set to the request's original target.
func (p *Provider) AuthCodeURL(r *http.Request) string {
	return p.oauthConfig(p.RedirectURL(r)).AuthCodeURL(originalTarget(r))
}

// oauthConfig is built per call because the redirect URL follows the inbound host.
func (p *Provider) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.endpoints.AuthURL,
			TokenURL:  p.endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
