package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"

	"oidcgate/auth"
)

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config    Config
	Logger    *slog.Logger
	Provider  *auth.Provider
	Keys      auth.KeyResolver
	Gate      *auth.Gate
	Exchanger *auth.Exchanger
}

// NewApp wires together the application state from configuration. A nil client
// uses a pooled cleanhttp client for every outbound call.
func NewApp(ctx context.Context, cfg Config, logger *slog.Logger, client *http.Client) (*App, error) {
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}

	var (
		endpoints auth.Endpoints
		err       error
	)
	if cfg.OIDC.Discovery {
		endpoints, err = auth.DiscoverEndpoints(ctx, cfg.OIDC.BaseURL, client)
	} else {
		endpoints, err = auth.DefaultEndpoints(cfg.OIDC.BaseURL, cfg.OIDC.JWKSPath)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve provider endpoints: %w", err)
	}
	logger.Info("provider endpoints",
		"authorize", endpoints.AuthURL,
		"token", endpoints.TokenURL,
		"jwks", endpoints.JWKSURL,
		"discovery", cfg.OIDC.Discovery)

	provider := auth.NewProvider(auth.ProviderConfig{
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: cfg.OIDC.ClientSecret,
		BaseURL:      cfg.OIDC.BaseURL,
		CallbackPath: cfg.OIDC.CallbackPath,
	}, endpoints)
	keys := auth.NewJWKSResolver(endpoints.JWKSURL, client, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Provider:  provider,
		Keys:      keys,
		Gate:      auth.NewGate(provider, keys, cfg.ProtectionExemptPaths(), logger),
		Exchanger: auth.NewExchanger(provider, client, logger),
	}, nil
}

func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><title>Signed in</title><p>Hello, %s.</p>\n", html.EscapeString(id.Name))
}

func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		// Reachable only when /me is listed as unprotected.
		http.Error(w, "not signed in", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]string{"name": id.Name})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
