package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"
)

var (
	// ErrMissingCode is returned when the callback has no code parameter.
	ErrMissingCode = errors.New("missing 'code' parameter")
	// ErrExchange wraps token endpoint failures.
	ErrExchange = errors.New("token exchange failed")
)

// TokenExchangeResult is the provider's answer to a code exchange.
type TokenExchangeResult struct {
	AccessToken string
	IDToken     string
	Scope       string
}

// Exchanger handles the provider callback: it trades the code for tokens, stores
// the identity token in the session cookie and sends the browser back to state.
type Exchanger struct {
	provider *Provider
	client   *http.Client
	logger   *slog.Logger
}

// NewExchanger constructs an Exchanger. A nil client uses a pooled cleanhttp client.
func NewExchanger(provider *Provider, client *http.Client, logger *slog.Logger) *Exchanger {
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	return &Exchanger{provider: provider, client: client, logger: logger}
}

// Exchange posts code to the token endpoint. redirectURL must equal the
// redirect_uri sent on the authorize request.
func (e *Exchanger) Exchange(ctx context.Context, code, redirectURL string) (TokenExchangeResult, error) {
	if code == "" {
		return TokenExchangeResult{}, ErrMissingCode
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)
	tok, err := e.provider.oauthConfig(redirectURL).Exchange(ctx, code)
	if err != nil {
		return TokenExchangeResult{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	idToken, ok := tok.Extra("id_token").(string)
	if !ok || idToken == "" {
		return TokenExchangeResult{}, fmt.Errorf("%w: id_token missing in response", ErrExchange)
	}
	scope, _ := tok.Extra("scope").(string)

	return TokenExchangeResult{
		AccessToken: tok.AccessToken,
		IDToken:     idToken,
		Scope:       scope,
	}, nil
}

// ServeHTTP implements the callback endpoint.
func (e *Exchanger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		e.logger.Warn("callback invalid request", "error", ErrMissingCode)
		http.Error(w, ErrMissingCode.Error(), http.StatusBadRequest)
		return
	}

	target := q.Get("state")
	if target == "" {
		target = "/"
	}
	if !isLocalPath(target) {
		e.logger.Warn("callback state is not a local path", "state", target)
		target = "/"
	}

	result, err := e.Exchange(r.Context(), code, e.provider.RedirectURL(r))
	if err != nil {
		e.logger.Error("exchange failed", "error", err)
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    result.IDToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   IsSecureRequest(r),
	})
	e.logger.Info("login completed", "scope", result.Scope)
	// http.Redirect would clean the path; the target is sent back as it was requested.
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusFound)
}
