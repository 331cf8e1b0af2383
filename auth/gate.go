package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName is the cookie carrying the raw identity token.
const SessionCookieName = "id"

var (
	// ErrNoSession means the request carries no session cookie.
	ErrNoSession = errors.New("no session")
	// ErrSessionExpired means the session token verified but has expired.
	ErrSessionExpired = errors.New("session expired")
	// ErrUnsupportedAlgorithm means the token is signed with an algorithm the gate refuses.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	// ErrInvalidToken covers every other verification failure.
	ErrInvalidToken = errors.New("invalid token")
)

// Gate authenticates requests from the session cookie. Unauthenticated browsers
// are redirected to the provider; tokens that fail verification are rejected.
type Gate struct {
	provider    *Provider
	keys        KeyResolver
	unprotected map[string]struct{}
	logger      *slog.Logger
}

// NewGate constructs a Gate. Requests whose path exactly matches one of
// unprotected bypass authentication.
func NewGate(provider *Provider, keys KeyResolver, unprotected []string, logger *slog.Logger) *Gate {
	paths := make(map[string]struct{}, len(unprotected))
	for _, p := range unprotected {
		paths[p] = struct{}{}
	}
	return &Gate{
		provider:    provider,
		keys:        keys,
		unprotected: paths,
		logger:      logger,
	}
}

// Middleware fits chi's middleware signature.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Unprotected(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		id, err := g.Authenticate(r)
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		case errors.Is(err, ErrNoSession):
			g.logger.Info("no session", "path", r.URL.Path)
			g.redirectLogin(w, r)
		case errors.Is(err, ErrSessionExpired):
			g.logger.Info("session expired", "path", r.URL.Path)
			g.redirectLogin(w, r)
		case errors.Is(err, ErrKeyFetch):
			g.logger.Error("key lookup failed", "path", r.URL.Path, "error", err)
			http.Error(w, "authentication unavailable", http.StatusBadGateway)
		case errors.Is(err, ErrUnsupportedAlgorithm):
			g.logger.Error("verification failed", "path", r.URL.Path, "error", err)
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			g.logger.Error("verification failed", "path", r.URL.Path, "error", err)
			http.Error(w, "authentication failed", http.StatusForbidden)
		}
	})
}

// Unprotected reports whether path bypasses authentication.
func (g *Gate) Unprotected(path string) bool {
	_, ok := g.unprotected[path]
	return ok
}

// Authenticate verifies the request's session cookie.
func (g *Gate) Authenticate(r *http.Request) (Identity, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return Identity{}, ErrNoSession
	}
	return g.Verify(r.Context(), cookie.Value)
}

// Verify checks raw against the provider's published keys and issuer.
func (g *Gate) Verify(ctx context.Context, raw string) (Identity, error) {
	tok, err := DecodeIdentityToken(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	alg := tok.Algorithm()
	if alg == AlgorithmUnsupported {
		return Identity{}, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, tok.AlgorithmName())
	}

	key, err := g.keys.Resolve(ctx, tok.KeyID())
	if err != nil {
		if errors.Is(err, ErrKeyFetch) {
			return Identity{}, err
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return Identity{}, fmt.Errorf("%w: key %q is %T, not RSA", ErrInvalidToken, tok.KeyID(), key)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg.SigningMethod().Alg()}),
		jwt.WithIssuer(g.provider.Issuer()),
		jwt.WithIssuedAt(),
	)
	if _, err := parser.ParseWithClaims(tok.Raw(), &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return rsaKey, nil
	}); err != nil {
		if g.onlyExpired(tok, err) {
			return Identity{}, fmt.Errorf("%w: expired at %s", ErrSessionExpired, tok.Expiry().UTC().Format(time.RFC3339))
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return Identity{Name: tok.Name()}, nil
}

// onlyExpired reports whether expiry is the sole reason err rejected tok. The
// signature has already verified when a claim error is returned; a wrong issuer
// or a future iat still rejects even if the token has also expired.
func (g *Gate) onlyExpired(tok *IdentityToken, err error) bool {
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return false
	}
	if tok.Issuer() != g.provider.Issuer() {
		return false
	}
	return !errors.Is(err, jwt.ErrTokenUsedBeforeIssued) && !errors.Is(err, jwt.ErrTokenNotValidYet)
}

func (g *Gate) redirectLogin(w http.ResponseWriter, r *http.Request) {
	target := g.provider.AuthCodeURL(r)
	g.logger.Info("redirecting user to login", "path", r.URL.Path)
	http.Redirect(w, r, target, http.StatusFound)
}
