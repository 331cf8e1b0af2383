package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when a token cannot be decoded into header and claims.
var ErrMalformedToken = errors.New("malformed token")

// idClaims are the claims read from a provider identity token.
type idClaims struct {
	Name *string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// IdentityToken is a decoded, not yet verified, identity token.
type IdentityToken struct {
	raw       string
	algorithm string
	keyID     string
	issuer    string
	expiry    time.Time
	name      string
}

// DecodeIdentityToken splits raw into header and claims without checking the
// signature. Header and claim types are validated here, and the display-name
// claim must be present, so verification never sees a token it cannot interpret.
func DecodeIdentityToken(raw string) (*IdentityToken, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	claims := &idClaims{}
	tok, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	// An alg unknown to the jwt registry still decodes; the Gate rejects it by name.
	if err != nil && !(errors.Is(err, jwt.ErrTokenUnverifiable) && tok != nil) {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	alg, ok := tok.Header["alg"].(string)
	if !ok || alg == "" {
		return nil, fmt.Errorf("%w: alg header missing", ErrMalformedToken)
	}
	var kid string
	if v, present := tok.Header["kid"]; present {
		if kid, ok = v.(string); !ok {
			return nil, fmt.Errorf("%w: kid header is not a string", ErrMalformedToken)
		}
	}

	if claims.Name == nil {
		return nil, fmt.Errorf("%w: name claim missing", ErrMalformedToken)
	}

	it := &IdentityToken{
		raw:       raw,
		algorithm: alg,
		keyID:     kid,
		issuer:    claims.Issuer,
		name:      *claims.Name,
	}
	if claims.ExpiresAt != nil {
		it.expiry = claims.ExpiresAt.Time
	}
	return it, nil
}

// Raw returns the compact serialization the token was decoded from.
func (t *IdentityToken) Raw() string { return t.raw }

// AlgorithmName returns the "alg" header verbatim.
func (t *IdentityToken) AlgorithmName() string { return t.algorithm }

// Algorithm returns the parsed signing algorithm.
func (t *IdentityToken) Algorithm() Algorithm { return ParseAlgorithm(t.algorithm) }

// KeyID returns the "kid" header, empty when absent.
func (t *IdentityToken) KeyID() string { return t.keyID }

// Issuer returns the unverified "iss" claim.
func (t *IdentityToken) Issuer() string { return t.issuer }

// Expiry returns the "exp" claim, zero when absent.
func (t *IdentityToken) Expiry() time.Time { return t.expiry }

// Name returns the display-name claim.
func (t *IdentityToken) Name() string { return t.name }
