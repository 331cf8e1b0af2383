package auth

import "github.com/golang-jwt/jwt/v5"

// Algorithm enumerates the token signing algorithms the Gate accepts.
// The zero value is AlgorithmUnsupported.
type Algorithm int

const (
	AlgorithmUnsupported Algorithm = iota
	RS256
	RS384
	RS512
)

// ParseAlgorithm maps a JOSE "alg" header value onto an Algorithm.
func ParseAlgorithm(name string) Algorithm {
	switch name {
	case "RS256":
		return RS256
	case "RS384":
		return RS384
	case "RS512":
		return RS512
	default:
		return AlgorithmUnsupported
	}
}

// SigningMethod returns the RSA-SHA verifier for the algorithm, or nil when unsupported.
func (a Algorithm) SigningMethod() *jwt.SigningMethodRSA {
	switch a {
	case RS256:
		return jwt.SigningMethodRS256
	case RS384:
		return jwt.SigningMethodRS384
	case RS512:
		return jwt.SigningMethodRS512
	default:
		return nil
	}
}

func (a Algorithm) String() string {
	if m := a.SigningMethod(); m != nil {
		return m.Alg()
	}
	return "unsupported"
}
