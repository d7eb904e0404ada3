// Package auth verifies bearer tokens and resolves them to identities. The
// rest of the service only ever sees an Identity; token handling stops here.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned for missing, malformed, or invalid tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is a verified principal.
type Identity struct {
	Subject string
	Name    string
	Email   string
}

// Verifier resolves a bearer token to an identity.
type Verifier interface {
	Verify(ctx context.Context, bearer string) (*Identity, error)
}

// JWTVerifier validates HS256 tokens signed with a shared secret and maps
// the sub, name, and email claims.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier returns a verifier for the given HMAC secret.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

type identityClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verify parses and validates the token. The "Bearer " prefix is optional.
func (v *JWTVerifier) Verify(_ context.Context, bearer string) (*Identity, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(bearer, "Bearer "))
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthenticated)
	}

	var claims identityClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}

	return &Identity{
		Subject: claims.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
	}, nil
}

// StaticVerifier maps fixed tokens to identities, for tests.
type StaticVerifier map[string]*Identity

// Verify looks the bearer up after stripping the optional prefix.
func (s StaticVerifier) Verify(_ context.Context, bearer string) (*Identity, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(bearer, "Bearer "))
	if id, ok := s[raw]; ok {
		return id, nil
	}
	return nil, ErrUnauthenticated
}
