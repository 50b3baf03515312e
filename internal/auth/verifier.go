package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

// BearerToken extracts the credential from an Authorization header value.
// The scheme is matched case-sensitively.
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMissingToken
	}
	tok := strings.TrimSpace(header[len(bearerPrefix):])
	if tok == "" {
		return "", ErrMissingToken
	}
	return tok, nil
}

// tokenClaims is the subset of a Keycloak access token we understand.
type tokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string       `json:"preferred_username"`
	Email             string       `json:"email"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

// Verifier checks RS256 access tokens locally against the provider's keys.
type Verifier struct {
	keys     KeySource
	audience string
	issuer   string
	leeway   time.Duration
	now      func() time.Time
}

// VerifierOption customises a Verifier.
type VerifierOption func(*Verifier)

// WithIssuer requires the iss claim to equal iss.
func WithIssuer(iss string) VerifierOption {
	return func(v *Verifier) { v.issuer = iss }
}

// WithLeeway tolerates clock skew when checking exp, nbf and iat.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.leeway = d }
}

// WithClock replaces the time source used for expiry checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier returns a verifier accepting tokens issued for audience.
func NewVerifier(keys KeySource, audience string, opts ...VerifierOption) *Verifier {
	v := &Verifier{keys: keys, audience: audience, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates signature, expiry and audience of raw and returns the
// identity it describes.
func (v *Verifier) Verify(ctx context.Context, raw string) (Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims tokenClaims
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := v.keys.SigningKey(ctx, kid)
		if err != nil {
			return nil, err
		}
		return key.Key, nil
	})
	if err != nil {
		return Identity{}, classify(err)
	}

	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	if claims.PreferredUsername == "" {
		return Identity{}, fmt.Errorf("%w: missing preferred_username claim", ErrInvalidToken)
	}

	var roles []string
	if claims.RealmAccess != nil {
		roles = claims.RealmAccess.Roles
	}
	return NewIdentity(claims.Subject, claims.PreferredUsername, claims.Email, roles), nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrKeyFetch), errors.Is(err, ErrInvalidToken):
		return fmt.Errorf("verify token: %w", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpiredToken, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}
