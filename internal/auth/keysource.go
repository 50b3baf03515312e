package auth

import (
	"context"
	"crypto"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultFetchTimeout bounds a single key set request.
	DefaultFetchTimeout = 5 * time.Second
	// DefaultRefreshCooldown is the minimum age of the cached key set before an
	// unknown kid is allowed to trigger a refetch.
	DefaultRefreshCooldown = time.Minute

	maxKeySetBytes = 1 << 20
)

// SigningKey is a public key published by the identity provider.
type SigningKey struct {
	ID        string
	Algorithm string
	Key       crypto.PublicKey
}

// KeySource resolves the public key a token was signed with. An empty kid
// selects the first available signing key.
type KeySource interface {
	SigningKey(ctx context.Context, kid string) (SigningKey, error)
}

// RealmIssuer returns the issuer URL of a Keycloak realm.
func RealmIssuer(baseURL, realm string) string {
	return strings.TrimRight(baseURL, "/") + "/realms/" + url.PathEscape(realm)
}

// CertsURL returns the JWKS endpoint of a Keycloak realm.
func CertsURL(baseURL, realm string) string {
	return RealmIssuer(baseURL, realm) + "/protocol/openid-connect/certs"
}

type keySnapshot struct {
	keys      []SigningKey
	fetchedAt time.Time
}

func (s *keySnapshot) find(kid string) (SigningKey, bool) {
	if kid == "" {
		for _, k := range s.keys {
			if _, ok := k.Key.(*rsa.PublicKey); ok && (k.Algorithm == "" || k.Algorithm == "RS256") {
				return k, true
			}
		}
		return SigningKey{}, false
	}
	for _, k := range s.keys {
		if k.ID == kid {
			return k, true
		}
	}
	return SigningKey{}, false
}

// JWKSKeySource fetches the provider's key set lazily and caches it. It is
// safe for concurrent use; concurrent cold-start lookups share one request.
type JWKSKeySource struct {
	url      string
	client   *http.Client
	timeout  time.Duration
	ttl      time.Duration
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	cache atomic.Pointer[keySnapshot]
	group singleflight.Group
}

// KeySourceOption customises a JWKSKeySource.
type KeySourceOption func(*JWKSKeySource)

// WithHTTPClient replaces the client used for key set requests.
func WithHTTPClient(c *http.Client) KeySourceOption {
	return func(s *JWKSKeySource) { s.client = c }
}

// WithFetchTimeout bounds each key set request.
func WithFetchTimeout(d time.Duration) KeySourceOption {
	return func(s *JWKSKeySource) { s.timeout = d }
}

// WithKeyTTL expires the cached key set after d. Zero caches for the lifetime
// of the source.
func WithKeyTTL(d time.Duration) KeySourceOption {
	return func(s *JWKSKeySource) { s.ttl = d }
}

// WithRefreshCooldown sets how old the cache must be before an unknown kid
// forces a refetch.
func WithRefreshCooldown(d time.Duration) KeySourceOption {
	return func(s *JWKSKeySource) { s.cooldown = d }
}

// WithKeySourceLogger sets the logger used for fetch diagnostics.
func WithKeySourceLogger(l *slog.Logger) KeySourceOption {
	return func(s *JWKSKeySource) { s.logger = l }
}

func withKeySourceClock(now func() time.Time) KeySourceOption {
	return func(s *JWKSKeySource) { s.now = now }
}

// NewJWKSKeySource returns a key source reading the JWKS document at jwksURL.
func NewJWKSKeySource(jwksURL string, opts ...KeySourceOption) *JWKSKeySource {
	s := &JWKSKeySource{
		url:      jwksURL,
		client:   http.DefaultClient,
		timeout:  DefaultFetchTimeout,
		cooldown: DefaultRefreshCooldown,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SigningKey returns the key with the given id, fetching the key set on a
// cold or expired cache. A kid missing from a fresh key set is reported as
// ErrInvalidToken; transport and decoding failures as ErrKeyFetch.
func (s *JWKSKeySource) SigningKey(ctx context.Context, kid string) (SigningKey, error) {
	snap, fetched := s.current(), false
	if snap == nil {
		var err error
		if snap, err = s.refresh(ctx); err != nil {
			return SigningKey{}, err
		}
		fetched = true
	}
	if k, ok := snap.find(kid); ok {
		return k, nil
	}

	// The provider may have rotated keys since the last fetch.
	if !fetched && s.now().Sub(snap.fetchedAt) >= s.cooldown {
		fresh, err := s.refresh(ctx)
		if err != nil {
			return SigningKey{}, err
		}
		if k, ok := fresh.find(kid); ok {
			return k, nil
		}
	}
	return SigningKey{}, fmt.Errorf("%w: no signing key with kid %q", ErrInvalidToken, kid)
}

// Invalidate drops the cached key set; the next lookup refetches it.
func (s *JWKSKeySource) Invalidate() {
	s.cache.Store(nil)
}

func (s *JWKSKeySource) current() *keySnapshot {
	snap := s.cache.Load()
	if snap == nil {
		return nil
	}
	if s.ttl > 0 && s.now().Sub(snap.fetchedAt) >= s.ttl {
		return nil
	}
	return snap
}

func (s *JWKSKeySource) refresh(ctx context.Context) (*keySnapshot, error) {
	v, err, _ := s.group.Do("jwks", func() (any, error) {
		// Detached from the first caller's cancellation since other callers
		// may be waiting on the same result.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		snap, err := s.fetch(fetchCtx)
		if err != nil {
			s.logger.Error("jwks fetch failed", slog.String("url", s.url), slog.String("error", err.Error()))
			return nil, err
		}
		s.cache.Store(snap)
		s.logger.Info("jwks loaded", slog.String("url", s.url), slog.Int("keys", len(snap.keys)))
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*keySnapshot), nil
}

func (s *JWKSKeySource) fetch(ctx context.Context) (*keySnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrKeyFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrKeyFetch, resp.StatusCode)
	}

	// Entries are decoded one by one so a key type we do not understand is
	// skipped instead of failing the whole set.
	var set struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxKeySetBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decode key set: %v", ErrKeyFetch, err)
	}

	keys := make([]SigningKey, 0, len(set.Keys))
	for _, raw := range set.Keys {
		var k jose.JSONWebKey
		if err := k.UnmarshalJSON(raw); err != nil {
			s.logger.Debug("skipping unusable jwk", slog.String("url", s.url), slog.String("error", err.Error()))
			continue
		}
		if k.Use == "enc" {
			continue
		}
		pub := k.Public()
		if pub.Key == nil || !pub.Valid() {
			continue
		}
		keys = append(keys, SigningKey{ID: k.KeyID, Algorithm: k.Algorithm, Key: pub.Key})
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: key set has no signing keys", ErrKeyFetch)
	}
	return &keySnapshot{keys: keys, fetchedAt: s.now()}, nil
}
