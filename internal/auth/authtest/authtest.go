// Package authtest provides a fake Keycloak realm for tests: it publishes a
// JWKS document over HTTP and signs RS256 access tokens with the matching key.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// Realm is the realm name served by Provider.
	Realm = "test"
	// Audience is the client id that tokens from Claims are issued for.
	Audience = "meu-backend"
)

// Provider is an httptest server acting as the identity provider.
type Provider struct {
	Server *httptest.Server

	mu     sync.Mutex
	key    *rsa.PrivateKey
	kid    string
	status int
	body   []byte
	delay  time.Duration

	fetches atomic.Int64
}

// NewProvider starts a provider with a fresh RSA key. It is closed when the
// test ends.
func NewProvider(t testing.TB) *Provider {
	t.Helper()
	p := &Provider{key: GenerateKey(t), kid: "key-1"}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serveCerts))
	t.Cleanup(p.Server.Close)
	return p
}

// GenerateKey returns a new 2048 bit RSA key.
func GenerateKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return pk
}

// BaseURL is the provider root, usable as the Keycloak base URL.
func (p *Provider) BaseURL() string { return p.Server.URL }

// JWKSURL is the realm certs endpoint.
func (p *Provider) JWKSURL() string {
	return p.Server.URL + "/realms/" + Realm + "/protocol/openid-connect/certs"
}

// Issuer is the iss value of tokens built by Claims.
func (p *Provider) Issuer() string {
	return p.Server.URL + "/realms/" + Realm
}

// KeyID is the kid of the current signing key.
func (p *Provider) KeyID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kid
}

// PublicKey is the current signing key's public half.
func (p *Provider) PublicKey() *rsa.PublicKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &p.key.PublicKey
}

// Fetches reports how many times the certs endpoint was requested.
func (p *Provider) Fetches() int64 { return p.fetches.Load() }

// Rotate replaces the signing key, publishing only the new one.
func (p *Provider) Rotate(t testing.TB, kid string) {
	t.Helper()
	key := GenerateKey(t)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key, p.kid = key, kid
}

// Fail makes the certs endpoint answer with status until Reset.
func (p *Provider) Fail(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// ServeRaw makes the certs endpoint return body verbatim until Reset.
func (p *Provider) ServeRaw(body []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body = body
}

// Delay holds every certs response for d.
func (p *Provider) Delay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// Reset restores normal responses.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status, p.body, p.delay = 0, nil, 0
}

func (p *Provider) serveCerts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/realms/"+Realm+"/protocol/openid-connect/certs" {
		http.NotFound(w, r)
		return
	}
	p.fetches.Add(1)

	p.mu.Lock()
	status, body, delay := p.status, p.body, p.delay
	set := KeySet(jose.JSONWebKey{Key: &p.key.PublicKey, KeyID: p.kid, Algorithm: "RS256", Use: "sig"})
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if body != nil {
		_, _ = w.Write(body)
		return
	}
	_, _ = w.Write(set)
}

// KeySet encodes keys as a JWKS document.
func KeySet(keys ...jose.JSONWebKey) []byte {
	b, err := json.Marshal(jose.JSONWebKeySet{Keys: keys})
	if err != nil {
		panic(err)
	}
	return b
}

// Claims returns the claims of a Keycloak access token for username, valid
// for one hour and issued for Audience.
func (p *Provider) Claims(username string, roles ...string) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":                p.Issuer(),
		"sub":                "id-" + username,
		"aud":                Audience,
		"azp":                "meu-frontend",
		"exp":                now.Add(time.Hour).Unix(),
		"iat":                now.Unix(),
		"preferred_username": username,
		"email":              username + "@example.com",
	}
	if roles != nil {
		claims["realm_access"] = map[string]any{"roles": roles}
	}
	return claims
}

// Sign signs claims with the current key and kid.
func (p *Provider) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	p.mu.Lock()
	key, kid := p.key, p.kid
	p.mu.Unlock()
	return SignWith(t, key, kid, claims)
}

// Token is shorthand for Sign(t, Claims(username, roles...)).
func (p *Provider) Token(t testing.TB, username string, roles ...string) string {
	t.Helper()
	return p.Sign(t, p.Claims(username, roles...))
}

// SignWith signs claims using an arbitrary RSA key.
func SignWith(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}
