package auth

import "errors"

var (
	// ErrMissingToken means no bearer credential was presented.
	ErrMissingToken = errors.New("auth: missing bearer token")
	// ErrExpiredToken means the signature checked out but exp is in the past.
	ErrExpiredToken = errors.New("auth: token expired")
	// ErrInvalidToken covers bad signatures, wrong audience or issuer, and
	// structurally malformed tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrKeyFetch means the identity provider key set could not be obtained.
	ErrKeyFetch = errors.New("auth: signing key fetch failed")
)

// Kind classifies a Rejection independently of any transport.
type Kind int

const (
	// KindMissingToken means no bearer credential was sent.
	KindMissingToken Kind = iota + 1
	// KindExpiredToken means the token was valid but has expired.
	KindExpiredToken
	// KindInvalidToken means the token failed signature or claim checks.
	KindInvalidToken
	// KindKeyFetch means the signing keys could not be loaded.
	KindKeyFetch
	// KindForbidden means the caller is authenticated but not allowed.
	KindForbidden
)

// String returns the snake_case name used in logs and challenges.
func (k Kind) String() string {
	switch k {
	case KindMissingToken:
		return "missing_token"
	case KindExpiredToken:
		return "expired_token"
	case KindInvalidToken:
		return "invalid_token"
	case KindKeyFetch:
		return "key_fetch_error"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Unauthenticated reports whether the kind is one of the token failures, as
// opposed to an authorization denial.
func (k Kind) Unauthenticated() bool {
	return k >= KindMissingToken && k <= KindKeyFetch
}

// Rejection is the outcome of a failed authentication or authorization check.
type Rejection struct {
	Kind    Kind
	Message string
	Err     error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return r.Kind.String() + ": " + r.Err.Error()
	}
	return r.Kind.String() + ": " + r.Message
}

func (r *Rejection) Unwrap() error { return r.Err }

// rejectionFor maps a verifier error onto the rejection taxonomy. Errors that
// match none of the sentinels are treated as invalid tokens.
func rejectionFor(err error) *Rejection {
	switch {
	case errors.Is(err, ErrMissingToken):
		return &Rejection{Kind: KindMissingToken, Message: "Token de acesso não fornecido!", Err: err}
	case errors.Is(err, ErrExpiredToken):
		return &Rejection{Kind: KindExpiredToken, Message: "Token expirado!", Err: err}
	case errors.Is(err, ErrKeyFetch):
		return &Rejection{Kind: KindKeyFetch, Message: "Não foi possível validar o token no momento", Err: err}
	default:
		return &Rejection{Kind: KindInvalidToken, Message: "Token inválido!", Err: err}
	}
}
