package auth

import (
	"context"
	"sort"
)

// Identity is the caller as described by a verified token. It is built once
// per request and never changes afterwards.
type Identity struct {
	UserID   string
	Username string
	Email    string
	roles    map[string]struct{}
}

// NewIdentity builds an Identity, collapsing duplicate roles.
func NewIdentity(userID, username, email string, roles []string) Identity {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return Identity{UserID: userID, Username: username, Email: email, roles: set}
}

// HasRole reports whether the identity carries the given realm role.
func (i Identity) HasRole(role string) bool {
	_, ok := i.roles[role]
	return ok
}

// Roles returns a sorted copy of the identity's roles. Never nil.
func (i Identity) Roles() []string {
	out := make([]string, 0, len(i.roles))
	for r := range i.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

type identityKey struct{}

// WithIdentity stores the identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
