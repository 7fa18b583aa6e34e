// Package session carries the authenticated caller explicitly through the
// services instead of reading it from ambient state.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"memories-social/internal/auth"
	"memories-social/internal/imtypes"
	"memories-social/internal/storage"
)

// Session identifies the authenticated user behind a request or a socket.
type Session struct {
	UserID   string
	Username string
}

// FromClaims builds a session from validated JWT claims.
func FromClaims(c *auth.Claims) Session {
	return Session{UserID: c.UserID, Username: c.Username}
}

// Authenticated reports whether the session belongs to a user.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// Require returns ErrPermissionDenied for an anonymous session.
func (s Session) Require() error {
	if !s.Authenticated() {
		return fmt.Errorf("no authenticated user: %w", imtypes.ErrPermissionDenied)
	}
	return nil
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored in ctx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok && s.Authenticated()
}

// IdentityResolver maps what a user typed (an id or a handle) to a user id.
type IdentityResolver interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

type userIdentityResolver struct {
	users storage.UserRepository
}

// NewIdentityResolver resolves identifiers against the user table.
func NewIdentityResolver(users storage.UserRepository) IdentityResolver {
	return &userIdentityResolver{users: users}
}

// Resolve treats a well-formed UUID as a user id and anything else as a
// username, with an optional leading "@".
func (r *userIdentityResolver) Resolve(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", fmt.Errorf("empty user identifier: %w", imtypes.ErrInvalidArgument)
	}

	if id, err := uuid.Parse(identifier); err == nil {
		user, err := r.users.GetByID(ctx, id.String())
		if err != nil {
			return "", fmt.Errorf("resolve user %q: %w", identifier, err)
		}
		return user.ID, nil
	}

	handle := strings.TrimPrefix(identifier, "@")
	if handle == "" {
		return "", fmt.Errorf("empty user handle: %w", imtypes.ErrInvalidArgument)
	}
	user, err := r.users.GetByUsername(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("resolve user %q: %w", identifier, err)
	}
	return user.ID, nil
}
