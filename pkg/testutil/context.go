package testutil

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"otakudb/internal/identity"
	"otakudb/pkg/requestcontext"
)

// NewUser builds an active user with the given permissions, joined long
// enough ago to clear the self-approval grace period.
func NewUser(username string, perms ...identity.Permission) *identity.User {
	return &identity.User{
		ID:          uuid.New(),
		Username:    username,
		Active:      true,
		JoinedAt:    time.Now().AddDate(-1, 0, 0),
		Permissions: perms,
	}
}

// NewFreshUser builds an active user whose account is younger than any
// sensible grace period.
func NewFreshUser(username string, perms ...identity.Permission) *identity.User {
	u := NewUser(username, perms...)
	u.JoinedAt = time.Now().Add(-time.Hour)
	return u
}

// ActorContext simulates the middleware chain for service-level tests:
// actor, client IP and a fixed request time in one context.
func ActorContext(actor *identity.User) context.Context {
	ctx := requestcontext.WithActor(context.Background(), actor)
	ctx = requestcontext.WithClientIP(ctx, "203.0.113.7")
	return requestcontext.WithTime(ctx, time.Now())
}

// WithActor attaches an authenticated user to an HTTP request, as the auth
// middleware would.
func WithActor(req *http.Request, actor *identity.User) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}
