package identity

import (
	"time"

	"github.com/google/uuid"
)

// Permission flags granted by the identity provider. The catalog only
// interprets them; granting and revoking is the provider's concern.
type Permission string

const (
	// PermSelfApprove lets a user self-approve add, modify and related requests.
	PermSelfApprove Permission = "self-approve"
	// PermSelfDelete lets a user self-approve delete requests.
	PermSelfDelete Permission = "self-delete"
	// PermThrottleMin places a user under the more lenient throttle limit.
	PermThrottleMin Permission = "throttle-min"
	// PermThrottleOff exempts a user from throttling entirely.
	PermThrottleOff Permission = "throttle-off"
	// PermModApprove lets a moderator process add, modify and related requests.
	PermModApprove Permission = "mod-approve"
	// PermModDelete lets a moderator process delete requests.
	PermModDelete Permission = "mod-delete"
)

// User is the authenticated-requester handle consumed from the identity
// provider: identity plus the flags the change engine needs. It is not a
// profile; fields the engine does not read are not carried.
type User struct {
	ID          uuid.UUID
	Username    string
	Active      bool
	Banned      bool
	JoinedAt    time.Time
	Permissions []Permission
}

// Has reports whether the user holds the given permission flag.
func (u *User) Has(perm Permission) bool {
	if u == nil {
		return false
	}
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// AccountAge returns how long ago the account was created.
func (u *User) AccountAge(now time.Time) time.Duration {
	return now.Sub(u.JoinedAt)
}
