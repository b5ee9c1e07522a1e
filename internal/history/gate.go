package history

import (
	"context"
	"time"

	"otakudb/internal/identity"
	"otakudb/internal/options"
	dErrors "otakudb/pkg/domain-errors"
	"otakudb/pkg/requestcontext"
)

// throttleWindow is the trailing window over which change requests are
// counted against the requester's throttle limit.
const throttleWindow = 24 * time.Hour

// Gate runs the pre-flight checks every mutation attempt must clear. Sanity
// is cheap and re-evaluated on every call; Extra hits the ledger and is
// evaluated once per attempt (the tracker memoizes it).
type Gate struct {
	ledger  Store
	options *options.Service
}

func NewGate(ledger Store, opts *options.Service) *Gate {
	return &Gate{ledger: ledger, options: opts}
}

// Sanity verifies the actor may submit changes at all: authenticated, active,
// not banned, and the system is not in emergency shutdown. Each failure
// carries a stable reason so clients can react without parsing messages.
func (g *Gate) Sanity(ctx context.Context, actor *identity.User) error {
	if actor == nil {
		return dErrors.NewValidation("user-not-authenticated",
			"you must be signed in to submit changes")
	}
	if !actor.Active {
		return dErrors.NewValidation("user-not-active",
			"your account is not active")
	}
	if actor.Banned {
		return dErrors.NewValidation("user-banned",
			"your account is banned from submitting changes")
	}

	shutdown, err := g.options.Bool(ctx, options.KeyEmergencyShutdown)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "read emergency shutdown option")
	}
	if shutdown {
		return dErrors.NewValidation("emergency-shutdown",
			"the site is in emergency shutdown; changes are temporarily disabled")
	}
	return nil
}

// Extra runs the expensive checks: no open pending request against the
// target, and the requester is under their submission throttle for the
// trailing 24 hours. objectID 0 means the target is not yet persisted and
// the pending check is skipped.
func (g *Gate) Extra(ctx context.Context, actor *identity.User, objectType string, objectID int64) error {
	if objectID != 0 {
		pending, err := g.ledger.FindPending(ctx, objectType, objectID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "look up pending change request")
		}
		if pending != nil {
			return errPendingExists()
		}
	}
	return g.throttled(ctx, actor)
}

// throttled checks the requester's 24h submission count against their tier.
// throttle-off holders are never throttled; throttle-min holders get the
// lenient limit.
func (g *Gate) throttled(ctx context.Context, actor *identity.User) error {
	if actor.Has(identity.PermThrottleOff) {
		return nil
	}

	key := options.KeyThrottleMax
	if actor.Has(identity.PermThrottleMin) {
		key = options.KeyThrottleMin
	}
	limit, err := g.options.Int(ctx, key)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "read throttle option")
	}
	if limit <= 0 {
		return nil
	}

	since := requestcontext.Now(ctx).Add(-throttleWindow)
	count, err := g.ledger.CountByRequesterSince(ctx, actor.ID, since)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "count recent change requests")
	}
	if count >= limit {
		return dErrors.NewValidation("user-throttled",
			"you have submitted too many changes in the past 24 hours; try again later")
	}
	return nil
}
