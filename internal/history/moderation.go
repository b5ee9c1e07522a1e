package history

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"otakudb/internal/audit"
	"otakudb/internal/platform/metrics"
	dErrors "otakudb/pkg/domain-errors"
	"otakudb/pkg/platform/tx"
	"otakudb/pkg/requestcontext"
)

// Moderator executes actions on queued ledger entries. Every action reloads
// the entry inside its transaction, so a second action on the same entry
// fails the single-transition check instead of racing.
type Moderator struct {
	ledger  *Ledger
	runner  *tx.Runner
	metrics *metrics.Metrics
	audit   *audit.Publisher
	logger  *slog.Logger
}

func NewModerator(ledger *Ledger, runner *tx.Runner, m *metrics.Metrics,
	publisher *audit.Publisher, logger *slog.Logger) *Moderator {
	return &Moderator{ledger: ledger, runner: runner, metrics: m, audit: publisher, logger: logger}
}

// Withdraw retires a pending entry. Only its requester may do this.
func (m *Moderator) Withdraw(ctx context.Context, id uuid.UUID, comment string) (*ChangeRequest, error) {
	actor := requestcontext.Actor(ctx)
	if actor == nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	var cr *ChangeRequest
	err := m.runner.InTx(ctx, func(ctx context.Context) error {
		var err error
		if cr, err = m.ledger.Store().Get(ctx, id); err != nil {
			return err
		}
		return m.ledger.Withdraw(ctx, cr, actor)
	})
	if err != nil {
		return nil, err
	}

	m.finish(ctx, "withdraw", "withdrawn", cr, comment)
	return cr, nil
}

// Deny rejects a pending entry without touching the entity.
func (m *Moderator) Deny(ctx context.Context, id uuid.UUID, comment string) (*ChangeRequest, error) {
	actor := requestcontext.Actor(ctx)

	var cr *ChangeRequest
	err := m.runner.InTx(ctx, func(ctx context.Context) error {
		var err error
		if cr, err = m.ledger.Store().Get(ctx, id); err != nil {
			return err
		}
		return m.ledger.Deny(ctx, cr, actor)
	})
	if err != nil {
		return nil, err
	}

	m.finish(ctx, "deny", "denied", cr, comment)
	return cr, nil
}

// Approve accepts a pending entry and commits the proposed mutation. The
// entity commit and the status transition land in one transaction; an Add
// learns its assigned object id here.
func (m *Moderator) Approve(ctx context.Context, id uuid.UUID, comment string) (*ChangeRequest, error) {
	actor := requestcontext.Actor(ctx)

	var cr *ChangeRequest
	err := m.runner.InTx(ctx, func(ctx context.Context) error {
		var err error
		if cr, err = m.ledger.Store().Get(ctx, id); err != nil {
			return err
		}
		if cr.Status != StatusPending {
			return dErrors.Newf(dErrors.CodeInvalidState,
				"change request %s is %s, not pending", cr.ID, cr.Status)
		}
		if err := requireModerator(cr, actor); err != nil {
			return err
		}

		desc, err := m.ledger.Registry().Lookup(cr.ObjectType)
		if err != nil {
			return err
		}
		if err := m.apply(ctx, desc, cr); err != nil {
			return err
		}
		return m.ledger.Approve(ctx, cr, actor)
	})
	if err != nil {
		return nil, err
	}

	m.finish(ctx, "approve", "approved", cr, comment)
	return cr, nil
}

func (m *Moderator) apply(ctx context.Context, desc *Descriptor, cr *ChangeRequest) error {
	switch cr.Kind {
	case KindDelete:
		if err := desc.Handler.Delete(ctx, *cr.ObjectID); err != nil {
			return wrapApply(err, "delete "+desc.Label)
		}
	case KindRelated:
		if desc.RelatedHandler == nil {
			return dErrors.Newf(dErrors.CodeInvariantViolation,
				"type %q has no related handler", desc.TypeTag)
		}
		refreshed, err := desc.RelatedHandler.ApplyChildren(ctx, *cr.ObjectID, cr.AfterChildren)
		if err != nil {
			return wrapApply(err, "apply child collection")
		}
		cr.AfterChildren = refreshed
	default:
		var before int64
		if cr.ObjectID != nil {
			before = *cr.ObjectID
		}
		id, err := desc.Handler.Apply(ctx, before, cr.After)
		if err != nil {
			return wrapApply(err, "apply "+desc.Label)
		}
		cr.ObjectID = &id
		if label := desc.Handler.Label(cr.After); label != "" {
			cr.ObjectLabel = label
		}
	}
	return nil
}

// Revert undoes an approved entry by re-applying its recorded "before" state
// and appending an inverse approved entry authored by the moderator. The
// original entry keeps its Approved status; the ledger shows both halves.
func (m *Moderator) Revert(ctx context.Context, id uuid.UUID, comment string) (*ChangeRequest, error) {
	actor := requestcontext.Actor(ctx)

	var inverse *ChangeRequest
	err := m.runner.InTx(ctx, func(ctx context.Context) error {
		cr, err := m.ledger.Store().Get(ctx, id)
		if err != nil {
			return err
		}
		if cr.Status != StatusApproved {
			return dErrors.Newf(dErrors.CodeInvalidState,
				"only approved change requests can be reverted; %s is %s", cr.ID, cr.Status)
		}

		desc, err := m.ledger.Registry().Lookup(cr.ObjectType)
		if err != nil {
			return err
		}
		if inverse, err = invertEntry(cr); err != nil {
			return err
		}
		if err := requireModerator(inverse, actor); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		inverse.RequesterID = actor.ID
		inverse.RequesterName = actor.Username
		inverse.RequesterIP = requestcontext.ClientIP(ctx)
		inverse.RequestedAt = now

		if err := m.apply(ctx, desc, inverse); err != nil {
			return err
		}
		selfResolve(inverse, StatusApproved, now)
		_, err = m.ledger.Persist(ctx, inverse)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.finish(ctx, "revert", "reverted", inverse, comment)
	return inverse, nil
}

// invertEntry builds the mirror image of an approved entry: reverting an
// addition deletes, reverting a deletion re-adds, reverting an edit swaps
// the two sides.
func invertEntry(cr *ChangeRequest) (*ChangeRequest, error) {
	inverse := &ChangeRequest{
		ID:          uuid.New(),
		ObjectType:  cr.ObjectType,
		ObjectLabel: cr.ObjectLabel,
		RelatedType: cr.RelatedType,
		Status:      StatusPending,
		Comment:     "revert of change request " + cr.ID.String(),
	}
	if cr.ObjectID != nil {
		objectID := *cr.ObjectID
		inverse.ObjectID = &objectID
	}

	switch cr.Kind {
	case KindAdd:
		inverse.Kind = KindDelete
		inverse.Before = cr.After
	case KindDelete:
		inverse.Kind = KindAdd
		inverse.After = cr.Before
		inverse.ObjectID = nil
	case KindModify:
		inverse.Kind = KindModify
		inverse.Before = cr.After
		inverse.After = cr.Before
	case KindRelated:
		inverse.Kind = KindRelated
		inverse.BeforeChildren = cr.AfterChildren
		inverse.AfterChildren = cr.BeforeChildren
	default:
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "cannot revert %q entry", cr.Kind)
	}
	return inverse, nil
}

func (m *Moderator) finish(ctx context.Context, action, auditAction string, cr *ChangeRequest, comment string) {
	m.metrics.ObserveModerationAction(action)
	m.metrics.ObserveChangeRequest(string(cr.Kind), string(cr.Status))

	event := audit.Event{
		Timestamp:     requestcontext.Now(ctx),
		Action:        auditAction,
		Kind:          string(cr.Kind),
		Status:        string(cr.Status),
		ObjectType:    cr.ObjectType,
		ObjectID:      cr.ObjectID,
		ObjectLabel:   cr.ObjectLabel,
		RequesterID:   cr.RequesterID,
		RequesterName: cr.RequesterName,
		ModeratorID:   cr.ModeratorID,
		ModeratorName: cr.ModeratorName,
		Comment:       cr.Comment,
	}
	if comment != "" {
		event.Comment = comment
	}
	if err := m.audit.Emit(ctx, event); err != nil {
		m.logger.ErrorContext(ctx, "emit audit event", "error", err)
	}
}
