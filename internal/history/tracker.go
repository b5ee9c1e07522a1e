package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"otakudb/internal/audit"
	"otakudb/internal/identity"
	"otakudb/internal/options"
	"otakudb/internal/platform/metrics"
	dErrors "otakudb/pkg/domain-errors"
	"otakudb/pkg/platform/tx"
	"otakudb/pkg/requestcontext"
)

// Notice is user-facing feedback from one mutation attempt.
type Notice struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

const (
	NoticeSuccess = "success"
	NoticeWarning = "warning"
)

// Result reports what one mutation attempt did. Committed is false when the
// change was queued for moderation or suppressed as a no-op; Recorded is
// false only in the no-op case, where no ledger row exists for Request.
// ObjectID is the entity id after the attempt (assigned ids included).
type Result struct {
	Request   *ChangeRequest
	Committed bool
	Recorded  bool
	ObjectID  int64
	Notices   []Notice
}

func (r *Result) notice(severity, format string, args ...any) {
	r.Notices = append(r.Notices, Notice{Severity: severity, Message: fmt.Sprintf(format, args...)})
}

// Tracker drives one mutation attempt end to end: gate checks, ledger entry,
// self-approval decision, and either a synchronous commit or a pending queue
// entry. Ledger write and entity commit share one transaction.
type Tracker struct {
	ledger  *Ledger
	gate    *Gate
	options *options.Service
	runner  *tx.Runner
	metrics *metrics.Metrics
	audit   *audit.Publisher
	logger  *slog.Logger
}

func NewTracker(ledger *Ledger, gate *Gate, opts *options.Service, runner *tx.Runner,
	m *metrics.Metrics, publisher *audit.Publisher, logger *slog.Logger) *Tracker {
	return &Tracker{
		ledger:  ledger,
		gate:    gate,
		options: opts,
		runner:  runner,
		metrics: m,
		audit:   publisher,
		logger:  logger,
	}
}

// attempt memoizes the expensive checks for one mutation attempt. The cheap
// sanity checks are deliberately not memoized; they run on every evaluation.
type attempt struct {
	extraDone bool
	extraErr  error

	selfDone     bool
	selfApproved bool
}

func (a *attempt) extra(fn func() error) error {
	if !a.extraDone {
		a.extraErr = fn()
		a.extraDone = true
	}
	return a.extraErr
}

func (a *attempt) self(fn func() (bool, error)) (bool, error) {
	if !a.selfDone {
		approved, err := fn()
		if err != nil {
			return false, err
		}
		a.selfApproved = approved
		a.selfDone = true
	}
	return a.selfApproved, nil
}

// Validate runs the full gate sequence for an entity without persisting
// anything, for callers that want to reject bad attempts at form-validation
// time.
func (t *Tracker) Validate(ctx context.Context, entity Tracked) error {
	actor := requestcontext.Actor(ctx)
	if err := t.gate.Sanity(ctx, actor); err != nil {
		return err
	}
	return t.gate.Extra(ctx, actor, entity.TypeTag(), entity.EntityID())
}

// Save proposes creating or updating entity. The kind is inferred from
// whether the entity is persisted. A no-op update returns silently with
// nothing recorded.
func (t *Tracker) Save(ctx context.Context, entity Tracked, comment string) (*Result, error) {
	return t.run(ctx, entity, func(ctx context.Context) (*ChangeRequest, error) {
		return t.ledger.Open(ctx, entity, "")
	}, comment, true)
}

// Delete proposes deleting entity. Only the sanity checks gate deletion; the
// throttle and pending checks are intentionally skipped for deletes.
func (t *Tracker) Delete(ctx context.Context, entity Tracked, comment string) (*Result, error) {
	return t.run(ctx, entity, func(ctx context.Context) (*ChangeRequest, error) {
		return t.ledger.Open(ctx, entity, KindDelete)
	}, comment, false)
}

// SaveRelated proposes replacing entity's child collection of relatedTag
// type with the proposed snapshots.
func (t *Tracker) SaveRelated(ctx context.Context, entity Tracked, relatedTag string, proposed []Snapshot, comment string) (*Result, error) {
	return t.run(ctx, entity, func(ctx context.Context) (*ChangeRequest, error) {
		return t.ledger.OpenRelated(ctx, entity, relatedTag, proposed)
	}, comment, true)
}

func (t *Tracker) run(ctx context.Context, entity Tracked,
	open func(ctx context.Context) (*ChangeRequest, error), comment string, withExtra bool) (*Result, error) {

	started := time.Now()
	defer func() {
		t.metrics.ObserveMutationDuration(time.Since(started))
	}()

	actor := requestcontext.Actor(ctx)
	if err := t.gate.Sanity(ctx, actor); err != nil {
		return nil, err
	}

	cr, err := open(ctx)
	if err != nil {
		return nil, err
	}
	cr.Comment = comment

	desc, err := t.ledger.Registry().Lookup(cr.ObjectType)
	if err != nil {
		return nil, err
	}

	// Nothing changed: record nothing, bother nobody.
	if cr.isNoop() {
		t.logger.DebugContext(ctx, "ignoring no-op change",
			"object", cr.TargetRef(), "kind", cr.Kind)
		return &Result{Request: cr, ObjectID: entity.EntityID()}, nil
	}

	a := &attempt{}
	if withExtra {
		if err := a.extra(func() error {
			return t.gate.Extra(ctx, actor, cr.ObjectType, entity.EntityID())
		}); err != nil {
			return nil, err
		}
	}

	selfApproved, err := a.self(func() (bool, error) {
		return t.selfApproves(ctx, actor, desc, cr)
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Request: cr, ObjectID: entity.EntityID()}
	if selfApproved {
		err = t.commit(ctx, desc, cr, result)
	} else {
		err = t.queue(ctx, cr, result)
	}
	if err != nil {
		return nil, err
	}

	t.metrics.ObserveChangeRequest(string(cr.Kind), string(cr.Status))
	return result, nil
}

// commit applies a self-approved change: the mutation and the approved
// ledger row land in one transaction. The row is written after the handler
// runs so a created entity's assigned id and label are recorded.
func (t *Tracker) commit(ctx context.Context, desc *Descriptor, cr *ChangeRequest, result *Result) error {
	selfResolve(cr, StatusApproved, requestcontext.Now(ctx))

	err := t.runner.InTx(ctx, func(ctx context.Context) error {
		switch cr.Kind {
		case KindDelete:
			if err := desc.Handler.Delete(ctx, *cr.ObjectID); err != nil {
				return wrapApply(err, "delete "+desc.Label)
			}
		case KindRelated:
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
			result.ObjectID = id
		}

		_, err := t.ledger.Persist(ctx, cr)
		return err
	})
	if err != nil {
		return err
	}

	result.Committed = true
	result.Recorded = true
	t.commitNotices(cr, desc, result)
	return t.emit(ctx, "approved", cr)
}

func (t *Tracker) commitNotices(cr *ChangeRequest, desc *Descriptor, result *Result) {
	switch cr.Kind {
	case KindDelete:
		result.notice(NoticeSuccess, "%s deleted", cr.TargetRef())
	case KindRelated:
		relDesc, err := t.ledger.Registry().Lookup(cr.RelatedType)
		idField := "id"
		label := cr.RelatedType
		if err == nil {
			idField = relDesc.IDField
			label = relDesc.Label
		}
		diff := classifyChildren(cr.BeforeChildren, cr.AfterChildren, idField)
		for range diff.Added {
			result.notice(NoticeSuccess, "%s added to %s", label, cr.TargetRef())
		}
		for range diff.Modified {
			result.notice(NoticeSuccess, "%s updated on %s", label, cr.TargetRef())
		}
		for range diff.Deleted {
			result.notice(NoticeSuccess, "%s removed from %s", label, cr.TargetRef())
		}
	default:
		result.notice(NoticeSuccess, "%s saved", cr.TargetRef())
	}
}

// queue persists a pending entry for moderators to process.
func (t *Tracker) queue(ctx context.Context, cr *ChangeRequest, result *Result) error {
	err := t.runner.InTx(ctx, func(ctx context.Context) error {
		_, err := t.ledger.Persist(ctx, cr)
		return err
	})
	if err != nil {
		return err
	}
	result.Recorded = true
	result.notice(NoticeWarning,
		"your change to %s was submitted for moderation", cr.TargetRef())
	return t.emit(ctx, "submitted", cr)
}

// selfApproves decides whether the actor's change commits without
// moderation. Explicit permissions short-circuit; otherwise accounts past
// the grace period get heuristic approval for unmoderated changes of
// auto-approvable kinds.
func (t *Tracker) selfApproves(ctx context.Context, actor *identity.User, desc *Descriptor, cr *ChangeRequest) (bool, error) {
	if cr.Kind == KindDelete {
		return actor.Has(identity.PermSelfDelete), nil
	}
	if actor.Has(identity.PermSelfApprove) {
		return true, nil
	}

	graceDays, err := t.options.Int(ctx, options.KeyGraceDays)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "read grace period option")
	}
	now := requestcontext.Now(ctx)
	if actor.AccountAge(now) < time.Duration(graceDays)*24*time.Hour {
		return false, nil
	}
	if !desc.autoApproves(cr.Kind) {
		return false, nil
	}

	for _, field := range ChangedFields(cr.Before, cr.After) {
		if desc.IsModerated(field) {
			return false, nil
		}
	}
	return true, nil
}

// wrapApply tags handler failures as internal while letting errors that
// already carry a domain code (validation, not-found) surface unchanged.
func wrapApply(err error, message string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}

func (t *Tracker) emit(ctx context.Context, action string, cr *ChangeRequest) error {
	event := audit.Event{
		Timestamp:     requestcontext.Now(ctx),
		Action:        action,
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
	if err := t.audit.Emit(ctx, event); err != nil {
		// Audit failures must not undo a committed change.
		t.logger.ErrorContext(ctx, "emit audit event", "error", err)
	}
	return nil
}
