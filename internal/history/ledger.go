package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"otakudb/internal/identity"
	dErrors "otakudb/pkg/domain-errors"
	"otakudb/pkg/requestcontext"
)

// Ledger opens, persists and renders change requests. It owns the shape of
// ledger entries; deciding their fate is the tracker's and the moderator's
// job.
type Ledger struct {
	store    Store
	registry *Registry
	logger   *slog.Logger
}

func NewLedger(store Store, registry *Registry, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, registry: registry, logger: logger}
}

func (l *Ledger) Store() Store        { return l.store }
func (l *Ledger) Registry() *Registry { return l.registry }

// Open builds a ledger entry for a proposed mutation of entity. An empty
// kind is inferred: persisted entities get Modify, unsaved ones Add. The
// "before" side always comes from persisted state via the handler, never
// from the possibly-edited in-memory entity.
func (l *Ledger) Open(ctx context.Context, entity Tracked, kind Kind) (*ChangeRequest, error) {
	desc, err := l.registry.Lookup(entity.TypeTag())
	if err != nil {
		return nil, err
	}

	id := entity.EntityID()
	if kind == "" {
		if id != 0 {
			kind = KindModify
		} else {
			kind = KindAdd
		}
	}
	if !kind.IsValid() || kind == KindRelated {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "cannot open %q entry here", kind)
	}
	if kind != KindAdd && id == 0 {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"%s entry needs a persisted %s", kind, desc.Label)
	}

	cr := l.newEntry(ctx, entity, desc, kind)

	if id != 0 {
		before, err := desc.Handler.RevertSnapshot(ctx, id)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "snapshot persisted state")
		}
		cr.Before = before
	}

	switch kind {
	case KindDelete:
		cr.After = nil
	case KindModify:
		// Narrow to the changed fields so the stored delta reads cleanly.
		// When nothing changed the full snapshots are kept; Persist will
		// suppress the row anyway.
		cr.After = entity.Snapshot()
		if changed := changedInOrder(desc, cr.Before, cr.After); len(changed) > 0 {
			cr.Before = Restrict(cr.Before, changed)
			cr.After = Restrict(cr.After, changed)
		}
	default:
		cr.After = entity.Snapshot()
	}
	return cr, nil
}

// OpenRelated builds a Related entry proposing a new state for the entity's
// child collection.
func (l *Ledger) OpenRelated(ctx context.Context, entity Tracked, relatedTag string, proposed []Snapshot) (*ChangeRequest, error) {
	desc, err := l.registry.Lookup(entity.TypeTag())
	if err != nil {
		return nil, err
	}
	relatedDesc, err := l.registry.Lookup(relatedTag)
	if err != nil {
		return nil, err
	}
	if desc.RelatedHandler == nil {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
			"type %q has no related handler", desc.TypeTag)
	}
	id := entity.EntityID()
	if id == 0 {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"related entry needs a persisted %s", desc.Label)
	}

	before, err := desc.RelatedHandler.ChildrenSnapshot(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "snapshot child collection")
	}

	cr := l.newEntry(ctx, entity, desc, KindRelated)
	cr.RelatedType = relatedDesc.TypeTag
	cr.BeforeChildren = before
	cr.AfterChildren = proposed
	return cr, nil
}

func (l *Ledger) newEntry(ctx context.Context, entity Tracked, desc *Descriptor, kind Kind) *ChangeRequest {
	cr := &ChangeRequest{
		ID:          uuid.New(),
		ObjectType:  desc.TypeTag,
		ObjectLabel: entity.EntityLabel(),
		Kind:        kind,
		Status:      StatusPending,
		RequestedAt: requestcontext.Now(ctx),
		RequesterIP: requestcontext.ClientIP(ctx),
	}
	if id := entity.EntityID(); id != 0 {
		cr.ObjectID = &id
	}
	if actor := requestcontext.Actor(ctx); actor != nil {
		cr.RequesterID = actor.ID
		cr.RequesterName = actor.Username
	}
	return cr
}

// Persist writes the entry, suppressing no-op Modify/Related rows. The
// returned bool reports whether a row was written.
func (l *Ledger) Persist(ctx context.Context, cr *ChangeRequest) (bool, error) {
	if cr.isNoop() {
		l.logger.DebugContext(ctx, "suppressing no-op change request",
			"object", cr.TargetRef(), "kind", cr.Kind)
		return false, nil
	}
	if err := l.store.Insert(ctx, cr); err != nil {
		return false, err
	}
	return true, nil
}

// Withdraw retires a pending entry at its requester's request. Only the
// requester may withdraw.
func (l *Ledger) Withdraw(ctx context.Context, cr *ChangeRequest, actor *identity.User) error {
	if actor == nil || actor.ID != cr.RequesterID {
		return dErrors.New(dErrors.CodeForbidden, "only the requester can withdraw a change request")
	}
	return l.resolve(ctx, cr, StatusWithdrawn, actor)
}

// Approve marks a pending entry approved by a moderator. Committing the
// underlying mutation is the caller's responsibility, inside the same
// transaction.
func (l *Ledger) Approve(ctx context.Context, cr *ChangeRequest, moderator *identity.User) error {
	if err := requireModerator(cr, moderator); err != nil {
		return err
	}
	return l.resolve(ctx, cr, StatusApproved, moderator)
}

// Deny marks a pending entry denied by a moderator.
func (l *Ledger) Deny(ctx context.Context, cr *ChangeRequest, moderator *identity.User) error {
	if err := requireModerator(cr, moderator); err != nil {
		return err
	}
	return l.resolve(ctx, cr, StatusDenied, moderator)
}

func requireModerator(cr *ChangeRequest, moderator *identity.User) error {
	perm := identity.PermModApprove
	if cr.Kind == KindDelete {
		perm = identity.PermModDelete
	}
	if moderator == nil || !moderator.Has(perm) {
		return dErrors.Newf(dErrors.CodeForbidden, "moderating a %s request requires %s", cr.Kind, perm)
	}
	return nil
}

func (l *Ledger) resolve(ctx context.Context, cr *ChangeRequest, to Status, by *identity.User) error {
	if err := cr.transition(to, requestcontext.Now(ctx)); err != nil {
		return err
	}
	cr.ModeratorID = &by.ID
	cr.ModeratorName = by.Username
	cr.ModeratorIP = requestcontext.ClientIP(ctx)
	return l.store.Update(ctx, cr)
}

// selfResolve stamps a self-approved entry: requester and moderator are the
// same person, recorded at open time, so the entry never touches the store
// twice.
func selfResolve(cr *ChangeRequest, to Status, at time.Time) {
	cr.Status = to
	cr.ModeratorID = &cr.RequesterID
	cr.ModeratorName = cr.RequesterName
	cr.ModeratorIP = cr.RequesterIP
	cr.ModeratedAt = &at
}

// FieldDiff is one rendered diff row.
type FieldDiff struct {
	Field  string `json:"field"`
	Label  string `json:"label"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// Diff renders an entry's field changes in the declared field order of its
// type. Add entries show only after values, Delete only before; Modify shows
// both sides of every field present in either snapshot.
func (l *Ledger) Diff(cr *ChangeRequest) ([]FieldDiff, error) {
	desc, err := l.registry.Lookup(cr.ObjectType)
	if err != nil {
		return nil, err
	}

	var result []FieldDiff
	for _, f := range desc.Fields {
		beforeValue, inBefore := lookupField(cr.Before, f.Name)
		afterValue, inAfter := lookupField(cr.After, f.Name)
		if !inBefore && !inAfter {
			continue
		}
		result = append(result, FieldDiff{
			Field:  f.Name,
			Label:  f.Label,
			Before: beforeValue,
			After:  afterValue,
		})
	}
	return result, nil
}

func lookupField(snap Snapshot, name string) (any, bool) {
	if snap == nil {
		return nil, false
	}
	v, ok := snap[name]
	return v, ok
}

// RelatedDiff groups a Related entry's children by what happened to them.
type RelatedDiff struct {
	Added    []Snapshot `json:"added"`
	Modified []Snapshot `json:"modified"`
	Deleted  []Snapshot `json:"deleted"`
	Existing []Snapshot `json:"existing"`
}

// DiffRelated classifies the proposed child collection against the recorded
// one, matching children by their id field. Children without an id are new.
func (l *Ledger) DiffRelated(cr *ChangeRequest) (*RelatedDiff, error) {
	if cr.Kind != KindRelated {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "entry %s is not a related change", cr.ID)
	}
	relatedDesc, err := l.registry.Lookup(cr.RelatedType)
	if err != nil {
		return nil, err
	}
	return classifyChildren(cr.BeforeChildren, cr.AfterChildren, relatedDesc.IDField), nil
}

func classifyChildren(before, after []Snapshot, idField string) *RelatedDiff {
	beforeByID := make(map[int64]Snapshot, len(before))
	for _, child := range before {
		if id := childID(child, idField); id != 0 {
			beforeByID[id] = child
		}
	}

	diff := &RelatedDiff{}
	seen := make(map[int64]bool, len(after))
	for _, child := range after {
		id := childID(child, idField)
		if id == 0 {
			diff.Added = append(diff.Added, child)
			continue
		}
		seen[id] = true
		existing, ok := beforeByID[id]
		switch {
		case !ok:
			diff.Added = append(diff.Added, child)
		case Equal(existing, child):
			diff.Existing = append(diff.Existing, child)
		default:
			diff.Modified = append(diff.Modified, child)
		}
	}
	for _, child := range before {
		if id := childID(child, idField); id != 0 && !seen[id] {
			diff.Deleted = append(diff.Deleted, child)
		}
	}
	return diff
}

// changedInOrder returns the changed field names in the descriptor's
// declared order, restricted to fields present in both snapshots.
func changedInOrder(desc *Descriptor, before, after Snapshot) []string {
	if before == nil || after == nil {
		return nil
	}
	var changed []string
	for _, f := range desc.Fields {
		beforeValue, inBefore := before[f.Name]
		afterValue, inAfter := after[f.Name]
		if inBefore && inAfter && !valueEqual(beforeValue, afterValue) {
			changed = append(changed, f.Name)
		}
	}
	return changed
}
