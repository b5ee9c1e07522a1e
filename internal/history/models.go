package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	dErrors "otakudb/pkg/domain-errors"
)

// Kind classifies what a change request proposes.
type Kind string

const (
	KindAdd     Kind = "add"
	KindModify  Kind = "modify"
	KindDelete  Kind = "delete"
	KindRelated Kind = "related"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindAdd, KindModify, KindDelete, KindRelated:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Status is the approval lifecycle state of a ledger entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusWithdrawn Status = "withdrawn"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusWithdrawn:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool { return s != StatusPending }

// ChangeRequest is one ledger entry: a proposed mutation and its approval
// lifecycle. Before/After hold single-entity snapshots; for Related entries
// the child-sequence fields are used instead.
type ChangeRequest struct {
	ID          uuid.UUID
	ObjectType  string
	ObjectID    *int64 // nil until a not-yet-created object is committed
	ObjectLabel string
	RelatedType string // set only on Related entries
	Kind        Kind
	Status      Status

	Before         Snapshot
	After          Snapshot
	BeforeChildren []Snapshot
	AfterChildren  []Snapshot

	Comment string

	RequesterID   uuid.UUID
	RequesterName string
	RequesterIP   string
	RequestedAt   time.Time

	ModeratorID   *uuid.UUID
	ModeratorName string
	ModeratorIP   string
	ModeratedAt   *time.Time
}

// TargetRef formats the entry's target for logs and notices, mirroring how
// ledger entries describe themselves everywhere in the system.
func (cr *ChangeRequest) TargetRef() string {
	result := cr.ObjectType
	if cr.ObjectLabel != "" {
		result += fmt.Sprintf(" %q", cr.ObjectLabel)
	}
	if cr.ObjectID != nil {
		result += fmt.Sprintf(" (%d)", *cr.ObjectID)
	}
	return result
}

// isNoop reports whether persisting this entry would record nothing: only
// Modify and Related entries with identical before/after are suppressed.
// Add and Delete entries always persist; they record the act, not a delta.
func (cr *ChangeRequest) isNoop() bool {
	switch cr.Kind {
	case KindModify:
		return Equal(cr.Before, cr.After)
	case KindRelated:
		return EqualRelated(cr.BeforeChildren, cr.AfterChildren)
	default:
		return false
	}
}

// transition moves the entry out of Pending exactly once, stamping the
// moderation timestamp. Further transitions are invalid-state errors.
func (cr *ChangeRequest) transition(to Status, at time.Time) error {
	if cr.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeInvalidState,
			"change request %s is %s, not pending", cr.ID, cr.Status)
	}
	if !to.IsValid() || to == StatusPending {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "invalid transition to %q", to)
	}
	cr.Status = to
	cr.ModeratedAt = &at
	return nil
}
