package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	dErrors "otakudb/pkg/domain-errors"
)

// Store persists ledger entries. Implementations must enforce pending
// uniqueness per target at insert time: the "no open pending request" check
// is read-then-decide, and only the store can close that race (the postgres
// store does it with a partial unique index, the memory store under its
// mutex). Implementations honor a transaction carried in context.
type Store interface {
	Insert(ctx context.Context, cr *ChangeRequest) error
	Update(ctx context.Context, cr *ChangeRequest) error
	Get(ctx context.Context, id uuid.UUID) (*ChangeRequest, error)
	// FindPending returns the open entry against a target, or nil when none.
	FindPending(ctx context.Context, objectType string, objectID int64) (*ChangeRequest, error)
	// CountByRequesterSince counts a requester's entries created after since.
	CountByRequesterSince(ctx context.Context, requesterID uuid.UUID, since time.Time) (int, error)
	ListByObject(ctx context.Context, objectType string, objectID int64) ([]*ChangeRequest, error)
	ListRecent(ctx context.Context, limit int) ([]*ChangeRequest, error)
}

// errPendingExists is the coded error stores return when inserting a pending
// entry for a target that already has one open.
func errPendingExists() error {
	return dErrors.NewValidation("has-pending",
		"object has an open pending change request; wait for a moderator to process it")
}

func errEntryNotFound(id uuid.UUID) error {
	return dErrors.Newf(dErrors.CodeNotFound, "change request %s not found", id)
}
