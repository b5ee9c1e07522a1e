package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"otakudb/pkg/platform/tx"
)

// PostgresStore persists ledger entries. Snapshots are stored as jsonb; the
// partial unique index change_requests_pending_object_idx on
// (object_type, object_id) WHERE status = 'pending' makes pending uniqueness
// hold even under concurrent inserts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// exec returns the in-context transaction when present so store calls made
// inside a tracker attempt share one transaction with the entity stores.
func (s *PostgresStore) exec(ctx context.Context) execer {
	if txn, ok := tx.From(ctx); ok {
		return txn
	}
	return s.db
}

const changeRequestColumns = `
	id, object_type, object_id, object_label, related_type, kind, status,
	data_before, data_after, comment,
	requester_id, requester_name, requester_ip, requested_at,
	moderator_id, moderator_name, moderator_ip, moderated_at
`

func (s *PostgresStore) Insert(ctx context.Context, cr *ChangeRequest) error {
	before, after, err := encodeSnapshots(cr)
	if err != nil {
		return fmt.Errorf("encode change request: %w", err)
	}

	query := `
		INSERT INTO change_requests (` + changeRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = s.exec(ctx).ExecContext(ctx, query,
		cr.ID, cr.ObjectType, cr.ObjectID, cr.ObjectLabel, nullString(cr.RelatedType),
		string(cr.Kind), string(cr.Status),
		before, after, cr.Comment,
		cr.RequesterID, cr.RequesterName, cr.RequesterIP, cr.RequestedAt,
		cr.ModeratorID, cr.ModeratorName, cr.ModeratorIP, cr.ModeratedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return errPendingExists()
		}
		return fmt.Errorf("insert change request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, cr *ChangeRequest) error {
	before, after, err := encodeSnapshots(cr)
	if err != nil {
		return fmt.Errorf("encode change request: %w", err)
	}

	query := `
		UPDATE change_requests
		SET object_id = $2, object_label = $3, status = $4,
		    data_before = $5, data_after = $6,
		    moderator_id = $7, moderator_name = $8, moderator_ip = $9, moderated_at = $10
		WHERE id = $1
	`
	result, err := s.exec(ctx).ExecContext(ctx, query,
		cr.ID, cr.ObjectID, cr.ObjectLabel, string(cr.Status),
		before, after,
		cr.ModeratorID, cr.ModeratorName, cr.ModeratorIP, cr.ModeratedAt,
	)
	if err != nil {
		return fmt.Errorf("update change request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update change request rows affected: %w", err)
	}
	if rows == 0 {
		return errEntryNotFound(cr.ID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*ChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE id = $1`
	cr, err := scanChangeRequest(s.exec(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errEntryNotFound(id)
		}
		return nil, fmt.Errorf("get change request: %w", err)
	}
	return cr, nil
}

func (s *PostgresStore) FindPending(ctx context.Context, objectType string, objectID int64) (*ChangeRequest, error) {
	query := `
		SELECT ` + changeRequestColumns + `
		FROM change_requests
		WHERE object_type = $1 AND object_id = $2 AND status = 'pending'
	`
	cr, err := scanChangeRequest(s.exec(ctx).QueryRowContext(ctx, query, objectType, objectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find pending change request: %w", err)
	}
	return cr, nil
}

func (s *PostgresStore) CountByRequesterSince(ctx context.Context, requesterID uuid.UUID, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM change_requests WHERE requester_id = $1 AND requested_at >= $2`
	if err := s.exec(ctx).QueryRowContext(ctx, query, requesterID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count change requests by requester: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListByObject(ctx context.Context, objectType string, objectID int64) ([]*ChangeRequest, error) {
	query := `
		SELECT ` + changeRequestColumns + `
		FROM change_requests
		WHERE object_type = $1 AND object_id = $2
		ORDER BY requested_at DESC, id
	`
	rows, err := s.exec(ctx).QueryContext(ctx, query, objectType, objectID)
	if err != nil {
		return nil, fmt.Errorf("list change requests by object: %w", err)
	}
	defer rows.Close()
	return collectChangeRequests(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*ChangeRequest, error) {
	query := `
		SELECT ` + changeRequestColumns + `
		FROM change_requests
		ORDER BY requested_at DESC, id
		LIMIT $1
	`
	rows, err := s.exec(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent change requests: %w", err)
	}
	defer rows.Close()
	return collectChangeRequests(rows)
}

func collectChangeRequests(rows *sql.Rows) ([]*ChangeRequest, error) {
	var result []*ChangeRequest
	for rows.Next() {
		cr, err := scanChangeRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan change request: %w", err)
		}
		result = append(result, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change requests: %w", err)
	}
	return result, nil
}

type changeRequestRow interface {
	Scan(dest ...any) error
}

func scanChangeRequest(row changeRequestRow) (*ChangeRequest, error) {
	var (
		cr            ChangeRequest
		objectID      sql.NullInt64
		relatedType   sql.NullString
		kind, status  string
		before, after []byte
		moderatorID   uuid.NullUUID
		moderatorName sql.NullString
		moderatorIP   sql.NullString
		moderatedAt   sql.NullTime
	)
	err := row.Scan(
		&cr.ID, &cr.ObjectType, &objectID, &cr.ObjectLabel, &relatedType, &kind, &status,
		&before, &after, &cr.Comment,
		&cr.RequesterID, &cr.RequesterName, &cr.RequesterIP, &cr.RequestedAt,
		&moderatorID, &moderatorName, &moderatorIP, &moderatedAt,
	)
	if err != nil {
		return nil, err
	}

	cr.Kind = Kind(kind)
	cr.Status = Status(status)
	if objectID.Valid {
		cr.ObjectID = &objectID.Int64
	}
	cr.RelatedType = relatedType.String
	if moderatorID.Valid {
		cr.ModeratorID = &moderatorID.UUID
	}
	cr.ModeratorName = moderatorName.String
	cr.ModeratorIP = moderatorIP.String
	if moderatedAt.Valid {
		cr.ModeratedAt = &moderatedAt.Time
	}

	if err := decodeSnapshots(&cr, before, after); err != nil {
		return nil, fmt.Errorf("decode change request %s: %w", cr.ID, err)
	}
	return &cr, nil
}

// encodeSnapshots serializes the before/after columns. Related entries store
// their child sequences in the same columns; the kind decides the shape on
// the way back out.
func encodeSnapshots(cr *ChangeRequest) (before, after []byte, err error) {
	if cr.Kind == KindRelated {
		if before, err = marshalNullable(cr.BeforeChildren); err != nil {
			return nil, nil, err
		}
		after, err = marshalNullable(cr.AfterChildren)
		return before, after, err
	}
	if before, err = marshalNullable(cr.Before); err != nil {
		return nil, nil, err
	}
	after, err = marshalNullable(cr.After)
	return before, after, err
}

func decodeSnapshots(cr *ChangeRequest, before, after []byte) error {
	if cr.Kind == KindRelated {
		if err := unmarshalInto(before, &cr.BeforeChildren); err != nil {
			return err
		}
		return unmarshalInto(after, &cr.AfterChildren)
	}
	if err := unmarshalInto(before, &cr.Before); err != nil {
		return err
	}
	return unmarshalInto(after, &cr.After)
}

func marshalNullable(v any) ([]byte, error) {
	switch s := v.(type) {
	case Snapshot:
		if s == nil {
			return nil, nil
		}
	case []Snapshot:
		if s == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func unmarshalInto(data []byte, dest any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
