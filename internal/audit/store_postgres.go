package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"otakudb/pkg/platform/tx"
)

// PostgresStore persists audit events in the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (
			occurred_at, action, kind, status, object_type, object_id, object_label,
			requester_id, requester_name, moderator_id, moderator_name, comment
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	var execer interface {
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	} = s.db
	if txn, ok := tx.From(ctx); ok {
		execer = txn
	}
	_, err := execer.ExecContext(ctx, query,
		event.Timestamp, event.Action, event.Kind, event.Status,
		event.ObjectType, event.ObjectID, event.ObjectLabel,
		event.RequesterID, event.RequesterName,
		event.ModeratorID, event.ModeratorName, event.Comment,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByObject(ctx context.Context, objectType string, objectID int64) ([]Event, error) {
	query := `
		SELECT occurred_at, action, kind, status, object_type, object_id, object_label,
		       requester_id, requester_name, moderator_id, moderator_name, comment
		FROM audit_events
		WHERE object_type = $1 AND object_id = $2
		ORDER BY occurred_at
	`
	rows, err := s.db.QueryContext(ctx, query, objectType, objectID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var (
			e           Event
			objID       sql.NullInt64
			moderatorID uuid.NullUUID
			modName     sql.NullString
		)
		if err := rows.Scan(
			&e.Timestamp, &e.Action, &e.Kind, &e.Status,
			&e.ObjectType, &objID, &e.ObjectLabel,
			&e.RequesterID, &e.RequesterName, &moderatorID, &modName, &e.Comment,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if objID.Valid {
			e.ObjectID = &objID.Int64
		}
		if moderatorID.Valid {
			e.ModeratorID = &moderatorID.UUID
		}
		e.ModeratorName = modName.String
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return result, nil
}
