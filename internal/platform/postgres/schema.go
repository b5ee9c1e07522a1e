// Package postgres holds the database schema. Statements are idempotent so
// applying on startup is safe; the partial unique index on pending change
// requests is what closes the concurrent-submission race.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

const Schema = `
CREATE TABLE IF NOT EXISTS media (
	id              BIGSERIAL PRIMARY KEY,
	title           TEXT NOT NULL,
	slug            TEXT NOT NULL,
	media_type      TEXT NOT NULL,
	sub_type        TEXT NOT NULL,
	status          TEXT NOT NULL,
	is_adult        BOOLEAN NOT NULL DEFAULT FALSE,
	episodes        BIGINT,
	duration        BIGINT,
	volumes         BIGINT,
	chapters        BIGINT,
	start_date      DATE,
	start_precision TEXT NOT NULL DEFAULT 'full',
	end_date        DATE,
	end_precision   TEXT NOT NULL DEFAULT 'full',
	season_year     BIGINT,
	season          TEXT,
	description     TEXT NOT NULL DEFAULT '',
	synopsis        TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	modified_at     TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS media_type_slug_idx
	ON media (media_type, slug);

CREATE TABLE IF NOT EXISTS media_artwork (
	id       BIGSERIAL PRIMARY KEY,
	media_id BIGINT NOT NULL REFERENCES media (id),
	filename TEXT NOT NULL,
	caption  TEXT NOT NULL DEFAULT '',
	sort     BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS media_artwork_media_idx
	ON media_artwork (media_id, sort);

CREATE TABLE IF NOT EXISTS change_requests (
	id             UUID PRIMARY KEY,
	object_type    TEXT NOT NULL,
	object_id      BIGINT,
	object_label   TEXT NOT NULL DEFAULT '',
	related_type   TEXT,
	kind           TEXT NOT NULL,
	status         TEXT NOT NULL,
	data_before    JSONB,
	data_after     JSONB,
	comment        TEXT NOT NULL DEFAULT '',
	requester_id   UUID NOT NULL,
	requester_name TEXT NOT NULL DEFAULT '',
	requester_ip   TEXT NOT NULL DEFAULT '',
	requested_at   TIMESTAMPTZ NOT NULL,
	moderator_id   UUID,
	moderator_name TEXT,
	moderator_ip   TEXT,
	moderated_at   TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS change_requests_pending_object_idx
	ON change_requests (object_type, object_id)
	WHERE status = 'pending' AND object_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS change_requests_requester_idx
	ON change_requests (requester_id, requested_at);

CREATE INDEX IF NOT EXISTS change_requests_object_idx
	ON change_requests (object_type, object_id, requested_at);

CREATE TABLE IF NOT EXISTS audit_events (
	id             BIGSERIAL PRIMARY KEY,
	occurred_at    TIMESTAMPTZ NOT NULL,
	action         TEXT NOT NULL,
	kind           TEXT NOT NULL,
	status         TEXT NOT NULL,
	object_type    TEXT NOT NULL,
	object_id      BIGINT,
	object_label   TEXT NOT NULL DEFAULT '',
	requester_id   UUID NOT NULL,
	requester_name TEXT NOT NULL DEFAULT '',
	moderator_id   UUID,
	moderator_name TEXT,
	comment        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS audit_events_object_idx
	ON audit_events (object_type, object_id, occurred_at);
`

// Apply installs the schema.
func Apply(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
