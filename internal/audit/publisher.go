package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher captures structured audit events. It appends to the store and
// writes exactly one structured log line per event.
type Publisher struct {
	store  Store
	logger *slog.Logger
}

func NewPublisher(store Store, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}

	attrs := []any{
		"action", event.Action,
		"kind", event.Kind,
		"status", event.Status,
		"object_type", event.ObjectType,
		"object_label", event.ObjectLabel,
		"requester", event.RequesterName,
	}
	if event.ObjectID != nil {
		attrs = append(attrs, "object_id", *event.ObjectID)
	}
	if event.ModeratorName != "" {
		attrs = append(attrs, "moderator", event.ModeratorName)
	}
	p.logger.InfoContext(ctx, "change request "+event.Action, attrs...)
	return nil
}

func (p *Publisher) ListByObject(ctx context.Context, objectType string, objectID int64) ([]Event, error) {
	return p.store.ListByObject(ctx, objectType, objectID)
}
