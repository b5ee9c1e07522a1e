package audit

import "context"

// Queue is a Store whose writes are buffered on a channel and persisted by a
// Worker, for deployments that want the audit sink off the request path.
// Reads go straight to the backing store.
type Queue struct {
	store Store
	inbox chan Event
}

func NewQueue(store Store, buffer int) *Queue {
	return &Queue{store: store, inbox: make(chan Event, buffer)}
}

func (q *Queue) Append(ctx context.Context, event Event) error {
	select {
	case q.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) ListByObject(ctx context.Context, objectType string, objectID int64) ([]Event, error) {
	return q.store.ListByObject(ctx, objectType, objectID)
}

// Worker returns the consumer that drains this queue into the backing store.
func (q *Queue) Worker() *Worker {
	return NewWorker(q.store, q.inbox)
}

// Worker consumes audit events from a channel and persists them. The engine
// emits synchronously by default; pairing a Queue with a Worker is opt-in.
type Worker struct {
	store Store
	inbox <-chan Event
}

func NewWorker(store Store, inbox <-chan Event) *Worker {
	return &Worker{store: store, inbox: inbox}
}

// Run persists events until ctx is cancelled, then flushes whatever is still
// buffered so accepted events are not lost on shutdown.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return w.flush(context.WithoutCancel(ctx), ctx.Err())
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) flush(ctx context.Context, cause error) error {
	for {
		select {
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
		default:
			return cause
		}
	}
}
