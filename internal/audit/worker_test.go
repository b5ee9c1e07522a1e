package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// =============================================================================
// Audit Queue Worker Test Suite
// =============================================================================

type WorkerSuite struct {
	suite.Suite
	backing *InMemoryStore
	queue   *Queue
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.backing = NewInMemoryStore()
	s.queue = NewQueue(s.backing, 8)
}

func (s *WorkerSuite) event(action string, objectID int64) Event {
	return Event{
		Action:      action,
		Kind:        "modify",
		Status:      "approved",
		ObjectType:  "media",
		ObjectID:    &objectID,
		ObjectLabel: "Cowboy Bebop",
	}
}

func (s *WorkerSuite) TestDeliversThroughWorker() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.queue.Worker().Run(ctx) }()

	publisher := NewPublisher(s.queue, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(publisher.Emit(ctx, s.event("approved", 1)))
	s.Require().NoError(publisher.Emit(ctx, s.event("submitted", 2)))

	s.Eventually(func() bool {
		return len(s.backing.All()) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	s.ErrorIs(<-done, context.Canceled)
	s.Equal("approved", s.backing.All()[0].Action)
}

func (s *WorkerSuite) TestShutdownFlushesBufferedEvents() {
	ctx, cancel := context.WithCancel(context.Background())

	// Buffer events before the worker ever runs, then cancel immediately.
	for i := int64(1); i <= 3; i++ {
		s.Require().NoError(s.queue.Append(ctx, s.event("approved", i)))
	}
	cancel()

	err := s.queue.Worker().Run(ctx)
	s.ErrorIs(err, context.Canceled)
	s.Len(s.backing.All(), 3)
}

func (s *WorkerSuite) TestAppendFailsOnceContextIsGone() {
	full := NewQueue(s.backing, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := full.Append(ctx, s.event("approved", 1))
	s.ErrorIs(err, context.Canceled)
}

func (s *WorkerSuite) TestReadsBypassTheChannel() {
	ctx := context.Background()
	s.Require().NoError(s.backing.Append(ctx, s.event("approved", 7)))

	events, err := s.queue.ListByObject(ctx, "media", 7)
	s.Require().NoError(err)
	s.Len(events, 1)
}
