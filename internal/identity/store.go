package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"

	dErrors "otakudb/pkg/domain-errors"
)

// UserStore resolves authenticated user IDs to requester handles. The
// production implementation fronts the identity provider; the in-memory
// implementation backs tests and single-node deployments.
type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
}

type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[uuid.UUID]*User)}
}

func (s *InMemoryUserStore) Put(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *InMemoryUserStore) FindByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
}
