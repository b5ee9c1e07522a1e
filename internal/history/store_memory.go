package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is the development and test implementation. Pending
// uniqueness is enforced under the mutex, matching the partial unique index
// of the postgres store.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*ChangeRequest
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[uuid.UUID]*ChangeRequest)}
}

func (s *InMemoryStore) Insert(ctx context.Context, cr *ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cr.Status == StatusPending && cr.ObjectID != nil {
		for _, existing := range s.entries {
			if existing.Status == StatusPending &&
				existing.ObjectType == cr.ObjectType &&
				existing.ObjectID != nil && *existing.ObjectID == *cr.ObjectID {
				return errPendingExists()
			}
		}
	}

	s.entries[cr.ID] = cloneRequest(cr)
	return nil
}

func (s *InMemoryStore) Update(ctx context.Context, cr *ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[cr.ID]; !ok {
		return errEntryNotFound(cr.ID)
	}
	s.entries[cr.ID] = cloneRequest(cr)
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id uuid.UUID) (*ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cr, ok := s.entries[id]
	if !ok {
		return nil, errEntryNotFound(id)
	}
	return cloneRequest(cr), nil
}

func (s *InMemoryStore) FindPending(ctx context.Context, objectType string, objectID int64) (*ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cr := range s.entries {
		if cr.Status == StatusPending && cr.ObjectType == objectType &&
			cr.ObjectID != nil && *cr.ObjectID == objectID {
			return cloneRequest(cr), nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) CountByRequesterSince(ctx context.Context, requesterID uuid.UUID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, cr := range s.entries {
		if cr.RequesterID == requesterID && !cr.RequestedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) ListByObject(ctx context.Context, objectType string, objectID int64) ([]*ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ChangeRequest
	for _, cr := range s.entries {
		if cr.ObjectType == objectType && cr.ObjectID != nil && *cr.ObjectID == objectID {
			result = append(result, cloneRequest(cr))
		}
	}
	sortByRequestedDesc(result)
	return result, nil
}

func (s *InMemoryStore) ListRecent(ctx context.Context, limit int) ([]*ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*ChangeRequest, 0, len(s.entries))
	for _, cr := range s.entries {
		result = append(result, cloneRequest(cr))
	}
	sortByRequestedDesc(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func sortByRequestedDesc(entries []*ChangeRequest) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].RequestedAt.Equal(entries[j].RequestedAt) {
			return entries[i].RequestedAt.After(entries[j].RequestedAt)
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
}

func cloneRequest(cr *ChangeRequest) *ChangeRequest {
	c := *cr
	c.Before = cloneSnapshot(cr.Before)
	c.After = cloneSnapshot(cr.After)
	c.BeforeChildren = cloneSnapshots(cr.BeforeChildren)
	c.AfterChildren = cloneSnapshots(cr.AfterChildren)
	if cr.ObjectID != nil {
		id := *cr.ObjectID
		c.ObjectID = &id
	}
	if cr.ModeratorID != nil {
		id := *cr.ModeratorID
		c.ModeratorID = &id
	}
	if cr.ModeratedAt != nil {
		at := *cr.ModeratedAt
		c.ModeratedAt = &at
	}
	return &c
}

func cloneSnapshot(snap Snapshot) Snapshot {
	if snap == nil {
		return nil
	}
	c := make(Snapshot, len(snap))
	for k, v := range snap {
		c[k] = v
	}
	return c
}

func cloneSnapshots(snaps []Snapshot) []Snapshot {
	if snaps == nil {
		return nil
	}
	c := make([]Snapshot, len(snaps))
	for i, snap := range snaps {
		c[i] = cloneSnapshot(snap)
	}
	return c
}
