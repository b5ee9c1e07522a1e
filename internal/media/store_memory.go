package media

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	dErrors "otakudb/pkg/domain-errors"
)

// InMemoryStore is the development and test implementation. Slug uniqueness
// per media type is enforced under the mutex.
type InMemoryStore struct {
	mu        sync.RWMutex
	nextID    int64
	nextArtID int64
	media     map[int64]*Media
	artwork   map[int64]*Artwork
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		media:   make(map[int64]*Media),
		artwork: make(map[int64]*Artwork),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, m *Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.media {
		if existing.MediaType == m.MediaType && existing.Slug == m.Slug {
			return errSlugTaken(m.MediaType, m.Slug)
		}
	}

	s.nextID++
	m.ID = s.nextID
	now := time.Now()
	m.CreatedAt = now
	m.ModifiedAt = now
	s.media[m.ID] = cloneMedia(m)
	return nil
}

func (s *InMemoryStore) GetByID(ctx context.Context, id int64) (*Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.media[id]
	if !ok {
		return nil, errMediaNotFound(id)
	}
	return cloneMedia(m), nil
}

func (s *InMemoryStore) GetBySlug(ctx context.Context, mediaType Type, slug string) (*Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.media {
		if m.MediaType == mediaType && m.Slug == slug {
			return cloneMedia(m), nil
		}
	}
	return nil, dErrors.Newf(dErrors.CodeNotFound, "%s %q not found", mediaType, slug)
}

func (s *InMemoryStore) Update(ctx context.Context, m *Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.media[m.ID]
	if !ok {
		return errMediaNotFound(m.ID)
	}
	for _, other := range s.media {
		if other.ID != m.ID && other.MediaType == m.MediaType && other.Slug == m.Slug {
			return errSlugTaken(m.MediaType, m.Slug)
		}
	}

	m.CreatedAt = existing.CreatedAt
	m.ModifiedAt = time.Now()
	s.media[m.ID] = cloneMedia(m)
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.media[id]; !ok {
		return errMediaNotFound(id)
	}
	delete(s.media, id)
	for artID, a := range s.artwork {
		if a.MediaID == id {
			delete(s.artwork, artID)
		}
	}
	return nil
}

func (s *InMemoryStore) List(ctx context.Context, filter ListFilter) ([]*Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Media
	for _, m := range s.media {
		if filter.Type != "" && m.MediaType != filter.Type {
			continue
		}
		if filter.Adult != nil && m.IsAdult != *filter.Adult {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(m.Title), strings.ToLower(filter.Search)) {
			continue
		}
		result = append(result, cloneMedia(m))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Title < result[j].Title })

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if filter.Offset >= len(result) {
		return nil, nil
	}
	result = result[filter.Offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *InMemoryStore) GetArtwork(ctx context.Context, id int64) (*Artwork, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artwork[id]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "artwork %d not found", id)
	}
	clone := *a
	return &clone, nil
}

func (s *InMemoryStore) ListArtwork(ctx context.Context, mediaID int64) ([]*Artwork, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Artwork
	for _, a := range s.artwork {
		if a.MediaID == mediaID {
			clone := *a
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Sort != result[j].Sort {
			return result[i].Sort < result[j].Sort
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *InMemoryStore) CreateArtwork(ctx context.Context, a *Artwork) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.media[a.MediaID]; !ok {
		return errMediaNotFound(a.MediaID)
	}
	s.nextArtID++
	a.ID = s.nextArtID
	clone := *a
	s.artwork[a.ID] = &clone
	return nil
}

func (s *InMemoryStore) UpdateArtwork(ctx context.Context, a *Artwork) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artwork[a.ID]; !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "artwork %d not found", a.ID)
	}
	clone := *a
	s.artwork[a.ID] = &clone
	return nil
}

func (s *InMemoryStore) DeleteArtwork(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artwork[id]; !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "artwork %d not found", id)
	}
	delete(s.artwork, id)
	return nil
}

func cloneMedia(m *Media) *Media {
	c := *m
	c.Episodes = cloneInt64(m.Episodes)
	c.Duration = cloneInt64(m.Duration)
	c.Volumes = cloneInt64(m.Volumes)
	c.Chapters = cloneInt64(m.Chapters)
	c.SeasonYear = cloneInt64(m.SeasonYear)
	c.StartDate = cloneTime(m.StartDate)
	c.EndDate = cloneTime(m.EndDate)
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
