package media

import (
	"context"
	"log/slog"
	"time"

	"otakudb/internal/history"
	dErrors "otakudb/pkg/domain-errors"
)

// Input carries the editable fields of a catalog entry. An empty slug is
// derived from the title.
type Input struct {
	Title          string        `json:"title"`
	Slug           string        `json:"slug"`
	MediaType      Type          `json:"media_type"`
	SubType        SubType       `json:"sub_type"`
	Status         Status        `json:"status"`
	IsAdult        bool          `json:"is_adult"`
	Episodes       *int64        `json:"episodes"`
	Duration       *int64        `json:"duration"`
	Volumes        *int64        `json:"volumes"`
	Chapters       *int64        `json:"chapters"`
	StartDate      *string       `json:"start_date"`
	StartPrecision DatePrecision `json:"start_precision"`
	EndDate        *string       `json:"end_date"`
	EndPrecision   DatePrecision `json:"end_precision"`
	SeasonYear     *int64        `json:"season_year"`
	Season         Season        `json:"season"`
	Description    string        `json:"description"`
	Synopsis       string        `json:"synopsis"`
}

// ArtworkInput is one row of a proposed artwork collection. ID 0 proposes a
// new row; existing rows missing from the proposal are removed.
type ArtworkInput struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
	Sort     int64  `json:"sort"`
}

// Service is the catalog's write and read API. Writes run through the
// change-request engine; reads go straight to the store.
type Service struct {
	store   Store
	tracker *history.Tracker
	logger  *slog.Logger
}

func NewService(store Store, tracker *history.Tracker, logger *slog.Logger) *Service {
	return &Service{store: store, tracker: tracker, logger: logger}
}

// Create proposes a new catalog entry.
func (s *Service) Create(ctx context.Context, input Input, comment string) (*history.Result, error) {
	m := newMedia()
	if err := applyInput(m, input); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return s.tracker.Save(ctx, m, comment)
}

// Update proposes replacing an entry's editable fields.
func (s *Service) Update(ctx context.Context, id int64, input Input, comment string) (*history.Result, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyInput(m, input); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return s.tracker.Save(ctx, m, comment)
}

// Delete proposes removing an entry and its artwork rows.
func (s *Service) Delete(ctx context.Context, id int64, comment string) (*history.Result, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.tracker.Delete(ctx, m, comment)
}

// ReplaceArtwork proposes a new state for an entry's artwork collection.
func (s *Service) ReplaceArtwork(ctx context.Context, id int64, items []ArtworkInput, comment string) (*history.Result, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	proposed := make([]history.Snapshot, len(items))
	for i, item := range items {
		proposed[i] = history.Snapshot{
			"id":       item.ID,
			"filename": item.Filename,
			"caption":  item.Caption,
			"sort":     item.Sort,
		}
	}
	return s.tracker.SaveRelated(ctx, m, ArtworkTypeTag, proposed, comment)
}

func (s *Service) Get(ctx context.Context, id int64) (*Media, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) GetBySlug(ctx context.Context, mediaType Type, slug string) (*Media, error) {
	return s.store.GetBySlug(ctx, mediaType, slug)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Media, error) {
	return s.store.List(ctx, filter)
}

func (s *Service) ListArtwork(ctx context.Context, mediaID int64) ([]*Artwork, error) {
	return s.store.ListArtwork(ctx, mediaID)
}

func applyInput(m *Media, input Input) error {
	m.Title = input.Title
	m.Slug = input.Slug
	if m.Slug == "" {
		m.Slug = Slugify(input.Title)
	}
	if input.MediaType != "" {
		m.MediaType = input.MediaType
	}
	if input.SubType != "" {
		m.SubType = input.SubType
	}
	if input.Status != "" {
		m.Status = input.Status
	}
	m.IsAdult = input.IsAdult
	m.Episodes = input.Episodes
	m.Duration = input.Duration
	m.Volumes = input.Volumes
	m.Chapters = input.Chapters
	m.SeasonYear = input.SeasonYear
	m.Season = input.Season
	if input.StartPrecision != "" {
		m.StartPrecision = input.StartPrecision
	}
	if input.EndPrecision != "" {
		m.EndPrecision = input.EndPrecision
	}
	m.Description = input.Description
	m.Synopsis = input.Synopsis

	var err error
	if m.StartDate, err = parseInputDate(input.StartDate); err != nil {
		return err
	}
	m.EndDate, err = parseInputDate(input.EndDate)
	return err
}

func parseInputDate(v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *v)
	if err != nil {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid date %q: expected YYYY-MM-DD", *v)
	}
	return &t, nil
}
