package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"otakudb/internal/history"
	dErrors "otakudb/pkg/domain-errors"
)

// =============================================================================
// Snapshot & Handler Test Suite
// =============================================================================

type HistorySuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
}

func TestHistorySuite(t *testing.T) {
	suite.Run(t, new(HistorySuite))
}

func (s *HistorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
}

func (s *HistorySuite) seed(title string) *Media {
	m := newMedia()
	m.Title = title
	m.Slug = Slugify(title)
	m.SubType = SubTypeTV
	s.Require().NoError(s.store.Create(s.ctx, m))
	return m
}

func (s *HistorySuite) TestSnapshotShape() {
	episodes := int64(26)
	start := time.Date(1998, time.April, 3, 0, 0, 0, 0, time.UTC)
	m := &Media{
		Title:          "Cowboy Bebop",
		Slug:           "cowboy-bebop",
		MediaType:      TypeAnime,
		SubType:        SubTypeTV,
		Status:         StatusAuto,
		Episodes:       &episodes,
		StartDate:      &start,
		StartPrecision: PrecisionFull,
		EndPrecision:   PrecisionFull,
	}

	snap := m.Snapshot()
	s.Equal("Cowboy Bebop", snap["title"])
	s.Equal("anime", snap["media_type"])
	s.Equal(int64(26), snap["episodes"])
	s.Equal("1998-04-03", snap["start_date"])

	// Unset optionals snapshot as nil, not zero values.
	s.Nil(snap["end_date"])
	s.Nil(snap["volumes"])
	s.Nil(snap["season"])
}

func (s *HistorySuite) TestApplyFields() {
	s.Run("partial snapshot touches only its fields", func() {
		m := newMedia()
		m.Title = "Cowboy Bebop"
		m.Slug = "cowboy-bebop"

		s.Require().NoError(applyFields(m, history.Snapshot{"synopsis": "space jazz"}))
		s.Equal("Cowboy Bebop", m.Title)
		s.Equal("space jazz", m.Synopsis)
	})

	s.Run("numbers survive a json round trip", func() {
		m := newMedia()
		s.Require().NoError(applyFields(m, history.Snapshot{
			"episodes":    float64(26),
			"season_year": float64(1998),
		}))
		s.Require().NotNil(m.Episodes)
		s.EqualValues(26, *m.Episodes)
		s.Require().NotNil(m.SeasonYear)
		s.EqualValues(1998, *m.SeasonYear)
	})

	s.Run("dates parse from iso strings", func() {
		m := newMedia()
		s.Require().NoError(applyFields(m, history.Snapshot{"start_date": "1998-04-03"}))
		s.Require().NotNil(m.StartDate)
		s.Equal(1998, m.StartDate.Year())

		s.Require().NoError(applyFields(m, history.Snapshot{"start_date": nil}))
		s.Nil(m.StartDate)
	})

	s.Run("bad dates are rejected", func() {
		m := newMedia()
		err := applyFields(m, history.Snapshot{"start_date": "april 1998"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("is_adult must be boolean", func() {
		m := newMedia()
		err := applyFields(m, history.Snapshot{"is_adult": "yes"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *HistorySuite) TestEntityHandler() {
	handler := &entityHandler{store: s.store}

	s.Run("apply with id zero creates", func() {
		id, err := handler.Apply(s.ctx, 0, history.Snapshot{
			"title":    "Trigun",
			"slug":     "trigun",
			"sub_type": "tv",
		})
		s.Require().NoError(err)
		s.NotZero(id)

		m, err := s.store.GetByID(s.ctx, id)
		s.Require().NoError(err)
		s.Equal("Trigun", m.Title)
		// Unsnapshotted fields keep their defaults.
		s.Equal(TypeAnime, m.MediaType)
	})

	s.Run("apply with an id updates in place", func() {
		m := s.seed("Akira")

		id, err := handler.Apply(s.ctx, m.ID, history.Snapshot{"synopsis": "neo tokyo"})
		s.Require().NoError(err)
		s.Equal(m.ID, id)

		got, err := s.store.GetByID(s.ctx, m.ID)
		s.Require().NoError(err)
		s.Equal("Akira", got.Title)
		s.Equal("neo tokyo", got.Synopsis)
	})

	s.Run("invalid results are rejected before the store", func() {
		m := s.seed("Lain")
		_, err := handler.Apply(s.ctx, m.ID, history.Snapshot{"title": ""})
		s.Equal("title-required", dErrors.Reason(err))
	})

	s.Run("label reads the title", func() {
		s.Equal("Trigun", handler.Label(history.Snapshot{"title": "Trigun"}))
		s.Equal("", handler.Label(history.Snapshot{}))
	})
}

func (s *HistorySuite) TestArtworkHandler() {
	handler := &artworkHandler{store: s.store}
	m := s.seed("Cowboy Bebop")

	cover := &Artwork{MediaID: m.ID, Filename: "cover.jpg", Sort: 1}
	s.Require().NoError(s.store.CreateArtwork(s.ctx, cover))

	s.Run("replaces the collection and reports refreshed ids", func() {
		refreshed, err := handler.ApplyChildren(s.ctx, m.ID, []history.Snapshot{
			{"id": cover.ID, "filename": "cover.jpg", "caption": "remastered", "sort": int64(1)},
			{"id": int64(0), "filename": "poster.jpg", "sort": int64(2)},
		})
		s.Require().NoError(err)
		s.Require().Len(refreshed, 2)
		for _, snap := range refreshed {
			s.NotZero(snap["id"])
		}

		rows, err := s.store.ListArtwork(s.ctx, m.ID)
		s.Require().NoError(err)
		s.Require().Len(rows, 2)
		s.Equal("remastered", rows[0].Caption)
	})

	s.Run("rows absent from the proposal are removed", func() {
		refreshed, err := handler.ApplyChildren(s.ctx, m.ID, nil)
		s.Require().NoError(err)
		s.Empty(refreshed)

		rows, err := s.store.ListArtwork(s.ctx, m.ID)
		s.Require().NoError(err)
		s.Empty(rows)
	})

	s.Run("foreign artwork ids are rejected", func() {
		other := s.seed("Akira")
		stray := &Artwork{MediaID: other.ID, Filename: "akira.jpg"}
		s.Require().NoError(s.store.CreateArtwork(s.ctx, stray))

		_, err := handler.ApplyChildren(s.ctx, m.ID, []history.Snapshot{
			{"id": stray.ID, "filename": "akira.jpg"},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("filenames are required", func() {
		_, err := handler.ApplyChildren(s.ctx, m.ID, []history.Snapshot{{"caption": "no file"}})
		s.Equal("filename-required", dErrors.Reason(err))
	})
}

func (s *HistorySuite) TestArtworkEntityHandler() {
	handler := &artworkEntityHandler{store: s.store}

	_, err := handler.Apply(s.ctx, 0, history.Snapshot{"filename": "x.jpg"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
