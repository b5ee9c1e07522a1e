package media

import (
	"time"

	dErrors "otakudb/pkg/domain-errors"
)

// Type is the top-level media classification.
type Type string

const (
	TypeAnime Type = "anime"
	TypeManga Type = "manga"
	TypeNovel Type = "novel"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeAnime, TypeManga, TypeNovel:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }

// SubType refines the media type; which values make sense depends on Type
// but that is editorial, not enforced.
type SubType string

const (
	SubTypeUnknown SubType = "unknown"
	// Anime
	SubTypeTV      SubType = "tv"
	SubTypeOVA     SubType = "ova"
	SubTypeMovie   SubType = "movie"
	SubTypeWeb     SubType = "web"
	SubTypeSpecial SubType = "special"
	SubTypeMusic   SubType = "music"
	// Manga
	SubTypeManga   SubType = "manga"
	SubTypeManhua  SubType = "manhua"
	SubTypeManhwa  SubType = "manhwa"
	SubTypeOneShot SubType = "one-shot"
	SubTypeDoujin  SubType = "doujin"
	// Novel
	SubTypeLightNovel SubType = "light-novel"
	SubTypeNovel      SubType = "novel"
)

func (s SubType) IsValid() bool {
	switch s {
	case SubTypeUnknown, SubTypeTV, SubTypeOVA, SubTypeMovie, SubTypeWeb, SubTypeSpecial,
		SubTypeMusic, SubTypeManga, SubTypeManhua, SubTypeManhwa, SubTypeOneShot,
		SubTypeDoujin, SubTypeLightNovel, SubTypeNovel:
		return true
	}
	return false
}

// Status is the editorial release status. Auto means the airing status is
// derived from the dates instead of set by hand.
type Status string

const (
	StatusAuto      Status = "auto"
	StatusHiatus    Status = "hiatus"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusAuto, StatusHiatus, StatusCancelled:
		return true
	}
	return false
}

// Season is the broadcast season for seasonal media.
type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
)

func (s Season) IsValid() bool {
	switch s {
	case SeasonWinter, SeasonSpring, SeasonSummer, SeasonFall:
		return true
	}
	return false
}

// DatePrecision says how much of a stored date is meaningful.
type DatePrecision string

const (
	PrecisionFull  DatePrecision = "full"
	PrecisionYear  DatePrecision = "year"
	PrecisionMonth DatePrecision = "month"
)

func (p DatePrecision) IsValid() bool {
	switch p {
	case PrecisionFull, PrecisionYear, PrecisionMonth:
		return true
	}
	return false
}

// Media is one catalog entry. All mutations flow through the change-request
// engine; nothing writes these fields directly.
type Media struct {
	ID             int64
	Title          string
	Slug           string
	MediaType      Type
	SubType        SubType
	Status         Status
	IsAdult        bool
	Episodes       *int64
	Duration       *int64
	Volumes        *int64
	Chapters       *int64
	StartDate      *time.Time
	StartPrecision DatePrecision
	EndDate        *time.Time
	EndPrecision   DatePrecision
	SeasonYear     *int64
	Season         Season
	Description    string
	Synopsis       string
	CreatedAt      time.Time
	ModifiedAt     time.Time
}

// AiringStatus derives the display status. A manual status wins; otherwise
// the dates decide between upcoming, ongoing and finished, with wording per
// media type.
func (m *Media) AiringStatus(now time.Time) string {
	switch m.Status {
	case StatusHiatus:
		return "On Hiatus"
	case StatusCancelled:
		return "Cancelled"
	}

	future, present := "Not yet published", "Currently publishing"
	if m.MediaType == TypeAnime {
		future, present = "Not yet aired", "Currently airing"
	}

	switch {
	case m.EndDate != nil && !m.EndDate.After(now):
		return "Finished"
	case m.StartDate == nil || m.StartDate.After(now):
		return future
	default:
		return present
	}
}

// Validate checks enum fields and the slug/title requirements before the
// entry enters the engine.
func (m *Media) Validate() error {
	if m.Title == "" {
		return dErrors.NewValidation("title-required", "title must not be empty")
	}
	if m.Slug == "" {
		return dErrors.NewValidation("slug-required", "slug must not be empty")
	}
	if !m.MediaType.IsValid() {
		return dErrors.NewValidation("invalid-media-type", "unknown media type")
	}
	if !m.SubType.IsValid() {
		return dErrors.NewValidation("invalid-sub-type", "unknown sub type")
	}
	if !m.Status.IsValid() {
		return dErrors.NewValidation("invalid-status", "unknown status")
	}
	if m.Season != "" && !m.Season.IsValid() {
		return dErrors.NewValidation("invalid-season", "unknown season")
	}
	if !m.StartPrecision.IsValid() || !m.EndPrecision.IsValid() {
		return dErrors.NewValidation("invalid-precision", "unknown date precision")
	}
	return nil
}

// Artwork is one cover or promotional image attached to a media entry. The
// binary lives with the external artwork service; this is catalog metadata.
type Artwork struct {
	ID       int64
	MediaID  int64
	Filename string
	Caption  string
	Sort     int64
}
