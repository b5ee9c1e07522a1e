package media

import (
	"context"

	dErrors "otakudb/pkg/domain-errors"
)

// ListFilter narrows catalog listings. Zero values mean "no constraint";
// Limit 0 falls back to the store default.
type ListFilter struct {
	Type   Type
	Adult  *bool
	Search string
	Limit  int
	Offset int
}

const defaultListLimit = 50

// Store persists media rows and their artwork. The engine's handlers are the
// only writers; read paths go straight through. Slug uniqueness is scoped
// per media type. Implementations honor a transaction carried in context.
type Store interface {
	Create(ctx context.Context, m *Media) error
	GetByID(ctx context.Context, id int64) (*Media, error)
	GetBySlug(ctx context.Context, mediaType Type, slug string) (*Media, error)
	Update(ctx context.Context, m *Media) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter ListFilter) ([]*Media, error)

	GetArtwork(ctx context.Context, id int64) (*Artwork, error)
	ListArtwork(ctx context.Context, mediaID int64) ([]*Artwork, error)
	CreateArtwork(ctx context.Context, a *Artwork) error
	UpdateArtwork(ctx context.Context, a *Artwork) error
	DeleteArtwork(ctx context.Context, id int64) error
}

func errMediaNotFound(id int64) error {
	return dErrors.Newf(dErrors.CodeNotFound, "media %d not found", id)
}

func errSlugTaken(mediaType Type, slug string) error {
	return dErrors.NewValidation("slug-taken",
		"a "+string(mediaType)+" entry with slug "+slug+" already exists")
}
