package media

import (
	"context"
	"time"

	"otakudb/internal/history"
	dErrors "otakudb/pkg/domain-errors"
)

// Type tags under which media and its artwork collection are registered.
const (
	TypeTag        = "media"
	ArtworkTypeTag = "media-artwork"
)

const dateLayout = "2006-01-02"

func (m *Media) TypeTag() string     { return TypeTag }
func (m *Media) EntityID() int64     { return m.ID }
func (m *Media) EntityLabel() string { return m.Title }

// Snapshot captures the moderatable field state. Values are limited to
// strings, int64, bool and nil so a jsonb round trip preserves comparability;
// dates are rendered as ISO strings.
func (m *Media) Snapshot() history.Snapshot {
	return history.Snapshot{
		"title":           m.Title,
		"slug":            m.Slug,
		"media_type":      string(m.MediaType),
		"sub_type":        string(m.SubType),
		"status":          string(m.Status),
		"is_adult":        m.IsAdult,
		"episodes":        int64Value(m.Episodes),
		"duration":        int64Value(m.Duration),
		"volumes":         int64Value(m.Volumes),
		"chapters":        int64Value(m.Chapters),
		"start_date":      dateString(m.StartDate),
		"start_precision": string(m.StartPrecision),
		"end_date":        dateString(m.EndDate),
		"end_precision":   string(m.EndPrecision),
		"season_year":     int64Value(m.SeasonYear),
		"season":          seasonValue(m.Season),
		"description":     m.Description,
		"synopsis":        m.Synopsis,
	}
}

func (a *Artwork) snapshot() history.Snapshot {
	return history.Snapshot{
		"id":       a.ID,
		"filename": a.Filename,
		"caption":  a.Caption,
		"sort":     a.Sort,
	}
}

// Register installs the media descriptors into the engine registry. Title,
// slug, type fields and the adult flag require moderation when changed.
func Register(r *history.Registry, store Store) error {
	if err := r.Register(&history.Descriptor{
		TypeTag: TypeTag,
		Label:   "media",
		Fields: []history.FieldDescriptor{
			{Name: "title", Label: "Title", Moderated: true},
			{Name: "slug", Label: "Slug", Moderated: true},
			{Name: "media_type", Label: "Type", Moderated: true},
			{Name: "sub_type", Label: "Sub Type", Moderated: true},
			{Name: "status", Label: "Status"},
			{Name: "is_adult", Label: "R-18", Moderated: true},
			{Name: "episodes", Label: "Episodes"},
			{Name: "duration", Label: "Duration"},
			{Name: "volumes", Label: "Volumes"},
			{Name: "chapters", Label: "Chapters"},
			{Name: "start_date", Label: "Start Date"},
			{Name: "start_precision", Label: "Start Precision"},
			{Name: "end_date", Label: "End Date"},
			{Name: "end_precision", Label: "End Precision"},
			{Name: "season_year", Label: "Season Year"},
			{Name: "season", Label: "Season"},
			{Name: "description", Label: "Description"},
			{Name: "synopsis", Label: "Synopsis"},
		},
		Handler:        &entityHandler{store: store},
		RelatedHandler: &artworkHandler{store: store},
	}); err != nil {
		return err
	}

	return r.Register(&history.Descriptor{
		TypeTag: ArtworkTypeTag,
		Label:   "artwork",
		Fields: []history.FieldDescriptor{
			{Name: "filename", Label: "Filename"},
			{Name: "caption", Label: "Caption"},
			{Name: "sort", Label: "Sort"},
		},
		Handler: &artworkEntityHandler{store: store},
	})
}

// entityHandler adapts the media store to the engine's commit interface.
type entityHandler struct {
	store Store
}

func (h *entityHandler) RevertSnapshot(ctx context.Context, id int64) (history.Snapshot, error) {
	m, err := h.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.Snapshot(), nil
}

func (h *entityHandler) Apply(ctx context.Context, id int64, after history.Snapshot) (int64, error) {
	if id == 0 {
		m := newMedia()
		if err := applyFields(m, after); err != nil {
			return 0, err
		}
		if err := m.Validate(); err != nil {
			return 0, err
		}
		if err := h.store.Create(ctx, m); err != nil {
			return 0, err
		}
		return m.ID, nil
	}

	m, err := h.store.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := applyFields(m, after); err != nil {
		return 0, err
	}
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if err := h.store.Update(ctx, m); err != nil {
		return 0, err
	}
	return id, nil
}

func (h *entityHandler) Delete(ctx context.Context, id int64) error {
	return h.store.Delete(ctx, id)
}

func (h *entityHandler) Label(after history.Snapshot) string {
	title, _ := stringField(after, "title")
	return title
}

// artworkHandler edits the artwork collection as a group, matching rows by
// id. Rows absent from the proposed state are removed.
type artworkHandler struct {
	store Store
}

func (h *artworkHandler) ChildrenSnapshot(ctx context.Context, parentID int64) ([]history.Snapshot, error) {
	rows, err := h.store.ListArtwork(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return artworkSnapshots(rows), nil
}

func (h *artworkHandler) ApplyChildren(ctx context.Context, parentID int64, after []history.Snapshot) ([]history.Snapshot, error) {
	existing, err := h.store.ListArtwork(ctx, parentID)
	if err != nil {
		return nil, err
	}
	existingByID := make(map[int64]*Artwork, len(existing))
	for _, row := range existing {
		existingByID[row.ID] = row
	}

	keep := make(map[int64]bool, len(after))
	for _, snap := range after {
		proposed, err := artworkFromSnapshot(parentID, snap)
		if err != nil {
			return nil, err
		}
		if proposed.ID == 0 {
			if err := h.store.CreateArtwork(ctx, proposed); err != nil {
				return nil, err
			}
			keep[proposed.ID] = true
			continue
		}
		if _, ok := existingByID[proposed.ID]; !ok {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput,
				"artwork %d does not belong to media %d", proposed.ID, parentID)
		}
		if err := h.store.UpdateArtwork(ctx, proposed); err != nil {
			return nil, err
		}
		keep[proposed.ID] = true
	}

	for _, row := range existing {
		if !keep[row.ID] {
			if err := h.store.DeleteArtwork(ctx, row.ID); err != nil {
				return nil, err
			}
		}
	}

	refreshed, err := h.store.ListArtwork(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return artworkSnapshots(refreshed), nil
}

// artworkEntityHandler exists so the artwork type resolves in the registry;
// artwork rows are only ever edited through the parent's collection.
type artworkEntityHandler struct {
	store Store
}

func (h *artworkEntityHandler) RevertSnapshot(ctx context.Context, id int64) (history.Snapshot, error) {
	row, err := h.store.GetArtwork(ctx, id)
	if err != nil {
		return nil, err
	}
	return row.snapshot(), nil
}

func (h *artworkEntityHandler) Apply(ctx context.Context, id int64, after history.Snapshot) (int64, error) {
	return 0, dErrors.New(dErrors.CodeInvalidInput, "artwork is edited through its media entry")
}

func (h *artworkEntityHandler) Delete(ctx context.Context, id int64) error {
	return h.store.DeleteArtwork(ctx, id)
}

func (h *artworkEntityHandler) Label(after history.Snapshot) string {
	filename, _ := stringField(after, "filename")
	return filename
}

func artworkSnapshots(rows []*Artwork) []history.Snapshot {
	snaps := make([]history.Snapshot, len(rows))
	for i, row := range rows {
		snaps[i] = row.snapshot()
	}
	return snaps
}

func artworkFromSnapshot(mediaID int64, snap history.Snapshot) (*Artwork, error) {
	row := &Artwork{MediaID: mediaID}
	if v, ok := intField(snap, "id"); ok && v != nil {
		row.ID = *v
	}
	filename, ok := stringField(snap, "filename")
	if !ok || filename == "" {
		return nil, dErrors.NewValidation("filename-required", "artwork filename must not be empty")
	}
	row.Filename = filename
	row.Caption, _ = stringField(snap, "caption")
	if v, ok := intField(snap, "sort"); ok && v != nil {
		row.Sort = *v
	}
	return row, nil
}

// newMedia starts from the field defaults a blank entry carries.
func newMedia() *Media {
	return &Media{
		MediaType:      TypeAnime,
		SubType:        SubTypeUnknown,
		Status:         StatusAuto,
		StartPrecision: PrecisionFull,
		EndPrecision:   PrecisionFull,
	}
}

// applyFields copies the snapshot's fields onto the entity. Partial
// snapshots (narrowed Modify entries) only touch the fields they carry.
// Values may arrive JSON-decoded, so numbers are coerced from float64.
func applyFields(m *Media, snap history.Snapshot) error {
	for name := range snap {
		if err := applyField(m, snap, name); err != nil {
			return err
		}
	}
	return nil
}

func applyField(m *Media, snap history.Snapshot, name string) error {
	switch name {
	case "title":
		m.Title, _ = stringField(snap, name)
	case "slug":
		m.Slug, _ = stringField(snap, name)
	case "media_type":
		v, _ := stringField(snap, name)
		m.MediaType = Type(v)
	case "sub_type":
		v, _ := stringField(snap, name)
		m.SubType = SubType(v)
	case "status":
		v, _ := stringField(snap, name)
		m.Status = Status(v)
	case "is_adult":
		v, ok := snap[name].(bool)
		if !ok {
			return dErrors.NewValidation("invalid-field", "is_adult must be a boolean")
		}
		m.IsAdult = v
	case "episodes":
		m.Episodes = mustIntField(snap, name)
	case "duration":
		m.Duration = mustIntField(snap, name)
	case "volumes":
		m.Volumes = mustIntField(snap, name)
	case "chapters":
		m.Chapters = mustIntField(snap, name)
	case "season_year":
		m.SeasonYear = mustIntField(snap, name)
	case "season":
		v, _ := stringField(snap, name)
		m.Season = Season(v)
	case "start_date":
		d, err := dateField(snap, name)
		if err != nil {
			return err
		}
		m.StartDate = d
	case "end_date":
		d, err := dateField(snap, name)
		if err != nil {
			return err
		}
		m.EndDate = d
	case "start_precision":
		v, _ := stringField(snap, name)
		m.StartPrecision = DatePrecision(v)
	case "end_precision":
		v, _ := stringField(snap, name)
		m.EndPrecision = DatePrecision(v)
	case "description":
		m.Description, _ = stringField(snap, name)
	case "synopsis":
		m.Synopsis, _ = stringField(snap, name)
	}
	return nil
}

func int64Value(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func dateString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func seasonValue(s Season) any {
	if s == "" {
		return nil
	}
	return string(s)
}

func stringField(snap history.Snapshot, name string) (string, bool) {
	v, ok := snap[name].(string)
	return v, ok
}

func intField(snap history.Snapshot, name string) (*int64, bool) {
	v, ok := snap[name]
	if !ok {
		return nil, false
	}
	switch n := v.(type) {
	case nil:
		return nil, true
	case int64:
		return &n, true
	case int:
		i := int64(n)
		return &i, true
	case float64:
		i := int64(n)
		return &i, true
	}
	return nil, false
}

func mustIntField(snap history.Snapshot, name string) *int64 {
	v, _ := intField(snap, name)
	return v
}

func dateField(snap history.Snapshot, name string) (*time.Time, error) {
	v, ok := snap[name]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s must be a date string", name)
	}
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s is not a valid date: %v", name, err)
	}
	return &t, nil
}
