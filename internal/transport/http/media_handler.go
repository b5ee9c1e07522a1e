package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"otakudb/internal/history"
	"otakudb/internal/media"
	dErrors "otakudb/pkg/domain-errors"
)

// MediaHandler serves the catalog. Mutations answer with the change-request
// outcome; reads return plain entity views.
type MediaHandler struct {
	svc    *media.Service
	logger *slog.Logger
}

func NewMediaHandler(svc *media.Service, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{svc: svc, logger: logger}
}

// Routes mounts the media endpoints. Reads are public; mutations sit behind
// the auth middleware.
func (h *MediaHandler) Routes(requireAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Put("/{id}/artwork", h.replaceArtwork)
	})
	return r
}

type mediaMutationRequest struct {
	media.Input
	Comment string `json:"comment"`
}

type artworkMutationRequest struct {
	Items   []media.ArtworkInput `json:"items"`
	Comment string               `json:"comment"`
}

type resultResponse struct {
	ChangeRequestID string           `json:"change_request_id,omitempty"`
	Status          string           `json:"status,omitempty"`
	Recorded        bool             `json:"recorded"`
	Committed       bool             `json:"committed"`
	ObjectID        int64            `json:"object_id,omitempty"`
	Notices         []history.Notice `json:"notices,omitempty"`
}

func toResultResponse(result *history.Result) resultResponse {
	resp := resultResponse{
		Recorded:  result.Recorded,
		Committed: result.Committed,
		ObjectID:  result.ObjectID,
		Notices:   result.Notices,
	}
	// A suppressed no-op has no ledger row, so there is no id to follow.
	if result.Recorded {
		resp.ChangeRequestID = result.Request.ID.String()
		resp.Status = string(result.Request.Status)
	}
	return resp
}

func (h *MediaHandler) create(w http.ResponseWriter, r *http.Request) {
	var req mediaMutationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.svc.Create(r.Context(), req.Input, req.Comment)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	status := http.StatusAccepted
	if result.Committed {
		status = http.StatusCreated
	}
	writeJSON(w, status, toResultResponse(result))
}

func (h *MediaHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req mediaMutationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.svc.Update(r.Context(), id, req.Input, req.Comment)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, mutationStatus(result), toResultResponse(result))
}

func (h *MediaHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req struct {
		Comment string `json:"comment"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	result, err := h.svc.Delete(r.Context(), id, req.Comment)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, mutationStatus(result), toResultResponse(result))
}

func (h *MediaHandler) replaceArtwork(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req artworkMutationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.svc.ReplaceArtwork(r.Context(), id, req.Items, req.Comment)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, mutationStatus(result), toResultResponse(result))
}

func mutationStatus(result *history.Result) int {
	// Only a recorded-but-uncommitted change is actually awaiting moderation.
	if !result.Committed && result.Recorded {
		return http.StatusAccepted
	}
	return http.StatusOK
}

type mediaView struct {
	ID           int64                `json:"id"`
	Title        string               `json:"title"`
	Slug         string               `json:"slug"`
	MediaType    media.Type           `json:"media_type"`
	SubType      media.SubType        `json:"sub_type"`
	Status       media.Status         `json:"status"`
	AiringStatus string               `json:"airing_status"`
	IsAdult      bool                 `json:"is_adult"`
	Episodes     *int64               `json:"episodes"`
	Duration     *int64               `json:"duration"`
	Volumes      *int64               `json:"volumes"`
	Chapters     *int64               `json:"chapters"`
	StartDate    *string              `json:"start_date"`
	EndDate      *string              `json:"end_date"`
	SeasonYear   *int64               `json:"season_year"`
	Season       media.Season         `json:"season,omitempty"`
	Description  string               `json:"description"`
	Synopsis     string               `json:"synopsis"`
	Artwork      []artworkView        `json:"artwork,omitempty"`
}

type artworkView struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
	Sort     int64  `json:"sort"`
}

func toMediaView(m *media.Media, artwork []*media.Artwork, now time.Time) mediaView {
	view := mediaView{
		ID:           m.ID,
		Title:        m.Title,
		Slug:         m.Slug,
		MediaType:    m.MediaType,
		SubType:      m.SubType,
		Status:       m.Status,
		AiringStatus: m.AiringStatus(now),
		IsAdult:      m.IsAdult,
		Episodes:     m.Episodes,
		Duration:     m.Duration,
		Volumes:      m.Volumes,
		Chapters:     m.Chapters,
		SeasonYear:   m.SeasonYear,
		Season:       m.Season,
		Description:  m.Description,
		Synopsis:     m.Synopsis,
		StartDate:    formatDate(m.StartDate),
		EndDate:      formatDate(m.EndDate),
	}
	for _, a := range artwork {
		view.Artwork = append(view.Artwork, artworkView{
			ID: a.ID, Filename: a.Filename, Caption: a.Caption, Sort: a.Sort,
		})
	}
	return view
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func (h *MediaHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	artwork, err := h.svc.ListArtwork(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toMediaView(m, artwork, time.Now()))
}

func (h *MediaHandler) list(w http.ResponseWriter, r *http.Request) {
	filter := media.ListFilter{
		Type:   media.Type(r.URL.Query().Get("type")),
		Search: r.URL.Query().Get("q"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("adult"); v != "" {
		adult := v == "true"
		filter.Adult = &adult
	}

	entries, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	now := time.Now()
	views := make([]mediaView, 0, len(entries))
	for _, m := range entries {
		views = append(views, toMediaView(m, nil, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid id in path")
	}
	return id, nil
}
