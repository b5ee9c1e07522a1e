package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"otakudb/internal/history"
	dErrors "otakudb/pkg/domain-errors"
)

// HistoryHandler exposes the ledger: browsing, diffs and moderation actions.
type HistoryHandler struct {
	ledger    *history.Ledger
	moderator *history.Moderator
	logger    *slog.Logger
}

func NewHistoryHandler(ledger *history.Ledger, moderator *history.Moderator, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{ledger: ledger, moderator: moderator, logger: logger}
}

// Routes mounts the ledger endpoints. Everything requires authentication;
// per-action authorization happens in the domain layer.
func (h *HistoryHandler) Routes(requireAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(requireAuth)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/diff", h.diff)
	r.Post("/{id}/action", h.action)
	return r
}

type changeRequestView struct {
	ID            string             `json:"id"`
	ObjectType    string             `json:"object_type"`
	ObjectID      *int64             `json:"object_id"`
	ObjectLabel   string             `json:"object_label"`
	RelatedType   string             `json:"related_type,omitempty"`
	Kind          history.Kind       `json:"kind"`
	Status        history.Status     `json:"status"`
	Before        history.Snapshot   `json:"before,omitempty"`
	After         history.Snapshot   `json:"after,omitempty"`
	BeforeRelated []history.Snapshot `json:"before_related,omitempty"`
	AfterRelated  []history.Snapshot `json:"after_related,omitempty"`
	Comment       string             `json:"comment"`
	RequesterName string             `json:"requester_name"`
	RequestedAt   time.Time          `json:"requested_at"`
	ModeratorName string             `json:"moderator_name,omitempty"`
	ModeratedAt   *time.Time         `json:"moderated_at,omitempty"`
}

func toChangeRequestView(cr *history.ChangeRequest) changeRequestView {
	return changeRequestView{
		ID:            cr.ID.String(),
		ObjectType:    cr.ObjectType,
		ObjectID:      cr.ObjectID,
		ObjectLabel:   cr.ObjectLabel,
		RelatedType:   cr.RelatedType,
		Kind:          cr.Kind,
		Status:        cr.Status,
		Before:        cr.Before,
		After:         cr.After,
		BeforeRelated: cr.BeforeChildren,
		AfterRelated:  cr.AfterChildren,
		Comment:       cr.Comment,
		RequesterName: cr.RequesterName,
		RequestedAt:   cr.RequestedAt,
		ModeratorName: cr.ModeratorName,
		ModeratedAt:   cr.ModeratedAt,
	}
}

func (h *HistoryHandler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if objectType := query.Get("object_type"); objectType != "" {
		objectID, err := strconv.ParseInt(query.Get("object_id"), 10, 64)
		if err != nil {
			writeError(w, h.logger, dErrors.New(dErrors.CodeBadRequest, "object_id must accompany object_type"))
			return
		}
		entries, err := h.ledger.Store().ListByObject(r.Context(), objectType, objectID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		h.writeEntries(w, entries)
		return
	}

	limit := 50
	if v := query.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := h.ledger.Store().ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeEntries(w, entries)
}

func (h *HistoryHandler) writeEntries(w http.ResponseWriter, entries []*history.ChangeRequest) {
	views := make([]changeRequestView, 0, len(entries))
	for _, cr := range entries {
		views = append(views, toChangeRequestView(cr))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

func (h *HistoryHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	cr, err := h.ledger.Store().Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toChangeRequestView(cr))
}

func (h *HistoryHandler) diff(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	cr, err := h.ledger.Store().Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if cr.Kind == history.KindRelated {
		diff, err := h.ledger.DiffRelated(cr)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, diff)
		return
	}

	diff, err := h.ledger.Diff(cr)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": diff})
}

type actionRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

func (h *HistoryHandler) action(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req actionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var cr *history.ChangeRequest
	switch req.Action {
	case "approve":
		cr, err = h.moderator.Approve(r.Context(), id, req.Comment)
	case "deny":
		cr, err = h.moderator.Deny(r.Context(), id, req.Comment)
	case "withdraw":
		cr, err = h.moderator.Withdraw(r.Context(), id, req.Comment)
	case "revert":
		cr, err = h.moderator.Revert(r.Context(), id, req.Comment)
	default:
		err = dErrors.Newf(dErrors.CodeBadRequest, "unknown action %q", req.Action)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toChangeRequestView(cr))
}

func pathUUID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid change request id in path")
	}
	return id, nil
}
