package items

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"joinpounce/internal/app/dao"
	"joinpounce/internal/app/inngest/deadlink"
	pkginngest "joinpounce/internal/pkg/inngest"
	"joinpounce/internal/pkg/render"
	"joinpounce/internal/router"
)

// DeadHandler lets a user report a link that no longer works. The dead-link
// function does the archiving.
type DeadHandler struct {
	deps
}

func NewDeadHandler(p HandlerParams) *DeadHandler {
	return &DeadHandler{deps: newDeps(p)}
}

func (h *DeadHandler) RegisterRoute(r *chi.Mux) {
	r.Post("/api/items/{id}/dead", h.Handle)
}

type deadResponse struct {
	OK      bool   `json:"ok"`
	EventID string `json:"event_id"`
}

func (h *DeadHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	it, err := h.store.GetItem(r.Context(), id)
	if errors.Is(err, dao.ErrNotFound) {
		render.ChiErr(w, r, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		h.logger.Errorw("item_get_failed", "id", id, "err", err)
		render.ChiErr(w, r, http.StatusInternalServerError, "failed to load item")
		return
	}
	if it.IsDead {
		render.ChiJSON(w, r, http.StatusOK, deadResponse{OK: true, EventID: deadlink.EventID(it.ID)})
		return
	}

	evt := deadlink.NewDeadDetectedEvent(deadlink.DeadDetectedEventData{
		ItemID:   it.ID,
		Reason:   deadlink.ReasonReported,
		FinalURL: it.CanonicalURL,
		Source:   deadlink.SourceManual,
	}, h.now())
	if _, err := h.events.Send(r.Context(), evt); err != nil {
		if errors.Is(err, pkginngest.ErrDisabled) {
			render.ChiErr(w, r, http.StatusServiceUnavailable, "inngest disabled")
			return
		}
		h.logger.Errorw("dead_link_event_send_failed", "item_id", it.ID, "err", err)
		render.ChiErr(w, r, http.StatusBadGateway, "failed to send event")
		return
	}

	h.logger.Infow("dead_link_reported", "item_id", it.ID, "user_id", it.UserID)
	render.ChiJSON(w, r, http.StatusAccepted, deadResponse{OK: true, EventID: *evt.ID})
}

var _ router.Handler = (*DeadHandler)(nil)
