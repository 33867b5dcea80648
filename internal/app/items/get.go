package items

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"joinpounce/internal/app/dao"
	"joinpounce/internal/pkg/render"
	"joinpounce/internal/pricing"
	"joinpounce/internal/router"
)

type GetHandler struct {
	deps
}

func NewGetHandler(p HandlerParams) *GetHandler {
	return &GetHandler{deps: newDeps(p)}
}

func (h *GetHandler) RegisterRoute(r *chi.Mux) {
	r.Get("/api/items/{id}", h.Handle)
}

type getResponse struct {
	Item    dao.Item              `json:"item"`
	History []pricing.Observation `json:"price_history"`
}

func (h *GetHandler) Handle(w http.ResponseWriter, r *http.Request) {
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

	hist, err := h.store.PriceHistory(r.Context(), id, time.Time{})
	if err != nil {
		h.logger.Errorw("item_history_failed", "id", id, "err", err)
		render.ChiErr(w, r, http.StatusInternalServerError, "failed to load price history")
		return
	}
	if hist == nil {
		hist = pricing.History{}
	}
	render.ChiJSON(w, r, http.StatusOK, getResponse{Item: it, History: hist})
}

var _ router.Handler = (*GetHandler)(nil)
