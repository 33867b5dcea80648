package clicks

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"joinpounce/internal/pkg/render"
	"joinpounce/internal/router"
)

// ClickHandler records an in-app "buy now" tap, which opens the
// notification it came from.
type ClickHandler struct {
	deps
}

func NewClickHandler(p HandlerParams) *ClickHandler {
	return &ClickHandler{deps: newDeps(p)}
}

func (h *ClickHandler) RegisterRoute(r *chi.Mux) {
	r.Post("/api/affiliate/click", h.Handle)
}

type clickRequest struct {
	NotificationID string `json:"notification_id"`
	ItemID         string `json:"item_id" validate:"required"`
	Retailer       string `json:"retailer" validate:"required,oneof=amazon target walmart bestbuy wayfair"`
}

func (h *ClickHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if err := render.DecodeJSON(w, r, &req); err != nil {
		render.ChiErr(w, r, http.StatusBadRequest, err.Error())
		return
	}

	h.markOpened(r.Context(), strings.TrimSpace(req.NotificationID))
	h.logger.Infow("affiliate_click", "notification_id", req.NotificationID, "item_id", req.ItemID, "retailer", req.Retailer)
	render.ChiJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

var _ router.Handler = (*ClickHandler)(nil)
