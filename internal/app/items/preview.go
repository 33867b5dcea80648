package items

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"joinpounce/internal/normalizer"
	"joinpounce/internal/pkg/render"
	"joinpounce/internal/pkg/webpage"
	"joinpounce/internal/router"
)

// PreviewHandler shows what tracking a URL would store, without storing it.
type PreviewHandler struct {
	deps
}

func NewPreviewHandler(p HandlerParams) *PreviewHandler {
	return &PreviewHandler{deps: newDeps(p)}
}

func (h *PreviewHandler) RegisterRoute(r *chi.Mux) {
	r.Post("/api/items/preview", h.Handle)
}

type previewRequest struct {
	URL string `json:"url" validate:"required"`
}

type previewResponse struct {
	normalizer.NormalizedURL
	Product *webpage.Meta `json:"product,omitempty"`
}

func (h *PreviewHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := render.DecodeJSON(w, r, &req); err != nil {
		render.ChiErr(w, r, http.StatusBadRequest, err.Error())
		return
	}

	n, err := h.normalize(r.Context(), req.URL)
	if errors.Is(err, normalizer.ErrInvalidURL) {
		render.ChiErr(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Errorw("item_preview_failed", "url", req.URL, "err", err)
		render.ChiErr(w, r, http.StatusInternalServerError, "failed to normalize url")
		return
	}

	resp := previewResponse{NormalizedURL: n}
	if n.IsSupported {
		resp.Product = h.meta(r.Context(), n.Canonical)
	}
	render.ChiJSON(w, r, http.StatusOK, resp)
}

var _ router.Handler = (*PreviewHandler)(nil)
