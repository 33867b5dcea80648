package clicks

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"joinpounce/internal/pkg/render"
	"joinpounce/internal/retailer"
	"joinpounce/internal/router"
)

// RedirectHandler resolves tracking links from notifications. It only
// forwards to retailer hosts we know.
type RedirectHandler struct {
	deps
}

func NewRedirectHandler(p HandlerParams) *RedirectHandler {
	return &RedirectHandler{deps: newDeps(p)}
}

func (h *RedirectHandler) RegisterRoute(r *chi.Mux) {
	r.Get("/r", h.Handle)
}

func (h *RedirectHandler) Handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := strings.TrimSpace(q.Get("u"))
	if !h.allowed(target) {
		h.logger.Warnw("redirect_rejected", "target", target)
		render.ChiErr(w, r, http.StatusBadRequest, "invalid redirect target")
		return
	}

	h.markOpened(r.Context(), strings.TrimSpace(q.Get("n")))
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *RedirectHandler) allowed(target string) bool {
	if target == "" {
		return false
	}
	u, err := url.Parse(target)
	if err != nil || u.User != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return false
	}
	return h.normalizer.DetectRetailer(target) != retailer.None
}

var _ router.Handler = (*RedirectHandler)(nil)
