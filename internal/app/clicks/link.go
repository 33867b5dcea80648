package clicks

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"joinpounce/internal/affiliate"
	"joinpounce/internal/pkg/render"
	"joinpounce/internal/retailer"
	"joinpounce/internal/router"
)

// LinkHandler tags a canonical URL with our affiliate id.
type LinkHandler struct {
	deps
}

func NewLinkHandler(p HandlerParams) *LinkHandler {
	return &LinkHandler{deps: newDeps(p)}
}

func (h *LinkHandler) RegisterRoute(r *chi.Mux) {
	r.Get("/api/affiliate/link", h.Handle)
}

type linkResponse struct {
	AffiliateURL string           `json:"affiliate_url"`
	Status       affiliate.Status `json:"status"`
}

func (h *LinkHandler) Handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawURL := strings.TrimSpace(q.Get("url"))
	if rawURL == "" {
		render.ChiErr(w, r, http.StatusBadRequest, "url is required")
		return
	}

	ret := h.normalizer.DetectRetailer(rawURL)
	if name := strings.TrimSpace(q.Get("retailer")); name != "" {
		parsed, err := retailer.Parse(name)
		if err != nil {
			render.ChiErr(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ret = parsed
	}

	res := h.injector.Inject(rawURL, ret)
	switch res.Status {
	case affiliate.StatusMalformedURL:
		render.ChiErr(w, r, http.StatusBadRequest, "malformed url")
		return
	case affiliate.StatusNoTag:
		h.logger.Warnw("affiliate_tag_missing", "retailer", ret)
	}
	render.ChiJSON(w, r, http.StatusOK, linkResponse{AffiliateURL: res.URL, Status: res.Status})
}

var _ router.Handler = (*LinkHandler)(nil)
