package items

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"joinpounce/internal/app/dao"
	"joinpounce/internal/normalizer"
	"joinpounce/internal/pkg/render"
	"joinpounce/internal/router"
)

type CreateHandler struct {
	deps
}

func NewCreateHandler(p HandlerParams) *CreateHandler {
	return &CreateHandler{deps: newDeps(p)}
}

func (h *CreateHandler) RegisterRoute(r *chi.Mux) {
	r.Post("/api/items", h.Handle)
}

type createRequest struct {
	ListID           string           `json:"list_id" validate:"required"`
	UserID           string           `json:"user_id" validate:"required"`
	URL              string           `json:"url" validate:"required"`
	ProductName      string           `json:"product_name" validate:"max=512"`
	CurrentPrice     *decimal.Decimal `json:"current_price"`
	TargetPrice      *decimal.Decimal `json:"target_price"`
	ThresholdPercent *decimal.Decimal `json:"alert_threshold_percent"`
	ThresholdAmount  *decimal.Decimal `json:"alert_threshold_amount"`
	IsPrivate        bool             `json:"is_private"`
}

func nullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func (h *CreateHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := render.DecodeJSON(w, r, &req); err != nil {
		render.ChiErr(w, r, http.StatusBadRequest, err.Error())
		return
	}
	for name, v := range map[string]*decimal.Decimal{
		"current_price":           req.CurrentPrice,
		"target_price":            req.TargetPrice,
		"alert_threshold_percent": req.ThresholdPercent,
		"alert_threshold_amount":  req.ThresholdAmount,
	} {
		if v != nil && v.IsNegative() {
			render.ChiErr(w, r, http.StatusBadRequest, name+" must not be negative")
			return
		}
	}

	n, err := h.normalize(r.Context(), req.URL)
	if errors.Is(err, normalizer.ErrInvalidURL) {
		render.ChiErr(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Errorw("item_normalize_failed", "url", req.URL, "err", err)
		render.ChiErr(w, r, http.StatusInternalServerError, "failed to normalize url")
		return
	}
	if !n.IsSupported {
		render.ChiErr(w, r, http.StatusUnprocessableEntity, "unsupported retailer")
		return
	}

	in := dao.CreateItemInput{
		ListID:           strings.TrimSpace(req.ListID),
		UserID:           strings.TrimSpace(req.UserID),
		URL:              n.Original,
		CanonicalURL:     n.Canonical,
		Retailer:         n.Retailer,
		ProductName:      req.ProductName,
		VariantParams:    n.VariantParams,
		CurrentPrice:     nullable(req.CurrentPrice),
		TargetPrice:      nullable(req.TargetPrice),
		ThresholdPercent: nullable(req.ThresholdPercent),
		ThresholdAmount:  nullable(req.ThresholdAmount),
		IsPrivate:        req.IsPrivate,
	}
	if m := h.meta(r.Context(), n.Canonical); m != nil {
		if in.ProductName == "" {
			in.ProductName = m.Title
		}
		in.ProductImage = m.Image
		if !in.CurrentPrice.Valid && m.Price != nil {
			in.CurrentPrice = decimal.NewNullDecimal(*m.Price)
		}
	}

	it, err := h.store.CreateItem(r.Context(), in)
	if err != nil {
		h.logger.Errorw("item_create_failed", "user_id", in.UserID, "canonical_url", in.CanonicalURL, "err", err)
		render.ChiErr(w, r, http.StatusInternalServerError, "failed to create item")
		return
	}
	render.ChiJSON(w, r, http.StatusCreated, it)
}

var _ router.Handler = (*CreateHandler)(nil)
