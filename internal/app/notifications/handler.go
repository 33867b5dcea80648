package notifications

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/internal/app/dao"
	"joinpounce/internal/pkg/render"
	"joinpounce/internal/router"
)

type Store interface {
	GetNotification(ctx context.Context, id string) (dao.Notification, error)
	MarkNotificationOpened(ctx context.Context, id string, at time.Time) (bool, error)
	MarkNotificationConverted(ctx context.Context, id string, at time.Time, amount decimal.NullDecimal) error
}

type HandlerParams struct {
	fx.In

	Store  *dao.Store
	Logger *zap.SugaredLogger
}

type deps struct {
	store  Store
	logger *zap.SugaredLogger
	now    func() time.Time
}

func newDeps(p HandlerParams) deps {
	return deps{store: p.Store, logger: p.Logger, now: func() time.Time { return time.Now().UTC() }}
}

// respond writes the stored notification, or maps a store error.
func (d deps) respond(w http.ResponseWriter, r *http.Request, id string, err error) {
	if errors.Is(err, dao.ErrNotFound) {
		render.ChiErr(w, r, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		d.logger.Errorw("notification_update_failed", "id", id, "err", err)
		render.ChiErr(w, r, http.StatusInternalServerError, "failed to update notification")
		return
	}
	n, err := d.store.GetNotification(r.Context(), id)
	if err != nil {
		d.respond(w, r, id, err)
		return
	}
	render.ChiJSON(w, r, http.StatusOK, n)
}

type GetHandler struct{ deps }

func NewGetHandler(p HandlerParams) *GetHandler { return &GetHandler{deps: newDeps(p)} }

func (h *GetHandler) RegisterRoute(r *chi.Mux) {
	r.Get("/api/notifications/{id}", h.Handle)
}

func (h *GetHandler) Handle(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, chi.URLParam(r, "id"), nil)
}

type OpenedHandler struct{ deps }

func NewOpenedHandler(p HandlerParams) *OpenedHandler { return &OpenedHandler{deps: newDeps(p)} }

func (h *OpenedHandler) RegisterRoute(r *chi.Mux) {
	r.Post("/api/notifications/{id}/opened", h.Handle)
}

func (h *OpenedHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	first, err := h.store.MarkNotificationOpened(r.Context(), id, h.now())
	if err == nil && first {
		h.logger.Infow("notification_opened", "notification_id", id)
	}
	h.respond(w, r, id, err)
}

type ConvertedHandler struct{ deps }

func NewConvertedHandler(p HandlerParams) *ConvertedHandler {
	return &ConvertedHandler{deps: newDeps(p)}
}

func (h *ConvertedHandler) RegisterRoute(r *chi.Mux) {
	r.Post("/api/notifications/{id}/converted", h.Handle)
}

type convertedRequest struct {
	PurchaseAmount *decimal.Decimal `json:"purchase_amount"`
}

func (h *ConvertedHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req convertedRequest
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(w, r, &req); err != nil {
			render.ChiErr(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	amount := decimal.NullDecimal{}
	if req.PurchaseAmount != nil {
		if req.PurchaseAmount.IsNegative() {
			render.ChiErr(w, r, http.StatusBadRequest, "purchase_amount must not be negative")
			return
		}
		amount = decimal.NewNullDecimal(*req.PurchaseAmount)
	}

	err := h.store.MarkNotificationConverted(r.Context(), id, h.now(), amount)
	if err == nil {
		h.logger.Infow("notification_converted", "notification_id", id, "purchase_amount", amount)
	}
	h.respond(w, r, id, err)
}

var (
	_ router.Handler = (*GetHandler)(nil)
	_ router.Handler = (*OpenedHandler)(nil)
	_ router.Handler = (*ConvertedHandler)(nil)
)
