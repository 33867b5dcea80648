package observe

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
	"joinpounce/internal/app/amqp/pricecheck"
	"joinpounce/internal/pkg/amqpclient"
	"joinpounce/internal/pkg/render"
	"joinpounce/internal/router"
)

type publishFunc func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error

// Handler accepts price observations from retailer collaborators and queues
// them for the price-check worker.
type Handler struct {
	cfg      *config.Config
	channel  *amqp.Channel
	topology amqpclient.Topology
	logger   *zap.SugaredLogger

	publish publishFunc
	now     func() time.Time
}

type NewHandlerParams struct {
	fx.In

	Cfg     *config.Config
	Channel *amqp.Channel `optional:"true"`
	Logger  *zap.SugaredLogger
}

func NewHandler(p NewHandlerParams) *Handler {
	var publish publishFunc
	if p.Channel != nil {
		publish = p.Channel.PublishWithContext
	}

	return &Handler{
		cfg:      p.Cfg,
		channel:  p.Channel,
		topology: amqpclient.NewTopology(p.Cfg.RabbitMQ),
		logger:   p.Logger,
		publish:  publish,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Post("/v1/prices/observed", h.Handle)
}

type observedRequest struct {
	ItemID    string           `json:"item_id" validate:"required"`
	Price     *decimal.Decimal `json:"price" validate:"required"`
	InStock   *bool            `json:"in_stock" validate:"required"`
	CheckedAt *time.Time       `json:"checked_at"`
}

type observedResponse struct {
	OK      bool   `json:"ok"`
	EventID string `json:"event_id"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	var req observedRequest
	if err := render.DecodeJSON(w, r, &req); err != nil {
		render.ChiErr(w, r, http.StatusBadRequest, err.Error())
		return
	}
	itemID := strings.TrimSpace(req.ItemID)
	if itemID == "" {
		render.ChiErr(w, r, http.StatusBadRequest, "item_id is required")
		return
	}
	if req.Price.IsNegative() {
		render.ChiErr(w, r, http.StatusBadRequest, "price must not be negative")
		return
	}

	if strings.TrimSpace(h.cfg.RabbitMQ.URL) == "" || h.publish == nil {
		render.ChiErr(w, r, http.StatusServiceUnavailable, "rabbitmq disabled")
		return
	}

	now := h.now()
	checkedAt := now
	if req.CheckedAt != nil && !req.CheckedAt.IsZero() {
		checkedAt = req.CheckedAt.UTC()
	}
	if checkedAt.After(now.Add(5 * time.Minute)) {
		render.ChiErr(w, r, http.StatusBadRequest, "checked_at is in the future")
		return
	}

	eventID := pricecheck.EventID(itemID, checkedAt)
	env := pricecheck.PriceObservedEnvelope{
		EventName: pricecheck.EventPricesObserved,
		EventID:   eventID,
		TS:        now,
		Data: pricecheck.PriceObservedData{
			ItemID:    itemID,
			Price:     *req.Price,
			InStock:   *req.InStock,
			CheckedAt: checkedAt,
		},
	}
	body, err := json.Marshal(env)
	if err != nil {
		h.logger.Errorw("observe_marshal_failed", "err", err)
		render.ChiErr(w, r, http.StatusInternalServerError, "failed to encode message")
		return
	}

	if h.channel != nil && h.cfg.RabbitMQ.DeclareTopology {
		if err := h.topology.DeclareExchange(h.channel); err != nil {
			h.logger.Errorw("observe_exchange_declare_failed", "exchange", h.topology.Exchange, "err", err)
			render.ChiErr(w, r, http.StatusBadGateway, "rabbitmq exchange declare failed")
			return
		}
	}

	if err := h.publish(r.Context(), h.topology.Exchange, h.topology.RoutingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    now,
		MessageId:    eventID,
		Type:         pricecheck.EventPricesObserved,
		Body:         body,
	}); err != nil {
		h.logger.Errorw("observe_publish_failed",
			"exchange", h.topology.Exchange,
			"routing_key", h.topology.RoutingKey,
			"event_id", eventID,
			"item_id", itemID,
			"err", err,
		)
		render.ChiErr(w, r, http.StatusBadGateway, "failed to publish message")
		return
	}

	h.logger.Infow("observe_published", "event_id", eventID, "item_id", itemID, "price", req.Price, "in_stock", *req.InStock)
	render.ChiJSON(w, r, http.StatusAccepted, observedResponse{OK: true, EventID: eventID})
}

var _ router.Handler = (*Handler)(nil)
