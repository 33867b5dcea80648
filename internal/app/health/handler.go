package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/db"
	"joinpounce/internal/pkg/render"
)

const (
	stateUp       = "up"
	stateDown     = "down"
	stateDisabled = "disabled"
)

type checkFunc func(ctx context.Context) error

type Handler struct {
	backend  db.Backend
	database checkFunc
	redis    checkFunc
	rabbit   func() bool
	logger   *zap.SugaredLogger
}

type NewHandlerParams struct {
	fx.In

	DB      *sqlx.DB         `optional:"true"`
	Backend db.Backend       `optional:"true"`
	Redis   *redis.Client    `optional:"true"`
	AMQP    *amqp.Connection `optional:"true"`
	Logger  *zap.SugaredLogger
}

func NewHandler(p NewHandlerParams) *Handler {
	h := &Handler{backend: p.Backend, logger: p.Logger}
	if h.backend == "" {
		h.backend = db.BackendDisabled
	}
	if p.DB != nil && h.backend != db.BackendDisabled {
		h.database = p.DB.PingContext
	}
	if p.Redis != nil {
		h.redis = func(ctx context.Context) error { return p.Redis.Ping(ctx).Err() }
	}
	if p.AMQP != nil {
		h.rabbit = func() bool { return !p.AMQP.IsClosed() }
	}
	return h
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Get("/health", h.Handle)
}

type response struct {
	OK       bool   `json:"ok"`
	Backend  string `json:"backend"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
	RabbitMQ string `json:"rabbitmq"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := response{
		OK:       true,
		Backend:  string(h.backend),
		Database: h.check(ctx, "database", h.database),
		Redis:    h.check(ctx, "redis", h.redis),
		RabbitMQ: stateDisabled,
	}
	if h.rabbit != nil {
		resp.RabbitMQ = stateUp
		if !h.rabbit() {
			resp.RabbitMQ = stateDown
		}
	}
	for _, s := range []string{resp.Database, resp.Redis, resp.RabbitMQ} {
		if s == stateDown {
			resp.OK = false
		}
	}

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	render.ChiJSON(w, r, status, resp)
}

func (h *Handler) check(ctx context.Context, name string, fn checkFunc) string {
	if fn == nil {
		return stateDisabled
	}
	if err := fn(ctx); err != nil {
		h.logger.Warnw("health_check_failed", "dependency", name, "err", err)
		return stateDown
	}
	return stateUp
}
