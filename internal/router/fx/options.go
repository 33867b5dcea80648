package fx

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
	"joinpounce/internal/router"
)

var CoreRouterOptions = fx.Options(
	fx.Provide(NewMux),
)

type muxParams struct {
	fx.In

	Cfg      *config.Config
	Logger   *zap.SugaredLogger
	Handlers []router.Handler `group:"handlers"`
}

var siteOrigins = []string{
	"https://joinpounce.com",
	"https://www.joinpounce.com",
}

var devOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
}

// corsPolicy returns the CORS options for the web app and whether CORS is on
// at all. APP_URL is always allowed; the local web app only outside
// preview and production.
func corsPolicy(cfg *config.Config) (cors.Options, bool) {
	if cfg == nil {
		return cors.Options{}, false
	}
	origins := slices.Clone(siteOrigins)
	if cfg.AppURL != "" && !slices.Contains(origins, cfg.AppURL) {
		origins = append(origins, cfg.AppURL)
	}
	switch cfg.ENV {
	case config.Dev, config.Test:
		origins = append(origins, devOrigins...)
	case config.Production, config.Preview:
	default:
		return cors.Options{}, false
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}, true
}

func NewMux(p muxParams) *chi.Mux {
	r := chi.NewRouter()

	policy, corsOn := corsPolicy(p.Cfg)
	if corsOn {
		r.Use(cors.Handler(policy))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(p.Logger))

	if corsOn {
		r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	for _, h := range p.Handlers {
		h.RegisterRoute(r)
	}
	return r
}

// requestLogger logs one line per request; server errors go out at error
// level.
func requestLogger(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			kv := []any{
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if ww.Status() >= http.StatusInternalServerError {
				logger.Errorw("http_request", kv...)
				return
			}
			logger.Infow("http_request", kv...)
		})
	}
}
