package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"joinpounce/config"
)

// NewHTTPServer serves the API mux. The write timeout leaves room for
// preview requests that resolve redirects and fetch the product page.
func NewHTTPServer(cfg *config.Config, mux *chi.Mux) *http.Server {
	writeTimeout := 30 * time.Second
	if cfg.Fetch.Enabled && 2*cfg.Fetch.Timeout+5*time.Second > writeTimeout {
		writeTimeout = 2*cfg.Fetch.Timeout + 5*time.Second
	}
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
}
