package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	httpapi "github.com/fedutinova/lectary/internal/transport/http"
)

func NewRouter(h *httpapi.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// pipeline work runs in the background; only the request itself is bounded
	r.Use(middleware.Timeout(5 * time.Minute))

	// coarse per-IP throttle ahead of the per-user domain limiter
	if h.Config.GlobalThrottlePerMin > 0 {
		r.Use(httprate.LimitByIP(h.Config.GlobalThrottlePerMin, time.Minute))
	}

	h.Routers(r)
	return r
}
