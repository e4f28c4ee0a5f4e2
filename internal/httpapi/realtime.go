package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const realtimeService = "realtime-service"

type RealtimeConfig struct {
	RateLimit   RateLimitConfig
	CORSOrigins []string
}

// RealtimeRoutes serves the sockjs listener endpoint under /realtime.
func RealtimeRoutes(listeners http.Handler, cfg RealtimeConfig) http.Handler {
	limiter := NewRateLimiter(realtimeService, cfg.RateLimit)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(realtimeService))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(cfg.CORSOrigins))
	r.Use(limiter.Middleware)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/realtime", listeners)
	r.Handle("/realtime/*", listeners)
	return r
}
