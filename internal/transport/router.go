// Package transport assembles the HTTP surface of the service.
package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/handler"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/metrics"
)

const APIPrefix = "/api/v1"

type Handlers struct {
	Reports *handler.ReportHandler
	Refresh *handler.RefreshHandler
	DB      handler.Pinger
}

func NewRouter(h Handlers) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware)

	router.Get("/health", handler.Health(h.DB))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Route(APIPrefix, func(r chi.Router) {
		if h.Reports != nil {
			h.Reports.RegisterRoutes(r)
		}
		if h.Refresh != nil {
			h.Refresh.RegisterRoutes(r)
		}
	})

	return router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	})
}
