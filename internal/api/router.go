// internal/api/router.go
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"geofence-gateway/internal/logging"
)

func SetupRouter(h *APIHandler, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.HandleHealth)

	r.Route("/radar", func(r chi.Router) {
		r.Post("/live", h.HandleLiveIngest)
		r.Get("/live", h.HandleLiveSnapshot)
		r.Post("/heartbeat", h.HandleHeartbeat)
		r.Get("/status", h.HandleStatus)
		r.Get("/ws", h.HandleWebSocket)

		r.Post("/reading", h.HandleRecordReading)
		r.Post("/reading/bulk", h.HandleRecordBulk)
		r.Get("/latest", h.HandleLatest)
		r.Get("/readings", h.HandleQueryReadings)

		r.Post("/alert", h.HandleCreateAlert)
		r.Get("/alerts", h.HandleListAlerts)
		r.Patch("/alerts/{id}/resolve", h.HandleResolveAlert)

		r.Get("/stats", h.HandleStats)
	})

	return r
}
