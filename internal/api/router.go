package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter sets up all API routes and handlers.
func NewRouter(h *Handlers, hub *WebSocketHub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Route("/missions", func(r chi.Router) {
			r.Post("/", h.SubmitMission)
			r.Get("/", h.ListMissions)
			r.Get("/{id}", h.GetMission)
			r.Post("/{id}/abort", h.AbortMission)
		})

		r.Route("/drones", func(r chi.Router) {
			r.Get("/", h.ListDrones)
			r.Get("/{id}", h.GetDrone)
			r.Post("/{id}/register", h.RegisterDrone)
			r.Post("/{id}/telemetry", h.UpdateTelemetry)
		})

		r.Get("/geofences", h.GetGeofences)
		r.Get("/status", h.GetStatus)
	})

	r.Get("/ws", hub.ServeWS)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
