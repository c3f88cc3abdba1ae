package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.CORSOrigins))

	r.Get("/health", healthHandler(cfg))

	r.Route("/api", func(r chi.Router) {
		r.Route("/feeds", func(r chi.Router) {
			r.Get("/", listFeedsHandler(cfg))
			r.Post("/", createFeedHandler(cfg))
			r.Get("/{id}", getFeedHandler(cfg))
			r.Patch("/{id}", updateFeedHandler(cfg))
			r.Put("/{id}", updateFeedHandler(cfg))
			r.Delete("/{id}", deleteFeedHandler(cfg))
			r.Post("/{id}/upload", uploadFeedHandler(cfg))
			r.Get("/{id}/media", feedMediaHandler(cfg))
			r.Head("/{id}/media", feedMediaHandler(cfg))
		})

		r.Route("/layouts", func(r chi.Router) {
			r.Get("/", listLayoutsHandler(cfg))
			r.Post("/", createLayoutHandler(cfg))
			r.Post("/suggest", suggestLayoutHandler(cfg))
			r.Get("/{id}", getLayoutHandler(cfg))
			r.Patch("/{id}", replaceLayoutHandler(cfg))
			r.Put("/{id}", replaceLayoutHandler(cfg))
			r.Delete("/{id}", deleteLayoutHandler(cfg))
		})

		r.Post("/audio/sync", syncAudioHandler(cfg))
		r.Post("/audio/optimize", optimizeAudioHandler(cfg))

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", listProjectsHandler(cfg))
			r.Post("/", createProjectHandler(cfg))
			r.Get("/{id}", getProjectHandler(cfg))
			r.Patch("/{id}", updateProjectHandler(cfg))
			r.Delete("/{id}", deleteProjectHandler(cfg))
			r.Post("/{id}/render", renderProjectHandler(cfg))
			r.Post("/{id}/timeline/render", renderTimelineHandler(cfg))
			r.Get("/{id}/edl", projectEDLHandler(cfg))
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", listJobsHandler(cfg))
			r.Post("/export", exportJobHandler(cfg))
			r.Post("/compose", composeJobHandler(cfg))
			r.Get("/{id}", getJobHandler(cfg))
			r.Get("/{id}/download", downloadJobHandler(cfg))
			r.Head("/{id}/download", downloadJobHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  int64(time.Since(cfg.StartTime).Seconds()),
			Database: "ok",
		}
		status := http.StatusOK

		if cfg.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := cfg.DB.Ping(ctx)
			cancel()
			if err != nil {
				cfg.Logger.Warn("health check: database unreachable", "error", err)
				resp.Status = "unavailable"
				resp.Database = "unavailable"
				status = http.StatusServiceUnavailable
			}
		}

		if cfg.Jobs != nil {
			resp.ActiveJobs = cfg.Jobs.ActiveJobs()
		}

		if cfg.Doctor != nil {
			caps, err := cfg.Doctor.Get(r.Context())
			if err == nil && caps != nil {
				resp.Renderer = caps
				resp.RenderReady = caps.Ready()
			}
		}
		if !resp.RenderReady && status == http.StatusOK {
			resp.Status = "degraded"
		}

		WriteJSON(w, status, resp)
	}
}
