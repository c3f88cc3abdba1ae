package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/compose"
	"github.com/concertview/concertview/internal/edl"
)

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := cfg.Projects.List(r.Context())
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		if list == nil {
			list = []*catalog.Project{}
		}
		WriteJSON(w, http.StatusOK, list)
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in compose.ProjectInput
		if !decodeJSON(w, r, &in, false) {
			return
		}

		project, err := cfg.Projects.Create(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, project)
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := cfg.Projects.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, project)
	}
}

func updateProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u compose.ProjectUpdate
		if !decodeJSON(w, r, &u, false) {
			return
		}

		project, err := cfg.Projects.Update(r.Context(), chi.URLParam(r, "id"), u)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, project)
	}
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Projects.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// renderProjectHandler takes the feed paths as a JSON array aligned with
// the project's feed_ids. An empty body renders the stored media.
func renderProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var feedPaths []string
		if !decodeJSON(w, r, &feedPaths, true) {
			return
		}

		job, err := cfg.Jobs.RenderProject(r.Context(), chi.URLParam(r, "id"),
			feedPaths, r.URL.Query().Get("output_filename"))
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, JobAcceptedResponse{JobID: job.ID, Status: job.Status})
	}
}

// renderTimelineHandler queues a cut of the project's clips. The body is
// the same optional feed path array as a project render.
func renderTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var feedPaths []string
		if !decodeJSON(w, r, &feedPaths, true) {
			return
		}

		job, err := cfg.Jobs.RenderTimeline(r.Context(), chi.URLParam(r, "id"),
			feedPaths, r.URL.Query().Get("output_filename"))
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, JobAcceptedResponse{JobID: job.ID, Status: job.Status})
	}
}

func projectEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fps := edl.DefaultFrameRate
		if v := r.URL.Query().Get("fps"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || math.IsNaN(f) || f < 1 || f > 120 {
				WriteError(w, http.StatusBadRequest, "fps must be a number between 1 and 120", "VALIDATION_ERROR")
				return
			}
			fps = f
		}

		list, err := cfg.Projects.EDL(r.Context(), chi.URLParam(r, "id"), fps)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(list))
	}
}
