package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/concertview/concertview/internal/catalog"
)

const (
	defaultJobsLimit = 50
	maxJobsLimit     = 500
)

func exportJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}

		job, err := cfg.Jobs.Submit(r.Context(), req.InputPath, req.OutputFilename, req.Format)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, JobAcceptedResponse{JobID: job.ID, Status: job.Status})
	}
}

func composeJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ComposeRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}

		job, err := cfg.Jobs.RenderComposition(r.Context(), req.Project(), req.FeedPaths, req.OutputFilename)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, JobAcceptedResponse{JobID: job.ID, Status: job.Status})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultJobsLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "VALIDATION_ERROR")
				return
			}
			limit = min(n, maxJobsLimit)
		}

		list, err := cfg.Jobs.List(r.Context(), limit)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}

		resp := make([]JobResponse, len(list))
		for i, j := range list {
			resp[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Jobs.Status(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func downloadJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Jobs.Status(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		if job.Status != catalog.JobStatusCompleted {
			WriteError(w, http.StatusConflict, "job is "+job.Status+", output is not available", "JOB_NOT_READY")
			return
		}

		if err := cfg.Media.Serve(w, r, job.Result, job.OutputFilename); err != nil {
			writeServiceError(w, r, cfg.Logger, err)
		}
	}
}
