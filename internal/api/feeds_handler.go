package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/feeds"
)

const (
	// multipart bodies carry boundaries and the duration field on top of
	// the file itself
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

func listFeedsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := cfg.Feeds.List(r.Context())
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		if list == nil {
			list = []*catalog.Feed{}
		}
		WriteJSON(w, http.StatusOK, list)
	}
}

func createFeedHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateFeedRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}

		feed, err := cfg.Feeds.Create(r.Context(), req.Name, req.SourceURL)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, feed)
	}
}

func getFeedHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feed, err := cfg.Feeds.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, feed)
	}
}

func updateFeedHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u feeds.Update
		if !decodeJSON(w, r, &u, false) {
			return
		}

		feed, err := cfg.Feeds.Update(r.Context(), chi.URLParam(r, "id"), u)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, feed)
	}
}

func deleteFeedHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Feeds.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func uploadFeedHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// fail fast before reading a large body for a feed that is gone
		if _, err := cfg.Feeds.Get(r.Context(), id); err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}

		if cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes+multipartOverhead)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				WriteError(w, http.StatusBadRequest,
					fmt.Sprintf("upload exceeds the %s limit", humanize.Bytes(uint64(cfg.MaxUploadBytes))),
					"VALIDATION_ERROR")
				return
			}
			WriteError(w, http.StatusBadRequest, "expected a multipart form", "BAD_REQUEST")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "file is required", "BAD_REQUEST")
			return
		}
		defer file.Close()

		var hint *float64
		if v := r.FormValue("duration_seconds"); v != "" {
			d, err := strconv.ParseFloat(v, 64)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "duration_seconds must be a number", "VALIDATION_ERROR")
				return
			}
			hint = &d
		}

		feed, err := cfg.Feeds.AttachMedia(r.Context(), id, header.Filename, file, hint)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, feed)
	}
}

func feedMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		feed, err := cfg.Feeds.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		if !feed.HasMedia() {
			WriteError(w, http.StatusNotFound, "feed has no media", "NOT_FOUND")
			return
		}

		if err := cfg.Media.Serve(w, r, feed.FilePath, ""); err != nil {
			writeServiceError(w, r, cfg.Logger, err)
		}
	}
}
