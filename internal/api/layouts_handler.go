package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/layouts"
)

func listLayoutsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := cfg.Layouts.List(r.Context())
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		if list == nil {
			list = []*catalog.Layout{}
		}
		WriteJSON(w, http.StatusOK, list)
	}
}

func createLayoutHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LayoutRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}

		name := ""
		if req.Name != nil {
			name = *req.Name
		}
		layout, err := cfg.Layouts.Create(r.Context(), name, req.Slots)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, layout)
	}
}

func getLayoutHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layout, err := cfg.Layouts.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, layout)
	}
}

// replaceLayoutHandler serves both PUT and PATCH: the slot list is always
// overwritten in full.
func replaceLayoutHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LayoutRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}

		layout, err := cfg.Layouts.Replace(r.Context(), chi.URLParam(r, "id"), req.Name, req.Slots)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, layout)
	}
}

func deleteLayoutHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Layouts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func suggestLayoutHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SuggestRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		if req.Style == "" {
			req.Style = layouts.StyleGrid
		}

		layout, desc, err := layouts.Suggest(req.FeedCount, req.Style, req.FeedIDs)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, SuggestResponse{Layout: layout, Description: desc})
	}
}
