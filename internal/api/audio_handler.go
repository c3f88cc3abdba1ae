package api

import "net/http"

func syncAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SyncRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}

		report, err := cfg.Audio.SyncAnalysis(r.Context(), req.FeedIDs)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, report)
	}
}

func optimizeAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OptimizeRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}

		normalize := req.Normalize == nil || *req.Normalize
		rec, err := cfg.Audio.Optimize(r.Context(), req.FeedIDs, req.MasterFeedID,
			normalize, req.NoiseReduction || req.NoiseReduce)
		if err != nil {
			writeServiceError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	}
}
