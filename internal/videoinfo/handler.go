package videoinfo

import (
	"encoding/json"
	"errors"
	"net/http"

	"ytdl-gateway/internal/downloader"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleLookup serves GET /api/video-info?url=...
func (s *Service) HandleLookup(w http.ResponseWriter, r *http.Request) {
	info, err := s.Lookup(r.Context(), r.URL.Query().Get("url"))
	switch {
	case errors.Is(err, ErrEmptyURL), errors.Is(err, downloader.ErrInvalidURL):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, downloader.ErrToolUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error("video info lookup failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, info)
}
