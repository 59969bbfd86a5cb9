package task

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
)

type HandlerOptions struct {
	// CleanupAfterFetch makes HandleFile forget a task once its file has
	// been delivered in full.
	CleanupAfterFetch bool
}

type Handlers struct {
	m    *Manager
	opts HandlerOptions
}

func NewHandlers(m *Manager, opts HandlerOptions) *Handlers {
	return &Handlers{m: m, opts: opts}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL     string `json:"url"`
		Quality string `json:"quality"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := h.m.Start(r.Context(), body.URL, body.Quality)
	switch {
	case errors.Is(err, ErrEmptyURL), errors.Is(err, ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrToolUnavailable), errors.Is(err, ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"taskId": id,
		"status": string(StatePending),
	})
}

func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.m.List())
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, err := h.m.Status(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) HandleFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rc, a, err := h.m.OpenArtifact(r.Context(), id)
	switch {
	case errors.Is(err, ErrNotReady):
		writeError(w, http.StatusAccepted, err.Error())
		return
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrTaskFailed):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType(a.Name()))
	w.Header().Set("Content-Length", strconv.FormatInt(a.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Name()}))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, rc)
	if err != nil {
		h.m.logger.Warn("artifact delivery interrupted", "task_id", id, "sent", n, "error", err)
		return
	}
	if h.opts.CleanupAfterFetch {
		h.m.Cleanup(id)
	}
}

func (h *Handlers) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	h.m.Cleanup(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
}

func contentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Register mounts the task routes on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tasks", h.HandleStart)
	mux.HandleFunc("GET /api/tasks", h.HandleList)
	mux.HandleFunc("GET /api/tasks/{id}", h.HandleStatus)
	mux.HandleFunc("GET /api/tasks/{id}/file", h.HandleFile)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.HandleCleanup)
}
