package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/surajweb2603/ai-course-sub000/internal/models"
	"github.com/surajweb2603/ai-course-sub000/internal/services"
)

const maxImageResults = 10

// MediaHandler exposes the search engines directly, for checking what a
// prompt resolves to without generating a lesson.
type MediaHandler struct {
	images services.ImageSearcher
	videos services.VideoSearcher
}

func NewMediaHandler(images services.ImageSearcher, videos services.VideoSearcher) *MediaHandler {
	return &MediaHandler{images: images, videos: videos}
}

func (h *MediaHandler) Images(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "q is required", r))
		return
	}
	n := 5
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxImageResults {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "n must be between 1 and 10", r))
			return
		}
		n = v
	}

	provider, results := h.images.SearchImages(r.Context(), q, n)
	if results == nil {
		results = []models.SearchCandidate{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":    q,
		"provider": provider,
		"results":  results,
	})
}

func (h *MediaHandler) Videos(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	if topic == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "topic is required", r))
		return
	}

	results := h.videos.SearchVideos(r.Context(), topic)
	if results == nil {
		results = []models.VideoResult{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"topic":   topic,
		"results": results,
	})
}
