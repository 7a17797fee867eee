package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/surajweb2603/ai-course-sub000/internal/logger"
	"github.com/surajweb2603/ai-course-sub000/internal/middleware"
	"github.com/surajweb2603/ai-course-sub000/internal/models"
	"github.com/surajweb2603/ai-course-sub000/internal/repository"
	"github.com/surajweb2603/ai-course-sub000/internal/worker"
)

type lessonGenerator interface {
	GenerateLessonContent(ctx context.Context, req models.GenerateLessonRequest) (*models.LessonContent, error)
}

type lessonReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lesson, error)
}

type jobCreator interface {
	Create(ctx context.Context, j *models.Job) error
}

type LessonHandler struct {
	lessons    lessonGenerator
	lessonRepo lessonReader
	jobRepo    jobCreator
	queue      *redis.Client
	log        *logger.Logger
}

func NewLessonHandler(lessons lessonGenerator, lessonRepo lessonReader, jobRepo jobCreator, queue *redis.Client, log *logger.Logger) *LessonHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &LessonHandler{
		lessons:    lessons,
		lessonRepo: lessonRepo,
		jobRepo:    jobRepo,
		queue:      queue,
		log:        log.With("handler", "lesson"),
	}
}

// Generate runs the whole pipeline inside the request.
func (h *LessonHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	content, err := h.lessons.GenerateLessonContent(r.Context(), req)
	if err != nil {
		h.log.Warn("lesson generation request failed", "request_id", middleware.GetRequestID(r), "error", err)
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, content)
}

// Regenerate queues a background rebuild of a stored lesson.
func (h *LessonHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	lessonID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid lesson ID", r))
		return
	}

	var cfg models.RegenerateConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if cfg.AudienceLevel != "" && !models.AudienceLevel(cfg.AudienceLevel).Valid() {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"audience_level": "must be beginner, intermediate or advanced"}, r))
		return
	}

	lesson, err := h.lessonRepo.GetByID(r.Context(), lessonID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Lesson not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	if lesson.OwnerID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	configJSON, _ := json.Marshal(cfg)
	job := &models.Job{
		UserID:      userID,
		Type:        models.JobTypeLessonGeneration,
		ReferenceID: lessonID,
		ConfigJSON:  configJSON,
	}
	if err := h.jobRepo.Create(r.Context(), job); err != nil {
		h.log.Error("failed to create job", "lesson_id", lessonID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create job", r))
		return
	}
	if err := worker.Enqueue(r.Context(), h.queue, job); err != nil {
		h.log.Error("failed to enqueue job", "job_id", job.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue job", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}
