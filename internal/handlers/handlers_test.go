package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surajweb2603/ai-course-sub000/internal/middleware"
	"github.com/surajweb2603/ai-course-sub000/internal/models"
	"github.com/surajweb2603/ai-course-sub000/internal/repository"
	"github.com/surajweb2603/ai-course-sub000/internal/services"
	"github.com/surajweb2603/ai-course-sub000/internal/worker"
)

type stubLessons struct {
	content *models.LessonContent
	err     error
	req     models.GenerateLessonRequest
}

func (s *stubLessons) GenerateLessonContent(_ context.Context, req models.GenerateLessonRequest) (*models.LessonContent, error) {
	s.req = req
	return s.content, s.err
}

type stubLessonRepo struct {
	lessons map[uuid.UUID]*models.Lesson
}

func (s *stubLessonRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Lesson, error) {
	if l, ok := s.lessons[id]; ok {
		return l, nil
	}
	return nil, repository.ErrNotFound
}

type stubJobRepo struct {
	jobs map[uuid.UUID]*models.Job
	err  error
}

func (s *stubJobRepo) Create(_ context.Context, j *models.Job) error {
	if s.err != nil {
		return s.err
	}
	j.ID = uuid.New()
	j.Status = "pending"
	if s.jobs == nil {
		s.jobs = map[uuid.UUID]*models.Job{}
	}
	s.jobs[j.ID] = j
	return nil
}

func (s *stubJobRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	if j, ok := s.jobs[id]; ok {
		return j, nil
	}
	return nil, repository.ErrNotFound
}

func asUser(userID uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey, userID)))
		})
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp.Error
}

// ─── Lesson Handler Tests ───

func TestLessonHandler_Generate(t *testing.T) {
	bst := &models.LessonContent{TheoryMd: "A binary search tree...", EstimatedMinutes: 25}

	tests := []struct {
		name   string
		body   string
		stub   *stubLessons
		status int
		code   string
	}{
		{"success", `{"courseTitle":"Data Structures","lessonTitle":"Binary Search Trees"}`, &stubLessons{content: bst}, http.StatusOK, ""},
		{"bad json", `{`, &stubLessons{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"validation", `{}`, &stubLessons{err: &services.ValidationError{Field: "lessonTitle", Reason: "is required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"both providers failed", `{}`, &stubLessons{err: &services.GenerationError{Failures: map[string]error{
			"openai": errors.New("timeout"), "gemini": errors.New("auth"),
		}}}, http.StatusBadGateway, "GENERATION_FAILED"},
		{"no providers", `{}`, &stubLessons{err: services.ErrProviderUnavailable}, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"},
		{"unexpected", `{}`, &stubLessons{err: errors.New("boom")}, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewLessonHandler(tc.stub, nil, nil, nil, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/lessons/generate", bytes.NewBufferString(tc.body))
			rr := httptest.NewRecorder()
			h.Generate(rr, req)

			assert.Equal(t, tc.status, rr.Code)
			if tc.code == "" {
				var got models.LessonContent
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
				assert.Equal(t, bst.TheoryMd, got.TheoryMd)
				assert.Equal(t, "Binary Search Trees", tc.stub.req.LessonTitle)
				return
			}
			apiErr := decodeError(t, rr)
			assert.Equal(t, tc.code, apiErr.Code)
			if tc.code == "GENERATION_FAILED" {
				assert.Contains(t, apiErr.Message, "openai")
				assert.Contains(t, apiErr.Message, "gemini")
			}
		})
	}
}

func TestLessonHandler_Regenerate(t *testing.T) {
	owner := uuid.New()
	lessonID := uuid.New()
	lessonRepo := &stubLessonRepo{lessons: map[uuid.UUID]*models.Lesson{
		lessonID: {ID: lessonID, OwnerID: owner, Title: "Binary Search Trees"},
	}}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	tests := []struct {
		name   string
		user   uuid.UUID
		path   string
		body   string
		status int
	}{
		{"queued", owner, "/lessons/" + lessonID.String() + "/regenerate", `{"language":"de"}`, http.StatusAccepted},
		{"empty body", owner, "/lessons/" + lessonID.String() + "/regenerate", ``, http.StatusAccepted},
		{"bad id", owner, "/lessons/nope/regenerate", ``, http.StatusBadRequest},
		{"bad level", owner, "/lessons/" + lessonID.String() + "/regenerate", `{"audience_level":"expert"}`, http.StatusBadRequest},
		{"missing lesson", owner, "/lessons/" + uuid.NewString() + "/regenerate", ``, http.StatusNotFound},
		{"not owner", uuid.New(), "/lessons/" + lessonID.String() + "/regenerate", ``, http.StatusForbidden},
	}

	queued := 0
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			jobs := &stubJobRepo{}
			h := NewLessonHandler(nil, lessonRepo, jobs, rdb, nil)
			r := chi.NewRouter()
			r.Use(asUser(tc.user))
			r.Post("/lessons/{id}/regenerate", h.Regenerate)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, tc.path, bytes.NewBufferString(tc.body)))
			require.Equal(t, tc.status, rr.Code, rr.Body.String())

			if tc.status != http.StatusAccepted {
				assert.Empty(t, jobs.jobs)
				return
			}
			queued++
			var resp struct {
				JobID  uuid.UUID `json:"job_id"`
				Status string    `json:"status"`
			}
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			job := jobs.jobs[resp.JobID]
			require.NotNil(t, job)
			assert.Equal(t, lessonID, job.ReferenceID)
			assert.Equal(t, models.JobTypeLessonGeneration, job.Type)
			assert.Equal(t, "pending", resp.Status)
		})
	}

	n, err := rdb.LLen(context.Background(), worker.QueueLessonGeneration).Result()
	require.NoError(t, err)
	assert.EqualValues(t, queued, n)
}

func TestLessonHandler_RegenerateCreateFails(t *testing.T) {
	owner := uuid.New()
	lessonID := uuid.New()
	lessonRepo := &stubLessonRepo{lessons: map[uuid.UUID]*models.Lesson{lessonID: {ID: lessonID, OwnerID: owner}}}
	h := NewLessonHandler(nil, lessonRepo, &stubJobRepo{err: errors.New("db down")}, nil, nil)

	r := chi.NewRouter()
	r.Use(asUser(owner))
	r.Post("/lessons/{id}/regenerate", h.Regenerate)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/lessons/"+lessonID.String()+"/regenerate", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

// ─── Job Handler Tests ───

func TestJobHandler_GetJob(t *testing.T) {
	owner := uuid.New()
	jobID := uuid.New()
	jobs := &stubJobRepo{jobs: map[uuid.UUID]*models.Job{
		jobID: {ID: jobID, UserID: owner, Status: "processing", Type: models.JobTypeLessonGeneration},
	}}
	h := NewJobHandler(jobs)

	tests := []struct {
		name   string
		user   uuid.UUID
		id     string
		status int
	}{
		{"owner", owner, jobID.String(), http.StatusOK},
		{"stranger", uuid.New(), jobID.String(), http.StatusNotFound},
		{"unknown", owner, uuid.NewString(), http.StatusNotFound},
		{"bad id", owner, "123", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Use(asUser(tc.user))
			r.Get("/jobs/{id}", h.GetJob)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/"+tc.id, nil))
			assert.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusOK {
				var job models.Job
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&job))
				assert.Equal(t, "processing", job.Status)
			}
		})
	}
}

// ─── Media Handler Tests ───

type stubImages struct {
	n int
}

func (s *stubImages) SearchImages(_ context.Context, query string, n int) (string, []models.SearchCandidate) {
	s.n = n
	if query == "nothing" {
		return "", nil
	}
	return "wikimedia", []models.SearchCandidate{{URL: "https://upload.wikimedia.org/bst.png", Title: "BST"}}
}

type stubVideos struct{}

func (stubVideos) SearchVideos(_ context.Context, topic string) []models.VideoResult {
	if topic == "nothing" {
		return nil
	}
	return []models.VideoResult{{VideoID: "aaaaaaaaaaa", Title: "BST tutorial", Source: "api"}}
}

func TestMediaHandler_Images(t *testing.T) {
	images := &stubImages{}
	h := NewMediaHandler(images, stubVideos{})

	rr := httptest.NewRecorder()
	h.Images(rr, httptest.NewRequest(http.MethodGet, "/media/images?q=binary+search+tree&n=3", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, images.n)

	var resp struct {
		Provider string                   `json:"provider"`
		Results  []models.SearchCandidate `json:"results"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "wikimedia", resp.Provider)
	require.Len(t, resp.Results, 1)

	rr = httptest.NewRecorder()
	h.Images(rr, httptest.NewRequest(http.MethodGet, "/media/images?q=nothing", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"results":[]`)
	assert.Equal(t, 5, images.n)

	for _, target := range []string{"/media/images", "/media/images?q=x&n=0", "/media/images?q=x&n=11", "/media/images?q=x&n=abc"} {
		rr = httptest.NewRecorder()
		h.Images(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestMediaHandler_Videos(t *testing.T) {
	h := NewMediaHandler(&stubImages{}, stubVideos{})

	rr := httptest.NewRecorder()
	h.Videos(rr, httptest.NewRequest(http.MethodGet, "/media/videos?topic=binary+search+trees", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "aaaaaaaaaaa")

	rr = httptest.NewRecorder()
	h.Videos(rr, httptest.NewRequest(http.MethodGet, "/media/videos?topic=nothing", nil))
	assert.Contains(t, rr.Body.String(), `"results":[]`)

	rr = httptest.NewRecorder()
	h.Videos(rr, httptest.NewRequest(http.MethodGet, "/media/videos", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
