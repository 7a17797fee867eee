package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surajweb2603/ai-course-sub000/internal/models"
	"github.com/surajweb2603/ai-course-sub000/internal/repository"
	"github.com/surajweb2603/ai-course-sub000/internal/services"
	"github.com/surajweb2603/ai-course-sub000/internal/websocket"
)

type fakeLessons struct {
	mu      sync.Mutex
	spec    models.LessonSpec
	err     error
	saved   *models.LessonContent
	savedID uuid.UUID
}

func (f *fakeLessons) GetSpec(_ context.Context, _ uuid.UUID) (models.LessonSpec, error) {
	return f.spec, f.err
}

func (f *fakeLessons) UpdateContent(_ context.Context, id uuid.UUID, content *models.LessonContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved, f.savedID = content, id
	return nil
}

type fakeJobs struct {
	mu       sync.Mutex
	statuses []string
	lastErr  string
	retries  int
}

func (f *fakeJobs) UpdateStatus(_ context.Context, _ uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeJobs) UpdateError(_ context.Context, _ uuid.UUID, errMsg string, retryCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastErr, f.retries = errMsg, retryCount
	return nil
}

func (f *fakeJobs) Statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statuses...)
}

type fakeGenerator struct {
	mu    sync.Mutex
	specs []models.LessonSpec
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, spec models.LessonSpec) (*models.LessonContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	if f.err != nil {
		return nil, f.err
	}
	u := "https://upload.wikimedia.org/bst.png"
	return &models.LessonContent{
		TheoryMd: "theory",
		Media:    []models.MediaItem{{Type: models.MediaImage, URL: &u}},
	}, nil
}

var bstLesson = models.LessonSpec{
	CourseTitle:   "Data Structures",
	ModuleTitle:   "Trees",
	LessonTitle:   "Binary Search Trees",
	AudienceLevel: models.LevelBeginner,
	Language:      "en",
}

func newTestPool(t *testing.T, lessons *fakeLessons, jobs *fakeJobs, gen *fakeGenerator) (*Pool, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewPool(rdb, rdb, lessons, jobs, gen, 1, nil), rdb
}

// subscribe decodes every update published on the user's channel.
func subscribe(t *testing.T, rdb *redis.Client, userID uuid.UUID) <-chan models.WSMessage {
	t.Helper()
	ps := rdb.Subscribe(context.Background(), websocket.Channel(userID))
	_, err := ps.Receive(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })

	out := make(chan models.WSMessage, 16)
	go func() {
		for msg := range ps.Channel() {
			var m models.WSMessage
			if json.Unmarshal([]byte(msg.Payload), &m) == nil {
				out <- m
			}
		}
	}()
	return out
}

func waitFor(t *testing.T, ch <-chan models.WSMessage, typ string) models.WSMessage {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case m := <-ch:
			if m.Type == typ {
				return m
			}
		case <-timeout:
			t.Fatalf("no %q message received", typ)
		}
	}
}

func testJob(config []byte) *models.Job {
	return &models.Job{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Type:        models.JobTypeLessonGeneration,
		ReferenceID: uuid.New(),
		ConfigJSON:  config,
		MaxRetries:  3,
	}
}

func TestPool_ProcessesQueuedJob(t *testing.T) {
	prev := popTimeout
	popTimeout = 100 * time.Millisecond
	t.Cleanup(func() { popTimeout = prev })
	lessons := &fakeLessons{spec: bstLesson}
	jobs := &fakeJobs{}
	gen := &fakeGenerator{}
	pool, rdb := newTestPool(t, lessons, jobs, gen)

	job := testJob([]byte(`{"audience_level":"advanced","language":"DE"}`))
	updates := subscribe(t, rdb, job.UserID)

	pool.Start()
	defer pool.Stop()
	require.NoError(t, Enqueue(context.Background(), rdb, job))

	msg := waitFor(t, updates, "completed")
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, job.ID.String(), payload["job_id"])
	assert.Equal(t, "lesson", payload["result_type"])
	assert.EqualValues(t, 1, payload["media_count"])

	require.Eventually(t, func() bool {
		s := jobs.Statuses()
		return len(s) > 0 && s[len(s)-1] == "completed"
	}, time.Second, 10*time.Millisecond)

	lessons.mu.Lock()
	assert.Equal(t, job.ReferenceID, lessons.savedID)
	assert.NotNil(t, lessons.saved)
	lessons.mu.Unlock()

	gen.mu.Lock()
	require.Len(t, gen.specs, 1)
	assert.Equal(t, models.LevelAdvanced, gen.specs[0].AudienceLevel)
	assert.Equal(t, "de", gen.specs[0].Language)
	assert.Equal(t, "Binary Search Trees", gen.specs[0].LessonTitle)
	gen.mu.Unlock()
}

func TestPool_PermanentFailurePublishesError(t *testing.T) {
	terminal := &services.GenerationError{Failures: map[string]error{
		"openai": errors.New("timeout"),
	}}
	jobs := &fakeJobs{}
	pool, rdb := newTestPool(t, &fakeLessons{spec: bstLesson}, jobs, &fakeGenerator{err: terminal})

	job := testJob(nil)
	job.MaxRetries = 1
	updates := subscribe(t, rdb, job.UserID)

	pool.run(context.Background(), pool.log, job)

	msg := waitFor(t, updates, "error")
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, "GENERATION_FAILED", payload["error_code"])
	assert.Equal(t, []string{"processing", "failed"}, jobs.Statuses())
	assert.Equal(t, 1, jobs.retries)
}

func TestPool_MissingLessonIsNotRetried(t *testing.T) {
	jobs := &fakeJobs{}
	pool, rdb := newTestPool(t, &fakeLessons{err: repository.ErrNotFound}, jobs, &fakeGenerator{})

	job := testJob(nil)
	updates := subscribe(t, rdb, job.UserID)
	pool.run(context.Background(), pool.log, job)

	msg := waitFor(t, updates, "error")
	assert.Equal(t, "NOT_FOUND", msg.Payload.(map[string]interface{})["error_code"])
	assert.Equal(t, []string{"processing", "failed"}, jobs.Statuses())
}

func TestPool_TransientFailureRequeues(t *testing.T) {
	prev := retryBackoff
	retryBackoff = func(int) time.Duration { return 0 }
	t.Cleanup(func() { retryBackoff = prev })
	jobs := &fakeJobs{}
	pool, rdb := newTestPool(t, &fakeLessons{spec: bstLesson}, jobs, &fakeGenerator{err: errors.New("provider timeout")})

	job := testJob(nil)
	pool.run(context.Background(), pool.log, job)

	assert.Equal(t, []string{"processing", "pending"}, jobs.Statuses())
	require.Eventually(t, func() bool {
		n, _ := rdb.LLen(context.Background(), QueueLessonGeneration).Result()
		return n == 1
	}, time.Second, 10*time.Millisecond)

	raw, err := rdb.LPop(context.Background(), QueueLessonGeneration).Result()
	require.NoError(t, err)
	var requeued models.Job
	require.NoError(t, json.Unmarshal([]byte(raw), &requeued))
	assert.Equal(t, 1, requeued.RetryCount)
}

func TestPool_LockedJobIsSkipped(t *testing.T) {
	jobs := &fakeJobs{}
	pool, rdb := newTestPool(t, &fakeLessons{spec: bstLesson}, jobs, &fakeGenerator{})

	job := testJob(nil)
	require.NoError(t, rdb.Set(context.Background(), "job_lock:"+job.ID.String(), "1", time.Minute).Err())
	pool.run(context.Background(), pool.log, job)
	assert.Empty(t, jobs.Statuses())
}
