package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/surajweb2603/ai-course-sub000/internal/logger"
	"github.com/surajweb2603/ai-course-sub000/internal/models"
	"github.com/surajweb2603/ai-course-sub000/internal/repository"
	"github.com/surajweb2603/ai-course-sub000/internal/services"
	"github.com/surajweb2603/ai-course-sub000/internal/websocket"
)

const (
	QueueLessonGeneration = "queue:lesson-generation"
	lockTTL               = 10 * time.Minute
)

// Tests shorten these.
var (
	popTimeout   = 30 * time.Second
	retryBackoff = func(attempt int) time.Duration { return time.Duration(1<<uint(attempt)) * time.Second }
)

type lessonStore interface {
	GetSpec(ctx context.Context, id uuid.UUID) (models.LessonSpec, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content *models.LessonContent) error
}

type jobStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

type lessonGenerator interface {
	Generate(ctx context.Context, spec models.LessonSpec) (*models.LessonContent, error)
}

// Pool runs lesson regeneration jobs taken from the Redis queue.
type Pool struct {
	queue       *redis.Client
	pubsub      *redis.Client
	lessons     lessonStore
	jobs        jobStore
	generator   lessonGenerator
	workerCount int
	log         *logger.Logger

	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewPool(queue, pubsub *redis.Client, lessons lessonStore, jobs jobStore, generator lessonGenerator, workerCount int, log *logger.Logger) *Pool {
	if log == nil {
		log = logger.Nop()
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{
		queue:       queue,
		pubsub:      pubsub,
		lessons:     lessons,
		jobs:        jobs,
		generator:   generator,
		workerCount: workerCount,
		log:         log.With("service", "WorkerPool"),
		stopChan:    make(chan struct{}),
	}
}

// Enqueue pushes a job for the workers.
func Enqueue(ctx context.Context, rdb *redis.Client, job *models.Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return rdb.LPush(ctx, QueueLessonGeneration, string(jobBytes)).Err()
}

func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.log.Info("started worker goroutines", "count", p.workerCount)
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.stopChan)
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With("worker", id)

	for {
		select {
		case <-p.stopChan:
			log.Info("worker shutting down")
			return
		default:
		}

		result, err := p.queue.BLPop(ctx, popTimeout, QueueLessonGeneration).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Warn("queue pop failed", "error", err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Error("failed to parse job", "error", err)
			continue
		}

		// jobs survive shutdown: the lock and status writes use their own context
		jobCtx, cancel := context.WithTimeout(context.Background(), lockTTL)
		p.run(jobCtx, log, &job)
		cancel()
	}
}

func (p *Pool) run(ctx context.Context, log *logger.Logger, job *models.Job) {
	lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
	locked, err := p.queue.SetNX(ctx, lockKey, "1", lockTTL).Result()
	if err != nil || !locked {
		return
	}
	defer p.queue.Del(context.Background(), lockKey)

	log.Info("processing job", "job_id", job.ID, "type", job.Type)
	p.jobs.UpdateStatus(ctx, job.ID, "processing")

	var content *models.LessonContent
	var processErr error
	switch job.Type {
	case models.JobTypeLessonGeneration:
		content, processErr = p.processLesson(ctx, job)
	default:
		processErr = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if processErr != nil {
		p.handleFailure(ctx, log, job, processErr)
		return
	}
	p.handleSuccess(ctx, log, job, content)
}

func (p *Pool) processLesson(ctx context.Context, job *models.Job) (*models.LessonContent, error) {
	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID: job.ID, Step: 1, StepName: "Loading lesson",
		},
	})

	spec, err := p.lessons.GetSpec(ctx, job.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lesson %s: %w", job.ReferenceID, err)
	}

	var overrides models.RegenerateConfig
	if len(job.ConfigJSON) > 0 {
		if err := json.Unmarshal(job.ConfigJSON, &overrides); err != nil {
			return nil, fmt.Errorf("invalid job config: %w", err)
		}
	}
	req := models.GenerateLessonRequest{
		CourseTitle:   spec.CourseTitle,
		ModuleTitle:   spec.ModuleTitle,
		LessonTitle:   spec.LessonTitle,
		LessonSummary: spec.LessonSummary,
		AudienceLevel: string(spec.AudienceLevel),
		Language:      spec.Language,
	}
	if overrides.AudienceLevel != "" {
		req.AudienceLevel = overrides.AudienceLevel
	}
	if overrides.Language != "" {
		req.Language = overrides.Language
	}
	spec, err = services.NormalizeSpec(req)
	if err != nil {
		return nil, err
	}

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID: job.ID, Step: 2, StepName: "Generating lesson content",
			EstimatedSecondsRemaining: 60,
		},
	})

	content, err := p.generator.Generate(ctx, spec)
	if err != nil {
		return nil, err
	}

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID: job.ID, Step: 3, StepName: "Saving lesson",
		},
	})

	if err := p.lessons.UpdateContent(ctx, job.ReferenceID, content); err != nil {
		return nil, fmt.Errorf("failed to save lesson content: %w", err)
	}
	return content, nil
}

func (p *Pool) handleSuccess(ctx context.Context, log *logger.Logger, job *models.Job, content *models.LessonContent) {
	p.jobs.UpdateStatus(ctx, job.ID, "completed")

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			JobID:      job.ID,
			ResultID:   job.ReferenceID,
			ResultType: "lesson",
			MediaCount: len(content.Media),
		},
	})

	log.Info("job completed", "job_id", job.ID, "media", len(content.Media))
}

// permanent reports failures a retry cannot fix.
func permanent(err error) bool {
	var verr *services.ValidationError
	return errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, services.ErrProviderUnavailable) ||
		errors.As(err, &verr)
}

func (p *Pool) handleFailure(ctx context.Context, log *logger.Logger, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	if job.RetryCount < maxRetries && !permanent(err) {
		log.Warn("job failed, retrying", "job_id", job.ID, "attempt", job.RetryCount, "error", errMsg)
		p.jobs.UpdateStatus(ctx, job.ID, "pending")
		p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		jobBytes, _ := json.Marshal(job)
		time.AfterFunc(retryBackoff(job.RetryCount), func() {
			p.queue.LPush(context.Background(), QueueLessonGeneration, string(jobBytes))
		})
		return
	}

	log.Error("job failed permanently", "job_id", job.ID, "attempts", job.RetryCount, "error", errMsg)
	p.jobs.UpdateStatus(ctx, job.ID, "failed")
	p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    errorCode(err),
			ErrorMessage: errMsg,
		},
	})
}

func errorCode(err error) string {
	var gerr *services.GenerationError
	var verr *services.ValidationError
	switch {
	case errors.As(err, &gerr):
		return "GENERATION_FAILED"
	case errors.As(err, &verr):
		return "VALIDATION_ERROR"
	case errors.Is(err, services.ErrProviderUnavailable):
		return "PROVIDER_UNAVAILABLE"
	case errors.Is(err, repository.ErrNotFound):
		return "NOT_FOUND"
	default:
		return "JOB_FAILED"
	}
}

func (p *Pool) publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	if err := websocket.Publish(ctx, p.pubsub, userID, msg); err != nil {
		p.log.Warn("failed to publish update", "user_id", userID, "error", err)
	}
}
