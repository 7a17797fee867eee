package services

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/surajweb2603/ai-course-sub000/internal/config"
	"github.com/surajweb2603/ai-course-sub000/internal/logger"
	"github.com/surajweb2603/ai-course-sub000/internal/models"
	"github.com/surajweb2603/ai-course-sub000/internal/scrape"
)

type ContentGenerator interface {
	Generate(ctx context.Context, spec models.LessonSpec) (*models.LessonContent, error)
}

type MediaEnricher interface {
	Enrich(ctx context.Context, content *models.LessonContent, spec models.LessonSpec) *models.LessonContent
}

// LessonService is the single entry point for lesson generation.
type LessonService struct {
	generator     ContentGenerator
	enricher      MediaEnricher
	enrichTimeout time.Duration
	log           *logger.Logger
}

// NewLessonService wires the stages. A nil enricher skips media resolution
// and strips the unresolved proposals.
func NewLessonService(generator ContentGenerator, enricher MediaEnricher, enrichTimeout time.Duration, log *logger.Logger) *LessonService {
	if log == nil {
		log = logger.Nop()
	}
	return &LessonService{
		generator:     generator,
		enricher:      enricher,
		enrichTimeout: enrichTimeout,
		log:           log.With("service", "LessonService"),
	}
}

// NormalizeSpec turns an inbound request into a LessonSpec, applying the
// beginner and English defaults.
func NormalizeSpec(req models.GenerateLessonRequest) (models.LessonSpec, error) {
	spec := models.LessonSpec{
		CourseTitle:   strings.TrimSpace(req.CourseTitle),
		ModuleTitle:   strings.TrimSpace(req.ModuleTitle),
		LessonTitle:   strings.TrimSpace(req.LessonTitle),
		LessonSummary: strings.TrimSpace(req.LessonSummary),
		AudienceLevel: models.AudienceLevel(strings.ToLower(strings.TrimSpace(req.AudienceLevel))),
		Language:      strings.ToLower(strings.TrimSpace(req.Language)),
	}
	if spec.LessonTitle == "" {
		return spec, &ValidationError{Field: "lessonTitle", Reason: "is required"}
	}
	if spec.CourseTitle == "" {
		return spec, &ValidationError{Field: "courseTitle", Reason: "is required"}
	}
	if spec.AudienceLevel == "" {
		spec.AudienceLevel = models.LevelBeginner
	}
	if !spec.AudienceLevel.Valid() {
		return spec, &ValidationError{Field: "audienceLevel", Reason: "must be beginner, intermediate or advanced"}
	}
	if spec.Language == "" {
		spec.Language = "en"
	}
	return spec, nil
}

// GenerateLessonContent returns either complete content or one terminal
// error. Media failures only ever shorten the media list.
func (s *LessonService) GenerateLessonContent(ctx context.Context, req models.GenerateLessonRequest) (*models.LessonContent, error) {
	spec, err := NormalizeSpec(req)
	if err != nil {
		return nil, err
	}
	return s.Generate(ctx, spec)
}

func (s *LessonService) Generate(ctx context.Context, spec models.LessonSpec) (*models.LessonContent, error) {
	start := time.Now()
	content, err := s.generator.Generate(ctx, spec)
	if err != nil {
		s.log.Error("lesson generation failed", "lesson", spec.LessonTitle, "error", err)
		return nil, err
	}

	if s.enricher == nil {
		content.Media = filterMedia(content.Media)
	} else {
		ectx := ctx
		if s.enrichTimeout > 0 {
			var cancel context.CancelFunc
			ectx, cancel = context.WithTimeout(ctx, s.enrichTimeout)
			defer cancel()
		}
		content = s.enricher.Enrich(ectx, content, spec)
	}

	s.log.Info("lesson generated",
		"lesson", spec.LessonTitle,
		"language", spec.Language,
		"media", len(content.Media),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// Pipeline holds every long-lived component built from configuration.
type Pipeline struct {
	Registry *ProviderRegistry
	Images   *ImageSearchEngine
	Videos   *YouTubeSearchEngine
	Quota    *QuotaTracker
	Lessons  *LessonService
}

// NewPipeline builds the generation stack. rdb may be nil, in which case
// quota state is kept in memory only.
func NewPipeline(ctx context.Context, cfg *config.Config, rdb *redis.Client, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	registry := NewProviderRegistry(ctx, cfg, log)
	generator := NewGenerator(registry, GeneratorOptions{
		MaxAttempts:      cfg.ProviderMaxAttempts,
		Backoff:          cfg.ProviderBackoff,
		Temperature:      cfg.GenerationTemperature,
		RetryTemperature: cfg.RetryTemperature,
	}, log)

	var store QuotaStore
	if rdb != nil {
		store = NewRedisQuotaStore(rdb)
	}
	quota := NewQuotaTracker(cfg.QuotaWindow, store, log)

	client := scrape.NewClient(cfg.SearchTimeout, scrape.NewHostRateLimiter(2, 2))
	scorer := NewRelevanceScorer(DefaultRelevanceThresholds)
	images := NewImageSearchEngine(client, scorer, log)
	videos := NewYouTubeSearchEngine(ctx, cfg.YouTubeAPIKey, client, quota, scorer, log)

	var enricher MediaEnricher
	if cfg.MediaEnrichment {
		enricher = NewEnricher(images, videos, NewProviderTranslator(registry, log), EnricherOptions{
			SearchLanguage: cfg.SearchLanguage,
			Concurrency:    cfg.MediaConcurrency,
		}, log)
	}

	return &Pipeline{
		Registry: registry,
		Images:   images,
		Videos:   videos,
		Quota:    quota,
		Lessons:  NewLessonService(generator, enricher, 4*cfg.SearchTimeout, log),
	}
}

func (p *Pipeline) Close() {
	p.Registry.Close()
}
