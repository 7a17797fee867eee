package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/surajweb2603/ai-course-sub000/internal/config"
	"github.com/surajweb2603/ai-course-sub000/internal/database"
	"github.com/surajweb2603/ai-course-sub000/internal/handlers"
	"github.com/surajweb2603/ai-course-sub000/internal/logger"
	"github.com/surajweb2603/ai-course-sub000/internal/middleware"
	"github.com/surajweb2603/ai-course-sub000/internal/repository"
	"github.com/surajweb2603/ai-course-sub000/internal/router"
	"github.com/surajweb2603/ai-course-sub000/internal/services"
	"github.com/surajweb2603/ai-course-sub000/internal/websocket"
	"github.com/surajweb2603/ai-course-sub000/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.ValidateServer(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}
	if !cfg.HasContentProvider() {
		log.Warn("no content provider configured; generation requests will fail with PROVIDER_UNAVAILABLE")
	}

	ctx := context.Background()

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("PostgreSQL connection failed", "error", err)
	}
	defer pool.Close()
	log.Info("✓ PostgreSQL connected")

	if err := database.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("database migration failed", "error", err)
	}
	log.Info("✓ Database migrations applied")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("Redis connection failed", "error", err)
	}
	defer redisClients.Close()
	log.Info("✓ Redis connected")

	// ──── Step 4: Build the generation pipeline ────
	pipeline := services.NewPipeline(ctx, cfg, redisClients.PubSub, log)
	defer pipeline.Close()
	log.Info("✓ Generation pipeline ready", "providers", len(pipeline.Registry.Ordered()), "media_enrichment", cfg.MediaEnrichment)

	lessonRepo := repository.NewLessonRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)

	// ──── Step 5: Start Job Worker Pool ────
	workerPool := worker.NewPool(
		redisClients.Queue,
		redisClients.PubSub,
		lessonRepo,
		jobRepo,
		pipeline.Lessons,
		cfg.WorkerCount,
		log,
	)
	workerPool.Start()
	log.Info("✓ Worker pool started", "workers", cfg.WorkerCount)

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, cfg.FrontendURL, log)
	log.Info("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		handlers.NewLessonHandler(pipeline.Lessons, lessonRepo, jobRepo, redisClients.Queue, log),
		handlers.NewJobHandler(jobRepo),
		handlers.NewMediaHandler(pipeline.Images, pipeline.Videos),
		wsHub,
		cfg.FrontendURL,
	)

	// synchronous generation: every provider attempt plus enrichment must fit
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(cfg.ProviderMaxAttempts)*(cfg.OpenAITimeout+cfg.GeminiTimeout) + 4*cfg.SearchTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
		wsHub.Close()
		workerPool.Stop()
	}()

	log.Info("✓ Lesson backend ready", "port", cfg.Port, "api", "/api/v1", "ws", "/api/v1/ws")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("server error", "error", err)
	}
	<-done
}
