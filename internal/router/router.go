package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/surajweb2603/ai-course-sub000/internal/handlers"
	"github.com/surajweb2603/ai-course-sub000/internal/middleware"
	"github.com/surajweb2603/ai-course-sub000/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	lessonHandler *handlers.LessonHandler,
	jobHandler *handlers.JobHandler,
	mediaHandler *handlers.MediaHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// generation hits paid providers: 10 req/min per IP
	generateLimiter := middleware.NewRateLimiter(10, time.Minute)
	searchLimiter := middleware.NewRateLimiter(30, time.Minute)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Lesson Routes ────
		r.Route("/lessons", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(generateLimiter.Middleware)
			r.Post("/generate", lessonHandler.Generate)
			r.Post("/{id}/regenerate", lessonHandler.Regenerate)
		})

		// ──── Media Routes ────
		r.Route("/media", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(searchLimiter.Middleware)
			r.Get("/images", mediaHandler.Images)
			r.Get("/videos", mediaHandler.Videos)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobHandler.GetJob)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
