package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"learnizone-backend/internal/docstore"
	"learnizone-backend/internal/handlers"
	"learnizone-backend/internal/middleware"
	"learnizone-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	redisClient *redis.Client,
	store docstore.Store,
	authHandler *handlers.AuthHandler,
	courseHandler *handlers.CourseHandler,
	lessonHandler *handlers.LessonHandler,
	enrollmentHandler *handlers.EnrollmentHandler,
	quizHandler *handlers.QuizHandler,
	notificationHandler *handlers.NotificationHandler,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.EchoRequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(redisClient, "auth", 10, time.Minute)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes ────
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter.Middleware).Post("/register", authHandler.Register)
			r.With(authLimiter.Middleware).Post("/login", authHandler.Login)
			r.With(authLimiter.Middleware).Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
				r.Get("/me", authHandler.Me)
			})
		})

		// ──── Course Routes ────
		r.Route("/courses", func(r chi.Router) {
			r.Get("/", courseHandler.List)
			r.Get("/{id}/lessons", courseHandler.Lessons)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/{id}/enroll", courseHandler.Enroll)
				r.Delete("/{id}/enroll", courseHandler.Unenroll)
			})
		})

		// ──── Lesson Routes ────
		r.Route("/lessons", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", lessonHandler.Create)
			r.Get("/{id}", lessonHandler.Get)
			r.Get("/{id}/next", lessonHandler.Next)
			r.Post("/{id}/generate-quiz", lessonHandler.GenerateQuiz)
		})

		// ──── Enrollment Routes ────
		r.Route("/enrollments", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", enrollmentHandler.List)
			r.Get("/stats", enrollmentHandler.Stats)
			r.Get("/{id}/progress", enrollmentHandler.Progress)
			r.Put("/{id}/lessons/{lessonId}/progress", enrollmentHandler.UpdateLessonProgress)
		})

		// ──── Quiz Routes ────
		r.Route("/quizzes", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", quizHandler.GetQuiz)
			r.Post("/{id}/start", quizHandler.Start)
		})

		r.Route("/quiz-attempts", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", quizHandler.GetAttempt)
			r.Put("/{id}/answers", quizHandler.RecordAnswer)
			r.Post("/{id}/submit", quizHandler.Submit)
			r.Post("/{id}/abandon", quizHandler.Abandon)
		})

		// ──── Notification Routes ────
		r.Route("/notifications", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", notificationHandler.List)
			r.Get("/preferences", notificationHandler.GetPreferences)
			r.Put("/preferences", notificationHandler.UpdatePreferences)
			r.Put("/{id}/read", notificationHandler.MarkRead)
			r.Delete("/{id}", notificationHandler.Delete)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobHandler.GetJob)
			r.Delete("/{id}", jobHandler.CancelJob)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
