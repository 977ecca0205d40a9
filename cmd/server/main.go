package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"learnizone-backend/internal/config"
	"learnizone-backend/internal/database"
	"learnizone-backend/internal/handlers"
	"learnizone-backend/internal/middleware"
	"learnizone-backend/internal/repository"
	"learnizone-backend/internal/router"
	"learnizone-backend/internal/services"
	"learnizone-backend/internal/websocket"
	"learnizone-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting LearniZone Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Printf("✓ Environment variables loaded (store: %s)", cfg.StoreDriver)

	// ──── Step 2: Initialize Redis Clients ────
	var (
		redisClients *database.RedisClients
		commands     *redis.Client
		pubsub       *redis.Client
	)
	if cfg.RedisURL != "" {
		clients, err := database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		redisClients = clients
		commands, pubsub = clients.Commands, clients.PubSub
		log.Println("✓ Redis connected")
	} else {
		log.Println("✓ Redis not configured, running single-instance")
	}
	defer redisClients.Close()

	// ──── Step 3: Open Document Store ────
	store, closeStore, err := database.OpenStore(database.StoreOptions{
		Driver:        cfg.StoreDriver,
		DatabaseURL:   cfg.DatabaseURL,
		SQLitePath:    cfg.SQLitePath,
		MigrationsDir: cfg.MigrationsDir,
	}, pubsub)
	if err != nil {
		log.Fatalf("✗ Document store failed: %v", err)
	}
	defer closeStore()
	log.Println("✓ Document store ready")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(store)
	courseRepo := repository.NewCourseRepo(store)
	lessonRepo := repository.NewLessonRepo(store)
	enrollmentRepo := repository.NewEnrollmentRepo(store)
	progressRepo := repository.NewProgressRepo(store)
	quizRepo := repository.NewQuizRepo(store)
	jobRepo := repository.NewJobRepo(store)
	notificationRepo := repository.NewNotificationRepo(store)

	// ──── Step 4: Start WebSocket Hub ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(pubsub, jwtAuth, nil)
	log.Println("✓ WebSocket hub started")

	var publisher services.Publisher = wsHub
	var tokenStore services.RefreshTokenStore = services.NewMemoryTokenStore()
	if commands != nil {
		publisher = services.NewRedisPublisher(commands)
		tokenStore = services.NewRedisTokenStore(commands)
	}

	// ──── Initialize Services ────
	notifier := services.NewNotifier(userRepo, notificationRepo, publisher)
	progressService := services.NewProgressService(lessonRepo, progressRepo, enrollmentRepo, notifier)
	enrollmentService := services.NewEnrollmentService(enrollmentRepo, courseRepo, lessonRepo, progressRepo)
	youtubeService := services.NewYouTubeService()
	lessonService := services.NewLessonService(lessonRepo, courseRepo, youtubeService)
	authService := services.NewAuthService(userRepo, tokenStore, jwtAuth)

	attemptService := services.NewAttemptService(quizRepo, publisher, nil)
	attemptService.OnSubmit(progressService)
	attemptService.OnSubmit(notifier)
	wsHub.SetProgressWatcher(progressService)

	// ──── Step 5: Initialize Quiz Generation ────
	var generator worker.QuestionGenerator
	if cfg.QuizGenerationEnabled() {
		geminiService, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs)
		if err != nil {
			log.Fatalf("✗ Gemini client initialization failed: %v", err)
		}
		defer geminiService.Close()
		generator = geminiService
		log.Println("✓ Gemini Flash client initialized")
	} else {
		log.Println("✓ GEMINI_API_KEY not set, quiz generation disabled")
	}

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(
		commands,
		generator,
		youtubeService,
		services.NewResourceTextExtractor(),
		publisher,
		jobRepo,
		lessonRepo,
		quizRepo,
		cfg.WorkerCount,
	)
	workerPool.Start()

	var queue handlers.JobQueue
	if generator != nil {
		queue = workerPool
	}

	reminders := services.NewReminderScheduler(enrollmentRepo, courseRepo, notifier, cfg.ReminderInterval)
	reminders.Start()
	log.Printf("✓ Reminder scheduler started (every %s)", cfg.ReminderInterval)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		commands,
		store,
		handlers.NewAuthHandler(authService),
		handlers.NewCourseHandler(courseRepo, lessonService, enrollmentService),
		handlers.NewLessonHandler(lessonService, jobRepo, queue),
		handlers.NewEnrollmentHandler(enrollmentService, progressService),
		handlers.NewQuizHandler(quizRepo, attemptService),
		handlers.NewNotificationHandler(notifier),
		handlers.NewJobHandler(jobRepo),
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()
		reminders.Stop()
		attemptService.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ LearniZone Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
