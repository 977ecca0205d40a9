package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"learnizone-backend/internal/config"
	"learnizone-backend/internal/database"
	"learnizone-backend/internal/repository"
	"learnizone-backend/internal/seed"
)

func main() {
	file := flag.String("file", "seed/catalog.yaml", "catalog file to load")
	flag.Parse()

	cfg := config.Load()

	catalog, err := seed.LoadFile(*file)
	if err != nil {
		log.Fatalf("✗ %v", err)
	}
	log.Printf("✓ Catalog parsed: %d courses", len(catalog.Courses))

	var pubsub *redis.Client
	if cfg.RedisURL != "" {
		clients, err := database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer clients.Close()
		pubsub = clients.PubSub
	}

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

	seeder := seed.NewSeeder(
		repository.NewCourseRepo(store),
		repository.NewLessonRepo(store),
		repository.NewQuizRepo(store),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := seeder.Apply(ctx, catalog)
	if err != nil {
		log.Fatalf("✗ Seeding failed after %d courses, %d lessons, %d quizzes: %v", res.Courses, res.Lessons, res.Quizzes, err)
	}
	log.Printf("✓ Seeded %d courses, %d lessons, %d quizzes into %s store", res.Courses, res.Lessons, res.Quizzes, cfg.StoreDriver)
}
