package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string `validate:"required,numeric"`
	Env  string `validate:"oneof=development staging production test"`

	// Storage
	StoreDriver   string `validate:"oneof=postgres sqlite memory"`
	DatabaseURL   string `validate:"required_if=StoreDriver postgres"`
	SQLitePath    string `validate:"required_if=StoreDriver sqlite"`
	MigrationsDir string

	// Redis
	RedisURL string `validate:"required_if=StoreDriver postgres"`

	// JWT
	JWTSecret string `validate:"required,min=16"`

	// Gemini AI (quiz generation is off without a key)
	GeminiAPIKey         string
	GeminiConcurrentReqs int `validate:"min=1,max=50"`

	// Background work
	WorkerCount      int           `validate:"min=1,max=64"`
	ReminderInterval time.Duration `validate:"min=1m"`

	// Frontend
	FrontendURL string `validate:"required"`
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		StoreDriver:          getEnvOrDefault("STORE_DRIVER", "postgres"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		SQLitePath:           getEnvOrDefault("SQLITE_PATH", "./learnizone.db"),
		MigrationsDir:        getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:             os.Getenv("REDIS_URL"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		WorkerCount:          getEnvAsIntOrDefault("WORKER_COUNT", 5),
		ReminderInterval:     getEnvAsDurationOrDefault("REMINDER_INTERVAL", time.Hour),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}
	return cfg
}

// Validate checks the loaded values against their struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// QuizGenerationEnabled reports whether a Gemini key was configured.
func (c *Config) QuizGenerationEnabled() bool {
	return c.GeminiAPIKey != ""
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
