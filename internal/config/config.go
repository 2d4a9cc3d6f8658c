package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"recipe-extraction-service/internal/entity"
)

// Config holds everything both processes (api, worker) read from the
// environment. A .env file is loaded when present; real env always wins.
type Config struct {
	PostgresDSN string
	RedisAddr   string

	HTTPAddr string

	QueueKey      string
	ProcessingKey string
	Workers       int

	AIServiceURL   string
	AIServiceToken string

	// Platform reliability policy: a domain flips to requires_client_download
	// after FailureThreshold consecutive failures with a persistent reason.
	FailureThreshold  int
	PersistentReasons []entity.FailureReason

	LogLevel string
}

func Load() (*Config, error) {
	// .env is optional; env vars may be set by the deployment instead
	_ = godotenv.Load()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("missing env: POSTGRES_DSN")
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		return nil, fmt.Errorf("missing env: REDIS_ADDR")
	}

	cfg := &Config{
		PostgresDSN:       dsn,
		RedisAddr:         redisAddr,
		HTTPAddr:          envOr("HTTP_ADDR", ":8080"),
		QueueKey:          envOr("REDIS_QUEUE_KEY", "extraction:queue"),
		ProcessingKey:     envOr("REDIS_PROCESSING_KEY", "extraction:processing"),
		Workers:           envIntOr("WORKERS", 4),
		AIServiceURL:      envOr("AI_SERVICE_URL", "http://localhost:8090"),
		AIServiceToken:    os.Getenv("AI_SERVICE_TOKEN"),
		FailureThreshold:  envIntOr("PLATFORM_FAILURE_THRESHOLD", 3),
		PersistentReasons: parseReasons(envOr("PLATFORM_PERSISTENT_REASONS", "auth_required,blocked")),
		LogLevel:          envOr("LOG_LEVEL", "info"),
	}

	if cfg.FailureThreshold < 1 {
		return nil, fmt.Errorf("PLATFORM_FAILURE_THRESHOLD must be >= 1, got %d", cfg.FailureThreshold)
	}
	return cfg, nil
}

func parseReasons(s string) []entity.FailureReason {
	var out []entity.FailureReason
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, entity.FailureReason(part))
		}
	}
	return out
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
