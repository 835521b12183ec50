package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. Values come from the
// environment so main stays lean; development defaults keep local runs
// working without a full stack.
type Server struct {
	Addr string

	// DatabaseURL points the record store at PostgreSQL. Empty selects the
	// in-memory store (development and tests).
	DatabaseURL string

	// RedisURL enables the sweep lock. Empty disables sweep serialization;
	// correctness does not depend on it.
	RedisURL string

	// KafkaBrokers enables status-change notification publishing. Empty
	// keeps notifications in-process only.
	KafkaBrokers []string
	KafkaTopic   string

	// SweepLimit bounds how many donations one batch sweep inspects.
	SweepLimit int

	// SweepLockTTL bounds how long a crashed sweep can hold the lock.
	SweepLockTTL time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:         envOr("HEMOTRACK_ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		KafkaTopic:   envOr("KAFKA_STATUS_TOPIC", "hemotrack.status-changes"),
		SweepLimit:   envIntOr("SWEEP_LIMIT", 100),
		SweepLockTTL: envDurationOr("SWEEP_LOCK_TTL", 2*time.Minute),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
