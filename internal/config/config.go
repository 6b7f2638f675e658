package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string
	LogLevel       string

	DatabaseURL string
	RedisURL    string

	JWTSecret string
	JWTTTL    time.Duration

	// Lifecycle rule thresholds. Kept configurable because product teams keep
	// tuning them; the defaults match what the dashboard ships with.
	MilestoneThresholds []int
	DeadlineLookahead   time.Duration
	InactivityThreshold time.Duration

	// Notification retention.
	RetentionDays   int
	CleanupSchedule string
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", "suivipro.db"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret: getEnv("JWT_SECRET", "change-me-jwt-secret"),

		CleanupSchedule: os.Getenv("CLEANUP_SCHEDULE"),
	}

	var err error
	cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", "24h")
	if err != nil {
		return nil, err
	}

	cfg.MilestoneThresholds, err = parseThresholds(getEnv("MILESTONE_THRESHOLDS", "25,50,75,100"))
	if err != nil {
		return nil, fmt.Errorf("invalid MILESTONE_THRESHOLDS: %w", err)
	}

	lookaheadDays, err := parseIntEnv("DEADLINE_LOOKAHEAD_DAYS", 7)
	if err != nil {
		return nil, err
	}
	cfg.DeadlineLookahead = time.Duration(lookaheadDays) * 24 * time.Hour

	inactiveDays, err := parseIntEnv("INACTIVITY_DAYS", 14)
	if err != nil {
		return nil, err
	}
	cfg.InactivityThreshold = time.Duration(inactiveDays) * 24 * time.Hour

	cfg.RetentionDays, err = parseIntEnv("NOTIFICATION_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}

	if isProdLike(cfg.AppEnv) && cfg.JWTSecret == "change-me-jwt-secret" {
		return nil, fmt.Errorf("in production JWT_SECRET must be set and not default")
	}

	return cfg, nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func parseThresholds(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		if v < 1 || v > 100 {
			return nil, fmt.Errorf("threshold %d out of range 1..100", v)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no thresholds given")
	}
	sort.Ints(out)
	return out, nil
}

func parseIntEnv(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, raw, err)
	}
	return v, nil
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
