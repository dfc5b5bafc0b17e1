package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr string
}

type UpstreamConfig struct {
	// AniLibertyBaseURL is the base URL of the upstream catalog API.
	AniLibertyBaseURL string
	// Timeout bounds every upstream call.
	Timeout time.Duration
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	HTTP        HTTPConfig

	// JWTSecret verifies user bearer tokens (HS256).
	JWTSecret string

	// RedisURL enables the stats snapshot cache when set.
	RedisURL string

	// HistoryRetention bounds how long watch-history events are kept.
	HistoryRetention time.Duration

	Upstream UpstreamConfig
}

func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: strings.TrimSpace(os.Getenv("SERVICE_NAME")),
		LogLevel:    strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		HTTP: HTTPConfig{
			Addr: strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		},
		JWTSecret:        strings.TrimSpace(os.Getenv("JWT_SECRET")),
		RedisURL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		HistoryRetention: envDuration("HISTORY_RETENTION", 365*24*time.Hour),
		Upstream: UpstreamConfig{
			AniLibertyBaseURL: strings.TrimSpace(os.Getenv("ANILIBERTY_BASE_URL")),
			Timeout:           envDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		},
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "tracker"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.JWTSecret == "" {
		return AppConfig{}, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	// Plain integers are treated as seconds.
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
