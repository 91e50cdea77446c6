package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv      string
	Port        string
	LogLevel    string
	LogFormat   string
	RedisURL    string
	DatabaseURL string

	// APIToken protects the inbound collaborator routes (create/update).
	APIToken string

	// MaxSubscriptionsPerConn caps how many orders a single connection may
	// track. Prevents a single client from exhausting the multiplexer.
	MaxSubscriptionsPerConn int

	// HeartbeatInterval is the ping cadence; PongGrace is how long we wait
	// for a pong before forcing the session closed.
	HeartbeatInterval time.Duration
	PongGrace         time.Duration

	// SendBufferSize bounds each session's outbound status queue; a client
	// that falls this many frames behind is evicted.
	SendBufferSize int
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		RedisURL:    getEnv("REDIS_URL", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		APIToken:    getEnv("API_TOKEN", ""),
	}

	if cfg.APIToken == "" {
		return nil, fmt.Errorf("API_TOKEN is required")
	}
	if cfg.RedisURL != "" && cfg.DatabaseURL != "" {
		return nil, fmt.Errorf("REDIS_URL and DATABASE_URL are mutually exclusive; pick one store")
	}

	maxSubs, err := getEnvInt("MAX_SUBSCRIPTIONS_PER_CONN", 32)
	if err != nil {
		return nil, err
	}
	if maxSubs < 1 {
		return nil, fmt.Errorf("MAX_SUBSCRIPTIONS_PER_CONN must be positive")
	}
	cfg.MaxSubscriptionsPerConn = maxSubs

	heartbeatSecs, err := getEnvInt("HEARTBEAT_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	graceSecs, err := getEnvInt("PONG_GRACE_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.HeartbeatInterval = time.Duration(heartbeatSecs) * time.Second
	cfg.PongGrace = time.Duration(graceSecs) * time.Second
	if cfg.PongGrace <= cfg.HeartbeatInterval {
		return nil, fmt.Errorf("PONG_GRACE_SECONDS must exceed HEARTBEAT_INTERVAL_SECONDS")
	}

	sendBuffer, err := getEnvInt("SEND_BUFFER_SIZE", 16)
	if err != nil {
		return nil, err
	}
	if sendBuffer < 1 {
		return nil, fmt.Errorf("SEND_BUFFER_SIZE must be positive")
	}
	cfg.SendBufferSize = sendBuffer

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return value, nil
}
