package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerPort    string
	DatabaseURL   string
	RedisURL      string
	JWTSecret     string
	RemoteBaseURL string
	RemoteTimeout time.Duration

	SyncBatchSize    int
	SyncWorkers      int
	AutoSyncInterval time.Duration
	AutoSyncEnabled  bool
}

func LoadConfig() (*Config, error) {
	remoteTimeout, err := getDuration("REMOTE_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	autoSyncInterval, err := getDuration("AUTO_SYNC_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}
	batchSize, err := getInt("SYNC_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}
	workers, err := getInt("SYNC_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		RemoteBaseURL:    os.Getenv("REMOTE_BASE_URL"),
		RemoteTimeout:    remoteTimeout,
		SyncBatchSize:    batchSize,
		SyncWorkers:      workers,
		AutoSyncInterval: autoSyncInterval,
		AutoSyncEnabled:  getEnv("AUTO_SYNC_ENABLED", "false") == "true",
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.RemoteBaseURL == "" {
		return nil, errors.New("REMOTE_BASE_URL is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	value, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s format", key)
	}
	return value, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid %s format", key)
	}
	return value, nil
}
