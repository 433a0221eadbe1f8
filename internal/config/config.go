package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/subosito/gotenv"
)

type Config struct {
	Host string
	Port string
	Env  string

	DatabaseURL            string
	DatabaseMaxConnections int
	DatabaseMaxIdleTime    time.Duration

	JWTSecret    string
	APIKeySecret string

	// Delivery engine settings
	DispatchTimeout    time.Duration
	WorkerCount        int
	WorkerPollInterval time.Duration
	ClaimBatchSize     int
	MaxResponseBytes   int
}

func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = gotenv.Load()

	cfg := &Config{
		Host: getEnvString("HOST", "localhost"),
		Port: getEnvString("PORT", "8080"),
		Env:  getEnvString("ENV", "development"),

		DatabaseURL:            getEnvString("DATABASE_URL", "postgres://localhost/webhook_engine_dev?sslmode=disable"),
		DatabaseMaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
		DatabaseMaxIdleTime:    getEnvDuration("DATABASE_MAX_IDLE_TIME", 15*time.Minute),

		JWTSecret:    getEnvString("JWT_SECRET", ""),
		APIKeySecret: getEnvString("API_KEY_SECRET", ""),

		DispatchTimeout:    getEnvDuration("DISPATCH_TIMEOUT", 30*time.Second),
		WorkerCount:        getEnvInt("WORKER_COUNT", 4),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 1*time.Second),
		ClaimBatchSize:     getEnvInt("CLAIM_BATCH_SIZE", 20),
		MaxResponseBytes:   getEnvInt("MAX_RESPONSE_BYTES", 64*1024),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.APIKeySecret == "" {
		return nil, fmt.Errorf("API_KEY_SECRET is required")
	}

	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1")
	}

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
