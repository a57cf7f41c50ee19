package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Local     LocalConfig
	Session   SessionConfig
	Sync      SyncConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type LocalConfig struct {
	Path string
}

type SessionConfig struct {
	Secret         string
	Duration       time.Duration
	RenewThreshold time.Duration
}

type SyncConfig struct {
	ProbeInterval time.Duration
}

type WebSocketConfig struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	MaxClients int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	godotenv.Load()

	sessionDuration, err := time.ParseDuration(getEnv("SESSION_DURATION", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_DURATION: %w", err)
	}

	renewThreshold, err := time.ParseDuration(getEnv("SESSION_RENEW_THRESHOLD", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_RENEW_THRESHOLD: %w", err)
	}

	probeInterval, err := time.ParseDuration(getEnv("SYNC_PROBE_INTERVAL", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_PROBE_INTERVAL: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "127.0.0.1"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "medicapp"),
		},
		Local: LocalConfig{
			Path: getEnv("LOCAL_STORE_PATH", "medicapp.db"),
		},
		Session: SessionConfig{
			Secret:         getEnv("SESSION_SECRET", "dev-secret-change-in-production"),
			Duration:       sessionDuration,
			RenewThreshold: renewThreshold,
		},
		Sync: SyncConfig{
			ProbeInterval: probeInterval,
		},
		WebSocket: WebSocketConfig{
			WriteWait:  10 * time.Second,
			PongWait:   60 * time.Second,
			PingPeriod: 54 * time.Second,
			MaxClients: getEnvAsInt("WS_MAX_CLIENTS", 8),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
