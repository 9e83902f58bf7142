// Package config provides configuration for the widget service.
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the widgetd configuration.
type Config struct {
	// Server settings
	HTTPPort  int
	PublicURL string // Base URL the loader points frames at

	// Backend settings
	BackendURL  string
	BackendMode string // "MOCK" answers locally
	SendTimeout time.Duration

	// Storage settings
	StorageDriver string // memory, sqlite or redis
	DatabaseURL   string
	RedisAddr     string
	RedisTTL      time.Duration

	// Widget settings
	WelcomeMessage string
	AllowedOrigins []string

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:       getEnvInt("HTTP_PORT", 8080),
		PublicURL:      strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		BackendURL:     getEnv("BACKEND_URL", ""),
		BackendMode:    getEnv("BACKEND_MODE", ""),
		SendTimeout:    time.Duration(getEnvInt("SEND_TIMEOUT_MS", 60000)) * time.Millisecond,
		StorageDriver:  getEnv("STORAGE_DRIVER", "memory"),
		DatabaseURL:    getEnv("DATABASE_URL", "widget.db"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisTTL:       time.Duration(getEnvInt("REDIS_TTL_SECONDS", 0)) * time.Second,
		WelcomeMessage: getEnv("WELCOME_MESSAGE", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
		PingInterval:   time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:   time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:    time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxMessageSize: int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// FrameURL is where the embedded frame page is served. A query on
// PUBLIC_URL is kept.
func (c *Config) FrameURL() string {
	u, err := url.Parse(c.PublicURL)
	if err != nil {
		return c.PublicURL + "/widget"
	}
	return u.JoinPath("widget").String()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
