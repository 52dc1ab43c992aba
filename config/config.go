package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	// API Configuration
	APIPort        string
	APIHost        string
	APIEnvironment string

	// MongoDB
	MongoURL    string
	MongoDBName string

	// Redis
	RedisURL string

	// JWT & Security
	JWTSecret string

	// CORS
	CORSAllowedOrigins []string

	// Rate Limiting
	RateLimitRequestsPerMinute int
	RateLimitBurst             int
	PublicRateLimitPerMinute   int
	PublicRateLimitBurst       int

	// Sentry
	SentryDSN         string
	SentryEnvironment string

	// Routing
	// Default region for parsing broker phone numbers that lack a
	// country prefix.
	DefaultPhoneRegion string

	// Notifications
	// When set, broker notifications are posted here instead of the log.
	NotifyWebhookURL string

	// Caching
	PipelineCacheTTLMinutes int

	// Jobs
	StatsSnapshotSchedule string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		// API
		APIPort:        getEnv("API_PORT", "8080"),
		APIHost:        getEnv("API_HOST", "0.0.0.0"),
		APIEnvironment: getEnv("API_ENVIRONMENT", "development"),

		// MongoDB
		MongoURL:    getEnv("MONGO_URL", "mongodb://localhost:27017/?replicaSet=rs0"),
		MongoDBName: getEnv("MONGO_DB_NAME", "brokerdesk"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "change-this-in-production"),

		// CORS
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		// Rate Limiting
		RateLimitRequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 120),
		RateLimitBurst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
		PublicRateLimitPerMinute:   getEnvAsInt("PUBLIC_RATE_LIMIT_PER_MINUTE", 10),
		PublicRateLimitBurst:       getEnvAsInt("PUBLIC_RATE_LIMIT_BURST", 3),

		// Sentry
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", getEnv("API_ENVIRONMENT", "development")),

		// Routing
		DefaultPhoneRegion: getEnv("DEFAULT_PHONE_REGION", "BR"),

		// Notifications
		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),

		// Caching
		PipelineCacheTTLMinutes: getEnvAsInt("PIPELINE_CACHE_TTL_MINUTES", 10),

		// Jobs: nightly at 3 AM by default
		StatsSnapshotSchedule: getEnv("STATS_SNAPSHOT_SCHEDULE", "0 3 * * *"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
