package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	CORSAllowedOrigins []string

	QBTURL      string
	QBTUsername string
	QBTPassword string
	QBTTimeout  time.Duration

	MonitorInterval  time.Duration
	MonitorAutostart bool
	PauseResumeDelay time.Duration // 0 = resume immediately
	OptimizeInterval time.Duration // 0 = optimizer only on demand

	UploadLimitHigh   int64 // bytes/s, 0 = unlimited
	UploadLimitNormal int64
	UploadLimitLow    int64

	MongoURI      string // empty = no alert history
	MongoDatabase string
	RedisURL      string // empty = no shared stats cache
	StatsCacheTTL time.Duration

	AlertWebhookURL   string // empty = no notifications
	AlertWebhookToken string

	OTLPEndpoint    string
	TraceSampleRate float64
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8075"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),

		QBTURL:      getEnv("QBT_URL", "http://localhost:8080"),
		QBTUsername: getEnv("QBT_USERNAME", ""),
		QBTPassword: getEnv("QBT_PASSWORD", ""),
		QBTTimeout:  time.Duration(getEnvInt64("QBT_TIMEOUT_SECONDS", 10)) * time.Second,

		MonitorInterval:  time.Duration(getEnvInt64("MONITOR_INTERVAL_SECONDS", 30)) * time.Second,
		MonitorAutostart: getEnvBool("MONITOR_AUTOSTART", true),
		PauseResumeDelay: time.Duration(getEnvInt64("MONITOR_PAUSE_RESUME_DELAY_MS", 2000)) * time.Millisecond,
		OptimizeInterval: time.Duration(getEnvInt64("OPTIMIZE_INTERVAL_MINUTES", 0)) * time.Minute,

		UploadLimitHigh:   getEnvInt64("UPLOAD_LIMIT_HIGH", 0),
		UploadLimitNormal: getEnvInt64("UPLOAD_LIMIT_NORMAL", 0),
		UploadLimitLow:    getEnvInt64("UPLOAD_LIMIT_LOW", 0),

		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DB", "seedwarden"),
		RedisURL:      getEnv("REDIS_URL", ""),
		StatsCacheTTL: time.Duration(getEnvInt64("STATS_CACHE_TTL_SECONDS", 10)) * time.Second,

		AlertWebhookURL:   getEnv("ALERT_WEBHOOK_URL", ""),
		AlertWebhookToken: getEnv("ALERT_WEBHOOK_TOKEN", ""),

		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRate: getEnvFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
