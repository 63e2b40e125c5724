package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr     string
	LogLevel string

	RedisURL    string
	DatabaseURL string

	// Admission control defaults: 10 requests per day for callers with no
	// usable credential.
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
	RateLimitFailOpen    bool

	MaxRequestDuration time.Duration

	OpenAIBaseURL string
	OllamaBaseURL string

	AWSRegion     string
	SecretsPrefix string
	SNSTopicARN   string

	OTLPEndpoint string

	HiddenProviders []string

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	// optional .env for local development; absence is not an error
	_ = godotenv.Load()

	cfg := &Config{
		Addr:                 getEnv("ADDR", ":8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		RedisURL:             getEnv("REDIS_URL", ""),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RateLimitMaxRequests: getIntEnv("RATE_LIMIT_MAX_REQUESTS", 10),
		RateLimitWindow:      getDurationEnv("RATE_LIMIT_WINDOW", 24*time.Hour),
		RateLimitFailOpen:    getEnv("RATE_LIMIT_FAIL_OPEN", "false") == "true",
		MaxRequestDuration:   getDurationEnv("MAX_REQUEST_DURATION", 60*time.Second),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		OllamaBaseURL:        getEnv("OLLAMA_BASE_URL", ""),
		AWSRegion:            getEnv("AWS_REGION", ""),
		SecretsPrefix:        getEnv("SECRETS_PREFIX", ""),
		SNSTopicARN:          getEnv("SNS_TOPIC_ARN", ""),
		OTLPEndpoint:         getEnv("OTLP_ENDPOINT", ""),
		HiddenProviders:      getListEnv("HIDDEN_PROVIDERS"),
		ShutdownTimeout:      getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
