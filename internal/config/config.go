package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration snapshot taken at startup.
// Platform credentials are not part of it; they are read from the settings table.
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	CORSOrigins []string

	DB DBConfig

	JWTSecret string

	MediaRoot     string
	MediaBackend  string
	S3Bucket      string
	AWSRegion     string
	UploadTmpDir  string
	PublicBaseURL string

	AutobotOfficeID uint

	AIAPIKey  string
	AIBaseURL string
	AIModel   string
	AITimeout time.Duration

	AMQPURL      string
	AMQPExchange string

	EnablePollers     bool
	IMAPCheckInterval time.Duration

	EnableTelemetry bool
	OTLPEndpoint    string
	ServiceName     string
	ServiceVersion  string
}

// DBConfig holds postgres connection parameters
type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	TimeZone string
}

// Load builds a Config from the environment
func Load() *Config {
	return &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "production"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		CORSOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		DB: DBConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnvOrDefault("DB_NAME", "commhub"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
			TimeZone: getEnvOrDefault("DB_TIMEZONE", "UTC"),
		},
		JWTSecret:         getEnvOrDefault("JWT_SECRET", "your-secret-key"),
		MediaRoot:         getEnvOrDefault("MEDIA_ROOT", "./media"),
		MediaBackend:      getEnvOrDefault("MEDIA_BACKEND", "local"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		AWSRegion:         getEnvOrDefault("AWS_REGION", "eu-central-1"),
		UploadTmpDir:      getEnvOrDefault("UPLOAD_TMP_DIR", os.TempDir()),
		PublicBaseURL:     strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		AutobotOfficeID:   uint(getIntOrDefault("AUTOBOT_OFFICE_ID", 1)),
		AIAPIKey:          os.Getenv("AI_API_KEY"),
		AIBaseURL:         os.Getenv("AI_BASE_URL"),
		AIModel:           getEnvOrDefault("AI_MODEL", "gpt-4o-mini"),
		AITimeout:         15 * time.Second,
		AMQPURL:           os.Getenv("AMQP_URL"),
		AMQPExchange:      getEnvOrDefault("AMQP_EXCHANGE", "commhub.events"),
		EnablePollers:     getBoolOrDefault("ENABLE_POLLERS", true),
		IMAPCheckInterval: time.Duration(getIntOrDefault("IMAP_CHECK_INTERVAL", 60)) * time.Second,
		EnableTelemetry:   getBoolOrDefault("ENABLE_TELEMETRY", false),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:       getEnvOrDefault("OTEL_SERVICE_NAME", "commhub"),
		ServiceVersion:    getEnvOrDefault("OTEL_SERVICE_VERSION", "dev"),
	}
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
