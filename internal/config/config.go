package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env
	AppEnv  string

	// Storage
	StoreDriver string
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Auth
	JwtSecret         string
	SessionCookieName string
	DevAuthHeader     bool

	// Server
	ApiPort           string
	ServiceApiPort    string
	CorsAllowedOrigin string

	// Logging
	LogLevel  string
	LogFormat string

	// Chat
	ChatMaxTextLength   int
	ChatMaxAttachments  int
	ChatDefaultPageSize int
	ChatMaxPageSize     int
	ChatReminderDelay   time.Duration
	ListingCacheTTL     time.Duration
	RealtimeRedisRelay  bool

	// Email
	MockServices    bool
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string
	EmailLogFile    string

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	ImageBaseS3URL     string

	// App Defaults
	AppName    string
	WebBaseURL string

	// Rate Limiting
	RateLimitSendBurst     int
	RateLimitSendPerSecond float64
}

// IsProduction reports whether the service runs with production semantics.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production") || strings.EqualFold(c.AppEnv, "prod")
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getBool := func(key string, defaultValue bool) (bool, error) {
		raw := getEnv(key, strconv.FormatBool(defaultValue))
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return false, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	getSeconds := func(key, defaultValue string) (time.Duration, error) {
		secs, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(secs) * time.Second, nil
	}

	cfg.AppEnv = getEnv("APP_ENV", "development")
	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMongo))
	switch cfg.StoreDriver {
	case StoreDriverMongo:
		cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
		if err != nil {
			return nil, err
		}
	case StoreDriverMemory:
		cfg.MongoURI = getEnv("MONGO_URI", "")
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER: %q", cfg.StoreDriver)
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "l1")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.SessionCookieName = getEnv("SESSION_COOKIE_NAME", "l1_session")
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.CorsAllowedOrigin = getEnv("CORS_ALLOWED_ORIGIN", "*")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "json")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@l1.example.com")
	cfg.EmailLogFile = getEnv("EMAIL_LOG_FILE", "")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.ImageBaseS3URL = strings.TrimRight(getEnv("IMAGE_BASE_S3_URL", ""), "/")
	cfg.AppName = getEnv("APP_NAME", "L1")
	cfg.WebBaseURL = strings.TrimRight(getEnv("WEB_BASE_URL", "http://localhost:3000"), "/")

	if cfg.DevAuthHeader, err = getBool("DEV_AUTH_HEADER", false); err != nil {
		return nil, err
	}
	if cfg.RealtimeRedisRelay, err = getBool("REALTIME_REDIS_RELAY", false); err != nil {
		return nil, err
	}
	if cfg.MockServices, err = getBool("MOCK_SERVICES", false); err != nil {
		return nil, err
	}

	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg.ChatMaxTextLength, err = strconv.Atoi(getEnv("CHAT_MAX_TEXT_LENGTH", "2000"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_MAX_TEXT_LENGTH: %w", err)
	}

	cfg.ChatMaxAttachments, err = strconv.Atoi(getEnv("CHAT_MAX_ATTACHMENTS", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_MAX_ATTACHMENTS: %w", err)
	}

	cfg.ChatDefaultPageSize, err = strconv.Atoi(getEnv("CHAT_DEFAULT_PAGE_SIZE", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_DEFAULT_PAGE_SIZE: %w", err)
	}

	cfg.ChatMaxPageSize, err = strconv.Atoi(getEnv("CHAT_MAX_PAGE_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_MAX_PAGE_SIZE: %w", err)
	}

	if cfg.ChatReminderDelay, err = getSeconds("CHAT_REMINDER_DELAY_SECONDS", "900"); err != nil {
		return nil, err
	}
	if cfg.ListingCacheTTL, err = getSeconds("LISTING_CACHE_TTL_SECONDS", "300"); err != nil {
		return nil, err
	}

	cfg.RateLimitSendBurst, err = strconv.Atoi(getEnv("RATE_LIMIT_SEND_BURST", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SEND_BURST: %w", err)
	}
	cfg.RateLimitSendPerSecond, err = strconv.ParseFloat(getEnv("RATE_LIMIT_SEND_PER_SECOND", "2"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SEND_PER_SECOND: %w", err)
	}

	if cfg.DevAuthHeader && cfg.IsProduction() {
		return nil, fmt.Errorf("DEV_AUTH_HEADER cannot be enabled when APP_ENV=%s", cfg.AppEnv)
	}

	return cfg, nil
}
