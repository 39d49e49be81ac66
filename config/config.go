package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Provider ProviderConfig
	AWS      AWSConfig
	Quota    QuotaConfig
	Worker   WorkerConfig
	Webhook  WebhookConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// ProviderConfig selects and configures the video room provider.
// Vendor is "daily" or "livekit".
type ProviderConfig struct {
	Vendor  string
	Daily   DailyConfig
	LiveKit LiveKitConfig
}

// DailyConfig holds Daily.co REST API settings.
type DailyConfig struct {
	APIKey  string
	BaseURL string
}

// LiveKitConfig holds LiveKit server settings.
type LiveKitConfig struct {
	APIKey    string
	APISecret string
	URL       string
}

// AWSConfig holds AWS credentials and the recordings bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// QuotaConfig holds plan enforcement settings.
type QuotaConfig struct {
	// UnrestrictedTenantID bypasses all plan limits when it matches a
	// meeting's tenant. Zero UUID disables the bypass.
	UnrestrictedTenantID uuid.UUID
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	SweepIntervalSec int
}

// WebhookConfig holds inbound webhook verification settings.
type WebhookConfig struct {
	Secret string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	unrestrictedTenant := uuid.Nil
	if v := os.Getenv("QUOTA_UNRESTRICTED_TENANT_ID"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid QUOTA_UNRESTRICTED_TENANT_ID: %w", err)
		}
		unrestrictedTenant = parsed
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/meetings?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "meetings"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Provider: ProviderConfig{
			Vendor: getEnv("VIDEO_PROVIDER", "daily"),
			Daily: DailyConfig{
				APIKey:  getEnv("DAILY_API_KEY", ""),
				BaseURL: getEnv("DAILY_BASE_URL", "https://api.daily.co/v1"),
			},
			LiveKit: LiveKitConfig{
				APIKey:    getEnv("LIVEKIT_API_KEY", ""),
				APISecret: getEnv("LIVEKIT_API_SECRET", ""),
				URL:       getEnv("LIVEKIT_URL", ""),
			},
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", "meeting-recordings-bucket"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Quota: QuotaConfig{
			UnrestrictedTenantID: unrestrictedTenant,
		},
		Worker: WorkerConfig{
			SweepIntervalSec: getEnvInt("SWEEP_INTERVAL_SEC", 60),
		},
		Webhook: WebhookConfig{
			Secret: getEnv("WEBHOOK_SECRET", ""),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
