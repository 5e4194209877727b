// Package config loads all runtime configuration from environment
// variables, with a .env file honored in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Tier selects the upload size ceiling for an account class.
type Tier string

const (
	TierFree    Tier = "free"
	TierGeneral Tier = "general"
)

const (
	FreeTierMaxBytes    = 5 * 1024 * 1024
	GeneralTierMaxBytes = 100 * 1024 * 1024
)

// Config holds all application configuration.
type Config struct {
	// Service
	ServicePort string
	ServiceName string

	// Upload policy
	Tier             Tier
	MaxFileSizeBytes int64 // 0 means "use the tier ceiling"
	MaxRetries       int
	RetryDelay       time.Duration
	ChunkSizeMB      int

	// Per-attempt timeouts by backend class
	SDKTimeout   time.Duration
	HTTPTimeout  time.Duration
	LocalTimeout time.Duration

	// MinIO
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool

	// Raw HTTP object store (S3-compatible REST endpoint)
	HTTPStoreBaseURL string
	HTTPStoreToken   string
	HTTPStoreBucket  string

	// Ledger database (MySQL-compatible)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis stats cache
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Local durable store
	LocalStorePath string

	// Tracing
	OTLPEndpoint string
}

// Load reads configuration from a .env file (if present) and environment
// variables with sensible defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServicePort: getEnv("SERVICE_PORT", "8080"),
		ServiceName: getEnv("SERVICE_NAME", "cloudvault"),

		Tier:             Tier(getEnv("UPLOAD_TIER", string(TierGeneral))),
		MaxFileSizeBytes: getEnvAsInt64("MAX_FILE_SIZE_BYTES", 0),
		MaxRetries:       getEnvAsInt("UPLOAD_MAX_RETRIES", 3),
		RetryDelay:       getEnvAsDuration("UPLOAD_RETRY_DELAY", time.Second),
		ChunkSizeMB:      getEnvAsInt("CHUNK_SIZE_MB", 1),

		SDKTimeout:   getEnvAsDuration("SDK_ATTEMPT_TIMEOUT", 120*time.Second),
		HTTPTimeout:  getEnvAsDuration("HTTP_ATTEMPT_TIMEOUT", 30*time.Second),
		LocalTimeout: getEnvAsDuration("LOCAL_ATTEMPT_TIMEOUT", 30*time.Second),

		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucketName: getEnv("MINIO_BUCKET_NAME", "cloud-vault-files"),
		MinIOUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),

		HTTPStoreBaseURL: getEnv("HTTP_STORE_BASE_URL", ""),
		HTTPStoreToken:   getEnv("HTTP_STORE_TOKEN", ""),
		HTTPStoreBucket:  getEnv("HTTP_STORE_BUCKET", "cloud-vault-files"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "cloudvault"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		LocalStorePath: getEnv("LOCAL_STORE_PATH", "./data/cloudvault.db"),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "http://localhost:4318"),
	}

	if cfg.Tier != TierFree && cfg.Tier != TierGeneral {
		return nil, fmt.Errorf("unknown upload tier: %q", cfg.Tier)
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("UPLOAD_MAX_RETRIES must be >= 1, got %d", cfg.MaxRetries)
	}

	return cfg, nil
}

// SizeCeilingBytes returns the effective upload ceiling: an explicit
// MAX_FILE_SIZE_BYTES wins, otherwise the tier default.
func (c *Config) SizeCeilingBytes() int64 {
	if c.MaxFileSizeBytes > 0 {
		return c.MaxFileSizeBytes
	}
	if c.Tier == TierFree {
		return FreeTierMaxBytes
	}
	return GeneralTierMaxBytes
}

// GetDSN returns the ledger database connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
	)
}

// GetRedisAddr returns the Redis address.
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// GetChunkSizeBytes returns chunk size in bytes.
func (c *Config) GetChunkSizeBytes() int64 {
	return int64(c.ChunkSizeMB) * 1024 * 1024
}

// Helper functions
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
