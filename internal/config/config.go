package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// StorageConfig selects the artifact store backend.
// Backend is "local" (UploadDir on disk) or "minio".
type StorageConfig struct {
	Backend   string
	UploadDir string
	MinIO     MinIOConfig
}

// LimitsConfig bounds the upload parameters accepted by the gateway.
type LimitsConfig struct {
	MaxFileSize         int64
	DefaultMaxDownloads int
	MaxDownloadsLimit   int
	DefaultExpiryHours  int
	MaxExpiryHours      int
}

// ReclaimConfig drives the background reclamation scheduler.
type ReclaimConfig struct {
	SweepInterval       time.Duration
	MaintenanceInterval time.Duration
	StatsInterval       time.Duration
	PurgeRetention      time.Duration
	ReconcileGrace      time.Duration
	RedisURL            string
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost  string
	Port     string
	Timezone string
	Log      LogConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Limits   LimitsConfig
	Reclaim  ReclaimConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:  getEnv("APP_HOST", "localhost:8080"),
		Port:     getEnv("PORT", "8080"),
		Timezone: getEnv("APP_TIMEZONE", "UTC"),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Storage: StorageConfig{
			Backend:   getEnv("STORAGE_BACKEND", "local"),
			UploadDir: getEnv("UPLOAD_DIR", "./uploads"),
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", ""),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
		},
		Limits: LimitsConfig{
			MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 50<<20),
			DefaultMaxDownloads: getEnvInt("DEFAULT_MAX_DOWNLOADS", 1),
			MaxDownloadsLimit:   getEnvInt("MAX_DOWNLOADS_LIMIT", 100),
			DefaultExpiryHours:  getEnvInt("DEFAULT_EXPIRY_HOURS", 24),
			MaxExpiryHours:      getEnvInt("MAX_EXPIRY_HOURS", 168),
		},
		Reclaim: ReclaimConfig{
			SweepInterval:       time.Duration(getEnvInt("CLEANUP_INTERVAL_HOURS", 1)) * time.Hour,
			MaintenanceInterval: time.Duration(getEnvInt("MAINTENANCE_INTERVAL_HOURS", 24)) * time.Hour,
			StatsInterval:       time.Duration(getEnvInt("STATS_INTERVAL_HOURS", 6)) * time.Hour,
			PurgeRetention:      time.Duration(getEnvInt("PURGE_RETENTION_DAYS", 30)) * 24 * time.Hour,
			ReconcileGrace:      time.Duration(getEnvInt("RECONCILE_GRACE_MINUTES", 15)) * time.Minute,
			RedisURL:            getEnv("REDIS_URL", ""),
		},
	}
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil && i > 0 {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil && i > 0 {
			return i
		}
	}
	return def
}
