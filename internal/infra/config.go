package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFiles are read by LoadEnvFiles when no file is named.
var DefaultEnvFiles = []string{".env", ".env.local"}

// LoadEnvFiles reads dotenv files into the process environment. Missing
// files are skipped and variables already set are never overwritten.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	DatabaseURL       string
	SQLitePath        string
	StoragePath       string
	StorageBaseURL    string
	NATSURL           string
	NATSSubject       string
	GeoIPDBPath       string
	StylizeConfigPath string
	DefaultLocale     string
	WorkerCount       int
	QueueSize         int
	ResultJPEGQuality int
	MaxUploadBytes    int64
	CORSOrigins       []string
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	ShutdownTimeout   time.Duration
	RateLimitPerMin   int
}

// UsePostgres reports whether jobs are stored in PostgreSQL rather than SQLite.
func (c *Config) UsePostgres() bool {
	return c != nil && c.DatabaseURL != ""
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              port,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SQLitePath:        getEnv("SQLITE_PATH", "data/cartoonify.db"),
		StoragePath:       getEnv("STORAGE_PATH", "media"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubject:       getEnv("NATS_SUBJECT", "cartoonify"),
		GeoIPDBPath:       os.Getenv("GEOIP_DB_PATH"),
		StylizeConfigPath: os.Getenv("STYLIZE_CONFIG_PATH"),
		DefaultLocale:     getEnv("DEFAULT_LOCALE", "en"),
		WorkerCount:       getEnvInt("WORKER_COUNT", 2),
		QueueSize:         getEnvInt("QUEUE_SIZE", 32),
		ResultJPEGQuality: getEnvInt("RESULT_JPEG_QUALITY", 95),
		MaxUploadBytes:    int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		CORSOrigins:       splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		ShutdownTimeout:   time.Second * time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.StorageBaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.StorageBaseURL); err != nil {
			return nil, fmt.Errorf("STORAGE_BASE_URL is invalid: %w", err)
		}
		cfg.StorageBaseURL = strings.TrimRight(cfg.StorageBaseURL, "/")
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1, got %d", cfg.WorkerCount)
	}
	if cfg.QueueSize < 0 {
		return nil, fmt.Errorf("QUEUE_SIZE must not be negative, got %d", cfg.QueueSize)
	}
	if cfg.ResultJPEGQuality < 1 || cfg.ResultJPEGQuality > 100 {
		return nil, fmt.Errorf("RESULT_JPEG_QUALITY must be within 1..100, got %d", cfg.ResultJPEGQuality)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
