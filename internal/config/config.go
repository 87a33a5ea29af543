// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the immutable process configuration, read once at startup.
type Config struct {
	Port string

	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	ModelURL     string
	ModelTimeout time.Duration

	ImageWidth  int
	ImageHeight int
	JPEGQuality int

	ClassLabels []string
}

// Load reads the configuration from the environment, applying defaults for
// everything but credentials.
func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBName:     getEnv("DB_NAME", "prediagnostic_db"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "xray-cases"),
		MinioUseSSL:    os.Getenv("MINIO_USE_SSL") == "true",

		ModelURL:     getEnv("MODEL_URL", "http://localhost:8501"),
		ModelTimeout: getDuration("MODEL_TIMEOUT_MS", 10000),

		ImageWidth:  getInt("IMAGE_WIDTH", 500),
		ImageHeight: getInt("IMAGE_HEIGHT", 720),
		JPEGQuality: getInt("JPEG_QUALITY", 95),

		ClassLabels: getList("CLASS_LABELS", []string{
			"No Pneumonia",
			"Viral Pneumonia",
			"Bacterial Pneumonia",
		}),
	}
}

// DatabaseDSN builds the postgres DSN from the DB_* settings.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallbackMS int) time.Duration {
	return time.Duration(getInt(key, fallbackMS)) * time.Millisecond
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
