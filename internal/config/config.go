package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	// Redis Config
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`
	RedisPool int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// Webhook Config
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookBaseDelay  time.Duration `env:"WEBHOOK_BASE_DELAY" envDefault:"1s"`

	// API Keys - служебный доступ (первичная настройка superadmin)
	APIKeys []string `env:"API_KEYS"`

	// Auth Config
	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"1h"`

	// Правила дедупликации и верификации
	UpvoteThreshold        int           `env:"UPVOTE_THRESHOLD" envDefault:"1"`
	DuplicateRadiusDegrees float64       `env:"DUPLICATE_RADIUS_DEGREES" envDefault:"0.001"`
	DuplicateWindow        time.Duration `env:"DUPLICATE_WINDOW" envDefault:"5m"`
	DedupLockTTL           time.Duration `env:"DEDUP_LOCK_TTL" envDefault:"10s"`

	// Media Config
	MediaMaxFiles     int    `env:"MEDIA_MAX_FILES" envDefault:"5"`
	MediaMaxFileBytes int64  `env:"MEDIA_MAX_FILE_BYTES" envDefault:"52428800"`
	UploadDir         string `env:"UPLOAD_DIR" envDefault:"uploads"`

	// MinIO Config. Если MINIO_ENDPOINT пуст, файлы пишутся в UploadDir
	MinioEndpoint   string `env:"MINIO_ENDPOINT"`
	MinioAccessKey  string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey  string `env:"MINIO_SECRET_KEY"`
	MinioBucket     string `env:"MINIO_BUCKET" envDefault:"incident-media"`
	MinioUseSSL     bool   `env:"MINIO_USE_SSL"`
	MinioPublicBase string `env:"MINIO_PUBLIC_BASE"`

	// Geocoder Config
	GeocoderURL       string        `env:"GEOCODER_URL" envDefault:"https://nominatim.openstreetmap.org"`
	GeocoderTimeout   time.Duration `env:"GEOCODER_TIMEOUT" envDefault:"3s"`
	GeocoderUserAgent string        `env:"GEOCODER_USER_AGENT" envDefault:"incident-reporting-system/1.0"`
	GeocodeCacheTTL   time.Duration `env:"GEOCODE_CACHE_TTL" envDefault:"24h"`

	// Cache / read models
	IncidentCacheTTL time.Duration `env:"INCIDENT_CACHE_TTL" envDefault:"5m"`
	LeaderboardSize  int           `env:"LEADERBOARD_SIZE" envDefault:"5"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		DBMaxConns:        int32(getEnvAsInt("DB_MAX_CONNS", 10)),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvAsInt("REDIS_DB", 0),
		RedisPool:         getEnvAsInt("REDIS_POOL_SIZE", 10),
		WebhookURL:        os.Getenv("WEBHOOK_URL"),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout:    getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries: getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookBaseDelay:  getEnvAsDuration("WEBHOOK_BASE_DELAY", time.Second),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTTTL:    getEnvAsDuration("JWT_TTL", time.Hour),

		UpvoteThreshold:        getEnvAsInt("UPVOTE_THRESHOLD", 1),
		DuplicateRadiusDegrees: getEnvAsFloat("DUPLICATE_RADIUS_DEGREES", 0.001),
		DuplicateWindow:        getEnvAsDuration("DUPLICATE_WINDOW", 5*time.Minute),
		DedupLockTTL:           getEnvAsDuration("DEDUP_LOCK_TTL", 10*time.Second),

		MediaMaxFiles:     getEnvAsInt("MEDIA_MAX_FILES", 5),
		MediaMaxFileBytes: getEnvAsInt64("MEDIA_MAX_FILE_BYTES", 50*1024*1024),
		UploadDir:         getEnv("UPLOAD_DIR", "uploads"),

		MinioEndpoint:   os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     getEnv("MINIO_BUCKET", "incident-media"),
		MinioUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),
		MinioPublicBase: os.Getenv("MINIO_PUBLIC_BASE"),

		GeocoderURL:       getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		GeocoderTimeout:   getEnvAsDuration("GEOCODER_TIMEOUT", 3*time.Second),
		GeocoderUserAgent: getEnv("GEOCODER_USER_AGENT", "incident-reporting-system/1.0"),
		GeocodeCacheTTL:   getEnvAsDuration("GEOCODE_CACHE_TTL", 24*time.Hour),

		IncidentCacheTTL: getEnvAsDuration("INCIDENT_CACHE_TTL", 5*time.Minute),
		LeaderboardSize:  getEnvAsInt("LEADERBOARD_SIZE", 5),
	}

	// Загрузка API ключей
	apiKeysStr := os.Getenv("API_KEYS")
	if apiKeysStr != "" {
		cfg.APIKeys = strings.Split(apiKeysStr, ",")
		for i, key := range cfg.APIKeys {
			cfg.APIKeys[i] = strings.TrimSpace(key)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.UpvoteThreshold < 1 {
		return nil, fmt.Errorf("UPVOTE_THRESHOLD must be at least 1, got %d", cfg.UpvoteThreshold)
	}
	if cfg.DuplicateRadiusDegrees <= 0 || cfg.DuplicateRadiusDegrees > MaxDuplicateRadiusDegrees {
		return nil, fmt.Errorf("DUPLICATE_RADIUS_DEGREES must be in (0, %g], got %g",
			MaxDuplicateRadiusDegrees, cfg.DuplicateRadiusDegrees)
	}
	if cfg.DedupLockTTL < time.Millisecond {
		return nil, fmt.Errorf("DEDUP_LOCK_TTL must be at least 1ms, got %s", cfg.DedupLockTTL)
	}

	return cfg, nil
}

// MaxDuplicateRadiusDegrees ограничивает радиус поиска дубликатов: блокировка
// берет ключ на каждую ячейку сетки 0.01° внутри квадрата поиска.
const MaxDuplicateRadiusDegrees = 0.05

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
