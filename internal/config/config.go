package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	log "github.com/sirupsen/logrus"
)

// Config holds application configuration
type Config struct {
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBLogLevel string

	JWTSecret string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	ListingCacheTTL time.Duration

	NatsURL string

	ReviewEditWindow time.Duration
	PageSize         int
	CORSOrigins      []string
}

// Load reads configuration from the environment. A .env file in the working
// directory is picked up automatically.
func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "storytime"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBLogLevel: getEnv("DB_LOG_LEVEL", "warn"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		ListingCacheTTL: getEnvDuration("LISTING_CACHE_TTL", 300*time.Second),

		NatsURL: getEnv("NATS_URL", ""),

		ReviewEditWindow: getEnvDuration("REVIEW_EDIT_WINDOW", 30*time.Minute),
		PageSize:         getEnvInt("PAGE_SIZE", 20),
		CORSOrigins:      strings.Split(getEnv("CORS_ORIGINS", "*"), ","),
	}

	if cfg.PageSize < 1 {
		log.WithField("page_size", cfg.PageSize).Warn("invalid PAGE_SIZE, falling back to 20")
		cfg.PageSize = 20
	}

	return cfg
}

// Validate reports settings the server must not start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET must be set")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("invalid integer in environment")
		return defaultValue
	}
	return intValue
}

// getEnvDuration accepts Go duration strings ("5m") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("invalid duration in environment")
		return defaultValue
	}
	return d
}
