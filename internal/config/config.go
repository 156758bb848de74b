// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds every environment-driven setting shared by the server and
// the historian. Mains load .env through godotenv/autoload before calling Load.
type Config struct {
	Port     string
	LogLevel logrus.Level

	GracePeriod     time.Duration
	TokenExpireTime string
	TokenPrivateKey string
	TokenPublicKey  string

	// RedisAddr empty disables round history publishing.
	RedisAddr string
	RedisDB   int

	HistorianQueue     string
	HistorianBatchSize int
	HistorianFlush     time.Duration

	DatabaseURL string
}

// DefaultQueueName is the Redis list settled rounds are pushed to.
const DefaultQueueName = "closemaster_rounds"

// Load reads the environment. Malformed numbers fall back to defaults; a
// malformed log level or duration is an error.
func Load() (Config, error) {
	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		TokenExpireTime:    getEnv("TOKEN_EXPIRE_TIME", "24h"),
		TokenPrivateKey:    os.Getenv("TOKEN_PRIVATE_KEY_PATH"),
		TokenPublicKey:     os.Getenv("TOKEN_PUBLIC_KEY_PATH"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		HistorianQueue:     getEnv("HISTORIAN_QUEUE_NAME", DefaultQueueName),
		HistorianBatchSize: getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:     time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		DatabaseURL:        databaseURL(),
	}

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	cfg.GracePeriod, err = getEnvDuration("GRACE_PERIOD", 60*time.Second)
	if err != nil {
		return Config{}, err
	}
	if cfg.GracePeriod <= 0 {
		return Config{}, fmt.Errorf("GRACE_PERIOD must be positive, got %s", cfg.GracePeriod)
	}
	if cfg.HistorianBatchSize < 1 {
		cfg.HistorianBatchSize = 1
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from the
// individual PG* style variables.
func databaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	host := os.Getenv("DB_HOST")
	if host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DB_USER", "postgres"),
		os.Getenv("DB_PASSWORD"),
		host,
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "closemaster"),
	)
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
