// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Storage drivers for resumable game state.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config is read from the environment once at startup. A .env file is loaded first by the binaries.
type Config struct {
	Env            string   `env:"COURTS_ENV" envDefault:"development"`
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL   string `env:"DATABASE_URL"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"courts.db"`

	RedisAddr          string `env:"REDIS_ADDR"`
	RedisDB            int    `env:"REDIS_DB" envDefault:"0"`
	HistorianQueueName string `env:"HISTORIAN_QUEUE_NAME" envDefault:"courts_actions"`
	HistorianBatchSize int    `env:"HISTORIAN_BATCH_SIZE" envDefault:"100"`
	HistorianFlushMS   int    `env:"HISTORIAN_FLUSH_MS" envDefault:"500"`

	// TokenExpireTime is "never", "0" or a time.ParseDuration string.
	TokenExpireTime string `env:"TOKEN_EXPIRE_TIME" envDefault:"72h"`
	PrivateKeyPath  string `env:"JWT_PRIVATE_KEY_PATH"`
	PublicKeyPath   string `env:"JWT_PUBLIC_KEY_PATH"`

	StartingHP    int           `env:"STARTING_HP" envDefault:"60"`
	AutoMoveDelay time.Duration `env:"AUTO_MOVE_DELAY" envDefault:"3s"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the env tags cannot express.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORAGE_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.StartingHP < 1 {
		return fmt.Errorf("STARTING_HP must be positive, got %d", c.StartingHP)
	}
	if c.AutoMoveDelay < 0 {
		return fmt.Errorf("AUTO_MOVE_DELAY must not be negative")
	}
	if _, err := c.TokenTTL(); err != nil {
		return err
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// TokenTTL returns the session token lifetime; zero means tokens never expire.
func (c Config) TokenTTL() (time.Duration, error) {
	switch c.TokenExpireTime {
	case "", "0", "never":
		return 0, nil
	}
	d, err := time.ParseDuration(c.TokenExpireTime)
	if err != nil {
		return 0, fmt.Errorf("parse TOKEN_EXPIRE_TIME: %w", err)
	}
	return d, nil
}

// HistorianFlushInterval is HistorianFlushMS as a duration.
func (c Config) HistorianFlushInterval() time.Duration {
	return time.Duration(c.HistorianFlushMS) * time.Millisecond
}

// NewLogger builds the process logger at the configured level.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logger.Warnf("unknown LOG_LEVEL %q, using info", c.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if c.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}
