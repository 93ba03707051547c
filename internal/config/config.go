package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port            string        `envconfig:"APP_PORT" default:"8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	DBURL      string `envconfig:"DB_URL"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"settlement"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int    `envconfig:"DB_MAX_CONNS" default:"8"`

	AutoMigrate bool `envconfig:"AUTO_MIGRATE" default:"true"`

	JWTSecret string `envconfig:"JWT_SECRET"`

	// Empty disables the Idempotency-Key middleware.
	RedisURL       string        `envconfig:"REDIS_URL"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	NotifyWebhookURL string `envconfig:"NOTIFY_WEBHOOK_URL"`
	NotifyWorkers    int    `envconfig:"NOTIFY_WORKERS" default:"4"`

	FeeTablePath string `envconfig:"FEE_TABLE_PATH"`
}

// LoadConfig reads config.env when present, then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load("config.env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.DBURL == "" {
		cfg.DBURL = cfg.buildDBURL()
	}
	if cfg.DBMaxConns <= 0 {
		cfg.DBMaxConns = 8
	}
	if cfg.NotifyWorkers <= 0 {
		cfg.NotifyWorkers = 1
	}
	return &cfg, nil
}

func (c *Config) buildDBURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}
