package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds process configuration for the issuer service.
type Config struct {
	HTTPAddr    string       `yaml:"http_addr"`
	DatabaseURL string       `yaml:"database_url"`
	JWTSecret   string       `yaml:"jwt_secret"`
	Issuer      IssuerConfig `yaml:"issuer"`
	Worker      WorkerConfig `yaml:"worker"`
	Notify      NotifyConfig `yaml:"notify"`
	Log         LogConfig    `yaml:"log"`
}

// IssuerConfig points at the blockchain issuer service.
type IssuerConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// WorkerConfig tunes the outbox worker.
type WorkerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	BatchSize   int           `yaml:"batch_size"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// NotifyConfig enables the issuance webhook. An empty WebhookURL disables it.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Template   string        `yaml:"template"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LogConfig controls logger output.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Issuer: IssuerConfig{
			Timeout: 10 * time.Second,
		},
		Worker: WorkerConfig{
			Interval:    time.Second,
			BatchSize:   50,
			MaxAttempts: 5,
		},
		Notify: NotifyConfig{Timeout: 10 * time.Second},
		Log:    LogConfig{Level: "info"},
	}
}

// Load builds configuration from defaults, an optional YAML file and env
// overrides, then validates it. An empty path falls back to IREC_CONFIG.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("IREC_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.Issuer.BaseURL = getenvDefault("ISSUER_BASE_URL", cfg.Issuer.BaseURL)
	cfg.Issuer.Token = getenvDefault("ISSUER_TOKEN", cfg.Issuer.Token)
	cfg.Issuer.Timeout = getenvDuration("ISSUER_TIMEOUT", cfg.Issuer.Timeout)
	cfg.Worker.Interval = getenvDuration("WORKER_INTERVAL", cfg.Worker.Interval)
	cfg.Worker.BatchSize = getenvIntDefault("WORKER_BATCH_SIZE", cfg.Worker.BatchSize)
	cfg.Worker.MaxAttempts = getenvIntDefault("WORKER_MAX_ATTEMPTS", cfg.Worker.MaxAttempts)
	cfg.Notify.WebhookURL = getenvDefault("NOTIFY_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.Timeout = getenvDuration("NOTIFY_TIMEOUT", cfg.Notify.Timeout)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
}

// Validate checks required settings.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("config: http_addr required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("config: jwt_secret required"))
	}
	if c.Issuer.BaseURL != "" {
		if u, err := url.Parse(c.Issuer.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: invalid issuer.base_url %q", c.Issuer.BaseURL))
		}
	}
	if c.Notify.WebhookURL != "" {
		if u, err := url.Parse(c.Notify.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: invalid notify.webhook_url %q", c.Notify.WebhookURL))
		}
	}
	if c.Issuer.Timeout <= 0 {
		errs = append(errs, errors.New("config: issuer.timeout must be positive"))
	}
	if c.Worker.Interval <= 0 {
		errs = append(errs, errors.New("config: worker.interval must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, errors.New("config: worker.batch_size must be positive"))
	}
	if c.Worker.MaxAttempts <= 0 {
		errs = append(errs, errors.New("config: worker.max_attempts must be positive"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log.level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
