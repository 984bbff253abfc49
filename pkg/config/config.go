package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Environment string `yaml:"environment"`
	ServerPort  int    `yaml:"server_port"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	DBDriver    string `yaml:"db_driver"`
	DatabaseURL string `yaml:"database_url"`
	DBMigrate   bool   `yaml:"db_migrate"`
	RedisURL    string `yaml:"redis_url"`

	AccessTokenSecret  string        `yaml:"access_token_secret"`
	RefreshTokenSecret string        `yaml:"refresh_token_secret"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `yaml:"refresh_token_ttl"`
	PasswordHasher     string        `yaml:"password_hasher"`
	BcryptCost         int           `yaml:"bcrypt_cost"`

	CookieSecure       bool          `yaml:"cookie_secure"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	LoginMaxFailures   int           `yaml:"login_max_failures"`
	LoginLockoutWindow time.Duration `yaml:"login_lockout_window"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Development secrets, refused by Validate outside development.
const (
	devAccessSecret  = "dev-access-secret-change-me"
	devRefreshSecret = "dev-refresh-secret-change-me"
)

func defaults() *Config {
	return &Config{
		Environment:        "development",
		ServerPort:         4000,
		LogLevel:           "info",
		LogFormat:          "json",
		DBDriver:           "sqlite3",
		DatabaseURL:        "file:tenantauth.db?_busy_timeout=5000",
		DBMigrate:          true,
		AccessTokenSecret:  devAccessSecret,
		RefreshTokenSecret: devRefreshSecret,
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		PasswordHasher:     "bcrypt",
		BcryptCost:         10,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		RateLimitPerMinute: 100,
		LoginMaxFailures:   5,
		LoginLockoutWindow: 15 * time.Minute,
	}
}

// Load reads configuration in three layers: built-in defaults, then the
// YAML file named by CONFIG_FILE (if any), then environment variables.
// A .env file in the working directory is loaded into the environment
// first; variables already set win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	setString(&cfg.Environment, "ENVIRONMENT")
	errs = append(errs, setInt(&cfg.ServerPort, "SERVER_PORT"))
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")

	setString(&cfg.DBDriver, "DB_DRIVER")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	errs = append(errs, setBool(&cfg.DBMigrate, "DB_MIGRATE"))
	setString(&cfg.RedisURL, "REDIS_URL")

	setString(&cfg.AccessTokenSecret, "ACCESS_TOKEN_SECRET")
	setString(&cfg.RefreshTokenSecret, "REFRESH_TOKEN_SECRET")
	errs = append(errs,
		setDuration(&cfg.AccessTokenTTL, "ACCESS_TOKEN_TTL"),
		setDuration(&cfg.RefreshTokenTTL, "REFRESH_TOKEN_TTL"),
	)
	setString(&cfg.PasswordHasher, "PASSWORD_HASHER")
	errs = append(errs, setInt(&cfg.BcryptCost, "BCRYPT_COST"))

	errs = append(errs, setBool(&cfg.CookieSecure, "COOKIE_SECURE"))
	cfg.CORSAllowedOrigins = parseCSVEnv("CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)
	errs = append(errs,
		setInt(&cfg.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE"),
		setInt(&cfg.LoginMaxFailures, "LOGIN_MAX_FAILURES"),
		setDuration(&cfg.LoginLockoutWindow, "LOGIN_LOCKOUT_WINDOW"),
	)
	setString(&cfg.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	return errors.Join(errs...)
}

// Validate rejects configurations the server cannot run safely with
func (c *Config) Validate() error {
	var errs []error
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT %d out of range", c.ServerPort))
	}
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite3" {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite3, got %q", c.DBDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required"))
	} else if c.AccessTokenSecret == c.RefreshTokenSecret {
		errs = append(errs, errors.New("access and refresh token secrets must differ"))
	}
	if !c.IsDevelopment() && (c.AccessTokenSecret == devAccessSecret || c.RefreshTokenSecret == devRefreshSecret) {
		errs = append(errs, errors.New("token secrets must be set outside development"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.PasswordHasher != "bcrypt" && c.PasswordHasher != "argon2id" {
		errs = append(errs, fmt.Errorf("PASSWORD_HASHER must be bcrypt or argon2id, got %q", c.PasswordHasher))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the server runs in the development environment
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setString(dst *string, key string) {
	*dst = getEnv(key, *dst)
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
