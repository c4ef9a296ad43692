package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrMissingDatabaseURL is returned when no database is configured and the
// in-memory store was not requested.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required (set it or use --memory)")

// DefaultProxyUserAgent is the browser-like identity the stream proxy presents upstream.
const DefaultProxyUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds application configuration.
type Config struct {
	DatabaseURL    string        `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL       string        `yaml:"redis_url" env:"REDIS_URL"`
	ServerPort     string        `yaml:"server_port" env:"SERVER_PORT"`
	MigrationsPath string        `yaml:"migrations_path" env:"MIGRATIONS_PATH"`
	UserAgent      string        `yaml:"user_agent" env:"FETCHER_USER_AGENT"`
	Timeout        time.Duration `yaml:"timeout" env:"FETCHER_TIMEOUT"`

	ProxyEndpoint  string        `yaml:"proxy_endpoint" env:"PROXY_ENDPOINT"`
	ProxyTimeout   time.Duration `yaml:"proxy_timeout" env:"PROXY_TIMEOUT"`
	ProxyUserAgent string        `yaml:"proxy_user_agent" env:"PROXY_USER_AGENT"`
	ProxyRateLimit int           `yaml:"proxy_rate_limit" env:"PROXY_RATE_LIMIT"` // requests per minute per IP, 0 = off

	ChannelPageSize int    `yaml:"channel_page_size" env:"CHANNEL_PAGE_SIZE"`
	Classifier      string `yaml:"classifier" env:"PARSER_CLASSIFIER"` // "group" or "group+url"
	LogLevel        string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Defaults returns a Config with every optional field set.
func Defaults() *Config {
	return &Config{
		ServerPort:      "8080",
		MigrationsPath:  "migrations",
		UserAgent:       "iptvdeck/1.0",
		Timeout:         30 * time.Second,
		ProxyEndpoint:   "/api/stream/proxy",
		ProxyTimeout:    10 * time.Second,
		ProxyUserAgent:  DefaultProxyUserAgent,
		ChannelPageSize: 50,
		Classifier:      "group",
		LogLevel:        "info",
	}
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries .env.local and .env first.
// The database requirement is enforced by Validate, not here.
func Load() *Config {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := Defaults()
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.ServerPort, "SERVER_PORT")
	setString(&c.MigrationsPath, "MIGRATIONS_PATH")
	setString(&c.UserAgent, "FETCHER_USER_AGENT")
	setDuration(&c.Timeout, "FETCHER_TIMEOUT")
	setString(&c.ProxyEndpoint, "PROXY_ENDPOINT")
	setDuration(&c.ProxyTimeout, "PROXY_TIMEOUT")
	setString(&c.ProxyUserAgent, "PROXY_USER_AGENT")
	setInt(&c.ProxyRateLimit, "PROXY_RATE_LIMIT")
	setInt(&c.ChannelPageSize, "CHANNEL_PAGE_SIZE")
	setString(&c.Classifier, "PARSER_CLASSIFIER")
	setString(&c.LogLevel, "LOG_LEVEL")
	return c
}

// Validate checks cross-field requirements. memory reports whether the
// in-memory store replaces PostgreSQL.
func (c *Config) Validate(memory bool) error {
	if !memory && c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.ProxyTimeout <= 0 {
		return errors.New("proxy_timeout must be positive")
	}
	if c.ChannelPageSize <= 0 || c.ChannelPageSize > 200 {
		return errors.New("channel_page_size must be between 1 and 200")
	}
	switch c.Classifier {
	case "", "group", "group+url":
	default:
		return fmt.Errorf("classifier %q: want group or group+url", c.Classifier)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
