package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL     string `yaml:"database_url"`
	RedisURL        string `yaml:"redis_url"`
	ServerPort      string `yaml:"server_port"`
	MigrationsPath  string `yaml:"migrations_path"`
	UserAgent       string `yaml:"user_agent"`
	Timeout         string `yaml:"timeout"`
	ProxyEndpoint   string `yaml:"proxy_endpoint"`
	ProxyTimeout    string `yaml:"proxy_timeout"`
	ProxyUserAgent  string `yaml:"proxy_user_agent"`
	ProxyRateLimit  int    `yaml:"proxy_rate_limit"`
	ChannelPageSize int    `yaml:"channel_page_size"`
	Classifier      string `yaml:"classifier"`
	LogLevel        string `yaml:"log_level"`
}

// LoadFromFile loads config from a YAML file. Unset keys keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c := Defaults()
	override(&c.DatabaseURL, f.DatabaseURL)
	override(&c.RedisURL, f.RedisURL)
	override(&c.ServerPort, f.ServerPort)
	override(&c.MigrationsPath, f.MigrationsPath)
	override(&c.UserAgent, f.UserAgent)
	override(&c.ProxyEndpoint, f.ProxyEndpoint)
	override(&c.ProxyUserAgent, f.ProxyUserAgent)
	override(&c.Classifier, f.Classifier)
	override(&c.LogLevel, f.LogLevel)
	if f.ProxyRateLimit > 0 {
		c.ProxyRateLimit = f.ProxyRateLimit
	}
	if f.ChannelPageSize > 0 {
		c.ChannelPageSize = f.ChannelPageSize
	}
	if c.Timeout, err = parseDuration("timeout", f.Timeout, c.Timeout); err != nil {
		return nil, err
	}
	if c.ProxyTimeout, err = parseDuration("proxy_timeout", f.ProxyTimeout, c.ProxyTimeout); err != nil {
		return nil, err
	}
	return c, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func parseDuration(key, v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
