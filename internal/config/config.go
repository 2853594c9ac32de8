package config

import "time"

// Config holds client configuration values.
type Config struct {
	APIBaseURL     string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	WSBaseURL      string        `mapstructure:"ws_base_url" yaml:"ws_base_url"`
	Token          string        `mapstructure:"token" yaml:"token"`
	CachePath      string        `mapstructure:"cache_path" yaml:"cache_path"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		APIBaseURL:     "http://127.0.0.1:8000",
		WSBaseURL:      "ws://127.0.0.1:8000",
		CachePath:      "collabchat.db",
		LogLevel:       "info",
		RequestTimeout: 10 * time.Second,
		DialTimeout:    5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.WSBaseURL != "" {
		c.WSBaseURL = other.WSBaseURL
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.CachePath != "" {
		c.CachePath = other.CachePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
}
