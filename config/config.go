// Package config loads server settings from file, environment and defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server. Tags use mapstructure
// for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"` // empty selects the in-memory rate limiter
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	// IssuerDomain hosts the machine-facing session URLs; AuthPageURL is the
	// hosted login page users are redirected to.
	IssuerDomain string `mapstructure:"ISSUER_DOMAIN"`
	AuthPageURL  string `mapstructure:"AUTH_PAGE_URL"`

	RateLimitMaxRequests int `mapstructure:"RATE_LIMIT_MAX_REQUESTS"`
	RateLimitWindowSec   int `mapstructure:"RATE_LIMIT_WINDOW_SEC"`
}

// LoadConfig reads configuration from file, environment variables, and
// defaults, in that order of increasing precedence for env over file.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/oauthd/")
	v.AddConfigPath("$HOME/.oauthd")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/oauthd_dev")
	v.SetDefault("MONGO_DB_NAME", "oauthd_dev")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("ISSUER_DOMAIN", "auth.example.com")
	v.SetDefault("AUTH_PAGE_URL", "https://auth.example.com/login")
	v.SetDefault("RATE_LIMIT_MAX_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SEC", 60)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &cfg, nil
}
