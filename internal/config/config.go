/**
 * @description
 * This file handles configuration management for the sync engine. Settings
 * load from environment variables (with an optional .env file for local
 * development), with defaults for everything except the database URL and the
 * token encryption secret.
 */
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the sync engine.
type Config struct {
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	SecretKey               string `mapstructure:"SECRET_KEY"`
	LogLevel                string `mapstructure:"LOG_LEVEL"`
	RunOnce                 string `mapstructure:"RUN_ONCE"`
	SyncDaysBack            int    `mapstructure:"SYNC_DAYS_BACK"`
	SyncIntervalMinutes     int    `mapstructure:"SYNC_INTERVAL_MINUTES"`
	RecoveryIntervalMinutes int    `mapstructure:"RECOVERY_INTERVAL_MINUTES"`
	SyncWorkers             int    `mapstructure:"SYNC_WORKERS"`
	HTTPTimeoutSeconds      int    `mapstructure:"HTTP_TIMEOUT_SECONDS"`
	MercuryAPIBaseURL       string `mapstructure:"MERCURY_API_BASE_URL"`
	MercurySandboxBaseURL   string `mapstructure:"MERCURY_SANDBOX_API_BASE_URL"`
	ServerPort              string `mapstructure:"SERVER_PORT"`
	InternalAPIKey          string `mapstructure:"INTERNAL_API_KEY"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	SyncEventExchange       string `mapstructure:"SYNC_EVENT_EXCHANGE"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisLockPrefix         string `mapstructure:"REDIS_LOCK_PREFIX"`
	SyncLockTTLMinutes      int    `mapstructure:"SYNC_LOCK_TTL_MINUTES"`
}

// LoadConfig reads configuration from the environment, with .env as an
// optional local override source.
func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	// A missing .env is fine; the environment is the source of truth.
	_ = viper.ReadInConfig()

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("RUN_ONCE", "false")
	viper.SetDefault("SYNC_DAYS_BACK", 30)
	viper.SetDefault("SYNC_INTERVAL_MINUTES", 60)
	viper.SetDefault("RECOVERY_INTERVAL_MINUTES", 5)
	viper.SetDefault("SYNC_WORKERS", 1)
	viper.SetDefault("HTTP_TIMEOUT_SECONDS", 30)
	viper.SetDefault("MERCURY_API_BASE_URL", "https://api.mercury.com")
	viper.SetDefault("MERCURY_SANDBOX_API_BASE_URL", "https://api-sandbox.mercury.com")
	viper.SetDefault("SERVER_PORT", "8087")
	viper.SetDefault("SYNC_EVENT_EXCHANGE", "banksync.events")
	viper.SetDefault("REDIS_LOCK_PREFIX", "banksync:lock")
	viper.SetDefault("SYNC_LOCK_TTL_MINUTES", 15)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("SECRET_KEY")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("RUN_ONCE")
	_ = viper.BindEnv("SYNC_DAYS_BACK")
	_ = viper.BindEnv("SYNC_INTERVAL_MINUTES")
	_ = viper.BindEnv("RECOVERY_INTERVAL_MINUTES")
	_ = viper.BindEnv("SYNC_WORKERS")
	_ = viper.BindEnv("HTTP_TIMEOUT_SECONDS")
	_ = viper.BindEnv("MERCURY_API_BASE_URL")
	_ = viper.BindEnv("MERCURY_SANDBOX_API_BASE_URL")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("SYNC_EVENT_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_LOCK_PREFIX")
	_ = viper.BindEnv("SYNC_LOCK_TTL_MINUTES")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.SyncDaysBack <= 0 {
		config.SyncDaysBack = 30
	}
	if config.SyncIntervalMinutes <= 0 {
		config.SyncIntervalMinutes = 60
	}
	if config.RecoveryIntervalMinutes <= 0 {
		config.RecoveryIntervalMinutes = 5
	}
	if config.SyncWorkers <= 0 {
		config.SyncWorkers = 1
	}
	if config.HTTPTimeoutSeconds <= 0 {
		config.HTTPTimeoutSeconds = 30
	}
	if config.SyncLockTTLMinutes <= 0 {
		config.SyncLockTTLMinutes = 15
	}

	return &config, nil
}

// RunOnceEnabled interprets the RUN_ONCE flag the way shell-provided booleans
// arrive: "1", "true", "yes" and "on" enable it, anything else does not.
func (c *Config) RunOnceEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(c.RunOnce)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// SyncInterval returns the tick interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// RecoveryInterval returns the post-failure retry delay as a duration.
func (c *Config) RecoveryInterval() time.Duration {
	return time.Duration(c.RecoveryIntervalMinutes) * time.Minute
}

// HTTPTimeout returns the upstream API client timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// SyncLockTTL returns the distributed tenant lock TTL as a duration.
func (c *Config) SyncLockTTL() time.Duration {
	return time.Duration(c.SyncLockTTLMinutes) * time.Minute
}
