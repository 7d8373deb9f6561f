package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"    validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RedisConfig contains the event bus connection settings, including the
// bounded retry used while waiting for the subscriber connection to
// become ready at startup.
type RedisConfig struct {
	Addr          string        `mapstructure:"addr"           validate:"required"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"required,gte=1"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"    validate:"required"`
}
