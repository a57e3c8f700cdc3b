package config

import (
	"fmt"
	"time"
)

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver       string               `yaml:"driver" mapstructure:"driver"`
	QueryTimeout time.Duration        `yaml:"query_timeout" mapstructure:"query_timeout"`
	SQLite       SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres     PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// DSN renders the libpq-style connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host,
		p.Port,
		p.User,
		p.Password,
		p.Database,
		p.SSLMode,
	)
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// ArchiveConfig configures where exported run documents are written.
// Only one backend (S3 or local) may be enabled at a time.
type ArchiveConfig struct {
	Prefix      string             `yaml:"prefix,omitempty" mapstructure:"prefix"`
	Concurrency int                `yaml:"concurrency" mapstructure:"concurrency"`
	S3          S3ArchiveConfig    `yaml:"s3,omitempty" mapstructure:"s3"`
	Local       LocalArchiveConfig `yaml:"local,omitempty" mapstructure:"local"`
}

// LocalArchiveConfig writes exported runs below a directory.
type LocalArchiveConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
	// Owner optionally chowns written files, as "UID:GID".
	Owner string `yaml:"owner,omitempty" mapstructure:"owner"`
}

// S3ArchiveConfig contains S3 settings for archive uploads.
type S3ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
}

// Enabled reports whether any archive backend is configured.
func (a *ArchiveConfig) Enabled() bool {
	return a.S3.Enabled || a.Local.Enabled
}

// Validate checks the archive configuration.
func (a *ArchiveConfig) Validate() error {
	if a.S3.Enabled && a.Local.Enabled {
		return fmt.Errorf("archive: only one of s3 or local may be enabled")
	}

	if a.S3.Enabled && a.S3.Bucket == "" {
		return fmt.Errorf("archive.s3.bucket is required")
	}

	if a.Concurrency < 0 {
		return fmt.Errorf("archive.concurrency must not be negative")
	}

	if a.Local.Enabled && a.Local.Dir == "" {
		return fmt.Errorf("archive.local.dir is required")
	}

	return nil
}
