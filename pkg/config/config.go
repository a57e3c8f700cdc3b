package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix for environment variable overrides, e.g.
	// PROFILEDB_DATABASE_DRIVER overrides database.driver.
	EnvPrefix = "PROFILEDB"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultDatabaseDriver is the default database driver.
	DefaultDatabaseDriver = "sqlite"

	// DefaultSQLitePath is the default SQLite database file.
	DefaultSQLitePath = "./profiledb.db"

	// DefaultQueryTimeout bounds every single statement.
	DefaultQueryTimeout = 5 * time.Second

	// DefaultSerializer is the default payload serialization format.
	DefaultSerializer = "json"

	// DefaultExtraTagEnv is the environment variable read for extra_tag.
	DefaultExtraTagEnv = "PROFILEDB_EXTRA_TAG"

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"
)

// Config is the root configuration for profiledb.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Capture  CaptureConfig  `yaml:"capture" mapstructure:"capture"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	Archive  ArchiveConfig  `yaml:"archive,omitempty" mapstructure:"archive"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// CaptureConfig controls how runs are written.
type CaptureConfig struct {
	// Serializer is either "json" or "msgpack". It applies to the profile
	// payload and to the GET/COOKIE/POST snapshots.
	Serializer string `yaml:"serializer" mapstructure:"serializer"`
	// SavePost stores the POST snapshot verbatim. When false a fixed
	// placeholder is stored instead.
	SavePost bool `yaml:"save_post" mapstructure:"save_post"`
	// ServerID identifies the tenant that writes runs.
	ServerID string `yaml:"server_id" mapstructure:"server_id"`
	// ExtraTagEnv names the environment variable whose value is stored as
	// extra_tag at save time.
	ExtraTagEnv string `yaml:"extra_tag_env" mapstructure:"extra_tag_env"`
}

// defaults returns the flattened default values registered with viper. Every
// key must be listed here for environment overrides to be picked up.
func defaults() map[string]any {
	return map[string]any{
		"global.log_level": DefaultLogLevel,

		"database.driver":            DefaultDatabaseDriver,
		"database.query_timeout":     DefaultQueryTimeout.String(),
		"database.sqlite.path":       DefaultSQLitePath,
		"database.postgres.host":     "localhost",
		"database.postgres.port":     5432,
		"database.postgres.user":     "",
		"database.postgres.password": "",
		"database.postgres.database": "profiledb",
		"database.postgres.ssl_mode": "disable",

		"capture.serializer":    DefaultSerializer,
		"capture.save_post":     false,
		"capture.server_id":     "",
		"capture.extra_tag_env": DefaultExtraTagEnv,

		"api.listen":                         DefaultListen,
		"api.cors_origins":                   []string{},
		"api.rate_limit.enabled":             false,
		"api.rate_limit.requests_per_minute": 600,

		"archive.prefix":               "runs",
		"archive.concurrency":          4,
		"archive.local.enabled":        false,
		"archive.local.dir":            "",
		"archive.local.owner":          "",
		"archive.s3.enabled":           false,
		"archive.s3.endpoint_url":      "",
		"archive.s3.region":            "",
		"archive.s3.bucket":            "",
		"archive.s3.access_key_id":     "",
		"archive.s3.secret_access_key": "",
		"archive.s3.force_path_style":  false,
		"archive.s3.storage_class":     "",
	}
}

// Load reads the configuration file at path (optional, may be empty),
// applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills values that may have been blanked by the file.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = DefaultQueryTimeout
	}

	if c.Capture.Serializer == "" {
		c.Capture.Serializer = DefaultSerializer
	}

	if c.API.Listen == "" {
		c.API.Listen = DefaultListen
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Database.QueryTimeout < 0 {
		return fmt.Errorf("database.query_timeout must not be negative")
	}

	if !isValidSerializer(c.Capture.Serializer) {
		return fmt.Errorf("unknown capture.serializer %q", c.Capture.Serializer)
	}

	if c.API.RateLimit.Enabled && c.API.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("api.rate_limit.requests_per_minute must be positive")
	}

	return c.Archive.Validate()
}

// validSerializers is the list of supported payload formats.
var validSerializers = map[string]struct{}{
	"json":    {},
	"msgpack": {},
}

func isValidSerializer(name string) bool {
	_, ok := validSerializers[name]

	return ok
}

// Dump renders the configuration as YAML with secrets masked.
func (c *Config) Dump() ([]byte, error) {
	masked := *c
	if masked.Database.Postgres.Password != "" {
		masked.Database.Postgres.Password = "********"
	}

	if masked.Archive.S3.SecretAccessKey != "" {
		masked.Archive.S3.SecretAccessKey = "********"
	}

	out, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("marshalling config: %w", err)
	}

	return out, nil
}
