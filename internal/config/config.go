// Package config loads runtime settings from the environment (BLOODSYNC_*
// variables, optionally seeded from a .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "BLOODSYNC"

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Log      LogConfig      `mapstructure:"log"`
	Events   EventsConfig   `mapstructure:"events"`
	ID       IDConfig       `mapstructure:"id"`
	Seed     SeedConfig     `mapstructure:"seed"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type DynamoDBConfig struct {
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	TablePrefix string `mapstructure:"table_prefix"`
}

type BlobConfig struct {
	Driver string       `mapstructure:"driver"`
	FSRoot string       `mapstructure:"fs_root"`
	S3     BlobS3Config `mapstructure:"s3"`
}

type BlobS3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type EventsConfig struct {
	Driver        string `mapstructure:"driver"`
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type IDConfig struct {
	Scheme string `mapstructure:"scheme"`
}

type SeedConfig struct {
	Inventory bool `mapstructure:"inventory"`
}

var defaults = map[string]any{
	"http.addr":             ":8080",
	"http.mode":             "release",
	"http.read_timeout":     "15s",
	"http.write_timeout":    "15s",
	"http.shutdown_timeout": "10s",
	"storage.driver":        "memory",
	"sqlite.path":           "bloodsync.db",
	"postgres.dsn":          "",
	"dynamodb.region":       "ap-south-1",
	"dynamodb.endpoint":     "",
	"dynamodb.table_prefix": "BloodSync_",
	"blob.driver":           "fs",
	"blob.fs_root":          "./data/blobs",
	"blob.s3.bucket":        "",
	"blob.s3.region":        "ap-south-1",
	"blob.s3.prefix":        "",
	"blob.s3.endpoint":      "",
	"blob.s3.path_style":    false,
	"log.level":             "info",
	"log.format":            "json",
	"events.driver":         "none",
	"events.nats_url":       "",
	"events.subject_prefix": "bloodsync",
	"id.scheme":             "prefixed",
	"seed.inventory":        true,
}

// Load reads .env files (default ".env"; missing files are skipped), then
// the BLOODSYNC_* environment, and validates the result. Variables already
// set in the environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Blob.Driver = strings.ToLower(strings.TrimSpace(c.Blob.Driver))
	c.Events.Driver = strings.ToLower(strings.TrimSpace(c.Events.Driver))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.ID.Scheme = strings.ToLower(strings.TrimSpace(c.ID.Scheme))
	c.HTTP.Mode = strings.ToLower(strings.TrimSpace(c.HTTP.Mode))
}

// Validate rejects unknown drivers and missing required settings.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory", "sqlite", "dynamodb":
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("BLOODSYNC_POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "memory", "fs":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("BLOODSYNC_BLOB_S3_BUCKET is required for the s3 blob driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	switch c.Events.Driver {
	case "none", "memory":
	case "nats":
		if c.Events.NATSURL == "" {
			errs = append(errs, errors.New("BLOODSYNC_EVENTS_NATS_URL is required for the nats events driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events driver %q", c.Events.Driver))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	switch c.ID.Scheme {
	case "prefixed", "numeric":
	default:
		errs = append(errs, fmt.Errorf("unknown id scheme %q", c.ID.Scheme))
	}
	switch c.HTTP.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("unknown http mode %q", c.HTTP.Mode))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("BLOODSYNC_HTTP_SHUTDOWN_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}
