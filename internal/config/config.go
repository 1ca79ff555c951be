// Package config loads catalog configuration from POPCATALOG_* environment
// variables.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"
)

// Config is the full process configuration.
type Config struct {
	Storage Storage
	Archive Archive
	Log     Log
	// ParameterCodec encodes parameter documents: json or cbor.
	ParameterCodec string `env:"POPCATALOG_PARAMETER_CODEC" envDefault:"json"`
	// FlattenWorkers bounds the goroutines flattening one result array.
	FlattenWorkers int `env:"POPCATALOG_FLATTEN_WORKERS" envDefault:"4"`
	// BulkBatchSize is the row count sent per bulk insert call.
	BulkBatchSize int `env:"POPCATALOG_BULK_BATCH_SIZE" envDefault:"5000"`
	// LocalLanguage is the BCP 47 tag of the local description text.
	LocalLanguage string `env:"POPCATALOG_LOCAL_LANGUAGE" envDefault:"da"`
}

// Storage selects the catalog backend.
type Storage struct {
	Driver      string `env:"POPCATALOG_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"POPCATALOG_SQLITE_PATH" envDefault:"popcatalog.db"`
	PostgresDSN string `env:"POPCATALOG_POSTGRES_DSN"`
}

// Archive selects the object store for exported parameter documents.
type Archive struct {
	Driver      string `env:"POPCATALOG_ARCHIVE_DRIVER" envDefault:"fs"`
	FSRoot      string `env:"POPCATALOG_ARCHIVE_FS_ROOT" envDefault:"./archive"`
	S3Bucket    string `env:"POPCATALOG_ARCHIVE_S3_BUCKET"`
	S3Region    string `env:"POPCATALOG_ARCHIVE_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"POPCATALOG_ARCHIVE_S3_ENDPOINT"`
	S3PathStyle bool   `env:"POPCATALOG_ARCHIVE_S3_PATH_STYLE" envDefault:"false"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `env:"POPCATALOG_LOG_LEVEL" envDefault:"info"`
	Format string `env:"POPCATALOG_LOG_FORMAT" envDefault:"text"`
}

// Load parses the environment into a validated Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and out-of-range sizes.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("POPCATALOG_POSTGRES_DSN required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Archive.Driver {
	case "fs", "memory":
	case "s3":
		if c.Archive.S3Bucket == "" {
			return fmt.Errorf("POPCATALOG_ARCHIVE_S3_BUCKET required for s3 driver")
		}
	default:
		return fmt.Errorf("unknown archive driver %q", c.Archive.Driver)
	}
	switch strings.ToLower(c.ParameterCodec) {
	case "json", "cbor":
	default:
		return fmt.Errorf("unknown parameter codec %q", c.ParameterCodec)
	}
	if c.FlattenWorkers < 1 {
		return fmt.Errorf("flatten workers must be positive, got %d", c.FlattenWorkers)
	}
	if c.BulkBatchSize < 1 {
		return fmt.Errorf("bulk batch size must be positive, got %d", c.BulkBatchSize)
	}
	if _, err := c.LocalTag(); err != nil {
		return err
	}
	return nil
}

// LocalTag parses LocalLanguage.
func (c Config) LocalTag() (language.Tag, error) {
	tag, err := language.Parse(c.LocalLanguage)
	if err != nil {
		return language.Und, fmt.Errorf("local language %q: %w", c.LocalLanguage, err)
	}
	return tag, nil
}
