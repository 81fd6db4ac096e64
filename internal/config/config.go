// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting. Command-line flags override the
// database, listen address, log path and admin username.
type Config struct {
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBPath   string `env:"DB_PATH" envDefault:"zaloga.sqlite3"`
	DBDSN    string `env:"DB_DSN"`

	Addr      string `env:"ADDR" envDefault:":8080"`
	LogPath   string `env:"LOG_PATH"`
	AdminUser string `env:"ADMIN_USER" envDefault:"Admin"`

	// JWTSecret overrides the secret stored in the settings table.
	JWTSecret string `env:"JWT_SECRET"`

	BorrowPeriod   time.Duration `env:"BORROW_PERIOD" envDefault:"336h"`
	UploadMaxBytes int64         `env:"UPLOAD_MAX_BYTES" envDefault:"10485760"`

	Blob BlobConfig `envPrefix:"BLOB_"`

	OTelEndpoint   string `env:"OTEL_ENDPOINT"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

// BlobConfig selects and configures the blob store backend.
type BlobConfig struct {
	Driver string `env:"DRIVER" envDefault:"fs"`
	FSRoot string `env:"FS_ROOT" envDefault:"uploads"`

	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3PathStyle bool   `env:"S3_PATH_STYLE"`

	GCSBucket string `env:"GCS_BUCKET"`
}

// Prefix is prepended to every environment variable name.
const Prefix = "ZALOGA_"

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse(env.Options{Prefix: Prefix})
}

// Parse builds a Config from the environment using opts.
func Parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite":
	case "pgx":
		if c.DBDSN == "" {
			return fmt.Errorf("%sDB_DSN is required for the pgx driver", Prefix)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.DBDriver)
	}

	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3Bucket == "" {
			return fmt.Errorf("%sBLOB_S3_BUCKET is required for the s3 driver", Prefix)
		}
	case "gcs":
		if c.Blob.GCSBucket == "" {
			return fmt.Errorf("%sBLOB_GCS_BUCKET is required for the gcs driver", Prefix)
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}

	if c.BorrowPeriod <= 0 {
		return fmt.Errorf("borrow period must be positive")
	}
	return nil
}
