// Package config loads daemon settings from an optional YAML file and
// ALIGNERCORE_* environment overrides.
package config

import (
	"alignercore/internal/blob"
	blobcore "alignercore/internal/blob/core"
	"alignercore/internal/core"
	"alignercore/internal/infra/blob/s3"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PathEnv names the variable holding the YAML file path.
const PathEnv = "ALIGNERCORE_CONFIG"

// Config is the full daemon configuration.
type Config struct {
	Log       Log       `yaml:"log"`
	Storage   Storage   `yaml:"storage"`
	Blob      Blob      `yaml:"blob"`
	Redis     Redis     `yaml:"redis"`
	HTTP      HTTP      `yaml:"http"`
	Scheduler Scheduler `yaml:"scheduler"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Storage struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type Blob struct {
	Driver       string `yaml:"driver"`
	FSRoot       string `yaml:"fs_root"`
	FSBaseURL    string `yaml:"fs_base_url"`
	FSSigningKey string `yaml:"fs_signing_key"`
	S3           S3     `yaml:"s3"`
}

type S3 struct {
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Redis is optional; an empty address disables change broadcasting.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

// Scheduler controls the periodic replenishment sweep.
type Scheduler struct {
	Interval time.Duration `yaml:"interval"`
	Node     string        `yaml:"node"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Log:       Log{Level: "info", Format: "json"},
		Storage:   Storage{Driver: string(core.StorageSQLite)},
		Blob:      Blob{Driver: string(blobcore.DriverFilesystem)},
		HTTP:      HTTP{Addr: ":8080"},
		Scheduler: Scheduler{Interval: time.Hour},
	}
}

// Load reads path (or $ALIGNERCORE_CONFIG when path is empty) over the
// defaults and then applies environment overrides. A missing path is not an
// error; an unreadable or malformed file is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("ALIGNERCORE_LOG_LEVEL", &c.Log.Level)
	str("ALIGNERCORE_LOG_FORMAT", &c.Log.Format)
	str("ALIGNERCORE_STORAGE_DRIVER", &c.Storage.Driver)
	str("ALIGNERCORE_SQLITE_PATH", &c.Storage.SQLitePath)
	str("ALIGNERCORE_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("ALIGNERCORE_BLOB_DRIVER", &c.Blob.Driver)
	str("ALIGNERCORE_BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("ALIGNERCORE_BLOB_FS_BASE_URL", &c.Blob.FSBaseURL)
	str("ALIGNERCORE_BLOB_FS_SIGNING_KEY", &c.Blob.FSSigningKey)
	str("ALIGNERCORE_BLOB_S3_REGION", &c.Blob.S3.Region)
	str("ALIGNERCORE_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("ALIGNERCORE_BLOB_S3_PREFIX", &c.Blob.S3.Prefix)
	str("ALIGNERCORE_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	str("ALIGNERCORE_REDIS_ADDR", &c.Redis.Addr)
	str("ALIGNERCORE_REDIS_PASSWORD", &c.Redis.Password)
	str("ALIGNERCORE_REDIS_CHANNEL", &c.Redis.Channel)
	str("ALIGNERCORE_HTTP_ADDR", &c.HTTP.Addr)
	str("ALIGNERCORE_NODE", &c.Scheduler.Node)

	if v, ok := lookup("ALIGNERCORE_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ALIGNERCORE_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	if v, ok := lookup("ALIGNERCORE_REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ALIGNERCORE_REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	if v, ok := lookup("ALIGNERCORE_SCHEDULER_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ALIGNERCORE_SCHEDULER_INTERVAL: %w", err)
		}
		c.Scheduler.Interval = d
	}
	return nil
}

// Validate rejects settings that cannot be opened.
func (c Config) Validate() error {
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires a dsn")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch blobcore.Driver(c.Blob.Driver) {
	case blobcore.DriverFilesystem, blobcore.DriverMemory:
	case blobcore.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("s3 blob driver requires a bucket")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Scheduler.Interval < 0 {
		return fmt.Errorf("scheduler interval must not be negative")
	}
	return nil
}

// StorageOptions maps the storage section to the core store factory.
func (c Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobConfig maps the blob section to the blob factory. S3 credentials come
// from the default AWS chain.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver:       blobcore.Driver(c.Blob.Driver),
		FSRoot:       c.Blob.FSRoot,
		FSBaseURL:    c.Blob.FSBaseURL,
		FSSigningKey: c.Blob.FSSigningKey,
		S3: s3.Config{
			Region:    c.Blob.S3.Region,
			Bucket:    c.Blob.S3.Bucket,
			Prefix:    c.Blob.S3.Prefix,
			Endpoint:  c.Blob.S3.Endpoint,
			PathStyle: c.Blob.S3.PathStyle,
		},
	}
}
