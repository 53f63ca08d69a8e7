// Package blob selects and constructs the attachment store backend.
package blob

import (
	"alignercore/internal/blob/core"
	"alignercore/internal/infra/blob/fs"
	"alignercore/internal/infra/blob/memory"
	"alignercore/internal/infra/blob/s3"
	"context"
	"fmt"
	"os"
)

// Config selects a driver and carries its settings.
type Config struct {
	Driver       core.Driver
	FSRoot       string
	FSBaseURL    string
	FSSigningKey string
	S3           s3.Config
}

// Open builds the store named by cfg.Driver. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (core.Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = core.DriverFilesystem
	}
	switch driver {
	case core.DriverFilesystem:
		var opts []fs.Option
		if cfg.FSBaseURL != "" {
			opts = append(opts, fs.WithBaseURL(cfg.FSBaseURL))
		}
		if cfg.FSSigningKey != "" {
			opts = append(opts, fs.WithSigningKey([]byte(cfg.FSSigningKey)))
		}
		return fs.New(cfg.FSRoot, opts...)
	case core.DriverS3:
		return s3.New(ctx, cfg.S3)
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// ConfigFromEnv reads the blob configuration from the environment.
//
//	ALIGNERCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	ALIGNERCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	ALIGNERCORE_BLOB_FS_BASE_URL: public prefix of signed fs links
//	ALIGNERCORE_BLOB_FS_SIGNING_KEY: HMAC key for signed fs links
//	(S3 variables are documented in the s3 driver)
func ConfigFromEnv() Config {
	return Config{
		Driver:       core.Driver(os.Getenv("ALIGNERCORE_BLOB_DRIVER")),
		FSRoot:       os.Getenv("ALIGNERCORE_BLOB_FS_ROOT"),
		FSBaseURL:    os.Getenv("ALIGNERCORE_BLOB_FS_BASE_URL"),
		FSSigningKey: os.Getenv("ALIGNERCORE_BLOB_FS_SIGNING_KEY"),
		S3:           s3.ConfigFromEnv(),
	}
}

// OpenFromEnv is Open(ctx, ConfigFromEnv()).
func OpenFromEnv(ctx context.Context) (core.Store, error) {
	return Open(ctx, ConfigFromEnv())
}
