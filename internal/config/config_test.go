package config

import (
	blobcore "alignercore/internal/blob/core"
	"alignercore/internal/core"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alignercore.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(PathEnv, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Blob.Driver != "fs" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Scheduler.Interval != time.Hour || cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
storage:
  driver: memory
blob:
  driver: s3
  s3:
    bucket: scans
    path_style: true
redis:
  addr: localhost:6379
scheduler:
  interval: 15m
`)
	t.Setenv("ALIGNERCORE_LOG_FORMAT", "console")
	t.Setenv("ALIGNERCORE_BLOB_S3_PREFIX", "clinic-a/")
	t.Setenv("ALIGNERCORE_REDIS_DB", "2")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Fatalf("log section %+v", cfg.Log)
	}
	if cfg.Scheduler.Interval != 15*time.Minute {
		t.Fatalf("interval %v", cfg.Scheduler.Interval)
	}
	if cfg.Redis.DB != 2 || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("redis section %+v", cfg.Redis)
	}
	bc := cfg.BlobConfig()
	if bc.Driver != blobcore.DriverS3 || bc.S3.Bucket != "scans" || bc.S3.Prefix != "clinic-a/" || !bc.S3.PathStyle {
		t.Fatalf("blob config %+v", bc)
	}
	if cfg.StorageOptions().Driver != core.StorageMemory {
		t.Fatalf("storage options %+v", cfg.StorageOptions())
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Setenv(PathEnv, "")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
	if _, err := Load(writeFile(t, "storage: [")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(writeFile(t, "storage:\n  driver: postgres\n")); err == nil || !strings.Contains(err.Error(), "dsn") {
		t.Fatalf("expected dsn error, got %v", err)
	}
	if _, err := Load(writeFile(t, "blob:\n  driver: gcs\n")); err == nil {
		t.Fatalf("expected unknown blob driver error")
	}
	t.Setenv("ALIGNERCORE_SCHEDULER_INTERVAL", "soon")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected interval parse error")
	}
}

func TestApplyEnvParsesTypedValues(t *testing.T) {
	env := map[string]string{
		"ALIGNERCORE_BLOB_S3_PATH_STYLE": "nope",
	}
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if err == nil {
		t.Fatalf("expected path style parse error")
	}
	env = map[string]string{"ALIGNERCORE_STORAGE_DRIVER": "  postgres ", "ALIGNERCORE_POSTGRES_DSN": "postgres://x"}
	cfg = Default()
	if err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Validate() != nil {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
}
