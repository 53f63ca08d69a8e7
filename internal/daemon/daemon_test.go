package daemon

import (
	blobcore "alignercore/internal/blob/core"
	"alignercore/internal/config"
	"alignercore/pkg/domain"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func memoryConfig() config.Config {
	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	cfg.Blob.Driver = "memory"
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Scheduler.Interval = 0
	cfg.Scheduler.Node = "test-node"
	return cfg
}

func newApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	app, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestSweepUpdatesMetrics(t *testing.T) {
	app := newApp(t, memoryConfig())
	alerts, err := app.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts on empty store, got %d", len(alerts))
	}
	if got := testutil.ToFloat64(app.sweeps); got != 1 {
		t.Fatalf("expected 1 sweep, got %v", got)
	}
	if got := testutil.ToFloat64(app.alerts.WithLabelValues(string(domain.AlertOverdue))); got != 0 {
		t.Fatalf("expected zero overdue gauge, got %v", got)
	}
}

func TestHandlerServesMetricsAndHealth(t *testing.T) {
	app := newApp(t, memoryConfig())
	if _, _, err := app.Service.CreateClinic(context.Background(), domain.Clinic{Name: "Downtown"}); err != nil {
		t.Fatalf("create clinic: %v", err)
	}
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	body := get(t, srv.URL+"/healthz", http.StatusOK)
	if strings.TrimSpace(body) != "ok" {
		t.Fatalf("unexpected health body %q", body)
	}
	body = get(t, srv.URL+"/metrics", http.StatusOK)
	if !strings.Contains(body, `alignercore_service_operations_total{operation="create_clinic",status="success"} 1`) {
		t.Fatalf("operation counter missing from metrics:\n%s", body)
	}
	get(t, srv.URL+"/blobs/anything", http.StatusNotFound)
}

func TestHandlerServesSignedFilesystemLinks(t *testing.T) {
	cfg := memoryConfig()
	cfg.Blob.Driver = "fs"
	cfg.Blob.FSRoot = t.TempDir()
	cfg.Blob.FSBaseURL = "http://alignerd.local/blobs"
	cfg.Blob.FSSigningKey = "test-key"
	app := newApp(t, cfg)
	ctx := context.Background()
	if _, err := app.blobs.Put(ctx, "cases/c1/plan.pdf", bytes.NewReader([]byte("plan")), blobcore.PutOptions{ContentType: "application/pdf"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	link, err := app.blobs.PresignURL(ctx, "cases/c1/plan.pdf", blobcore.SignedURLOptions{Method: http.MethodGet})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()
	if body := get(t, srv.URL+u.RequestURI(), http.StatusOK); body != "plan" {
		t.Fatalf("unexpected body %q", body)
	}
	get(t, srv.URL+u.Path+"?expires=1&signature=bad", http.StatusForbidden)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := memoryConfig()
	cfg.Scheduler.Interval = time.Hour
	app := newApp(t, cfg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(app.sweeps) < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("initial sweep did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestNodesShareCommitsOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	path := filepath.Join(t.TempDir(), "shared.db")
	mk := func(node string) config.Config {
		cfg := memoryConfig()
		cfg.Storage.Driver = "sqlite"
		cfg.Storage.SQLitePath = path
		cfg.Redis.Addr = mr.Addr()
		cfg.Scheduler.Node = node
		return cfg
	}
	writer, err := New(context.Background(), mk("a"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer func() { _ = writer.Close() }()
	reader := newApp(t, mk("b"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := reader.follow(ctx); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if _, _, err := writer.Service.CreateClinic(ctx, domain.Clinic{Name: "Uptown"}); err != nil {
		t.Fatalf("create clinic: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		var n int
		_ = reader.Service.Store().View(ctx, func(v domain.TransactionView) error {
			n = len(v.ListClinics())
			return nil
		})
		if n == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("reader never saw the clinic committed by the writer")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewRejectsUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	cfg := memoryConfig()
	cfg.Redis.Addr = addr
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected redis connection error")
	}
}

func get(t *testing.T, target string, want int) string {
	t.Helper()
	resp, err := http.Get(target)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("GET %s: status %d, want %d (%s)", target, resp.StatusCode, want, body)
	}
	return string(body)
}
