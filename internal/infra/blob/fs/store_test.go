package fs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"alignercore/internal/blob/core"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := New(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestStorePutGetListDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("expected fs driver")
	}
	info, err := store.Put(ctx, "scans/s1/upper.stl", strings.NewReader("solid upper"), core.PutOptions{
		ContentType: "model/stl",
		Metadata:    map[string]string{"scan_id": "s1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("solid upper")) || len(info.ETag) != 64 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "scans/s1/upper.stl", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "scans", "s1", "upper.stl.meta")); err != nil {
		t.Fatalf("expected sidecar: %v", err)
	}

	got, rc, err := store.Get(ctx, "scans/s1/upper.stl")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "solid upper" || got.ContentType != "model/stl" || got.Metadata["scan_id"] != "s1" {
		t.Fatalf("unexpected blob %q %+v", body, got)
	}

	if _, err := store.Put(ctx, "scans/s2/lower.stl", strings.NewReader("solid lower"), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := store.List(ctx, "scans/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "scans/s1/upper.stl" || list[1].Key != "scans/s2/lower.stl" {
		t.Fatalf("unexpected list %+v", list)
	}
	if only, _ := store.List(ctx, "scans/s2"); len(only) != 1 {
		t.Fatalf("expected prefix filter, got %+v", only)
	}

	if ok, err := store.Delete(ctx, "scans/s1/upper.stl"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "scans/s1/upper.stl"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "scans/s1/upper.stl"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "scans/s1/upper.stl"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
}

func TestStoreRejectsUnsafeKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"../outside", "/abs", "", "scans/a.meta"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestStoreCorruptSidecar(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("v"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Root(), "k.meta"), []byte("{"), 0o600); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, err := store.Head(ctx, "k"); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := store.List(ctx, ""); err == nil {
		t.Fatalf("expected list to surface decode error")
	}
}

func TestSignedURLRoundTrip(t *testing.T) {
	store := newTestStore(t, WithSigningKey([]byte("secret")), WithBaseURL("http://files.test/blobs/"))
	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	ctx := context.Background()
	if _, err := store.PresignURL(ctx, "missing", core.SignedURLOptions{}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Put(ctx, "cases/c1/plan.pdf", strings.NewReader("%PDF-1.7"), core.PutOptions{ContentType: "application/pdf"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	raw, err := store.PresignURL(ctx, "cases/c1/plan.pdf", core.SignedURLOptions{Expiry: time.Minute})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(raw, "http://files.test/blobs/cases/c1/plan.pdf?") {
		t.Fatalf("unexpected url %s", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	srv := httptest.NewServer(http.StripPrefix("/blobs", store.Handler()))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/blobs" + strings.TrimPrefix(u.Path, "/blobs") + "?" + u.RawQuery)
	if err != nil {
		t.Fatalf("get signed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "%PDF-1.7" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	q := u.Query()
	q.Set("signature", strings.Repeat("0", 64))
	resp, err = http.Get(srv.URL + "/blobs/cases/c1/plan.pdf?" + q.Encode())
	if err != nil {
		t.Fatalf("get tampered: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for tampered signature, got %d", resp.StatusCode)
	}

	store.now = func() time.Time { return fixed.Add(2 * time.Minute) }
	if err := store.Verify("cases/c1/plan.pdf", u.Query().Get("expires"), u.Query().Get("signature")); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected expired link to fail, got %v", err)
	}
	if _, err := store.PresignURL(ctx, "cases/c1/plan.pdf", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestNewDefaultsAndRandomKey(t *testing.T) {
	dir := t.TempDir()
	a, err := New(filepath.Join(dir, "a"))
	if err != nil {
		t.Fatalf("new a: %v", err)
	}
	b, err := New(filepath.Join(dir, "b"))
	if err != nil {
		t.Fatalf("new b: %v", err)
	}
	if a.signature("k", 1) == b.signature("k", 1) {
		t.Fatalf("expected independent random signing keys")
	}
}
