package internal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/vaultgate/internal/history"
	"github.com/starford/vaultgate/internal/sse"
	"github.com/starford/vaultgate/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func fsConfig(t *testing.T) (*Config, string) {
	t.Helper()
	dir, store := testutil.TestVault(t)
	if err := store.Put(context.Background(), "inbox/note.md", "# Note\n"); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	cfg.Upstream.Backend = BackendFS
	cfg.Upstream.Path = dir
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg, dir
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("Run without config should fail")
	}
	if err := RunMCP(context.Background()); err == nil {
		t.Fatal("RunMCP without config should fail")
	}
}

func TestNewStore_RejectsUnknownBackend(t *testing.T) {
	if _, _, err := newStore(UpstreamConfig{Backend: "s3"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewStore_REST(t *testing.T) {
	store, root, err := newStore(UpstreamConfig{Backend: BackendREST, URL: "http://127.0.0.1:27123", APIKey: "k"})
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	if store == nil || root != "" {
		t.Errorf("store = %v, root = %q", store, root)
	}
}

func TestBuild_FSBackend(t *testing.T) {
	cfg, dir := fsConfig(t)
	ctx := context.Background()

	rt, err := build(ctx, cfg, quietLogger(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer rt.Close()

	if rt.fsRoot != dir {
		t.Errorf("fsRoot = %q, want %q", rt.fsRoot, dir)
	}
	body, err := rt.svc.Get(ctx, "inbox/note.md")
	if err != nil || body != "# Note\n" {
		t.Fatalf("Get = %q, %v", body, err)
	}
	if rt.svc.HistoryCapacity() != history.DefaultCapacity {
		t.Errorf("capacity = %d", rt.svc.HistoryCapacity())
	}
}

func TestBuild_JournalSurvivesRestart(t *testing.T) {
	cfg, _ := fsConfig(t)
	cfg.History.JournalPath = filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	rt, err := build(ctx, cfg, quietLogger(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := rt.svc.Append(ctx, "inbox/note.md", "more\n", true); err != nil {
		t.Fatalf("Append: %v", err)
	}
	rt.Close()

	rt2, err := build(ctx, cfg, quietLogger(), nil)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	defer rt2.Close()

	entries := rt2.svc.History(0)
	if len(entries) != 1 {
		t.Fatalf("restored %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Seq != 1 || e.Op != history.OpAppend || e.Status != history.StatusCommitted {
		t.Errorf("entry = %+v", e)
	}

	next, err := rt2.svc.Append(ctx, "inbox/note.md", "again\n", true)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if next.Seq != 2 {
		t.Errorf("seq after restart = %d, want 2", next.Seq)
	}
}

func newTestHandler(t *testing.T, cfg *Config) *httptest.Server {
	t.Helper()
	broker := sse.NewBroker(time.Second)
	t.Cleanup(broker.Close)

	rt, err := build(context.Background(), cfg, quietLogger(), historyOnly{b: broker})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(rt.Close)

	srv := httptest.NewServer(newHTTPHandler(rt, broker))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, header map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestHTTPHandler_HealthAndMetrics(t *testing.T) {
	cfg, _ := fsConfig(t)
	srv := newTestHandler(t, cfg)

	for _, path := range []string{"/health/live", "/health", "/health/ready"} {
		resp, body := get(t, srv.URL+path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d, body %s", path, resp.StatusCode, body)
		}
	}

	resp, body := get(t, srv.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "vaultgate_history_entries") {
		t.Errorf("metrics body missing history gauge")
	}
	if !strings.Contains(body, `vaultgate_upstream_request_duration_seconds_count{method="ping",status="ok"}`) {
		t.Errorf("metrics body missing ping latency")
	}
}

func TestHTTPHandler_AuthOnAPIOnly(t *testing.T) {
	cfg, _ := fsConfig(t)
	cfg.Auth = AuthConfig{Mode: AuthModeToken, Token: "secret"}
	srv := newTestHandler(t, cfg)

	if resp, _ := get(t, srv.URL+"/api/vault/inbox/note.md", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key: status %d, want 401", resp.StatusCode)
	}
	resp, body := get(t, srv.URL+"/api/vault/inbox/note.md", map[string]string{"X-API-Key": "secret"})
	if resp.StatusCode != http.StatusOK || body != "# Note\n" {
		t.Errorf("with key: status %d, body %q", resp.StatusCode, body)
	}
	if resp, _ := get(t, srv.URL+"/health/live", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("health should stay open, got %d", resp.StatusCode)
	}
}
