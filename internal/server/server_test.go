package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pathcanon/pathcanon/internal/config"
	"github.com/pathcanon/pathcanon/internal/logging"
	"github.com/pathcanon/pathcanon/internal/memfs"
	"github.com/pathcanon/pathcanon/internal/normalize"
	"github.com/pathcanon/pathcanon/internal/observability"
	"github.com/pathcanon/pathcanon/internal/realpath"
)

func sampleConfig() *config.Config {
	cfg := config.Default()
	cfg.Grammar = normalize.GrammarPosix
	cfg.Server.RateLimit.Enabled = false
	cfg.Server.Timeout = config.Duration(time.Second)
	return cfg
}

func sampleFS(t *testing.T) *memfs.FS {
	t.Helper()
	f := memfs.New(normalize.Posix)
	steps := []error{
		f.MkdirAll("/srv/real"),
		f.Symlink("/srv/real", "/srv/link"),
		f.Symlink("/loop/b", "/loop-a"),
		f.MkdirAll("/loop"),
		f.Symlink("/loop-a", "/loop/b"),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("build fs: %v", err)
		}
	}
	return f
}

func newTestServer(t *testing.T, cfg *config.Config, fsys realpath.FS) *Server {
	t.Helper()
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if f, ok := fsys.(*memfs.FS); ok {
		srv.SetFilesystem(f, f)
	}
	return srv
}

func get(srv http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "10.0.0.1:4000"
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestResolveEndpoint(t *testing.T) {
	srv := newTestServer(t, sampleConfig(), sampleFS(t))

	rec := get(srv, "/v1/resolve?p=/a&p=b/../c")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Fatalf("missing request id header")
	}
	body := decode[resolveResponse](t, rec)
	if body.Path != "/a/c" || body.DeviceLen != 1 {
		t.Fatalf("unexpected body %+v", body)
	}

	q := url.Values{"grammar": {"win32"}, "p": {`C:\foo`, `D:\bar`}}
	rec = get(srv, "/v1/resolve?"+q.Encode())
	body = decode[resolveResponse](t, rec)
	if body.Path != `D:\bar` || body.DeviceLen != 2 {
		t.Fatalf("unexpected win32 body %+v", body)
	}
}

func TestResolveRejectsBadInput(t *testing.T) {
	cfg := sampleConfig()
	cfg.Server.MaxFragments = 2
	srv := newTestServer(t, cfg, sampleFS(t))

	cases := []string{
		"/v1/resolve?grammar=vms&p=a",
		"/v1/resolve?p=a&p=b&p=c",
		"/v1/resolve?p=%ff",
	}
	for _, target := range cases {
		rec := get(srv, target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
		body := decode[errorResponse](t, rec)
		if body.Code != "EINVAL" {
			t.Fatalf("%s: expected EINVAL, got %+v", target, body)
		}
	}
}

func TestRealpathEndpoint(t *testing.T) {
	srv := newTestServer(t, sampleConfig(), sampleFS(t))

	rec := get(srv, "/v1/realpath?path=/srv/link/./")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[realpathResponse](t, rec)
	if body.Path != "/srv/real" {
		t.Fatalf("unexpected path %q", body.Path)
	}
	if body.Stats.Splices != 1 || len(body.Links) != 1 {
		t.Fatalf("unexpected stats %+v links %+v", body.Stats, body.Links)
	}
}

func TestRealpathErrors(t *testing.T) {
	srv := newTestServer(t, sampleConfig(), sampleFS(t))

	cases := []struct {
		target string
		status int
		code   string
	}{
		{"/v1/realpath?path=/srv/missing", http.StatusNotFound, "ENOENT"},
		{"/v1/realpath?path=/loop-a", http.StatusUnprocessableEntity, "ELOOP"},
		{"/v1/realpath", http.StatusBadRequest, "EINVAL"},
	}
	for _, tc := range cases {
		rec := get(srv, tc.target)
		if rec.Code != tc.status {
			t.Fatalf("%.60s: expected %d, got %d: %s", tc.target, tc.status, rec.Code, rec.Body.String())
		}
		body := decode[errorResponse](t, rec)
		if body.Code != tc.code {
			t.Fatalf("%.60s: expected code %s, got %+v", tc.target, tc.code, body)
		}
		if body.RequestID != rec.Header().Get(headerRequestID) {
			t.Fatalf("request id mismatch")
		}
	}
}

func TestRealpathWorkingDirectoryTooLong(t *testing.T) {
	f := sampleFS(t)
	f.Chdir("/" + strings.Repeat("x", 5000))
	srv := newTestServer(t, sampleConfig(), f)

	rec := get(srv, "/v1/realpath?path=relative")
	if rec.Code != http.StatusRequestURITooLong {
		t.Fatalf("expected 414, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decode[errorResponse](t, rec); body.Code != "ENAMETOOLONG" {
		t.Fatalf("unexpected body %+v", body)
	}
}

type blockingFS struct {
	realpath.FS
	release chan struct{}
}

func (b blockingFS) Lstat(path string) (realpath.Info, error) {
	<-b.release
	return b.FS.Lstat(path)
}

func TestRealpathTimeout(t *testing.T) {
	cfg := sampleConfig()
	cfg.Server.Timeout = config.Duration(20 * time.Millisecond)
	f := sampleFS(t)
	srv := newTestServer(t, cfg, nil)
	release := make(chan struct{})
	defer close(release)
	srv.SetFilesystem(blockingFS{FS: f, release: release}, f)

	rec := get(srv, "/v1/realpath?path=/srv/link")
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	if body := decode[errorResponse](t, rec); body.Code != codeTimeout {
		t.Fatalf("expected %s, got %+v", codeTimeout, body)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := sampleConfig()
	cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}
	srv := newTestServer(t, cfg, sampleFS(t))
	reg := prometheus.NewRegistry()
	srv.SetMetrics(observability.NewMetrics(reg))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv.now = func() time.Time { return now }

	if rec := get(srv, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := get(srv, "/healthz")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if body := decode[errorResponse](t, rec); body.Code != codeRateLimited {
		t.Fatalf("unexpected body %+v", body)
	}

	now = now.Add(2 * time.Second)
	if rec := get(srv, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("expected refill, got %d", rec.Code)
	}
	if srv.Prune() != 0 {
		t.Fatalf("active bucket pruned")
	}
}

func TestTraceLogPerRequest(t *testing.T) {
	srv := newTestServer(t, sampleConfig(), sampleFS(t))
	var buf bytes.Buffer
	srv.SetTraceLogger(logging.NewTraceLogger(&buf))

	ok := get(srv, "/v1/realpath?path=/srv/link")
	failed := get(srv, "/v1/realpath?path=/nope")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 trace lines, got %d", len(lines))
	}

	var first, second logging.Trace
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid trace: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("invalid trace: %v", err)
	}
	if first.RequestID != ok.Header().Get(headerRequestID) || first.Result != "/srv/real" {
		t.Fatalf("unexpected first trace %+v", first)
	}
	if len(first.Splices) != 1 || first.Stats == nil {
		t.Fatalf("trace missing walk details %+v", first)
	}
	if second.RequestID != failed.Header().Get(headerRequestID) || second.Code != "ENOENT" {
		t.Fatalf("unexpected second trace %+v", second)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, sampleConfig(), sampleFS(t))
	req := httptest.NewRequest(http.MethodPost, "/v1/resolve?p=a", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestClassify(t *testing.T) {
	status, code := classify(errTimeout)
	if status != http.StatusGatewayTimeout || code != codeTimeout {
		t.Fatalf("timeout classified as %d %s", status, code)
	}
}
