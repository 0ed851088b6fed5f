package tuc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/tuc/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

type recRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *recRunner) Run(_ context.Context, name string, args ...string) (scheduler.Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	return scheduler.Output{}, nil
}

func newTestManager(t *testing.T, dsn string) (*Manager, *recRunner, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := LoadConfig("")
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	c.ScriptsFile = filepath.Join(dir, "config.properties")
	c.Autostart.Registry = "none"
	if dsn != "" {
		c.History.Enabled = true
		c.History.DSN = []string{dsn}
	}
	r := &recRunner{}
	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.Local)
	m, err := New(c, Options{Runner: r, Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, r, dir
}

func TestFacadeLifecycle(t *testing.T) {
	m, r, dir := newTestManager(t, "")
	ctx := context.Background()
	p := filepath.Join(dir, "nightly backup.cmd")
	if err := os.WriteFile(p, []byte("@echo off\r\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := m.Add(ctx, p); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.Start(ctx, p); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(ctx, p); !IsNotice(err) {
		t.Fatalf("second start should be a notice, got %v", err)
	}
	if got := m.Scripts(); len(got) != 1 || got[0].State != Running || got[0].TaskName != "TUC_nightly_backup.cmd" {
		t.Fatalf("unexpected scripts %+v", got)
	}
	res := m.Shutdown(ctx)
	if len(res) != 1 || res[0].Outcome != OutcomeStopped {
		t.Fatalf("unexpected shutdown results %+v", res)
	}

	want := []string{
		"schtasks /create /tn TUC_nightly_backup.cmd /tr " + p + " /sc once /st 10:31 /ru SYSTEM /rl HIGHEST /f",
		"schtasks /run /tn TUC_nightly_backup.cmd",
		"schtasks /end /tn TUC_nightly_backup.cmd",
		"schtasks /delete /tn TUC_nightly_backup.cmd /f",
	}
	if strings.Join(r.calls, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected calls:\n%s", strings.Join(r.calls, "\n"))
	}
	if n := m.Notices(0); len(n) == 0 || n[len(n)-1].Title != "Stopped" {
		t.Fatalf("unexpected notices %+v", n)
	}
}

func TestFacadeBootRestores(t *testing.T) {
	m, _, dir := newTestManager(t, "")
	ctx := context.Background()
	p := filepath.Join(dir, "a.cmd")
	_ = os.WriteFile(p, []byte("x"), 0o644)
	if _, err := m.Add(ctx, p); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.SetAutostart(ctx, true); err != nil {
		t.Fatalf("autostart: %v", err)
	}

	c, _ := LoadConfig("")
	c.ScriptsFile = filepath.Join(dir, "config.properties")
	c.Autostart.Registry = "none"
	again, err := New(c, Options{Runner: &recRunner{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := again.Boot(ctx)
	if len(res) != 1 || res[0].Outcome != OutcomeStarted {
		t.Fatalf("autostart boot results %+v", res)
	}
	if !again.Autostart() {
		t.Fatalf("autostart flag not restored")
	}
}

func TestFacadeHistorySQLite(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "history.db")
	m, _, dir := newTestManager(t, dsn)
	p := filepath.Join(dir, "a.cmd")
	_ = os.WriteFile(p, []byte("x"), 0o644)
	if _, err := m.Add(context.Background(), p); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestFacadeBadDSN(t *testing.T) {
	c, _ := LoadConfig("")
	c.History.Enabled = true
	c.History.DSN = []string{"kafka://broker"}
	if _, err := New(c, Options{Runner: &recRunner{}}); err == nil {
		t.Fatalf("expected error for unsupported DSN")
	}
}

func TestMetricsServer(t *testing.T) {
	if err := RegisterMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatalf("register: %v", err)
	}
	srv := NewMetricsServer("127.0.0.1:0")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestFacadeHandlerAndAuthServer(t *testing.T) {
	m, _, _ := newTestManager(t, "")
	rec := httptest.NewRecorder()
	m.Handler("/embedded").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/embedded/scripts", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from embedded handler, got %d", rec.Code)
	}

	c, _ := LoadConfig("")
	if _, err := IssueToken(c, "cli", 0); err == nil {
		t.Fatalf("expected error without auth secret")
	}
	c.Server.Listen = "127.0.0.1:0"
	c.Server.Auth.Enabled = true
	c.Server.Auth.Secret = "0123456789abcdef"
	srv, err := NewHTTPServer(c, m)
	if err != nil {
		t.Fatalf("NewHTTPServer: %v", err)
	}
	defer func() { _ = srv.Shutdown(context.Background()) }()

	url := "http://" + srv.Addr + c.Server.BasePath + "/scripts"
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	tok, err := IssueToken(c, "cli", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Authorization", tok.Type+" "+tok.Value)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
}
