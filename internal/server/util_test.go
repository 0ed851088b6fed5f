package server

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/loykin/tuc/internal/autostart"
	"github.com/loykin/tuc/internal/lifecycle"
	"github.com/loykin/tuc/internal/scheduler"
	"github.com/loykin/tuc/internal/script"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestCheckScriptPath(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "job.cmd")
	cases := []struct {
		in string
		ok bool
	}{
		{abs, true},
		{"  " + abs + " ", true},
		{`C:\jobs\backup.cmd`, true},
		{`d:/jobs/backup.cmd`, true},
		{`\\fileserver\share\job.cmd`, true},
		{"", false},
		{"   ", false},
		{"jobs/x.cmd", false},
		{`C:jobs\x.cmd`, false},
		{`C:\jobs\..\windows\x.cmd`, false},
		{"/tmp/../etc/x.cmd", false},
		{"/tmp/a\x00b.cmd", false},
	}
	for _, c := range cases {
		got, err := checkScriptPath(c.in)
		if (err == nil) != c.ok {
			t.Fatalf("checkScriptPath(%q) err=%v want ok=%v", c.in, err, c.ok)
		}
		if c.ok && got != strings.TrimSpace(c.in) {
			t.Fatalf("checkScriptPath(%q)=%q", c.in, got)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != 201 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type: %s", ct)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{script.ErrNotFound, 404},
		{&script.ValidationError{Path: "x", Reason: "missing"}, 400},
		{script.ErrAlreadyRunning, 409},
		{lifecycle.ErrNotRunning, 409},
		{lifecycle.ErrNoTask, 409},
		{script.ErrAlreadyExists, 409},
		{fmt.Errorf("%w: TUC_a.cmd", script.ErrTaskNameInUse), 409},
		{&scheduler.Error{Stage: scheduler.StageCreate, ExitCode: 1}, 502},
		{&autostart.Error{Op: "enable", ExitCode: 1}, 502},
		{errors.New("boom"), 500},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Fatalf("statusFor(%v)=%d want %d", c.err, got, c.want)
		}
	}
}
