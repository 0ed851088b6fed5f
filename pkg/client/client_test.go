package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/tuc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, 10*time.Second, c.client.Timeout)

	c, err = New(Config{BaseURL: "http://h/api/", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "http://h/api", c.baseURL)
}

func TestNewTLS(t *testing.T) {
	c, err := New(Config{BaseURL: "https://h/api", Insecure: true})
	require.NoError(t, err)
	tr := c.client.Transport.(*http.Transport)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)

	_, err = New(Config{TLS: &TLSClientConfig{CACert: filepath.Join(t.TempDir(), "missing.crt")}})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.crt")
	require.NoError(t, os.WriteFile(bad, []byte("not a pem"), 0o600))
	_, err = New(Config{TLS: &TLSClientConfig{CACert: bad}})
	assert.Error(t, err)
}

func TestRequests(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotBody, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotQuery = r.Method, r.URL.Path, r.URL.Query().Get("path")
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/scripts":
			if r.Method == http.MethodGet {
				_ = json.NewEncoder(w).Encode([]tuc.Entry{{Path: `C:\jobs\a.cmd`, State: tuc.Running, TaskName: "TUC_a.cmd"}})
				return
			}
			_ = json.NewEncoder(w).Encode(tuc.Entry{Path: `C:\jobs\a.cmd`})
		case "/api/scripts/start":
			_ = json.NewEncoder(w).Encode(tuc.Result{Name: "a.cmd", Outcome: tuc.OutcomeStarted, TaskName: "TUC_a.cmd"})
		case "/api/autostart":
			_, _ = w.Write([]byte(`{"enabled":true}`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()
	c, err := New(Config{BaseURL: srv.URL + "/api", Timeout: time.Second, Token: "tok"})
	require.NoError(t, err)
	ctx := context.Background()

	list, err := c.ListScripts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tuc.Running, list[0].State)
	assert.Equal(t, "a.cmd", list[0].Name())
	assert.Equal(t, "Bearer tok", gotAuth)

	_, err = c.AddScript(ctx, `C:\jobs\a.cmd`)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"path":"C:\\jobs\\a.cmd"}`, gotBody)

	r, err := c.StartScript(ctx, `C:\jobs\a b.cmd`)
	require.NoError(t, err)
	assert.Equal(t, tuc.OutcomeStarted, r.Outcome)
	assert.Equal(t, "/api/scripts/start", gotPath)
	assert.Equal(t, `C:\jobs\a b.cmd`, gotQuery)

	on, err := c.SetAutostart(ctx, true)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, `{"enabled":true}`, gotBody)

	require.NoError(t, c.RemoveScript(ctx, "/x.cmd"))
	assert.Equal(t, http.MethodDelete, gotMethod)

	ns, err := c.Notices(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, ns)
	assert.True(t, c.IsReachable(ctx))
}

func TestErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/scripts/stop" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"outcome":"not_running","error":"script not running"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	c, err := New(Config{BaseURL: srv.URL + "/api", Timeout: time.Second})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.StopScript(ctx, "/x.cmd")
	var ae *APIError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusConflict, ae.StatusCode)
	assert.Equal(t, "script not running", ae.Message)

	_, err = c.StartAll(ctx)
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusInternalServerError, ae.StatusCode)
	assert.False(t, c.IsReachable(ctx))
}

func TestUnreachable(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, c.IsReachable(context.Background()))
	_, err = c.ListScripts(context.Background())
	assert.Error(t, err)
}
