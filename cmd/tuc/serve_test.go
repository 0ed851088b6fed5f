package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/tuc/pkg/client"
)

func TestServeLifecycle(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tuc.toml")
	data := `
scripts_file = "scripts.properties"

[autostart]
registry = "none"

[log]
level = "error"
color = false

[server]
listen = "127.0.0.1:0"
base_path = "/api"
`
	if err := os.WriteFile(cfgPath, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan *http.Server, 1)
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfgPath, ready) }()

	var srv *http.Server
	select {
	case srv = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not start")
	}

	c, err := client.New(client.Config{BaseURL: "http://" + srv.Addr + "/api", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !c.IsReachable(ctx) {
		t.Fatalf("daemon not reachable at %s", srv.Addr)
	}
	on, err := c.SetAutostart(ctx, true)
	if err != nil || !on {
		t.Fatalf("set autostart: %v %v", on, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("serve did not stop")
	}

	saved, err := os.ReadFile(filepath.Join(dir, "scripts.properties"))
	if err != nil || !strings.Contains(strings.ReplaceAll(string(saved), " ", ""), "autostart=true") {
		t.Fatalf("config not saved: %q %v", saved, err)
	}
}

func TestServeWithTLSAndAuth(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tuc.toml")
	data := `
scripts_file = "scripts.properties"

[autostart]
registry = "none"

[log]
level = "error"
color = false

[server]
listen = "127.0.0.1:0"

[server.tls]
enabled = true
dir = "certs"
auto_generate = true

[server.auth]
enabled = true
secret = "0123456789abcdef0123"
`
	if err := os.WriteFile(cfgPath, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan *http.Server, 1)
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfgPath, ready) }()

	var srv *http.Server
	select {
	case srv = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not start")
	}

	base := "https://" + srv.Addr + "/api"
	tlsOpt := &client.TLSClientConfig{CACert: filepath.Join(dir, "certs", "tls_ca.crt"), ServerName: "localhost"}
	anon, err := client.New(client.Config{BaseURL: base, Timeout: 2 * time.Second, TLS: tlsOpt})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	_, err = anon.ListScripts(ctx)
	var ae *client.APIError
	if !errors.As(err, &ae) || ae.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}

	var out bytes.Buffer
	if err := (command{out: &out}).Token(cfgPath, "test", time.Minute); err != nil {
		t.Fatalf("token: %v", err)
	}
	authed, err := client.New(client.Config{BaseURL: base, Timeout: 2 * time.Second, TLS: tlsOpt, Token: strings.TrimSpace(out.String())})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if _, err := authed.ListScripts(ctx); err != nil {
		t.Fatalf("list with token: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestServeBadConfig(t *testing.T) {
	if err := serve(context.Background(), filepath.Join(t.TempDir(), "missing.toml"), nil); err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestAutostartCommandLine(t *testing.T) {
	line, err := autostartCommandLine("tuc.toml")
	if err != nil {
		t.Fatalf("autostartCommandLine: %v", err)
	}
	if !strings.Contains(line, `" serve --config "`) || !strings.HasSuffix(line, `tuc.toml"`) {
		t.Fatalf("unexpected command line %q", line)
	}
}
