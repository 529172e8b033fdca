package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcdev12/buzzer/go/internal/buzzer/hardware"
	"github.com/mcdev12/buzzer/go/internal/config"
)

func newTestServer(t *testing.T, mutate func(c *config.Config)) (*httptest.Server, *Services) {
	t.Helper()
	cfg := config.Default()
	cfg.HeartbeatInterval = 0
	mutate(&cfg)

	services, err := setupServices(context.Background(), cfg)
	if err != nil {
		t.Fatalf("setupServices: %v", err)
	}
	t.Cleanup(func() { _ = services.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = services.Gateway.Start(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(setupServer(cfg, services).Handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-stopped
	})
	return srv, services
}

func TestServer_RoutesWired(t *testing.T) {
	srv, services := newTestServer(t, func(c *config.Config) { c.AllowSimulatedPress = true })

	resp, err := http.Get(srv.URL + "/health")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health: %v %v", resp, err)
	}
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/api/players/4/buzz", "application/json", nil)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("simulated buzz: %v %v", resp, err)
	}
	resp.Body.Close()

	if w, ok := services.Arbiter.CurrentState().WinnerID(); !ok || w != 4 {
		t.Fatalf("want winner 4, got %d (%v)", w, ok)
	}
	sink, ok := services.Devices.Sink.(*hardware.MemorySink)
	if !ok {
		t.Fatalf("want simulated sink, got %T", services.Devices.Sink)
	}
	if got := sink.Active(); len(got) != 1 || got[0] != 4 {
		t.Fatalf("want indicator 4 on, got %v", got)
	}

	resp, err = http.Post(srv.URL+"/reset", "application/json", nil)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /reset: %v %v", resp, err)
	}
	resp.Body.Close()
	if services.Arbiter.CurrentState().Locked {
		t.Fatalf("reset did not re-arm")
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/reset", nil)
	req.Header.Set("Origin", "http://quiz.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS headers: %v", resp.Header)
	}
}

func TestServer_StaticUI(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>buzzer</h1>"), 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}
	srv, _ := newTestServer(t, func(c *config.Config) { c.StaticDir = dir })

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "<h1>buzzer</h1>" {
		t.Fatalf("unexpected static response %d %q", resp.StatusCode, body)
	}
}
