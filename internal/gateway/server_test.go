package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/openclaw/openclaw/internal/config"
	"github.com/openclaw/openclaw/internal/diagnostics"
)

func startServer(t *testing.T, opts Options) *Server {
	t.Helper()
	opts.Config.Host = "127.0.0.1"
	opts.Config.Port = 0
	srv, err := New(opts)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return srv
}

func get(t *testing.T, url, token string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

func TestTokenModeRequiresToken(t *testing.T) {
	_, err := New(Options{Config: config.GatewayConfig{AuthMode: "token"}})
	if err == nil {
		t.Fatal("expected error for token mode without token")
	}
}

func TestHealthzIsOpen(t *testing.T) {
	srv := startServer(t, Options{
		Config: config.GatewayConfig{AuthMode: "token"},
		Token:  "secret",
	})

	resp, body := get(t, "http://"+srv.Addr()+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	if payload.Status != "ok" {
		t.Errorf("status = %q", payload.Status)
	}
}

func TestStatusRequiresToken(t *testing.T) {
	diag := diagnostics.NewPipeline(8)
	srv := startServer(t, Options{
		Config:    config.GatewayConfig{AuthMode: "token"},
		Token:     "secret",
		Diag:      diag,
		Version:   "1.0.0",
		StartedAt: time.Now(),
	})
	url := "http://" + srv.Addr() + "/status"

	if resp, _ := get(t, url, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", resp.StatusCode)
	}
	if resp, _ := get(t, url, "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", resp.StatusCode)
	}
	resp, body := get(t, url, "secret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid token: status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `"version":"1.0.0"`) {
		t.Errorf("body missing version: %s", body)
	}
}

func TestStatusOpenWithoutAuthMode(t *testing.T) {
	srv := startServer(t, Options{
		Config:  config.GatewayConfig{AuthMode: ""},
		Version: "dev",
	})
	resp, _ := get(t, "http://"+srv.Addr()+"/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWebhookMountBypassesAuth(t *testing.T) {
	called := false
	srv := startServer(t, Options{
		Config: config.GatewayConfig{AuthMode: "token"},
		Token:  "secret",
		Webhooks: map[string]http.Handler{
			"whatsapp": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}),
		},
	})

	resp, _ := get(t, "http://"+srv.Addr()+"/webhooks/whatsapp", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !called {
		t.Fatal("webhook handler not invoked")
	}
}
