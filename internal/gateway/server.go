// Package gateway exposes the engine's HTTP surface: health and status
// endpoints, Prometheus metrics, and webhook mounts for channels that
// receive events over HTTP.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openclaw/openclaw/internal/channels"
	"github.com/openclaw/openclaw/internal/config"
	"github.com/openclaw/openclaw/internal/diagnostics"
)

// Options configures the gateway server. Registry and Diag are optional;
// endpoints that need them degrade to empty payloads.
type Options struct {
	Config    config.GatewayConfig
	Token     string
	Registry  *channels.Registry
	Diag      *diagnostics.Pipeline
	Metrics   prometheus.Gatherer
	Version   string
	StartedAt time.Time
	Logger    *slog.Logger

	// Webhooks maps a path under /webhooks/ to its handler. The handler
	// owns method dispatch; webhook endpoints bypass gateway auth because
	// each carries its own verification scheme.
	Webhooks map[string]http.Handler
}

// Server is the HTTP gateway.
type Server struct {
	opts     Options
	logger   *slog.Logger
	server   *http.Server
	listener net.Listener
}

// New builds a gateway server. It refuses token auth mode without a token.
func New(opts Options) (*Server, error) {
	mode := strings.ToLower(strings.TrimSpace(opts.Config.AuthMode))
	if mode == "token" && strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("gateway: token auth mode requires a token")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:   opts,
		logger: logger.With("component", "gateway"),
	}, nil
}

// Addr returns the bound listen address, "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.opts.Config.Host, s.opts.Config.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/status", s.requireAuth(http.HandlerFunc(s.handleStatus)))
	if s.opts.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Metrics, promhttp.HandlerOpts{}))
	}
	for path, handler := range s.opts.Webhooks {
		mux.Handle("/webhooks/"+strings.Trim(path, "/"), handler)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway server error", "error", err)
		}
	}()
	s.logger.Info("gateway listening", "addr", listener.Addr().String())
	return nil
}

// Stop shuts the server down, draining in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) {
	if s.server == nil {
		return
	}
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("gateway shutdown", "error", err)
	}
}

// requireAuth enforces bearer-token auth when the mode demands it.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	mode := strings.ToLower(strings.TrimSpace(s.opts.Config.AuthMode))
	if mode != "token" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.Token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status   string                    `json:"status"`
	Channels []channels.HealthSnapshot `json:"channels"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.opts.Registry != nil {
		resp.Channels = s.opts.Registry.AllHealthSnapshots()
		for _, snap := range resp.Channels {
			if snap.State == channels.HealthOffline {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	Version       string                    `json:"version"`
	UptimeSeconds int64                     `json:"uptimeSeconds"`
	Usage         diagnostics.UsageSnapshot `json:"usage"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:       s.opts.Version,
		UptimeSeconds: int64(time.Since(s.opts.StartedAt).Seconds()),
	}
	if s.opts.Diag != nil {
		resp.Usage = s.opts.Diag.UsageSnapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
