// Package rpc exposes the daemon over HTTP: a JSON-RPC 2.0 endpoint for
// commands, an SSE stream of completed-command events, health and
// Prometheus endpoints.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notegate/go-daemon/internal/actor"
	"notegate/go-daemon/pkg/models"
)

const DefaultRPCAddr = "127.0.0.1:8645"

// Service is the command surface the server forwards to.
type Service interface {
	Submit(ctx context.Context, verb actor.Verb, params actor.Params) (any, error)
	MetricsSnapshot() models.MetricsSnapshot
	Hub() *actor.Hub
}

type Server struct {
	httpServer *http.Server
	service    Service
	log        *slog.Logger
	initErr    error
	rpcToken   string
	requireTok bool
	limiter    *clientLimiter
}

// NewServer builds the HTTP server. Token policy: NOTEGATE_RPC_TOKEN
// sets the token; in non-production environments it may be left unset,
// otherwise startup fails unless NOTEGATE_REQUIRE_RPC_TOKEN=false.
func NewServer(addr string, svc Service, log *slog.Logger) *Server {
	token := strings.TrimSpace(os.Getenv("NOTEGATE_RPC_TOKEN"))
	require := requiresRPCToken()
	if require && token == "" {
		return &Server{initErr: errors.New(
			"NOTEGATE_RPC_TOKEN is required unless NOTEGATE_REQUIRE_RPC_TOKEN=false or NOTEGATE_ENV is test/development/local")}
	}
	return newServer(addr, svc, log, token, require)
}

func newServer(addr string, svc Service, log *slog.Logger, token string, require bool) *Server {
	if addr == "" {
		addr = DefaultRPCAddr
	}
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		service:    svc,
		log:        log,
		rpcToken:   token,
		requireTok: require,
		limiter:    newClientLimiter(loadRateLimit()),
	}
	if s.rpcToken == "" && !s.requireTok {
		log.Warn("NOTEGATE_RPC_TOKEN is not set; RPC auth disabled")
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/rpc/stream", s.handleStream)
	mux.Handle("/metrics", promhttp.Handler())
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.initErr != nil {
		return s.initErr
	}
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()
	s.log.Info("rpc server listening", "addr", s.httpServer.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)
		return
	}

	cursor := uint64(0)
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = v
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	replay, ch, cancel := s.service.Hub().Subscribe(cursor)
	defer cancel()
	for _, ev := range replay {
		if err := writeSSEEvent(w, ev); err != nil {
			return
		}
		flusher.Flush()
	}

	keepalive := time.NewTicker(20 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev actor.Event) error {
	data, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "command_completed",
		"params":  ev,
	})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\n", ev.Seq); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	token := extractToken(r)
	if s.rpcToken != "" || s.requireTok {
		if token != s.rpcToken || token == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return false
		}
	}
	if !s.limiter.allow(limitKey(r, token), time.Now()) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return false
	}
	return true
}

func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("X-Notegate-RPC-Token")); token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

func requiresRPCToken() bool {
	if v, ok := parseBoolEnv("NOTEGATE_REQUIRE_RPC_TOKEN"); ok {
		return v
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("NOTEGATE_ENV"))) {
	case "test", "development", "local":
		return false
	}
	return true
}

func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func loadRateLimit() (float64, int, time.Duration) {
	rps := 25.0
	burst := 50
	if raw := os.Getenv("NOTEGATE_RPC_RATE_LIMIT"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			rps = v
		}
	}
	if raw := os.Getenv("NOTEGATE_RPC_RATE_BURST"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			burst = v
		}
	}
	return rps, burst, 10 * time.Minute
}
