// Package gateway is the client-facing HTTP/WebSocket server: it
// authenticates connections, allocates session IDs, and hands each
// accepted connection to its own session manager.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/liverelay/internal/config"
	"github.com/soyeahso/liverelay/internal/logging"
	"github.com/soyeahso/liverelay/internal/protocol"
	"github.com/soyeahso/liverelay/internal/session"
	"github.com/soyeahso/liverelay/internal/version"
)

const maxFrameBytes = 4 * 1024 * 1024

// SessionFactory builds the session manager for one accepted connection.
// onClosed must be invoked exactly once when the session terminates.
type SessionFactory func(id string, client session.ClientConn, onClosed func(id string)) *session.Manager

// Server is the liverelay gateway HTTP + WebSocket server.
type Server struct {
	cfg      config.Config
	auth     ResolvedAuth
	log      *logging.Logger
	registry *session.Registry
	factory  SessionFactory

	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter

	mu         sync.Mutex
	listenAddr string
}

// New creates a gateway server.
func New(cfg config.Config, registry *session.Registry, factory SessionFactory, log *logging.Logger) *Server {
	allowedOrigins := cfg.Gateway.AllowedOrigins
	return &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Gateway.Auth),
		log:         log.Sub("gateway"),
		registry:    registry,
		factory:     factory,
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(allowedOrigins),
		},
	}
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin headers.
// If no origins are configured, only same-origin (no Origin header) or non-browser
// clients are allowed. If origins are configured, the Origin must match one of them.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Same-origin or non-browser clients
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening for HTTP and WebSocket connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/ws", s.handleWebSocket)

	handler := withMiddleware(mux, s.log, s.cfg.Gateway.AllowedOrigins)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     handler,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listenAddr = ln.Addr().String()
	s.mu.Unlock()

	if s.cfg.Gateway.Bind != "loopback" {
		s.log.Warn().Msg("gateway is not loopback-only; put TLS termination in front of it")
	}

	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Str("auth", s.auth.Mode).
		Msg("gateway server ready")

	// Shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.registry.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's actual listen address, or empty string if
// not started. Useful with port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"version":  version.Version,
		"uptime":   time.Since(s.startedAt).Round(time.Second).String(),
		"sessions": s.registry.Count(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if res := Authorize(s.auth, ExtractToken(r)); !res.OK {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"active": s.registry.Count()})
}

// handleWebSocket authenticates, upgrades, and runs one session for the
// life of the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited, too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	if res := Authorize(s.auth, ExtractToken(r)); !res.OK {
		s.log.Warn().Str("remote", r.RemoteAddr).Str("reason", res.Reason).Msg("auth failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(conn)
	sessionID := uuid.New().String()
	mgr := s.factory(sessionID, client, s.registry.Remove)

	if err := s.registry.Add(mgr); err != nil {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rejecting connection, session limit reached")
		client.Send(protocol.ErrorFrame(protocol.CodeSessionLimit, "session limit reached", false))
		client.Close()
		return
	}

	s.log.Info().Str("sessionId", sessionID).Str("remote", r.RemoteAddr).Msg("client connected")

	go mgr.Run(r.Context())
	s.readLoop(client, mgr)
}

// readLoop pumps client frames into the session until either side ends
// the connection. Malformed frames are rejected without closing.
func (s *Server) readLoop(client *Client, mgr *session.Manager) {
	defer mgr.Close()

	for {
		data, err := client.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("sessionId", mgr.ID()).Msg("client closed connection")
			} else {
				s.log.Debug().Err(err).Str("sessionId", mgr.ID()).Msg("client read ended")
			}
			return
		}

		frame, err := protocol.ParseClientFrame(data)
		if err != nil {
			s.log.Warn().Err(err).Str("sessionId", mgr.ID()).Msg("rejecting malformed client frame")
			client.Send(protocol.ErrorFrame(protocol.CodeProtocolError, err.Error(), true))
			continue
		}

		if err := mgr.HandleFrame(frame); err != nil {
			return
		}
	}
}

// authRateLimiter tracks failed auth attempts per IP to prevent brute-force attacks.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000 // max tracked IPs to prevent memory exhaustion
)

func newAuthRateLimiter() *authRateLimiter {
	rl := &authRateLimiter{failures: make(map[string][]time.Time)}
	go rl.periodicCleanup()
	return rl
}

// periodicCleanup removes stale entries every minute.
func (l *authRateLimiter) periodicCleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-authRateWindow)
		for ip, times := range l.failures {
			filtered := times[:0]
			for _, t := range times {
				if t.After(cutoff) {
					filtered = append(filtered, t)
				}
			}
			if len(filtered) == 0 {
				delete(l.failures, ip)
			} else {
				l.failures[ip] = filtered
			}
		}
		l.mu.Unlock()
	}
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-authRateWindow)
	recent := l.failures[host]
	filtered := recent[:0]
	for _, t := range recent {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		delete(l.failures, host)
		return true
	}
	l.failures[host] = filtered
	return len(filtered) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Enforce max entries cap to prevent memory exhaustion from DDoS
	if _, exists := l.failures[host]; !exists && len(l.failures) >= authRateMaxIPs {
		var oldestIP string
		var oldestTime time.Time
		for ip, times := range l.failures {
			if len(times) > 0 && (oldestIP == "" || times[0].Before(oldestTime)) {
				oldestIP = ip
				oldestTime = times[0]
			}
		}
		if oldestIP != "" {
			delete(l.failures, oldestIP)
		}
	}

	l.failures[host] = append(l.failures[host], time.Now())
}
