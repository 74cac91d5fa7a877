// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/ollama"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// ShutdownTimeout bounds graceful shutdown; in-flight streams are cut after it.
	ShutdownTimeout = 10 * time.Second

	// HealthTimeout bounds the upstream ping in /healthz.
	HealthTimeout = 3 * time.Second
)

// trustedProxies are the only peers whose X-Forwarded-For is believed when
// resolving the client IP used for rate limiting.
var trustedProxies = []string{
	"127.0.0.1/32",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7",
}

// Pinger reports whether the upstream is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ============================================================================
// SERVER
// ============================================================================

// Server proxies /api/* to the upstream and serves the web client.
type Server struct {
	cfg      config.ServerConfig
	upstream *url.URL
	engine   *gin.Engine
	pinger   Pinger
	limiter  *RateLimiter
	log      *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithPinger replaces the upstream health check.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New builds a server from cfg. cfg.Upstream must be an absolute http(s) URL.
func New(cfg config.ServerConfig, opts ...Option) (*Server, error) {
	upstream, err := url.Parse(ollama.ResolveBaseURL(cfg.Upstream))
	if err != nil || upstream.Host == "" || (upstream.Scheme != "http" && upstream.Scheme != "https") {
		return nil, fmt.Errorf("invalid upstream %q", cfg.Upstream)
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/"
	}

	s := &Server{
		cfg:      cfg,
		upstream: upstream,
		log:      slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pinger == nil {
		s.pinger = ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: upstream.String()})
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.Burst)
	}

	s.engine = s.setupRouter()
	return s, nil
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		s.log.Warn("trusted proxies rejected", "error", err)
	}

	// Recovery first so panics in later middleware are caught and logged
	router.Use(Recovery(s.log))
	router.Use(Logger(s.log))
	router.Use(CORS(NewCORSConfig(s.cfg.AllowedOrigins)))

	router.GET("/healthz", s.handleHealth)
	router.HEAD("/healthz", s.handleHealth)

	api := router.Group("/api")
	if s.limiter != nil {
		api.Use(RateLimit(s.limiter))
	}
	api.Any("/*path", gin.WrapH(s.newProxy()))

	if s.cfg.BasePath != "/" {
		router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, s.cfg.BasePath)
		})
	}
	router.NoRoute(s.handleStatic)

	return router
}

// Handler returns the HTTP handler. Useful for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on cfg.Addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: generate streams last as long as the model talks
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting",
			"addr", ln.Addr().String(), "upstream", s.upstream.String(), "base_path", s.cfg.BasePath)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("shutdown error", "error", err)
		return err
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.log.Info("shutdown complete")
	return nil
}

// ============================================================================
// PROXY
// ============================================================================

// newProxy forwards requests to the upstream with the incoming path intact,
// so /api/generate becomes {upstream}/api/generate.
func (s *Server) newProxy() *httputil.ReverseProxy {
	target := s.upstream
	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			r.Out.Host = target.Host
		},
		// Flush every write so NDJSON lines reach the browser as they arrive
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.log.WarnContext(r.Context(), "upstream error", "path", r.URL.Path, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
		},
	}
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), HealthTimeout)
	defer cancel()

	resp := gin.H{
		"status":    "ok",
		"upstream":  s.upstream.String(),
		"reachable": true,
	}
	if err := s.pinger.Ping(ctx); err != nil {
		resp["reachable"] = false
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// handleStatic serves the web client below BasePath. Paths without a file
// extension that don't exist fall back to index.html for client-side routing.
func (s *Server) handleStatic(c *gin.Context) {
	reqPath := c.Request.URL.Path
	method := c.Request.Method

	if s.cfg.WebDir == "" || (method != http.MethodGet && method != http.MethodHead) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	base := strings.TrimSuffix(s.cfg.BasePath, "/")
	if reqPath != base && !strings.HasPrefix(reqPath, base+"/") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	if strings.Contains(reqPath, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
		return
	}

	rel := path.Clean("/" + strings.TrimPrefix(reqPath, base))
	full := filepath.Join(s.cfg.WebDir, filepath.FromSlash(rel))

	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		c.File(full)
		return
	}

	if path.Ext(rel) != "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	index := filepath.Join(s.cfg.WebDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.File(index)
}
