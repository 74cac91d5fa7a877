// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func testConfig(upstream string) config.ServerConfig {
	return config.ServerConfig{
		Addr:     "127.0.0.1:0",
		BasePath: "/projects/chat/",
		Upstream: upstream,
	}
}

func newTestServer(t *testing.T, cfg config.ServerConfig, opts ...Option) *httptest.Server {
	t.Helper()
	opts = append([]Option{WithPinger(fakePinger{})}, opts...)
	srv, err := New(cfg, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// =============================================================================
// PROXY
// =============================================================================

func TestProxy_StreamsLinesAsTheyArrive(t *testing.T) {
	release := make(chan struct{})
	var gotPath, gotHost, gotBody string

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHost = r.Host
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		io.WriteString(w, `{"response":"Hel","done":false}`+"\n")
		flusher.Flush()
		<-release
		io.WriteString(w, `{"response":"lo","done":true}`+"\n")
		flusher.Flush()
	}))
	defer upstream.Close()

	ts := newTestServer(t, testConfig(upstream.URL))

	resp, err := http.Post(ts.URL+"/api/generate", "application/json",
		strings.NewReader(`{"model":"m","prompt":"hi","stream":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)

	// The first line must be readable before the upstream sends the second
	first, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":"Hel","done":false}`, first)

	close(release)
	second, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":"lo","done":true}`, second)

	assert.Equal(t, "/api/generate", gotPath)
	assert.Equal(t, strings.TrimPrefix(upstream.URL, "http://"), gotHost)
	assert.Contains(t, gotBody, `"prompt":"hi"`)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}

func TestProxy_UpstreamDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ts := newTestServer(t, testConfig("http://"+addr))

	resp, err := http.Post(ts.URL+"/api/generate", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestNew_RejectsBadUpstream(t *testing.T) {
	_, err := New(testConfig("ftp://example.com"))
	assert.Error(t, err)
	_, err = New(testConfig("not a url"))
	assert.Error(t, err)
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testConfig("http://127.0.0.1:11434"))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["reachable"])
}

func TestHealth_UpstreamUnreachable(t *testing.T) {
	ts := newTestServer(t, testConfig("http://127.0.0.1:11434"),
		WithPinger(fakePinger{err: errors.New("connection refused")}))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["reachable"])
	assert.Equal(t, "connection refused", body["error"])
}

// =============================================================================
// STATIC
// =============================================================================

func TestStatic_ServesFilesAndFallsBack(t *testing.T) {
	webDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(webDir, "index.html"), []byte("<html>app</html>"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(webDir, "assets"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(webDir, "assets", "app.js"), []byte("console.log(1)"), 0644))

	cfg := testConfig("http://127.0.0.1:11434")
	cfg.WebDir = webDir
	ts := newTestServer(t, cfg)

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	code, body := get("/projects/chat/assets/app.js")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "console.log(1)", body)

	code, body = get("/projects/chat/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "app")

	code, body = get("/projects/chat/some/client/route")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "app")

	code, _ = get("/projects/chat/missing.css")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get("/elsewhere")
	assert.Equal(t, http.StatusNotFound, code)

	// Traversal stays inside the web dir
	code, _ = get("/projects/chat/..%2f..%2fetc/passwd")
	assert.NotEqual(t, http.StatusOK, code)
}

func TestStatic_RootRedirectsToBasePath(t *testing.T) {
	ts := newTestServer(t, testConfig("http://127.0.0.1:11434"))

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/projects/chat/", resp.Header.Get("Location"))
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRateLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{}\n")
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.RateLimit = 0.001
	cfg.Burst = 2
	ts := newTestServer(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Post(ts.URL+"/api/generate", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			assert.NotEmpty(t, resp.Header.Get("Retry-After"))
		}
		resp.Body.Close()
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// Health is not limited
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimiter_PrunesIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Equal(t, 2, rl.Len())

	rl.prune(time.Now().Add(time.Hour))
	assert.Zero(t, rl.Len())
}

func TestCORS(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:11434")
	cfg.AllowedOrigins = []string{"https://app.example.com", "*.trusted.dev"}
	ts := newTestServer(t, cfg)

	preflight := func(origin string) *http.Response {
		t.Helper()
		req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/generate", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	resp := preflight("https://app.example.com")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = preflight("https://x.trusted.dev")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = preflight("https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(slogDiscard()))
	router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestLogger_KeepsIncomingRequestID(t *testing.T) {
	router := gin.New()
	router.Use(Logger(slogDiscard()))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestServe_ShutsDownOnCancel(t *testing.T) {
	srv, err := New(testConfig("http://127.0.0.1:11434"), WithPinger(fakePinger{}), WithLogger(slogDiscard()))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
