// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedServer writes each chunk and flushes it, so the client sees the
// exact read boundaries under test.
func chunkedServer(t *testing.T, chunks []string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			_, _ = io.WriteString(w, c)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultBaseURL},
		{"   ", DefaultBaseURL},
		{"https://llm.example.com", "https://llm.example.com"},
		{"https://llm.example.com/", "https://llm.example.com"},
		{"http://host:8080/prefix//", "http://host:8080/prefix"},
	}

	for _, tc := range tests {
		if got := ResolveBaseURL(tc.in); got != tc.want {
			t.Errorf("ResolveBaseURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewClientWithConfig_Defaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{})
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, DefaultModel, c.DefaultModel())

	c = NewClientWithConfig(nil)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
}

// =============================================================================
// GENERATE TESTS
// =============================================================================

func TestGenerate_RequestShape(t *testing.T) {
	srv := chunkedServer(t, []string{"{\"response\":\"ok\"}\n"}, func(r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{
			"model":  "gemma3:latest",
			"prompt": "Hello",
			"stream": true,
		}, body)
	})

	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL + "/"})
	stream, err := c.Generate(context.Background(), "", "Hello")
	require.NoError(t, err)
	defer stream.Close()

	f, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", f.Response)
}

func TestGenerate_StreamsAcrossChunks(t *testing.T) {
	srv := chunkedServer(t, []string{
		`{"response":"Hel`,
		"\"}\n{\"response\":\"lo",
		"\"}\n{\"response\":\"\",\"done\":true}\n",
	}, nil)

	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	stream, err := c.Generate(context.Background(), "m", "hi")
	require.NoError(t, err)
	defer stream.Close()

	var sb strings.Builder
	for f := range stream.All() {
		sb.WriteString(f.Response)
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, "Hello", sb.String())
}

func TestGenerate_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"out of memory"}`)
	}))
	defer srv.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "m", "hi")
	require.Error(t, err)

	var clientErr *ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, ErrTypeStatus, clientErr.Type)
	assert.Equal(t, "out of memory", clientErr.Message)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestGenerate_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "missing", "hi")
	assert.True(t, IsModelNotFound(err))
}

func TestGenerate_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "m", "hi")
	assert.ErrorIs(t, err, ErrNoBody)
}

func TestGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: url})
	_, err := c.Generate(context.Background(), "m", "hi")
	assert.True(t, IsNotRunning(err), "err = %v", err)
}

func TestGenerate_CancelledBeforeResponse(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	_, err := c.Generate(ctx, "m", "hi")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsNotRunning(err))
}

func TestGenerate_CancelMidStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "{\"response\":\"first\"}\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	stream, err := c.Generate(ctx, "m", "hi")
	require.NoError(t, err)
	defer stream.Close()

	f, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", f.Response)

	cancel()
	_, err = stream.Next()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

// =============================================================================
// MODEL OPERATION TESTS
// =============================================================================

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"models":[{"name":"gemma3:latest","model":"gemma3:latest","size":3338801804,
			"details":{"family":"gemma3","parameter_size":"4.3B","quantization_level":"Q4_K_M"}}]}`)
	}))
	defer srv.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "gemma3:latest", models[0].Name)
	assert.Equal(t, "4.3B", models[0].ParameterSize)
	assert.InDelta(t, 3.11, models[0].SizeGB(), 0.01)

	ok, err := c.ModelExists(context.Background(), "gemma3:latest")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Ollama is running")
	}))
	defer srv.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	assert.NoError(t, c.Ping(context.Background()))
}

// =============================================================================
// ERROR HELPER TESTS
// =============================================================================

func TestClientError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &ClientError{Type: ErrTypeNotRunning, Message: "inference server is not reachable", Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "inference server is not reachable: dial tcp: refused", err.Error())
	assert.True(t, IsNotRunning(err))
	assert.False(t, IsTimeout(err))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
}
