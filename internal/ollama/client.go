// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the inference client.
type ClientError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeContextExceeded
	ErrTypeConnection
	ErrTypeInvalidResponse
	ErrTypeStatus
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "inference server is not reachable"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
	ErrNoBody        = &ClientError{Type: ErrTypeInvalidResponse, Message: "response has no body"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultBaseURL is used when no base URL override is configured.
// Explicit IPv4 avoids IPv6 localhost resolution issues on Windows.
const DefaultBaseURL = "http://127.0.0.1:11434"

// DefaultModel is the model requested when none is configured.
const DefaultModel = "gemma3:latest"

// ClientConfig holds configuration options for the client.
type ClientConfig struct {
	// BaseURL is the API origin (default: http://127.0.0.1:11434)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s).
	// Streams are bounded only by the caller's context.
	Timeout time.Duration

	// DefaultModel to use if none specified (default: "gemma3:latest")
	DefaultModel string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      DefaultBaseURL,
		Timeout:      30 * time.Second,
		DefaultModel: DefaultModel,
	}
}

// ResolveBaseURL normalizes a base URL override. Empty means DefaultBaseURL;
// trailing slashes are removed so paths can be appended directly.
func ResolveBaseURL(override string) string {
	base := strings.TrimRight(strings.TrimSpace(override), "/")
	if base == "" {
		return DefaultBaseURL
	}
	return base
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to a generate endpoint and, for model listing, to the rest of
// the Ollama-compatible API.
//
// The Client is safe for concurrent use.
//
// Example:
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: base})
//	stream, err := client.Generate(ctx, "gemma3:latest", "Hello")
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for f := range stream.All() {
//	    fmt.Print(f.Response)
//	}
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	api          *api.Client
}

// NewClient creates a new client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	// Fill in defaults for any zero values
	cfg.BaseURL = ResolveBaseURL(cfg.BaseURL)
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}

	c := &Client{
		config:     &cfg,
		httpClient: httpClient,
		// No client timeout for streams; cancellation comes from the context
		streamClient: &http.Client{},
	}
	if u, err := url.Parse(cfg.BaseURL); err == nil {
		c.api = api.NewClient(u, httpClient)
	}
	return c
}

// BaseURL returns the resolved API origin.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// DefaultModel returns the configured default model.
func (c *Client) DefaultModel() string {
	return c.config.DefaultModel
}

// =============================================================================
// STREAMING GENERATE
// =============================================================================

// Stream is an open generate response. Close it when done.
type Stream struct {
	*Decoder
	body io.ReadCloser
}

// NewStream wraps an NDJSON response body.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{Decoder: NewDecoder(body), body: body}
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	return s.body.Close()
}

// Generate sends POST {base}/api/generate with stream enabled and returns the
// open response as a Stream.
//
// Cancellation of ctx is returned unwrapped (errors.Is(err, context.Canceled)).
// Every other failure is a *ClientError. There are no retries.
func (c *Client) Generate(ctx context.Context, model, prompt string) (*Stream, error) {
	if model == "" {
		model = c.config.DefaultModel
	}

	body, err := json.Marshal(GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: true,
	})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer drainAndClose(resp.Body)
		return nil, statusError(resp)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrNoBody
	}

	return NewStream(resp.Body), nil
}

// classifyTransportError maps a failed round trip onto the error taxonomy.
func classifyTransportError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	default:
		return &ClientError{Type: ErrTypeNotRunning, Message: "inference server is not reachable", Cause: err}
	}
}

// statusError builds a ClientError from a non-2xx response, using the
// server's {"error": "..."} body when present.
func statusError(resp *http.Response) error {
	errType := ErrTypeStatus
	if resp.StatusCode == http.StatusNotFound {
		errType = ErrTypeModelNotFound
	}

	var ollamaErr OllamaError
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&ollamaErr); err == nil && ollamaErr.Error != "" {
		return &ClientError{Type: errType, Message: ollamaErr.Error, StatusCode: resp.StatusCode}
	}
	return &ClientError{
		Type:       errType,
		Message:    "request failed: " + resp.Status,
		StatusCode: resp.StatusCode,
	}
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves the models available on the server.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if c.api == nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "invalid base URL " + c.config.BaseURL}
	}

	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = ModelInfo{
			Name:          m.Name,
			Size:          m.Size,
			ModifiedAt:    m.ModifiedAt,
			Family:        m.Details.Family,
			ParameterSize: m.Details.ParameterSize,
			Quantization:  m.Details.QuantizationLevel,
		}
	}
	return models, nil
}

// ModelExists checks whether name is available on the server.
func (c *Client) ModelExists(ctx context.Context, name string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Ping checks that the server answers, within five seconds.
func (c *Client) Ping(ctx context.Context) error {
	if c.api == nil {
		return &ClientError{Type: ErrTypeConnection, Message: "invalid base URL " + c.config.BaseURL}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.api.Heartbeat(ctx); err != nil {
		return classifyTransportError(err)
	}
	return nil
}

// Version returns the server's reported version.
func (c *Client) Version(ctx context.Context) (string, error) {
	if c.api == nil {
		return "", &ClientError{Type: ErrTypeConnection, Message: "invalid base URL " + c.config.BaseURL}
	}
	return c.api.Version(ctx)
}

// =============================================================================
// UTILITY METHODS
// =============================================================================

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeModelNotFound
	}
	return false
}

// IsNotRunning checks if an error indicates the server is unreachable.
func IsNotRunning(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNotRunning
	}
	return false
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}

func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, 64*1024))
	r.Close()
}
