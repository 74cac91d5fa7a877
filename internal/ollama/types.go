// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"time"
)

// =============================================================================
// GENERATE API TYPES
// =============================================================================

// GenerateRequest is the body of POST /api/generate.
// The wire shape is exactly {"model","prompt","stream"}.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// Fragment is one parsed line of a streaming generate response.
// Only Response is guaranteed; the rest arrive on the final line, if at all.
type Fragment struct {
	Model      string `json:"model,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	Response   string `json:"response"`
	Done       bool   `json:"done,omitempty"`
	DoneReason string `json:"done_reason,omitempty"`

	// Error is set when the server aborts generation mid-stream.
	Error string `json:"error,omitempty"`

	// Metrics, in nanoseconds
	TotalDuration      int64 `json:"total_duration,omitempty"`
	LoadDuration       int64 `json:"load_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

// HasStats reports whether the fragment carries generation metrics.
func (f Fragment) HasStats() bool {
	return f.EvalCount > 0 || f.TotalDuration > 0
}

// TokensPerSecond calculates the generation speed from eval metrics.
func (f Fragment) TokensPerSecond() float64 {
	if f.EvalDuration == 0 {
		return 0
	}
	return float64(f.EvalCount) / (float64(f.EvalDuration) / 1e9)
}

// Duration returns the server-reported total duration.
func (f Fragment) Duration() time.Duration {
	return time.Duration(f.TotalDuration)
}

// OllamaError is the error body returned on non-2xx responses.
type OllamaError struct {
	Error string `json:"error"`
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelInfo describes a model available on the inference server.
type ModelInfo struct {
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	ModifiedAt    time.Time `json:"modified_at"`
	Family        string    `json:"family,omitempty"`
	ParameterSize string    `json:"parameter_size,omitempty"`
	Quantization  string    `json:"quantization_level,omitempty"`
}

// SizeGB returns the model size in gigabytes.
func (m ModelInfo) SizeGB() float64 {
	return float64(m.Size) / (1024 * 1024 * 1024)
}
