// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for an Ollama-compatible generate API.
//
// # Key Types
//
//   - Client: issues POST {base}/api/generate and lists models
//   - Decoder: incremental NDJSON decoder tolerant of arbitrary read boundaries
//   - Fragment: one decoded line of a streaming response
//   - Stream: an open response body paired with its Decoder
//   - ClientError: categorized transport and status errors
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: base})
//	stream, err := client.Generate(ctx, "gemma3:latest", "Hello")
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for {
//	    f, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(f.Response)
//	}
//
// The Decoder can also be driven by hand:
//
//	d := ollama.NewDecoder(nil)
//	frags := d.Feed(chunk)
//	frags = append(frags, d.Flush()...)
package ollama
