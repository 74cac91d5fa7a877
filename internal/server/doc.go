// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server hosts the web client and proxies its API calls.
//
// The browser client is served from a sub-path and posts to /api/generate on
// the same origin. The server forwards /api/* to the configured inference
// host and streams the NDJSON response back without buffering.
//
// # Endpoints
//
//   - ANY  /api/*path  - reverse proxy to server.upstream
//   - GET  /healthz    - liveness and upstream reachability
//   - GET  {base_path} - static files from server.web_dir (SPA fallback)
//
// # Middleware
//
//   - Panic recovery and request logging through slog
//   - Per-client token bucket rate limiting on /api
//   - CORS for configured origins
//
// # Usage
//
//	srv, err := server.New(cfg.Server)
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx)
package server
