// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the local status HTTP server.
//
// # Endpoints
//
//   - GET /health                          - Liveness and store reachability
//   - GET /metrics                         - Prometheus metrics
//   - GET /v1/conversations                - Saved consultations of the signed-in user
//   - GET /v1/conversations/{id}           - One consultation with its turns
//   - GET /v1/conversations/{id}/export    - Markdown export (?format=json for JSON)
//
// The server binds to loopback by default and is read-only. Every response
// passes through recovery, security header, request logging and per-client
// rate limiting middleware; an optional bearer token gates all routes except
// /health.
//
// # Usage
//
//	srv := server.New(server.Config{Addr: "127.0.0.1:8787"}, store, authMgr, metrics)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
