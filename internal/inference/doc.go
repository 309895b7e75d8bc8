// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package inference provides the consultation endpoint client.
//
// Callers get a Result, never an error: transport failures, timeouts and
// API errors are flattened into Result.ErrorMessage so the chat controller
// can render them as error turns.
//
// # Key Types
//
//   - Client: the Send contract used by the chat controller
//   - HTTPClient: JSON-over-HTTP client with timeout and rate limiting
//   - CannedClient: offline client returning fixed guidance text
//   - ClientFunc: adapter for tests
//
// # Usage
//
//	client, err := inference.NewHTTPClient(cfg.Inference.URL, cfg.Inference.APIKey)
//	res := client.Send(ctx, "I have a headache", nil)
//	if !res.Success {
//		fmt.Println(res.ErrorMessage)
//	}
package inference
