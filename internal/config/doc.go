// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and saves medassist configuration.
//
// # Configuration Precedence
//
// Configuration is layered (later wins):
//   - Built-in defaults
//   - ~/.medassist/config.toml (or $MEDASSIST_HOME/config.toml)
//   - Environment variables (MEDASSIST_*)
//
// Missing values are then filled by SetDefaults and the result is checked by
// Validate, which reports every problem at once as ValidateErrors.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timeout := cfg.Inference.Timeout.Duration
package config
