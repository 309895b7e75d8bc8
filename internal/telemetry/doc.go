// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides Prometheus instruments for medassist.
//
// A nil *Metrics is valid and records nothing, so components take one
// optionally.
//
// # Usage
//
//	m := telemetry.NewMetrics(prometheus.NewRegistry())
//	m.TurnAppended("user")
//	http.Handle("/metrics", m.Handler())
package telemetry
