// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "medassist"

// Stream and save outcome labels.
const (
	OutcomeCompleted  = "completed"
	OutcomeSuperseded = "superseded"
	OutcomeSaved      = "saved"
	OutcomeFailed     = "failed"
	OutcomeDiscarded  = "discarded"
)

// Metrics groups all Prometheus instruments used by the chat controller.
type Metrics struct {
	TurnsAppended        *prometheus.CounterVec
	Streams              *prometheus.CounterVec
	Saves                *prometheus.CounterVec
	ScratchWriteFailures prometheus.Counter
	InferenceLatency     prometheus.Histogram
	AwaitingReply        prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "turns_appended_total",
			Help:      "Turns appended to the message store by role.",
		}, []string{"role"}),
		Streams: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "streams_total",
			Help:      "Reply reveals by outcome.",
		}, []string{"outcome"}),
		Saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "saves_total",
			Help:      "Exit decisions by outcome.",
		}, []string{"outcome"}),
		ScratchWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scratch_write_failures_total",
			Help:      "Best-effort scratch snapshot writes that failed.",
		}),
		InferenceLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "inference_latency_seconds",
			Help:      "Latency of inference calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}),
		AwaitingReply: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "awaiting_reply",
			Help:      "1 while a sent turn has no reply or error yet.",
		}),
		gatherer: reg,
	}
}

// TurnAppended counts one appended turn.
func (m *Metrics) TurnAppended(role string) {
	if m == nil {
		return
	}
	m.TurnsAppended.WithLabelValues(role).Inc()
}

// StreamFinished counts one reveal outcome.
func (m *Metrics) StreamFinished(outcome string) {
	if m == nil {
		return
	}
	m.Streams.WithLabelValues(outcome).Inc()
}

// SaveFinished counts one exit decision outcome.
func (m *Metrics) SaveFinished(outcome string) {
	if m == nil {
		return
	}
	m.Saves.WithLabelValues(outcome).Inc()
}

// ScratchWriteFailed counts a failed scratch snapshot.
func (m *Metrics) ScratchWriteFailed() {
	if m == nil {
		return
	}
	m.ScratchWriteFailures.Inc()
}

// ObserveInference records the latency of one inference call.
func (m *Metrics) ObserveInference(d time.Duration) {
	if m == nil {
		return
	}
	m.InferenceLatency.Observe(d.Seconds())
}

// SetAwaiting mirrors the controller's awaiting-reply flag.
func (m *Metrics) SetAwaiting(awaiting bool) {
	if m == nil {
		return
	}
	if awaiting {
		m.AwaitingReply.Set(1)
	} else {
		m.AwaitingReply.Set(0)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
