// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TurnAppended("user")
		m.StreamFinished(OutcomeCompleted)
		m.SaveFinished(OutcomeSaved)
		m.ScratchWriteFailed()
		m.ObserveInference(time.Second)
		m.SetAwaiting(true)
	})
}

func TestMetrics_Records(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.TurnAppended("user")
	m.TurnAppended("user")
	m.StreamFinished(OutcomeSuperseded)
	m.ScratchWriteFailed()
	m.SetAwaiting(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TurnsAppended.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Streams.WithLabelValues(OutcomeSuperseded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScratchWriteFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AwaitingReply))

	m.SetAwaiting(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AwaitingReply))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SaveFinished(OutcomeSaved)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `medassist_saves_total{outcome="saved"} 1`)
}
