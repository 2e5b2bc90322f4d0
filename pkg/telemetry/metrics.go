// Copyright 2026 © The Social Robotics Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SessionMetrics tracks request throughput and session lifecycle for
// production monitoring. All record methods are safe on a nil receiver
// so callers can run without metrics wired up.
type SessionMetrics struct {
	// requestCounter tracks handled requests by field, method, and outcome
	requestCounter metric.Int64Counter

	// decodeFailureCounter tracks frames that did not decode
	decodeFailureCounter metric.Int64Counter

	// activeSessionsCounter tracks currently open sessions
	activeSessionsCounter metric.Int64UpDownCounter

	// requestDuration tracks request handling latency in seconds
	requestDuration metric.Float64Histogram
}

// NewSessionMetrics creates a session metrics tracker with OTEL meters.
func NewSessionMetrics() (*SessionMetrics, error) {
	meter := otel.Meter("hera/session")

	requestCounter, err := meter.Int64Counter(
		"hera.requests.total",
		metric.WithDescription("Handled requests by field, method, and outcome"),
	)
	if err != nil {
		return nil, err
	}

	decodeFailureCounter, err := meter.Int64Counter(
		"hera.decode.failures.total",
		metric.WithDescription("Frames rejected by the message codec"),
	)
	if err != nil {
		return nil, err
	}

	activeSessionsCounter, err := meter.Int64UpDownCounter(
		"hera.sessions.active",
		metric.WithDescription("Currently open client sessions"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"hera.request.duration",
		metric.WithDescription("Request handling latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &SessionMetrics{
		requestCounter:        requestCounter,
		decodeFailureCounter:  decodeFailureCounter,
		activeSessionsCounter: activeSessionsCounter,
		requestDuration:       requestDuration,
	}, nil
}

// RecordRequest counts one handled request and its latency.
func (sm *SessionMetrics) RecordRequest(ctx context.Context, field, method string, ok bool, elapsed time.Duration) {
	if sm == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("field", field),
		attribute.String("method", method),
		attribute.Bool("ok", ok),
	)
	sm.requestCounter.Add(ctx, 1, attrs)
	sm.requestDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordDecodeFailure counts one frame the codec rejected.
func (sm *SessionMetrics) RecordDecodeFailure(ctx context.Context) {
	if sm == nil {
		return
	}
	sm.decodeFailureCounter.Add(ctx, 1)
}

// SessionStarted increments the active session gauge.
func (sm *SessionMetrics) SessionStarted(ctx context.Context) {
	if sm == nil {
		return
	}
	sm.activeSessionsCounter.Add(ctx, 1)
}

// SessionEnded decrements the active session gauge.
func (sm *SessionMetrics) SessionEnded(ctx context.Context) {
	if sm == nil {
		return
	}
	sm.activeSessionsCounter.Add(ctx, -1)
}
