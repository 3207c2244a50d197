// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the
// assistant service.
//
// # Description
//
// This package implements Prometheus metrics for the chat pipeline and the
// change bus. Metrics include:
//   - Request counters (by endpoint, status, error type)
//   - Generation chunk counts and model fallbacks
//   - Latency histograms (time to first chunk, total duration)
//   - Active stream and subscriber gauges
//   - Change bus publish/drop counters
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "minbar"

// Subsystem for assistant metrics
const assistantSubsystem = "assistant"

// AssistantMetrics holds all Prometheus metrics for the assistant service.
//
// Initialize once at startup via InitMetrics().
type AssistantMetrics struct {
	// RequestsTotal counts chat requests by endpoint and status.
	// Labels: endpoint (chat, ws_chat), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ChunksTotal counts answer chunks forwarded to clients by model.
	ChunksTotal *prometheus.CounterVec

	// FallbacksTotal counts model fallback attempts by outcome.
	// Labels: outcome (recovered, failed)
	FallbacksTotal *prometheus.CounterVec

	// TimeToFirstChunkSeconds measures latency to the first answer chunk.
	TimeToFirstChunkSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures total answer stream duration.
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently streaming chat responses.
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts errors by type and endpoint.
	// Labels: endpoint, error_code
	ErrorsTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts client disconnections mid-answer.
	ClientDisconnectsTotal *prometheus.CounterVec

	// ChangeSubscribers tracks live change stream subscribers.
	ChangeSubscribers prometheus.Gauge

	// ChangeEventsPublishedTotal counts change events by topic.
	ChangeEventsPublishedTotal *prometheus.CounterVec

	// ChangeDeliveriesTotal counts per-subscriber deliveries by topic.
	ChangeDeliveriesTotal *prometheus.CounterVec

	// KeepAlivesTotal counts keepalive pings sent on change streams.
	KeepAlivesTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of AssistantMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *AssistantMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once at
// application startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *AssistantMetrics {
	DefaultMetrics = &AssistantMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "requests_total",
				Help:      "Total chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		ChunksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "chunks_total",
				Help:      "Total answer chunks forwarded to clients by model",
			},
			[]string{"model"},
		),

		FallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "model_fallbacks_total",
				Help:      "Total model fallback attempts by outcome",
			},
			[]string{"outcome"},
		),

		TimeToFirstChunkSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "time_to_first_chunk_seconds",
				Help:      "Time from request to first answer chunk in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total answer stream duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint", "status"},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "active_streams",
				Help:      "Number of chat responses currently streaming",
			},
			[]string{"endpoint"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "errors_total",
				Help:      "Total errors by type and endpoint",
			},
			[]string{"endpoint", "error_code"},
		),

		ClientDisconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during an answer stream",
			},
			[]string{"endpoint"},
		),

		ChangeSubscribers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "change_subscribers",
				Help:      "Number of live change stream subscribers",
			},
		),

		ChangeEventsPublishedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "change_events_published_total",
				Help:      "Total change events published by topic",
			},
			[]string{"topic"},
		),

		ChangeDeliveriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "change_deliveries_total",
				Help:      "Total per-subscriber change event deliveries by topic",
			},
			[]string{"topic"},
		),

		KeepAlivesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "keepalives_total",
				Help:      "Total keepalive pings sent on change streams",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeAuth indicates a missing or invalid session.
	ErrorCodeAuth ErrorCode = "auth"

	// ErrorCodeConfiguration indicates missing environment configuration.
	ErrorCodeConfiguration ErrorCode = "configuration"

	// ErrorCodeGeneration indicates the model backend failed before output.
	ErrorCodeGeneration ErrorCode = "generation_error"

	// ErrorCodeMidStream indicates the model backend died after partial output.
	ErrorCodeMidStream ErrorCode = "mid_stream"

	// ErrorCodePersistence indicates the conversation append failed.
	ErrorCodePersistence ErrorCode = "persistence_error"

	// ErrorCodeTimeout indicates operation timeout.
	ErrorCodeTimeout ErrorCode = "timeout"

	// ErrorCodeInternal indicates internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates the client disconnected.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents a request surface for metrics labeling.
type Endpoint string

const (
	// EndpointChat is the HTTP chat streaming endpoint.
	EndpointChat Endpoint = "chat"

	// EndpointWSChat is the WebSocket chat endpoint.
	EndpointWSChat Endpoint = "ws_chat"

	// EndpointStream is the change notification SSE endpoint.
	EndpointStream Endpoint = "stream"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed chat request.
func (m *AssistantMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordError records an error occurrence.
func (m *AssistantMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordChunks adds to the per-model chunk counter.
func (m *AssistantMetrics) RecordChunks(model string, chunks int) {
	m.ChunksTotal.WithLabelValues(model).Add(float64(chunks))
}

// RecordFallback records one fallback attempt and its outcome.
func (m *AssistantMetrics) RecordFallback(recovered bool) {
	outcome := "recovered"
	if !recovered {
		outcome = "failed"
	}
	m.FallbacksTotal.WithLabelValues(outcome).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *AssistantMetrics) StreamStarted(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *AssistantMetrics) StreamEnded(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordTimeToFirstChunk records the latency to the first answer chunk.
func (m *AssistantMetrics) RecordTimeToFirstChunk(endpoint Endpoint, seconds float64) {
	m.TimeToFirstChunkSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

// RecordStreamDuration records the total answer stream duration.
func (m *AssistantMetrics) RecordStreamDuration(endpoint Endpoint, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StreamDurationSeconds.WithLabelValues(string(endpoint), status).Observe(seconds)
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *AssistantMetrics) RecordClientDisconnect(endpoint Endpoint) {
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordPublish records one change event publish and its delivery count.
func (m *AssistantMetrics) RecordPublish(topic string, delivered int) {
	m.ChangeEventsPublishedTotal.WithLabelValues(topic).Inc()
	m.ChangeDeliveriesTotal.WithLabelValues(topic).Add(float64(delivered))
}
