// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minbar-platform/minbar/services/assistant/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes change notification events to an SSE response.
//
// # Description
//
// SSEWriter abstracts event serialization and writing, enabling testability
// and separation from HTTP response mechanics. Implementations handle the
// SSE wire format (event: type\ndata: json\n\n) internally.
//
// Each event is automatically assigned:
//   - Id: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//
// # Thread Safety
//
// Implementations must be safe for concurrent use: the stream handler emits
// change events and keepalives from different goroutines.
type SSEWriter interface {
	// WriteEvent writes a single event. Id and CreatedAt are auto-set;
	// the write flushes immediately.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteChange writes one change notification.
	WriteChange(event datatypes.ChangeEvent) error

	// WriteStreamError writes an error event. The message must already be
	// sanitized; internal details never reach the client.
	WriteStreamError(message string) error

	// WriteKeepAlive sends an SSE comment line to keep the connection
	// alive through load balancer idle timeouts. Comments are invisible
	// to SSE clients.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter.
//
// # Thread Safety
//
// Thread-safe via mutex; cannot be reused across requests.
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

var _ SSEWriter = (*sseWriter)(nil)

// NewSSEWriter creates an SSEWriter for the given ResponseWriter.
//
// # Outputs
//
//   - SSEWriter: Ready to write events.
//   - error: Non-nil if the ResponseWriter does not support flushing.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders().
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// WriteEvent implements SSEWriter.
func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// WriteChange implements SSEWriter.
func (w *sseWriter) WriteChange(event datatypes.ChangeEvent) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:       datatypes.ChangeEventTypeChange,
		Collection: event.Collection,
		Message:    event.Message,
		Payload:    event.Payload,
	})
}

// WriteStreamError implements SSEWriter.
func (w *sseWriter) WriteStreamError(message string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.ChangeEventTypeError,
		Message: message,
	})
}

// WriteKeepAlive implements SSEWriter.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// SSE comment format: colon followed by text, then double newline.
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures response headers for SSE streaming. Must be
// called before writing any body bytes.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
