// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "encoding/json"

// =============================================================================
// Change Events
// =============================================================================

// Change event types on the SSE wire.
const (
	ChangeEventTypeChange = "change"
	ChangeEventTypeError  = "error"
)

// ChangeEvent is one datastore mutation notification.
//
// # Description
//
// Produced by the change bus, consumed by subscriber connections. Ephemeral:
// never stored, delivered at-most-once to each subscriber that is connected
// when the event fires. A subscriber that is offline simply misses it and
// re-fetches state on reconnect.
//
// # Fields
//
//   - Topic: Routing key, e.g. "comments:<contentId>" or "teams". Not
//     serialized; clients filter on Collection.
//   - Type: "change" or "error".
//   - Collection: The mutated collection name, mirrors the topic for clients.
//   - Message: Human-readable detail, set on error events.
//   - Payload: Optional mutation payload.
type ChangeEvent struct {
	Topic      string          `json:"-"`
	Type       string          `json:"type"`
	Collection string          `json:"collection,omitempty"`
	Message    string          `json:"message,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewChangeEvent builds a change notification for a topic. The collection
// mirrors the topic so clients can filter without parsing routing keys.
func NewChangeEvent(topic string, payload json.RawMessage) ChangeEvent {
	return ChangeEvent{
		Topic:      topic,
		Type:       ChangeEventTypeChange,
		Collection: topic,
		Payload:    payload,
	}
}

// =============================================================================
// SSE Wire Envelope
// =============================================================================

// StreamEvent is the JSON envelope written to /v1/stream subscribers.
//
// Id and CreatedAt are populated by the SSE writer for ordering and
// deduplication on the client side.
type StreamEvent struct {
	Id         string          `json:"id,omitempty"`
	CreatedAt  int64           `json:"created_at,omitempty"`
	Type       string          `json:"type"`
	Collection string          `json:"collection,omitempty"`
	Message    string          `json:"message,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
