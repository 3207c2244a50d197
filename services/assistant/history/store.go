// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history persists conversation turns.
//
// Writes happen exactly once per chat request, after the response stream
// completed. A failed append is logged and never surfaced to the client; the
// user already has their answer, history is best effort.
package history

import (
	"context"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("minbar.assistant.history")

// Store is the conversation persistence collaborator.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Append for a given
// conversation is never called concurrently because a chat request streams
// to completion before its single append runs.
type Store interface {
	// Append adds turns to a conversation, creating it on first write.
	// Turn IDs are derived from content, so replaying the same append is
	// harmless.
	Append(ctx context.Context, conversationID, ownerID string, turns []datatypes.ConversationTurn) error

	// Turns returns the conversation's turns in chronological order.
	Turns(ctx context.Context, conversationID string) ([]datatypes.ConversationTurn, error)

	// TurnCount returns how many turns the conversation holds. Zero for
	// unknown conversations.
	TurnCount(ctx context.Context, conversationID string) (int, error)
}
