// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package changebus fans datastore change notifications out to live
// subscribers.
//
// Delivery is best effort and at-most-once: events are never stored, a slow
// subscriber's events are dropped once its buffer fills, and a subscriber
// that connects after an event simply never sees it. Consumers re-fetch
// state on reconnect instead of relying on replay.
package changebus

import (
	"log/slog"
	"sync"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
)

// DefaultBufferSize is each subscriber's event buffer. Small on purpose: a
// consumer that cannot keep up with this much backlog is better served by a
// drop and a state re-fetch than by an unbounded queue.
const DefaultBufferSize = 16

// Subscriber is one live event consumer.
type Subscriber struct {
	topics map[string]bool
	events chan datatypes.ChangeEvent
}

// Events returns the subscriber's delivery channel. Closed by Unsubscribe.
func (s *Subscriber) Events() <-chan datatypes.ChangeEvent {
	return s.events
}

// Bus routes change events to subscribers by topic.
//
// # Thread Safety
//
// Safe for concurrent use. Publish never blocks on a slow subscriber.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int
}

// NewBus creates a bus with the default per-subscriber buffer.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[*Subscriber]struct{}),
		buffer: DefaultBufferSize,
	}
}

// Subscribe registers a consumer for the given topics. A subscriber receives
// an event when its topic set contains the event's topic; topics outside the
// set never reach it.
func (b *Bus) Subscribe(topics []string) *Subscriber {
	sub := &Subscriber{
		topics: make(map[string]bool, len(topics)),
		events: make(chan datatypes.ChangeEvent, b.buffer),
	}
	for _, t := range topics {
		sub.topics[t] = true
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	slog.Debug("Change bus subscriber added", "topics", topics)
	return sub
}

// Unsubscribe removes a consumer and closes its channel. Safe to call once
// per subscriber; events published afterwards no longer reach it.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, present := b.subs[sub]
	delete(b.subs, sub)
	if present {
		// No Publish holds the read lock here, so the close cannot race
		// with a send.
		close(sub.events)
	}
	b.mu.Unlock()
}

// Publish delivers an event to every subscriber whose topic set contains the
// event's topic.
//
// # Outputs
//
//   - int: Subscribers the event was actually delivered to. Full buffers
//     count as drops, not deliveries.
func (b *Bus) Publish(event datatypes.ChangeEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for sub := range b.subs {
		if !sub.topics[event.Topic] {
			continue
		}
		select {
		case sub.events <- event:
			delivered++
		default:
			slog.Warn("Change bus subscriber buffer full, dropping event",
				"topic", event.Topic)
		}
	}
	return delivered
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
