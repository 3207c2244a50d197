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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minbar-platform/minbar/services/assistant/changebus"
	"github.com/minbar-platform/minbar/services/assistant/observability"
)

// keepAliveInterval paces SSE comment pings. Load balancers commonly cut
// idle connections at 60 seconds; 15 keeps a healthy margin.
const keepAliveInterval = 15 * time.Second

// HandleStream creates the GET /v1/stream handler.
//
// # Description
//
// Subscribes the connection to the change bus for the topics named in the
// "topics" query parameter (comma separated) and forwards every matching
// event as an SSE message until the client goes away. Keepalive comments
// flow every 15 seconds regardless of event traffic.
//
// Delivery is at-most-once: events published while the client is
// disconnected are simply missed, and the client re-fetches state after its
// reconnect.
func HandleStream(bus *changebus.Bus, metrics *observability.AssistantMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		topics := parseTopics(c.Query("topics"))
		if len(topics) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topics parameter is required"})
			return
		}

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
			return
		}

		sub := bus.Subscribe(topics)
		defer bus.Unsubscribe(sub)
		if metrics != nil {
			metrics.ChangeSubscribers.Inc()
			defer metrics.ChangeSubscribers.Dec()
		}
		slog.Info("Change stream subscriber connected", "topics", topics)

		// First byte immediately, so clients can confirm the subscription
		// without waiting for an event.
		if err := writer.WriteKeepAlive(); err != nil {
			return
		}

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		ctx := c.Request.Context()
		for {
			select {
			case <-ctx.Done():
				slog.Debug("Change stream subscriber disconnected", "topics", topics)
				return
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
				if metrics != nil {
					metrics.KeepAlivesTotal.Inc()
				}
			case event, ok := <-sub.Events():
				if !ok {
					// Bus shut the subscription down server-side; tell the
					// client before closing so it reconnects promptly.
					_ = writer.WriteStreamError("subscription closed")
					return
				}
				if err := writer.WriteChange(event); err != nil {
					slog.Debug("Change stream write failed, dropping subscriber",
						"error", err)
					return
				}
			}
		}
	}
}

// parseTopics splits and trims the topics parameter, dropping empties.
func parseTopics(raw string) []string {
	parts := strings.Split(raw, ",")
	topics := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}
