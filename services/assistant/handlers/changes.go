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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/minbar-platform/minbar/services/assistant/changebus"
	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"github.com/minbar-platform/minbar/services/assistant/observability"
)

// ChangeRequest is the internal publish hook payload.
type ChangeRequest struct {
	Topic   string      `json:"topic" binding:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HandleChangePublish creates the POST /v1/changes handler.
//
// Sibling services call this to announce a collection change; the event fans
// out to every stream subscriber watching that topic. The response reports
// how many subscribers the event reached, which is useful for smoke tests
// and nothing else: zero deliveries is a success.
func HandleChangePublish(bus *changebus.Bus, metrics *observability.AssistantMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
			return
		}

		delivered := bus.Publish(datatypes.NewChangeEvent(req.Topic, req.Payload))
		if metrics != nil {
			metrics.RecordPublish(req.Topic, delivered)
		}

		c.JSON(http.StatusOK, gin.H{"delivered": delivered})
	}
}
