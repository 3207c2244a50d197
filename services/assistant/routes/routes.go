// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/minbar-platform/minbar/services/assistant/handlers"
	"github.com/minbar-platform/minbar/services/assistant/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers the assistant's HTTP surface on the router.
//
// /health and /metrics stay outside the authenticated group so probes and
// the Prometheus scraper never need credentials. Everything under /v1 runs
// through session validation; the chat endpoints additionally rate limit
// per client IP because generation is the expensive path.
func SetupRoutes(router *gin.Engine, p *handlers.ChatPipeline,
	validator middleware.SessionValidator) {

	router.GET("/health", handlers.HandleHealth())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(validator))
	{
		assistant := v1.Group("/assistant")
		assistant.Use(middleware.RateLimitMiddleware(
			middleware.DefaultRateLimit, middleware.DefaultBurst))
		{
			assistant.POST("/chat", handlers.HandleChat(p))
			assistant.GET("/chat/ws", handlers.HandleChatWebSocket(p))
		}

		v1.GET("/stream", handlers.HandleStream(p.Bus, p.Metrics))
		v1.POST("/changes", handlers.HandleChangePublish(p.Bus, p.Metrics))
	}
}
