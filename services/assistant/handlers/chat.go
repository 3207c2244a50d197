// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the assistant's HTTP surface.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minbar-platform/minbar/services/assistant/changebus"
	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"github.com/minbar-platform/minbar/services/assistant/generation"
	"github.com/minbar-platform/minbar/services/assistant/history"
	"github.com/minbar-platform/minbar/services/assistant/intent"
	"github.com/minbar-platform/minbar/services/assistant/knowledge"
	"github.com/minbar-platform/minbar/services/assistant/observability"
	"github.com/minbar-platform/minbar/services/assistant/prompt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("minbar.assistant.handlers")

// ProfileProvider resolves the optional per-user prompt fragment. Nil
// disables profiles entirely.
type ProfileProvider interface {
	Profile(ctx context.Context, userID string) (*datatypes.UserProfile, error)
}

// ChatPipeline bundles the collaborators behind the chat endpoints.
type ChatPipeline struct {
	Classifier *intent.Classifier
	Knowledge  *knowledge.Aggregator
	Prompts    *prompt.Builder
	Generator  *generation.Streamer
	History    history.Store
	Bus        *changebus.Bus
	Profiles   ProfileProvider
	Metrics    *observability.AssistantMetrics
}

// HandleChat creates the POST /v1/assistant/chat handler.
//
// # Description
//
// Runs the full pipeline for one request: validate, classify, aggregate
// knowledge, build prompts, and stream the generated answer to the client as
// chunked text/plain. There is no framing around the chunks; the body is the
// raw answer text.
//
// Error responses are JSON {"error": "..."}: 400 for validation failures and
// 500 when generation dies before any output. A failure after partial output
// simply ends the body; the status line is already on the wire.
//
// Persistence runs exactly once, after the stream completed, and only when
// the request carries a chat id. A client that disconnects mid-stream gets
// nothing persisted.
func HandleChat(p *ChatPipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()
		start := time.Now()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			p.recordError(observability.EndpointChat, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			p.recordError(observability.EndpointChat, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		query := req.LastUserMessage()
		if query == "" {
			p.recordError(observability.EndpointChat, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "request holds no user message"})
			return
		}

		lang := req.ResolveLanguage()
		span.SetAttributes(
			attribute.String("chat.language", string(lang)),
			attribute.Bool("chat.has_id", req.ChatID != ""),
		)

		system, user := p.buildPrompts(ctx, &req, query, lang)

		if p.Metrics != nil {
			p.Metrics.StreamStarted(observability.EndpointChat)
			defer p.Metrics.StreamEnded(observability.EndpointChat)
		}

		// Headers only; the status line goes out with the first chunk, so
		// a generation failure before output can still return JSON.
		c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		var firstChunkAt time.Time
		result, err := p.Generator.Stream(ctx, system, user, func(chunk string) error {
			if firstChunkAt.IsZero() {
				firstChunkAt = time.Now()
				if p.Metrics != nil {
					p.Metrics.RecordTimeToFirstChunk(observability.EndpointChat,
						firstChunkAt.Sub(start).Seconds())
				}
			}
			if _, werr := c.Writer.WriteString(chunk); werr != nil {
				return werr
			}
			c.Writer.Flush()
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.streamErrorResponse(c, err, firstChunkAt.IsZero())
			p.recordRequest(observability.EndpointChat, false, start)
			return
		}

		span.SetAttributes(
			attribute.Int("chat.chunks", result.Chunks),
			attribute.Bool("chat.fell_back", result.FellBack),
		)
		if p.Metrics != nil {
			p.Metrics.RecordChunks(result.Model, result.Chunks)
			if result.FellBack {
				p.Metrics.RecordFallback(true)
			}
		}

		p.persistTurns(ctx, &req, query, lang, result.Answer)
		p.recordRequest(observability.EndpointChat, true, start)
	}
}

// buildPrompts runs classification, knowledge aggregation, and the optional
// profile lookup, then renders the prompt pair.
func (p *ChatPipeline) buildPrompts(ctx context.Context, req *datatypes.ChatRequest, query string, lang datatypes.Language) (system, user string) {
	intents := p.Classifier.Classify(query, lang)

	snapshot, err := p.Knowledge.BuildSnapshot(ctx, intents, query, lang)
	if err != nil {
		// Only cancellation reaches here; an empty snapshot still lets the
		// model answer from its instructions.
		slog.Warn("Knowledge aggregation interrupted", "error", err)
		snapshot = &datatypes.KnowledgeSnapshot{}
	}

	profile := p.lookupProfile(ctx, req)
	return p.Prompts.Build(lang, snapshot, profile, p.isFirstTurn(ctx, req), query)
}

// isFirstTurn decides whether the greeting directive applies. With a chat id
// the persisted turn count is authoritative; the client flag is only a hint
// for id-less requests and cannot desynchronize greeting behavior otherwise.
func (p *ChatPipeline) isFirstTurn(ctx context.Context, req *datatypes.ChatRequest) bool {
	if req.ChatID == "" {
		return !req.HasGreeted
	}
	count, err := p.History.TurnCount(ctx, req.ChatID)
	if err != nil {
		slog.Warn("Turn count lookup failed, using client hint",
			"chat_id", req.ChatID, "error", err)
		return !req.HasGreeted
	}
	return count == 0
}

func (p *ChatPipeline) lookupProfile(ctx context.Context, req *datatypes.ChatRequest) *datatypes.UserProfile {
	if p.Profiles == nil || req.UserContext == nil || req.UserContext.UserID == "" {
		return nil
	}
	profile, err := p.Profiles.Profile(ctx, req.UserContext.UserID)
	if err != nil {
		slog.Warn("Profile lookup failed, continuing without",
			"user_id", req.UserContext.UserID, "error", err)
		return nil
	}
	return profile
}

// streamErrorResponse maps a stream failure onto the wire. JSON errors are
// only possible while the status line has not been written, which is exactly
// the zero-chunks case.
func (p *ChatPipeline) streamErrorResponse(c *gin.Context, err error, nothingWritten bool) {
	switch {
	case c.Request.Context().Err() != nil:
		slog.Info("Client disconnected during answer stream", "error", err)
		if p.Metrics != nil {
			p.Metrics.RecordClientDisconnect(observability.EndpointChat)
		}
	case datatypes.IsMidStreamFailure(err):
		slog.Error("Generation died after partial output", "error", err)
		p.recordError(observability.EndpointChat, observability.ErrorCodeMidStream)
	case datatypes.IsConfigurationError(err):
		slog.Error("Generation misconfigured", "error", err)
		p.recordError(observability.EndpointChat, observability.ErrorCodeConfiguration)
		if nothingWritten {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "assistant unavailable"})
		}
	default:
		slog.Error("Generation failed", "error", err)
		p.recordError(observability.EndpointChat, observability.ErrorCodeGeneration)
		if p.Metrics != nil && datatypes.IsGenerationFailure(err) {
			p.Metrics.RecordFallback(false)
		}
		if nothingWritten {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "assistant unavailable"})
		}
	}
}

// persistTurns appends the user and assistant turns after a completed
// stream, then announces the change. Both are best effort: failures are
// logged and never reach the client, who already has the full answer.
func (p *ChatPipeline) persistTurns(ctx context.Context, req *datatypes.ChatRequest, query string, lang datatypes.Language, answer string) {
	if req.ChatID == "" {
		return
	}

	ownerID := ""
	if req.UserContext != nil {
		ownerID = req.UserContext.UserID
	}

	turns := []datatypes.ConversationTurn{
		datatypes.NewUserTurn(query, lang),
		datatypes.NewAssistantTurn(answer, lang),
	}
	// The request context may already be closing; persistence gets its own
	// deadline so a slow client teardown cannot cut the write short.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := p.History.Append(persistCtx, req.ChatID, ownerID, turns); err != nil {
		slog.Error("Conversation append failed", "chat_id", req.ChatID, "error", err)
		p.recordError(observability.EndpointChat, observability.ErrorCodePersistence)
		return
	}

	topic := "conversations:" + req.ChatID
	delivered := p.Bus.Publish(datatypes.NewChangeEvent(topic, nil))
	if p.Metrics != nil {
		p.Metrics.RecordPublish(topic, delivered)
	}
}

func (p *ChatPipeline) recordRequest(endpoint observability.Endpoint, success bool, start time.Time) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.RecordRequest(endpoint, success)
	p.Metrics.RecordStreamDuration(endpoint, time.Since(start).Seconds(), success)
}

func (p *ChatPipeline) recordError(endpoint observability.Endpoint, code observability.ErrorCode) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.RecordError(endpoint, code)
}
