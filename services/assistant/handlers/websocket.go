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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"github.com/minbar-platform/minbar/services/assistant/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// WSChatFrame is one message on the websocket, in either direction.
// Client frames carry a full ChatRequest under Request; server frames are
// typed chunk/done/error.
type WSChatFrame struct {
	Type     string                 `json:"type"`
	Content  string                 `json:"content,omitempty"`
	Model    string                 `json:"model,omitempty"`
	ChatID   string                 `json:"chatId,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Request  *datatypes.ChatRequest `json:"request,omitempty"`
	FellBack bool                   `json:"fellBack,omitempty"`
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatWebSocket creates the websocket variant of the chat endpoint.
//
// # Description
//
// The connection is a session: the server assigns a chat id on connect when
// the first request does not carry one, and greeting state follows the
// persisted turn count exactly as on the HTTP path. Each client frame with a
// Request runs the full pipeline; the answer streams back as chunk frames
// followed by a done frame.
//
// A read error ends the session. Write errors mid-answer behave like an HTTP
// client disconnect: the stream stops and nothing is persisted.
func HandleChatWebSocket(p *ChatPipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		sessionChatID := uuid.New().String()
		slog.Info("Websocket chat session started", "chat_id", sessionChatID)

		if err := sendJSON(ws, WSChatFrame{Type: "session", ChatID: sessionChatID}); err != nil {
			return
		}

		for {
			var frame WSChatFrame
			if err := ws.ReadJSON(&frame); err != nil {
				slog.Info("Websocket client disconnected", "error", err.Error())
				return
			}
			if frame.Request == nil {
				if err := sendJSON(ws, WSChatFrame{Type: "error", Error: "frame holds no request"}); err != nil {
					return
				}
				continue
			}

			req := frame.Request
			if req.ChatID == "" {
				req.ChatID = sessionChatID
			}
			if !p.serveWebSocketTurn(c, ws, req) {
				return
			}
		}
	}
}

// serveWebSocketTurn runs one request/answer exchange. The bool return is
// false when the connection is no longer usable.
func (p *ChatPipeline) serveWebSocketTurn(c *gin.Context, ws *websocket.Conn, req *datatypes.ChatRequest) bool {
	ctx, span := tracer.Start(c.Request.Context(), "HandleChatWebSocket.turn")
	defer span.End()
	start := time.Now()

	if err := req.Validate(); err != nil {
		p.recordError(observability.EndpointWSChat, observability.ErrorCodeValidation)
		return sendJSON(ws, WSChatFrame{Type: "error", Error: err.Error()}) == nil
	}
	query := req.LastUserMessage()
	if query == "" {
		p.recordError(observability.EndpointWSChat, observability.ErrorCodeValidation)
		return sendJSON(ws, WSChatFrame{Type: "error", Error: "request holds no user message"}) == nil
	}

	lang := req.ResolveLanguage()
	system, user := p.buildPrompts(ctx, req, query, lang)

	if p.Metrics != nil {
		p.Metrics.StreamStarted(observability.EndpointWSChat)
		defer p.Metrics.StreamEnded(observability.EndpointWSChat)
	}

	var firstChunkAt time.Time
	result, err := p.Generator.Stream(ctx, system, user, func(chunk string) error {
		if firstChunkAt.IsZero() {
			firstChunkAt = time.Now()
			if p.Metrics != nil {
				p.Metrics.RecordTimeToFirstChunk(observability.EndpointWSChat,
					firstChunkAt.Sub(start).Seconds())
			}
		}
		return ws.WriteJSON(WSChatFrame{Type: "chunk", Content: chunk})
	})
	if err != nil {
		slog.Error("Websocket generation failed", "chat_id", req.ChatID, "error", err)
		if datatypes.IsMidStreamFailure(err) {
			p.recordError(observability.EndpointWSChat, observability.ErrorCodeMidStream)
		} else {
			p.recordError(observability.EndpointWSChat, observability.ErrorCodeGeneration)
		}
		p.recordRequest(observability.EndpointWSChat, false, start)
		// The write may fail too if the socket itself died; either way the
		// turn is over and nothing is persisted.
		return sendJSON(ws, WSChatFrame{Type: "error", Error: "assistant unavailable"}) == nil
	}

	if p.Metrics != nil {
		p.Metrics.RecordChunks(result.Model, result.Chunks)
		if result.FellBack {
			p.Metrics.RecordFallback(true)
		}
	}

	p.persistTurns(ctx, req, query, lang, result.Answer)
	p.recordRequest(observability.EndpointWSChat, true, start)

	return sendJSON(ws, WSChatFrame{
		Type:     "done",
		Model:    result.Model,
		ChatID:   req.ChatID,
		FellBack: result.FellBack,
	}) == nil
}
