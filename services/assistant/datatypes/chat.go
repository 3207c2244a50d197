// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request and response types for the assistant chat
// endpoint. For the knowledge snapshot types, see knowledge.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages in a request.
	MaxMessagesPerRequest = 100
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the message content size limit. Checks byte
// length, not rune count, to bound memory for large payloads.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Conversation Turns
// =============================================================================

// RoleUser and RoleAssistant are the two turn roles the platform stores.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one immutable message in a conversation.
//
// # Fields
//
//   - Role: "user" or "assistant".
//   - Content: Message text, at most 32KB.
//   - Language: Locale the turn was written in ("ar" or "en").
//   - Timestamp: Unix milliseconds when the turn was appended.
type ConversationTurn struct {
	Role      string   `json:"role" validate:"required,oneof=user assistant"`
	Content   string   `json:"content" validate:"required,maxbytes"`
	Language  Language `json:"language,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// UserContext carries the optional caller identity fragment of a chat request.
type UserContext struct {
	UserID       string `json:"user_id,omitempty"`
	UserLanguage string `json:"user_language,omitempty"`
}

// =============================================================================
// Chat Request
// =============================================================================

// ChatRequest is the body of POST /v1/assistant/chat.
//
// # Description
//
// Carries the running message list plus the optional caller context. The
// response is a chunked text/plain stream of the assistant's answer; there is
// no structured framing beyond raw text chunks.
//
// HasGreeted is a legacy client hint: when ChatID is present the first-turn
// state is derived from the persisted conversation instead, so a spoofed flag
// cannot desynchronize greeting behavior.
//
// # Validation
//
//   - Messages: required, 1-100 elements, each with a valid role and
//     content of at most 32KB.
//   - ChatID: optional, but must be a UUID v4 when present.
type ChatRequest struct {
	Messages    []ConversationTurn `json:"messages" validate:"required,min=1,max=100,dive"`
	HasGreeted  bool               `json:"has_greeted"`
	UserContext *UserContext       `json:"user_context,omitempty"`
	ChatID      string             `json:"chat_id,omitempty" validate:"omitempty,uuid4"`
}

// Validate checks the ChatRequest fields after JSON binding.
func (r *ChatRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return NewValidationError(err)
	}
	return nil
}

// LastUserMessage returns the content of the most recent user turn, or the
// empty string when the request holds none.
func (r *ChatRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// ResolveLanguage resolves the request locale from the user context, falling back to
// the platform default.
func (r *ChatRequest) ResolveLanguage() Language {
	if r.UserContext != nil {
		return NormalizeLanguage(r.UserContext.UserLanguage)
	}
	return LanguageArabic
}

// NewUserTurn builds a user turn stamped with the current time.
func NewUserTurn(content string, lang Language) ConversationTurn {
	return ConversationTurn{
		Role:      RoleUser,
		Content:   content,
		Language:  lang,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewAssistantTurn builds an assistant turn stamped with the current time.
func NewAssistantTurn(content string, lang Language) ConversationTurn {
	return ConversationTurn{
		Role:      RoleAssistant,
		Content:   content,
		Language:  lang,
		Timestamp: time.Now().UnixMilli(),
	}
}

// =============================================================================
// Conversation
// =============================================================================

// Conversation is the persisted message list owned by one user.
//
// Mutated only by the history store's append; a conversation id is never
// written concurrently because each chat request streams to completion before
// its single append runs.
type Conversation struct {
	ID        string             `json:"id"`
	OwnerID   string             `json:"owner_id"`
	Messages  []ConversationTurn `json:"messages"`
	CreatedAt int64              `json:"created_at"`
	UpdatedAt int64              `json:"updated_at"`
}
