// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generation streams answers from a configurable model backend.
//
// The Streamer owns the retry policy: a request that fails before any chunk
// reached the client gets exactly one fallback attempt on a different model;
// a request that fails after partial output is terminal. Backends only know
// how to talk to their API.
package generation

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("minbar.assistant.generation")

// ChunkFunc receives one chunk of generated text. Returning an error stops
// the stream; backends must not call it again afterwards.
type ChunkFunc func(chunk string) error

// Backend is one model provider.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// ListModels returns the model identifiers this backend can serve,
	// in the provider's listing order.
	ListModels(ctx context.Context) ([]string, error)

	// GenerateStream runs one streamed completion, invoking onChunk for
	// every piece of answer text as it arrives.
	GenerateStream(ctx context.Context, model, system, user string, onChunk ChunkFunc) error
}

// Backend kinds accepted by NewBackend and the GENERATION_BACKEND env var.
const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

// NewBackend constructs the backend named by kind. An empty kind selects
// Gemini, the platform default.
func NewBackend(kind string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", BackendGemini:
		return NewGeminiBackend()
	case BackendOpenAI:
		return NewOpenAIBackend()
	default:
		return nil, fmt.Errorf("unknown generation backend %q", kind)
	}
}
