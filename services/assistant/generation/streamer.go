// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultStreamTimeout bounds one generation request end to end, fallback
// attempt included.
const DefaultStreamTimeout = 60 * time.Second

// fallbackPreferences order the substrings tried when picking a replacement
// model. The first listed model matching any of them wins; with no match the
// first listed model is used.
var fallbackPreferences = []string{"gemini", "text", "chat"}

// State tracks one stream through its lifecycle. Used for logging and
// metrics labels; transitions are internal to Stream.
type State string

const (
	StateIdle      State = "idle"
	StateRequested State = "requested"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Result describes one finished generation stream.
type Result struct {
	// Answer is the full concatenated text, also the source of truth for
	// persistence after a completed stream.
	Answer string
	// Model is the model that produced the answer.
	Model string
	// Chunks counts the pieces forwarded to the caller.
	Chunks int
	// FellBack is true when the answer came from the fallback model.
	FellBack bool
}

// Streamer drives one backend with the platform's retry policy.
//
// # Description
//
// A stream moves Idle -> Requested -> Streaming -> Completed or Failed. The
// decisive question on failure is whether any chunk already reached the
// caller: if not, the streamer lists the backend's models, picks one
// replacement, and retries exactly once; if yes, the failure is terminal
// because the caller has partial output that a retry would duplicate.
//
// # Thread Safety
//
// Safe for concurrent use; per-stream state lives on the stack.
type Streamer struct {
	backend Backend
	model   string
	timeout time.Duration
}

// NewStreamer creates a streamer for the backend's given default model.
func NewStreamer(backend Backend, model string) *Streamer {
	return &Streamer{
		backend: backend,
		model:   model,
		timeout: DefaultStreamTimeout,
	}
}

// Stream runs one generation request.
//
// # Inputs
//
//   - ctx: Canceled when the client disconnects; the stream stops and no
//     fallback runs.
//   - system, user: The prompt pair from the prompt builder.
//   - onChunk: Receives every chunk as it arrives. An error from onChunk
//     stops the stream.
//
// # Outputs
//
//   - *Result: Non-nil on success. Nil on every error path; partial output
//     already forwarded is not re-reported.
//   - error: GenerationFailure when both attempts died before output,
//     MidStreamFailure when a stream died after partial output, or the
//     context error on cancellation and timeout.
func (s *Streamer) Stream(ctx context.Context, system, user string, onChunk ChunkFunc) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Streamer.Stream")
	defer span.End()
	span.SetAttributes(
		attribute.String("gen.backend", s.backend.Name()),
		attribute.String("gen.model", s.model),
	)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.attempt(ctx, s.model, system, user, onChunk)
	if err == nil {
		span.SetAttributes(attribute.Int("gen.chunks", result.Chunks))
		return result, nil
	}

	var mid *datatypes.MidStreamFailure
	if errors.As(err, &mid) || ctx.Err() != nil {
		// Partial output or a gone client: terminal either way.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	slog.Warn("Generation failed before any output, attempting model fallback",
		"model", s.model, "error", err)

	fallback, pickErr := s.pickFallbackModel(ctx)
	if pickErr != nil {
		slog.Error("Model fallback unavailable", "error", pickErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.AddEvent("model_fallback", trace.WithAttributes(
		attribute.String("gen.fallback_model", fallback)))

	result, retryErr := s.attempt(ctx, fallback, system, user, onChunk)
	if retryErr != nil {
		// One fallback only. Whatever happened here is final.
		span.RecordError(retryErr)
		span.SetStatus(codes.Error, retryErr.Error())
		return nil, retryErr
	}

	result.FellBack = true
	slog.Info("Generation recovered on fallback model",
		"model", fallback, "chunks", result.Chunks)
	return result, nil
}

// attempt runs one streamed completion and classifies its failure by how far
// the stream got.
func (s *Streamer) attempt(ctx context.Context, model, system, user string, onChunk ChunkFunc) (*Result, error) {
	state := StateRequested
	result := &Result{Model: model}
	var answer strings.Builder

	err := s.backend.GenerateStream(ctx, model, system, user, func(chunk string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onChunk(chunk); err != nil {
			return err
		}
		state = StateStreaming
		result.Chunks++
		answer.WriteString(chunk)
		return nil
	})
	if err != nil {
		if state == StateStreaming {
			return nil, &datatypes.MidStreamFailure{
				Model:  model,
				Chunks: result.Chunks,
				Cause:  err,
			}
		}
		return nil, &datatypes.GenerationFailure{Model: model, Cause: err}
	}

	result.Answer = answer.String()
	return result, nil
}

// pickFallbackModel chooses a replacement after a dead-on-arrival attempt.
// Preferred substrings are tried in order against the backend's listing; the
// failed model itself is never picked.
func (s *Streamer) pickFallbackModel(ctx context.Context) (string, error) {
	models, err := s.backend.ListModels(ctx)
	if err != nil {
		return "", err
	}

	candidates := models[:0:0]
	for _, m := range models {
		if m != s.model {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return "", errors.New("no alternate model available")
	}

	for _, pref := range fallbackPreferences {
		for _, m := range candidates {
			if strings.Contains(strings.ToLower(m), pref) {
				return m, nil
			}
		}
	}
	return candidates[0], nil
}
