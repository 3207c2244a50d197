// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Taxonomy
// =============================================================================
//
// Each error class maps to a fixed handling policy:
//
//   ConfigurationError  -> 500, never retried (operator must fix env)
//   ValidationError     -> 400
//   AuthError           -> 401
//   KnowledgeUnavailable-> logged, category omitted from snapshot
//   GenerationFailure   -> one model fallback, then 500 with a generic message
//   MidStreamFailure    -> terminal, stream simply ends, no fallback
//   PersistenceFailure  -> logged only, invisible to the client

// ConfigurationError indicates missing or invalid environment configuration,
// such as an absent generation API key. Fatal for the request; not retryable.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set or invalid", e.Setting)
}

// NewConfigurationError creates a ConfigurationError for an env setting.
func NewConfigurationError(setting string) error {
	return &ConfigurationError{Setting: setting}
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ValidationError indicates a malformed request body.
type ValidationError struct {
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// NewValidationError wraps a validator error.
func NewValidationError(cause error) error {
	return &ValidationError{Cause: cause}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrUnauthorized indicates a missing or invalid session.
var ErrUnauthorized = errors.New("unauthorized")

// KnowledgeUnavailable marks one category fetch as failed. The aggregator
// recovers by leaving the category empty; the error never escapes aggregation.
type KnowledgeUnavailable struct {
	Category Category
	Cause    error
}

func (e *KnowledgeUnavailable) Error() string {
	return fmt.Sprintf("knowledge category %q unavailable: %v", e.Category, e.Cause)
}

func (e *KnowledgeUnavailable) Unwrap() error { return e.Cause }

// GenerationFailure indicates the generation backend failed before any output
// reached the client. Eligible for exactly one model fallback attempt.
type GenerationFailure struct {
	Model string
	Cause error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("generation failed on model %q: %v", e.Model, e.Cause)
}

func (e *GenerationFailure) Unwrap() error { return e.Cause }

// IsGenerationFailure reports whether err is a GenerationFailure.
func IsGenerationFailure(err error) bool {
	var gf *GenerationFailure
	return errors.As(err, &gf)
}

// MidStreamFailure indicates the backend failed after partial output was
// already forwarded. Terminal: no fallback, the response stream just ends.
type MidStreamFailure struct {
	Model  string
	Chunks int
	Cause  error
}

func (e *MidStreamFailure) Error() string {
	return fmt.Sprintf("stream failed mid-flight on model %q after %d chunks: %v",
		e.Model, e.Chunks, e.Cause)
}

func (e *MidStreamFailure) Unwrap() error { return e.Cause }

// IsMidStreamFailure reports whether err is a MidStreamFailure.
func IsMidStreamFailure(err error) bool {
	var mf *MidStreamFailure
	return errors.As(err, &mf)
}

// PersistenceFailure indicates the conversation append failed after the
// response was already streamed. Logged for operator inspection only.
type PersistenceFailure struct {
	ConversationID string
	Cause          error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("failed to persist conversation %q: %v", e.ConversationID, e.Cause)
}

func (e *PersistenceFailure) Unwrap() error { return e.Cause }
