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
	"fmt"
	"io"
	"log/slog"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultOpenAIModel is used when OPENAI_MODEL is not set.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIBackend serves generation through any OpenAI-compatible endpoint.
// OPENAI_BASE_URL redirects it to self-hosted gateways that speak the same
// protocol.
type OpenAIBackend struct {
	client *openai.Client
}

var _ Backend = (*OpenAIBackend)(nil)

// NewOpenAIBackend creates the backend from environment configuration.
//
// # Outputs
//
//   - *OpenAIBackend: Ready for use.
//   - error: ConfigurationError when OPENAI_API_KEY is missing.
func NewOpenAIBackend() (*OpenAIBackend, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, datatypes.NewConfigurationError("OPENAI_API_KEY")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
		slog.Info("Initializing OpenAI backend with custom base URL", "base_url", baseURL)
	} else {
		slog.Info("Initializing OpenAI backend")
	}

	return &OpenAIBackend{client: openai.NewClientWithConfig(config)}, nil
}

// Name implements Backend.
func (o *OpenAIBackend) Name() string { return BackendOpenAI }

// ListModels returns the model IDs in the provider's listing order.
func (o *OpenAIBackend) ListModels(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIBackend.ListModels")
	defer span.End()

	list, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("OpenAI models call failed: %w", err)
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// GenerateStream implements Backend.
func (o *OpenAIBackend) GenerateStream(ctx context.Context, model, system, user string, onChunk ChunkFunc) error {
	ctx, span := tracer.Start(ctx, "OpenAIBackend.GenerateStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model))

	req := openai.ChatCompletionRequest{
		Model:  model,
		Stream: true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("OpenAI stream call failed: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("OpenAI stream read failed: %w", err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onChunk(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
}
