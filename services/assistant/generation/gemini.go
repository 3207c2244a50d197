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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultGeminiModel is used when GEMINI_MODEL is not set.
const DefaultGeminiModel = "gemini-2.0-flash"

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiBackend talks to the Gemini REST API directly.
//
// # Description
//
// Streaming uses streamGenerateContent with alt=sse: the response body is an
// SSE feed whose data lines each carry one GenerateContentResponse. The
// backend forwards every text part as one chunk.
//
// # Thread Safety
//
// Safe for concurrent use.
type GeminiBackend struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

var _ Backend = (*GeminiBackend)(nil)

// NewGeminiBackend creates the backend from environment configuration.
//
// # Outputs
//
//   - *GeminiBackend: Ready for use.
//   - error: ConfigurationError when GEMINI_API_KEY is missing.
func NewGeminiBackend() (*GeminiBackend, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, datatypes.NewConfigurationError("GEMINI_API_KEY")
	}
	baseURL := os.Getenv("GEMINI_BASE_URL")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Gemini backend", "base_url", baseURL)
	return &GeminiBackend{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}, nil
}

// Name implements Backend.
func (g *GeminiBackend) Name() string { return BackendGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiModelList struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the model names the API key can reach, in listing
// order, with the "models/" prefix stripped.
func (g *GeminiBackend) ListModels(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "GeminiBackend.ListModels")
	defer span.End()

	url := g.baseURL + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini models request: %w", err)
	}
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("Gemini models call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Gemini models response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Gemini models returned an error",
			"status_code", resp.StatusCode, "response", string(body))
		return nil, fmt.Errorf("Gemini models failed with status %d: %s",
			resp.StatusCode, string(body))
	}

	var list geminiModelList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse Gemini models response: %w", err)
	}

	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}

// GenerateStream implements Backend.
func (g *GeminiBackend) GenerateStream(ctx context.Context, model, system, user string, onChunk ChunkFunc) error {
	ctx, span := tracer.Start(ctx, "GeminiBackend.GenerateStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model))

	payload := geminiGenerateRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: user}}},
		},
	}
	if system != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", g.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create Gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("Gemini API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("Gemini returned an error",
			"status_code", resp.StatusCode, "response", string(body))
		return fmt.Errorf("Gemini failed with status %d: %s", resp.StatusCode, string(body))
	}

	return g.consumeSSE(resp.Body, onChunk)
}

// consumeSSE reads the event stream and forwards every text part.
func (g *GeminiBackend) consumeSSE(body io.Reader, onChunk ChunkFunc) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk geminiGenerateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.Warn("Skipping unparseable Gemini stream line", "error", err)
			continue
		}
		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text == "" {
					continue
				}
				if err := onChunk(part.Text); err != nil {
					return err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("Gemini stream read failed: %w", err)
	}
	return nil
}
