// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const turnClass = "ConversationTurn"

// WeaviateStore implements Store on the platform's Weaviate instance.
//
// Each turn is one object in the ConversationTurn class, keyed by a
// deterministic UUID derived from the turn's identity. Duplicate appends of
// the same turn collapse onto the same object instead of growing the
// conversation.
type WeaviateStore struct {
	client *weaviate.Client
}

var _ Store = (*WeaviateStore)(nil)

// NewWeaviateStore creates a conversation store.
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{client: client}
}

// Append implements Store. Any failure comes back as a PersistenceFailure
// carrying the conversation id; callers log it and move on.
func (s *WeaviateStore) Append(ctx context.Context, conversationID, ownerID string, turns []datatypes.ConversationTurn) error {
	ctx, span := tracer.Start(ctx, "WeaviateStore.Append")
	defer span.End()

	for _, turn := range turns {
		turnID, err := turnUUID(conversationID, turn)
		if err != nil {
			return &datatypes.PersistenceFailure{ConversationID: conversationID, Cause: err}
		}

		properties := map[string]interface{}{
			"conversation_id": conversationID,
			"owner_id":        ownerID,
			"role":            turn.Role,
			"content":         turn.Content,
			"language":        string(turn.Language),
			"timestamp":       turn.Timestamp,
		}

		_, err = s.client.Data().Creator().
			WithClassName(turnClass).
			WithID(turnID).
			WithProperties(properties).
			Do(ctx)
		if err != nil {
			slog.Error("Failed to write conversation turn",
				"conversation_id", conversationID, "role", turn.Role, "error", err)
			return &datatypes.PersistenceFailure{ConversationID: conversationID, Cause: err}
		}
	}

	slog.Debug("Appended conversation turns",
		"conversation_id", conversationID, "count", len(turns))
	return nil
}

// Turns implements Store.
func (s *WeaviateStore) Turns(ctx context.Context, conversationID string) ([]datatypes.ConversationTurn, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.Turns")
	defer span.End()

	where := filters.Where().
		WithPath([]string{"conversation_id"}).
		WithOperator(filters.Equal).
		WithValueString(conversationID)

	sortBy := graphql.Sort{
		Path:  []string{"timestamp"},
		Order: graphql.Asc,
	}

	fields := []graphql.Field{
		{Name: "role"},
		{Name: "content"},
		{Name: "language"},
		{Name: "timestamp"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(turnClass).
		WithFields(fields...).
		WithWhere(where).
		WithSort(sortBy).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query failed for %s: %w", turnClass, err)
	}

	parsed, err := parseGraphQLResponse[turnQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s results: %w", turnClass, err)
	}

	turns := make([]datatypes.ConversationTurn, 0, len(parsed.Get.ConversationTurn))
	for _, obj := range parsed.Get.ConversationTurn {
		turns = append(turns, datatypes.ConversationTurn{
			Role:      obj.Role,
			Content:   obj.Content,
			Language:  datatypes.Language(obj.Language),
			Timestamp: obj.Timestamp,
		})
	}
	return turns, nil
}

// TurnCount implements Store.
func (s *WeaviateStore) TurnCount(ctx context.Context, conversationID string) (int, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.TurnCount")
	defer span.End()

	where := filters.Where().
		WithPath([]string{"conversation_id"}).
		WithOperator(filters.Equal).
		WithValueString(conversationID)

	result, err := s.client.GraphQL().Aggregate().
		WithClassName(turnClass).
		WithWhere(where).
		WithFields(graphql.Field{
			Name:   "meta",
			Fields: []graphql.Field{{Name: "count"}},
		}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate aggregate failed for %s: %w", turnClass, err)
	}

	parsed, err := parseGraphQLResponse[turnAggregateResponse](result)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s aggregate: %w", turnClass, err)
	}
	rows := parsed.Aggregate.ConversationTurn
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Meta.Count, nil
}

// turnUUID derives a stable UUID from the turn's identity. The hash covers
// conversation, role, timestamp, and content, so identical retries produce
// the same id while distinct turns never collide in practice.
func turnUUID(conversationID string, turn datatypes.ConversationTurn) (string, error) {
	payload := fmt.Sprintf("%s|%s|%d|%s",
		conversationID, turn.Role, turn.Timestamp, turn.Content)
	hash := sha256.Sum256([]byte(payload))

	id, err := uuid.FromBytes(hash[:16])
	if err != nil {
		return "", fmt.Errorf("failed to derive turn uuid: %w", err)
	}
	return id.String(), nil
}

// =============================================================================
// GraphQL Response Types
// =============================================================================

type turnQueryResponse struct {
	Get struct {
		ConversationTurn []struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			Language  string `json:"language"`
			Timestamp int64  `json:"timestamp"`
		} `json:"ConversationTurn"`
	} `json:"Get"`
}

type turnAggregateResponse struct {
	Aggregate struct {
		ConversationTurn []struct {
			Meta struct {
				Count int `json:"count"`
			} `json:"meta"`
		} `json:"ConversationTurn"`
	} `json:"Aggregate"`
}

func parseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}
