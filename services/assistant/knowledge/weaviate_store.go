// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// DefaultListLimit bounds one List page. Prompt context is finite, so there
// is no value in pulling an unbounded category into a single request.
const DefaultListLimit = 25

// classForCategory maps a content category to its Weaviate class.
var classForCategory = map[datatypes.Category]string{
	datatypes.CategoryArticle:  "Article",
	datatypes.CategoryEpisode:  "Episode",
	datatypes.CategorySeason:   "Season",
	datatypes.CategoryPlaylist: "Playlist",
	datatypes.CategoryTeam:     "TeamMember",
	datatypes.CategoryFAQ:      "FAQ",
	datatypes.CategoryPrivacy:  "PrivacySection",
	datatypes.CategoryTerms:    "TermsSection",
}

// WeaviateStore implements Store against the platform's Weaviate instance.
//
// # Description
//
// Every content class carries the same bilingual property set: title_ar,
// title_en, body_ar, body_en, published_at, created_at. Localization happens
// here; raw bilingual objects never leave this file.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying Weaviate client handles connection
// pooling.
type WeaviateStore struct {
	client    *weaviate.Client
	listLimit int
}

var _ Store = (*WeaviateStore)(nil)

// NewWeaviateStore creates a content store with the default page size.
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{client: client, listLimit: DefaultListLimit}
}

// contentObject is the raw bilingual shape shared by all content classes.
type contentObject struct {
	TitleAr     string `json:"title_ar"`
	TitleEn     string `json:"title_en"`
	BodyAr      string `json:"body_ar"`
	BodyEn      string `json:"body_en"`
	PublishedAt *int64 `json:"published_at"`
	CreatedAt   int64  `json:"created_at"`
	Additional  struct {
		ID string `json:"id"`
	} `json:"_additional"`
}

// contentQueryResponse is the Get envelope keyed by class name. One shape
// serves all eight classes because their property sets are identical.
type contentQueryResponse struct {
	Get map[string][]contentObject `json:"Get"`
}

var contentFields = []graphql.Field{
	{Name: "title_ar"},
	{Name: "title_en"},
	{Name: "body_ar"},
	{Name: "body_en"},
	{Name: "published_at"},
	{Name: "created_at"},
	{Name: "_additional", Fields: []graphql.Field{
		{Name: "id"},
	}},
}

// List returns one page of a category, newest first.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - cat: Content category to page through.
//   - lang: Locale the records are localized to.
//
// # Outputs
//
//   - []datatypes.KnowledgeRecord: Localized records, at most one page.
//   - error: Non-nil on an unknown category or a Weaviate failure.
func (s *WeaviateStore) List(ctx context.Context, cat datatypes.Category, lang datatypes.Language) ([]datatypes.KnowledgeRecord, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.List")
	defer span.End()

	objects, err := s.query(ctx, cat, s.listLimit)
	if err != nil {
		return nil, err
	}
	records := make([]datatypes.KnowledgeRecord, 0, len(objects))
	for _, obj := range objects {
		records = append(records, localize(obj, lang))
	}
	return records, nil
}

// Count returns the total item count of a category via a meta aggregation.
func (s *WeaviateStore) Count(ctx context.Context, cat datatypes.Category) (int, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.Count")
	defer span.End()

	class, ok := classForCategory[cat]
	if !ok {
		return 0, fmt.Errorf("unknown content category %q", cat)
	}

	result, err := s.client.GraphQL().Aggregate().
		WithClassName(class).
		WithFields(graphql.Field{
			Name:   "meta",
			Fields: []graphql.Field{{Name: "count"}},
		}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate aggregate failed for %s: %w", class, err)
	}

	parsed, err := parseGraphQLResponse[aggregateResponse](result)
	if err != nil {
		return 0, fmt.Errorf("failed to parse aggregate for %s: %w", class, err)
	}
	rows := parsed.Aggregate[class]
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Meta.Count, nil
}

// Freshest returns the most recently published record of a category, or nil
// when the category holds nothing.
func (s *WeaviateStore) Freshest(ctx context.Context, cat datatypes.Category, lang datatypes.Language) (*datatypes.KnowledgeRecord, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.Freshest")
	defer span.End()

	objects, err := s.query(ctx, cat, 1)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, nil
	}
	record := localize(objects[0], lang)
	return &record, nil
}

// query runs one sorted Get over the category's class.
func (s *WeaviateStore) query(ctx context.Context, cat datatypes.Category, limit int) ([]contentObject, error) {
	class, ok := classForCategory[cat]
	if !ok {
		return nil, fmt.Errorf("unknown content category %q", cat)
	}

	sortBy := graphql.Sort{
		Path:  []string{"published_at"},
		Order: graphql.Desc,
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(class).
		WithFields(contentFields...).
		WithSort(sortBy).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		slog.Error("Weaviate content query failed", "class", class, "error", err)
		return nil, fmt.Errorf("weaviate query failed for %s: %w", class, err)
	}

	parsed, err := parseGraphQLResponse[contentQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s results: %w", class, err)
	}
	return parsed.Get[class], nil
}

// localize resolves the bilingual object into one record for lang. A missing
// translation falls back to the other locale so a record never surfaces with
// an empty title. A missing publish date falls back to the creation time.
func localize(obj contentObject, lang datatypes.Language) datatypes.KnowledgeRecord {
	title, body := obj.TitleAr, obj.BodyAr
	fallbackTitle, fallbackBody := obj.TitleEn, obj.BodyEn
	if lang == datatypes.LanguageEnglish {
		title, body = obj.TitleEn, obj.BodyEn
		fallbackTitle, fallbackBody = obj.TitleAr, obj.BodyAr
	}
	if title == "" {
		title = fallbackTitle
	}
	if body == "" {
		body = fallbackBody
	}

	publishedAt := obj.CreatedAt
	if obj.PublishedAt != nil {
		publishedAt = *obj.PublishedAt
	}

	return datatypes.KnowledgeRecord{
		ID:          obj.Additional.ID,
		Title:       title,
		Body:        body,
		PublishedAt: publishedAt,
	}
}

// =============================================================================
// GraphQL Response Parsing
// =============================================================================

type aggregateResponse struct {
	Aggregate map[string][]struct {
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	} `json:"Aggregate"`
}

// parseGraphQLResponse converts Weaviate's dynamic response payload into a
// typed struct via a JSON round trip.
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
