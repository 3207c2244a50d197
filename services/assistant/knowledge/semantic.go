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
	"fmt"
	"log/slog"
	"sort"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// searchableCategories are the categories covered by vector search. Policy
// pages and team bios are short fixed lists the rule table already reaches;
// only the long-tail editorial content needs semantic retrieval.
var searchableCategories = []datatypes.Category{
	datatypes.CategoryArticle,
	datatypes.CategoryEpisode,
}

// WeaviateSearcher implements SemanticSearcher with Weaviate nearText.
//
// # Description
//
// Runs one nearText query per searchable class and merges the hits by
// certainty. The query text is passed through verbatim; the vectorizer works
// best on natural phrasing, so the keyword normalization applied elsewhere is
// deliberately skipped here.
//
// # Thread Safety
//
// Safe for concurrent use.
type WeaviateSearcher struct {
	client *weaviate.Client
}

var _ SemanticSearcher = (*WeaviateSearcher)(nil)

// NewWeaviateSearcher creates a semantic searcher over the content classes.
func NewWeaviateSearcher(client *weaviate.Client) *WeaviateSearcher {
	return &WeaviateSearcher{client: client}
}

// Search runs nearText over the searchable classes and returns merged hits
// ordered by certainty, highest first.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - query: Raw user text, not normalized.
//   - lang: Locale the hits are localized to.
//   - limit: Maximum hits returned after merging.
//
// # Outputs
//
//   - []datatypes.SearchResult: Typed hits, possibly empty.
//   - error: Non-nil only when every class query fails.
func (s *WeaviateSearcher) Search(ctx context.Context, query string, lang datatypes.Language, limit int) ([]datatypes.SearchResult, error) {
	ctx, span := tracer.Start(ctx, "WeaviateSearcher.Search")
	defer span.End()

	var (
		results  []datatypes.SearchResult
		failures int
		lastErr  error
	)

	for _, cat := range searchableCategories {
		hits, err := s.searchClass(ctx, cat, query, lang, limit)
		if err != nil {
			slog.Warn("Semantic search failed for class, continuing",
				"category", cat, "error", err)
			failures++
			lastErr = err
			continue
		}
		results = append(results, hits...)
	}

	if failures == len(searchableCategories) && lastErr != nil {
		return nil, fmt.Errorf("semantic search failed: %w", lastErr)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *WeaviateSearcher) searchClass(ctx context.Context, cat datatypes.Category, query string, lang datatypes.Language, limit int) ([]datatypes.SearchResult, error) {
	class := classForCategory[cat]

	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := append([]graphql.Field{}, contentFields...)
	// Certainty rides alongside the id in _additional.
	fields[len(fields)-1] = graphql.Field{
		Name: "_additional",
		Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(class).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate nearText failed for %s: %w", class, err)
	}

	parsed, err := parseGraphQLResponse[searchQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s search results: %w", class, err)
	}

	objects := parsed.Get[class]
	hits := make([]datatypes.SearchResult, 0, len(objects))
	for _, obj := range objects {
		var relevance float64
		if obj.Additional.Certainty != nil {
			relevance = float64(*obj.Additional.Certainty)
		}
		hits = append(hits, datatypes.SearchResult{
			Type:      cat,
			Data:      localize(obj.contentObject(), lang),
			Relevance: relevance,
		})
	}
	return hits, nil
}

// searchObject extends the shared content shape with certainty.
type searchObject struct {
	TitleAr     string `json:"title_ar"`
	TitleEn     string `json:"title_en"`
	BodyAr      string `json:"body_ar"`
	BodyEn      string `json:"body_en"`
	PublishedAt *int64 `json:"published_at"`
	CreatedAt   int64  `json:"created_at"`
	Additional  struct {
		ID        string   `json:"id"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

func (o searchObject) contentObject() contentObject {
	c := contentObject{
		TitleAr:     o.TitleAr,
		TitleEn:     o.TitleEn,
		BodyAr:      o.BodyAr,
		BodyEn:      o.BodyEn,
		PublishedAt: o.PublishedAt,
		CreatedAt:   o.CreatedAt,
	}
	c.Additional.ID = o.Additional.ID
	return c
}

type searchQueryResponse struct {
	Get map[string][]searchObject `json:"Get"`
}
