// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge resolves classified intents into a request-scoped
// knowledge snapshot.
//
// The aggregator fans out one fetch per matched category plus the ambient
// platform summary, joins the results, and recovers from any single category
// failure by leaving that section empty. Store and SemanticSearcher are the
// two datastore collaborators; the Weaviate implementations live in
// weaviate_store.go and semantic.go.
package knowledge

import (
	"context"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("minbar.assistant.knowledge")

// Store provides localized read access to platform content by category.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the aggregator calls them
// from several goroutines per request.
type Store interface {
	// List returns up to one page of records for a category, newest first,
	// localized to lang. An empty category yields an empty slice, not an
	// error.
	List(ctx context.Context, cat datatypes.Category, lang datatypes.Language) ([]datatypes.KnowledgeRecord, error)

	// Count returns the total number of items in a category.
	Count(ctx context.Context, cat datatypes.Category) (int, error)

	// Freshest returns the most recently published record of a category,
	// or nil when the category is empty.
	Freshest(ctx context.Context, cat datatypes.Category, lang datatypes.Language) (*datatypes.KnowledgeRecord, error)
}

// SemanticSearcher is the vector search collaborator used on the fallback
// path when no intent rule and no title match fires.
type SemanticSearcher interface {
	// Search runs one nearText query and returns typed hits ordered by
	// relevance, localized to lang.
	Search(ctx context.Context, query string, lang datatypes.Language, limit int) ([]datatypes.SearchResult, error)
}
