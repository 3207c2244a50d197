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
	"log/slog"
	"strings"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"github.com/minbar-platform/minbar/services/assistant/intent"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultSearchLimit bounds fallback search results per request.
const DefaultSearchLimit = 10

// Aggregator resolves classified intents into a knowledge snapshot.
//
// # Description
//
// Every request triggers one concurrent fan-out: one fetch per matched
// category plus the ambient platform summary. A failed category fetch is
// logged and its section left empty; aggregation never aborts because one
// collection is unhealthy. When no intent matched, the fallback path runs a
// normalized title match over articles and episodes and, only if that also
// comes up empty, exactly one semantic search with the user's original query.
//
// # Thread Safety
//
// Safe for concurrent use; all per-request state lives on the stack.
type Aggregator struct {
	store       Store
	searcher    SemanticSearcher
	searchLimit int
}

// NewAggregator creates an aggregator over the given collaborators.
func NewAggregator(store Store, searcher SemanticSearcher) *Aggregator {
	return &Aggregator{
		store:       store,
		searcher:    searcher,
		searchLimit: DefaultSearchLimit,
	}
}

// BuildSnapshot assembles the knowledge snapshot for one request.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - intents: Classified intents, possibly empty. Every matched intent is
//     resolved; callers must not pre-filter the set.
//   - query: The user's original, unnormalized message. Used only on the
//     fallback path.
//   - lang: Request locale; every record in the snapshot is localized to it.
//
// # Outputs
//
//   - *datatypes.KnowledgeSnapshot: Never nil. Sections for failed categories
//     are empty; the summary may be partial for the same reason.
//   - error: Non-nil only when ctx was canceled before assembly finished.
func (a *Aggregator) BuildSnapshot(ctx context.Context, intents []intent.Intent, query string, lang datatypes.Language) (*datatypes.KnowledgeSnapshot, error) {
	ctx, span := tracer.Start(ctx, "BuildSnapshot")
	defer span.End()
	span.SetAttributes(
		attribute.Int("intent.count", len(intents)),
		attribute.String("language", string(lang)),
	)

	snapshot := &datatypes.KnowledgeSnapshot{}
	intents = dedupeByCategory(intents)

	sections := make([][]datatypes.KnowledgeRecord, len(intents))

	var g errgroup.Group
	for i, in := range intents {
		g.Go(func() error {
			records, err := a.store.List(ctx, in.Category, lang)
			if err != nil {
				// Category failure is recoverable: the section stays
				// empty and the rest of the snapshot proceeds.
				ku := &datatypes.KnowledgeUnavailable{Category: in.Category, Cause: err}
				slog.Warn("Knowledge category fetch failed, leaving section empty",
					"category", in.Category, "error", ku)
				return nil
			}
			if in.Latest {
				records = latestOf(records)
			}
			sections[i] = records
			return nil
		})
	}

	var summary datatypes.PlatformSummary
	g.Go(func() error {
		summary = a.buildSummary(ctx, lang)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, in := range intents {
		snapshot.SetSection(in.Category, sections[i])
	}
	snapshot.Summary = summary

	if len(intents) == 0 {
		a.fallbackSearch(ctx, snapshot, query, lang)
	}
	return snapshot, nil
}

// dedupeByCategory drops repeat intents for the same category, keeping the
// first occurrence so rule priority order is preserved.
func dedupeByCategory(intents []intent.Intent) []intent.Intent {
	seen := make(map[datatypes.Category]bool, len(intents))
	out := intents[:0:0]
	for _, in := range intents {
		if seen[in.Category] {
			continue
		}
		seen[in.Category] = true
		out = append(out, in)
	}
	return out
}

// latestOf reduces records to the single freshest one. The scan keeps the
// first record on a timestamp tie, so equal-dated inputs resolve the same
// way on every request.
func latestOf(records []datatypes.KnowledgeRecord) []datatypes.KnowledgeRecord {
	if len(records) == 0 {
		return records
	}
	best := 0
	for i := 1; i < len(records); i++ {
		if records[i].PublishedAt > records[best].PublishedAt {
			best = i
		}
	}
	return records[best : best+1]
}

// buildSummary fetches the ambient platform summary: per-category counts and
// the freshest record of each non-empty category. Failures degrade to a
// partial summary, never an error.
func (a *Aggregator) buildSummary(ctx context.Context, lang datatypes.Language) datatypes.PlatformSummary {
	ctx, span := tracer.Start(ctx, "buildSummary")
	defer span.End()

	counts := make([]datatypes.CategoryCount, len(datatypes.AllCategories))

	var g errgroup.Group
	for i, cat := range datatypes.AllCategories {
		g.Go(func() error {
			n, err := a.store.Count(ctx, cat)
			if err != nil {
				slog.Warn("Platform summary count failed, omitting category",
					"category", cat, "error", err)
				return nil
			}
			if n == 0 {
				return nil
			}
			entry := datatypes.CategoryCount{Category: cat, Count: n}
			if freshest, err := a.store.Freshest(ctx, cat, lang); err != nil {
				slog.Warn("Platform summary freshest fetch failed",
					"category", cat, "error", err)
			} else if freshest != nil {
				entry.Freshest = *freshest
			}
			counts[i] = entry
			return nil
		})
	}
	_ = g.Wait()

	var summary datatypes.PlatformSummary
	for _, entry := range counts {
		if entry.Count > 0 {
			summary.Counts = append(summary.Counts, entry)
		}
	}
	return summary
}

// fallbackSearch populates SearchResults when no intent rule matched. Title
// matching runs first over the searchable categories; semantic search is the
// last resort and runs at most once per request, with the original query so
// the vectorizer sees the user's own phrasing.
func (a *Aggregator) fallbackSearch(ctx context.Context, snapshot *datatypes.KnowledgeSnapshot, query string, lang datatypes.Language) {
	ctx, span := tracer.Start(ctx, "fallbackSearch")
	defer span.End()

	if matches := a.titleMatch(ctx, query, lang); len(matches) > 0 {
		snapshot.SearchResults = matches
		return
	}

	hits, err := a.searcher.Search(ctx, query, lang, a.searchLimit)
	if err != nil {
		slog.Warn("Fallback semantic search failed, snapshot stays empty", "error", err)
		return
	}
	snapshot.SearchResults = hits
}

// titleMatch scans article and episode titles for the normalized query as a
// substring. Cheap and precise; it answers queries that quote a title without
// burning a vector search.
func (a *Aggregator) titleMatch(ctx context.Context, query string, lang datatypes.Language) []datatypes.SearchResult {
	needle := intent.Normalize(query)
	if needle == "" {
		return nil
	}

	var matches []datatypes.SearchResult
	for _, cat := range searchableCategories {
		records, err := a.store.List(ctx, cat, lang)
		if err != nil {
			slog.Warn("Title match fetch failed, skipping category",
				"category", cat, "error", err)
			continue
		}
		for _, rec := range records {
			if strings.Contains(intent.Normalize(rec.Title), needle) {
				matches = append(matches, datatypes.SearchResult{
					Type:      cat,
					Data:      rec,
					Relevance: 1.0,
				})
			}
		}
	}
	return matches
}
