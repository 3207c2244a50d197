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

// =============================================================================
// Content Categories
// =============================================================================

// Category identifies one class of platform content.
type Category string

const (
	CategoryArticle  Category = "article"
	CategoryEpisode  Category = "episode"
	CategorySeason   Category = "season"
	CategoryPlaylist Category = "playlist"
	CategoryTeam     Category = "team"
	CategoryFAQ      Category = "faq"
	CategoryPrivacy  Category = "privacy"
	CategoryTerms    Category = "terms"
)

// AllCategories lists every content category in the fixed platform order.
// The order is load-bearing: prompt summary lines and snapshot assembly
// iterate this slice so output is deterministic.
var AllCategories = []Category{
	CategoryArticle,
	CategoryEpisode,
	CategorySeason,
	CategoryPlaylist,
	CategoryTeam,
	CategoryFAQ,
	CategoryPrivacy,
	CategoryTerms,
}

// =============================================================================
// Knowledge Records
// =============================================================================

// KnowledgeRecord is a lightweight, language-resolved view of one content item.
//
// # Description
//
// Records leave the knowledge layer already localized: Title and Body hold the
// text for the request's language only. Raw bilingual documents never cross
// this boundary.
//
// # Fields
//
//   - ID: Datastore identifier of the item.
//   - Title: Localized title.
//   - Body: Localized body or description. May be empty for list-only views.
//   - PublishedAt: Unix milliseconds. Falls back to the creation timestamp
//     when the item has no explicit publish date.
type KnowledgeRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Body        string `json:"body,omitempty"`
	PublishedAt int64  `json:"published_at"`
}

// SearchResult is one typed hit from the semantic search collaborator.
type SearchResult struct {
	Type      Category        `json:"type"`
	Data      KnowledgeRecord `json:"data"`
	Relevance float64         `json:"relevance"`
}

// =============================================================================
// Knowledge Snapshot
// =============================================================================

// CategoryCount pairs a category with its item count and freshest record.
// Used by the platform summary; absent categories are simply not listed.
type CategoryCount struct {
	Category Category
	Count    int
	Freshest KnowledgeRecord
}

// PlatformSummary is the ambient context fetched on every request regardless
// of intent match: per-category counts plus the freshest records.
type PlatformSummary struct {
	Counts []CategoryCount
}

// KnowledgeSnapshot is the transient, request-scoped knowledge bundle.
//
// # Description
//
// A snapshot is rebuilt on every request and never persisted. Sections are
// populated per matched intent; the fallback path fills SearchResults instead.
// Every record is already localized to the request's language.
//
// # Thread Safety
//
// Snapshots are built by a single goroutine after the concurrent category
// fetches join, then treated as read-only.
type KnowledgeSnapshot struct {
	Articles        []KnowledgeRecord `json:"articles,omitempty"`
	Episodes        []KnowledgeRecord `json:"episodes,omitempty"`
	Seasons         []KnowledgeRecord `json:"seasons,omitempty"`
	Playlists       []KnowledgeRecord `json:"playlists,omitempty"`
	Team            []KnowledgeRecord `json:"team,omitempty"`
	FAQs            []KnowledgeRecord `json:"faqs,omitempty"`
	PrivacySections []KnowledgeRecord `json:"privacy_sections,omitempty"`
	TermsSections   []KnowledgeRecord `json:"terms_sections,omitempty"`

	SearchResults []SearchResult  `json:"search_results,omitempty"`
	Summary       PlatformSummary `json:"-"`
}

// Section returns the snapshot slice for a category.
func (s *KnowledgeSnapshot) Section(cat Category) []KnowledgeRecord {
	switch cat {
	case CategoryArticle:
		return s.Articles
	case CategoryEpisode:
		return s.Episodes
	case CategorySeason:
		return s.Seasons
	case CategoryPlaylist:
		return s.Playlists
	case CategoryTeam:
		return s.Team
	case CategoryFAQ:
		return s.FAQs
	case CategoryPrivacy:
		return s.PrivacySections
	case CategoryTerms:
		return s.TermsSections
	}
	return nil
}

// SetSection replaces the snapshot slice for a category.
func (s *KnowledgeSnapshot) SetSection(cat Category, records []KnowledgeRecord) {
	switch cat {
	case CategoryArticle:
		s.Articles = records
	case CategoryEpisode:
		s.Episodes = records
	case CategorySeason:
		s.Seasons = records
	case CategoryPlaylist:
		s.Playlists = records
	case CategoryTeam:
		s.Team = records
	case CategoryFAQ:
		s.FAQs = records
	case CategoryPrivacy:
		s.PrivacySections = records
	case CategoryTerms:
		s.TermsSections = records
	}
}

// Empty reports whether the snapshot carries no intent-matched or searched
// content (the ambient summary does not count).
func (s *KnowledgeSnapshot) Empty() bool {
	if len(s.SearchResults) > 0 {
		return false
	}
	for _, cat := range AllCategories {
		if len(s.Section(cat)) > 0 {
			return false
		}
	}
	return true
}

// =============================================================================
// User Profile
// =============================================================================

// UserProfile is the optional per-user fragment appended to prompts.
type UserProfile struct {
	Name      string   `json:"name,omitempty"`
	Bio       string   `json:"bio,omitempty"`
	Interests []string `json:"interests,omitempty"`
}
