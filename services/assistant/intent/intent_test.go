// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intent

import (
	"testing"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier()
	if err != nil {
		t.Fatalf("NewClassifier failed: %v", err)
	}
	return c
}

// =============================================================================
// Normalization Tests
// =============================================================================

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases and strips punctuation", "What's the LATEST Episode?!", "what s the latest episode"},
		{"collapses whitespace", "latest   \t episode", "latest episode"},
		{"strips arabic diacritics", "أَحْدَث", "احدث"},
		{"folds alef variants", "آخر إصدار", "اخر اصدار"},
		{"folds alef maqsura", "منتدى", "منتدي"},
		{"drops tatweel", "فريـــق", "فريق"},
		{"empty input", "", ""},
		{"punctuation only", "؟!،.", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Classification Tests
// =============================================================================

// TestClassify_TeamKeywordAlwaysYieldsTeamIntent checks the documented
// guarantee that any query containing a team keyword produces a team intent.
func TestClassify_TeamKeywordAlwaysYieldsTeamIntent(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	queries := map[datatypes.Language][]string{
		datatypes.LanguageEnglish: {
			"who is on the team?",
			"tell me about the hosts",
			"TEAM",
			"I want to meet the presenters and staff",
		},
		datatypes.LanguageArabic: {
			"من هم فريق العمل؟",
			"أعضاء الفريق",
			"من هو مقدم البرنامج",
		},
	}

	for lang, qs := range queries {
		for _, q := range qs {
			intents := c.Classify(q, lang)
			found := false
			for _, in := range intents {
				if in.Category == datatypes.CategoryTeam {
					found = true
				}
			}
			if !found {
				t.Errorf("Classify(%q, %s) = %v, expected a team intent", q, lang, intents)
			}
		}
	}
}

func TestClassify_LatestVersusList(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	t.Run("latest episode in english", func(t *testing.T) {
		intents := c.Classify("what is the latest episode?", datatypes.LanguageEnglish)
		if len(intents) != 1 {
			t.Fatalf("expected 1 intent, got %v", intents)
		}
		if intents[0].Category != datatypes.CategoryEpisode || !intents[0].Latest {
			t.Errorf("expected latest_of(episode), got %v", intents[0])
		}
	})

	t.Run("latest episode in arabic", func(t *testing.T) {
		intents := c.Classify("ما هي أحدث حلقة؟", datatypes.LanguageArabic)
		if len(intents) != 1 {
			t.Fatalf("expected 1 intent, got %v", intents)
		}
		if intents[0].Category != datatypes.CategoryEpisode || !intents[0].Latest {
			t.Errorf("expected latest_of(episode), got %v", intents[0])
		}
	})

	t.Run("plain episode list", func(t *testing.T) {
		intents := c.Classify("show me the episodes", datatypes.LanguageEnglish)
		if len(intents) != 1 || intents[0].Latest {
			t.Errorf("expected list_of(episode), got %v", intents)
		}
	})

	t.Run("latest never applies to non-listable categories", func(t *testing.T) {
		intents := c.Classify("latest team", datatypes.LanguageEnglish)
		if len(intents) != 1 {
			t.Fatalf("expected 1 intent, got %v", intents)
		}
		if intents[0].Category != datatypes.CategoryTeam || intents[0].Latest {
			t.Errorf("expected list_of(team), got %v", intents[0])
		}
	})
}

// TestClassify_MultipleIntentsFire verifies that a query touching several
// categories yields every matched intent in rule priority order.
func TestClassify_MultipleIntentsFire(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	intents := c.Classify("who is on the team and what is the latest episode?",
		datatypes.LanguageEnglish)

	if len(intents) != 2 {
		t.Fatalf("expected 2 intents, got %v", intents)
	}
	// Rule table order: team before episode.
	if intents[0].Category != datatypes.CategoryTeam {
		t.Errorf("expected team first, got %v", intents[0])
	}
	if intents[1].Category != datatypes.CategoryEpisode || !intents[1].Latest {
		t.Errorf("expected latest_of(episode) second, got %v", intents[1])
	}
}

func TestClassify_NoMatchReturnsEmpty(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	for _, q := range []string{"", "   ", "what is the meaning of life", "كيف حالك اليوم"} {
		lang := datatypes.LanguageEnglish
		if q == "كيف حالك اليوم" {
			lang = datatypes.LanguageArabic
		}
		if intents := c.Classify(q, lang); len(intents) != 0 {
			t.Errorf("Classify(%q) = %v, expected no intents", q, intents)
		}
	}
}

func TestClassify_IsDeterministic(t *testing.T) {
	t.Parallel()
	c := newTestClassifier(t)

	query := "latest articles and playlists from the last season"
	first := c.Classify(query, datatypes.LanguageEnglish)
	for i := 0; i < 10; i++ {
		again := c.Classify(query, datatypes.LanguageEnglish)
		if len(again) != len(first) {
			t.Fatalf("classification not deterministic: %v vs %v", first, again)
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("classification not deterministic at %d: %v vs %v", j, first, again)
			}
		}
	}
}

func TestNewClassifierFromYAML_Malformed(t *testing.T) {
	t.Parallel()

	if _, err := newClassifierFromYAML([]byte("rules: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
	if _, err := newClassifierFromYAML([]byte("rules: []")); err == nil {
		t.Error("expected error for empty rule table")
	}
}
