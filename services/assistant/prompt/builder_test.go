// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prompt

import (
	"strings"
	"testing"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
)

func snapshotWithEpisodes() *datatypes.KnowledgeSnapshot {
	return &datatypes.KnowledgeSnapshot{
		Episodes: []datatypes.KnowledgeRecord{
			{ID: "ep1", Title: "الحلقة الأولى", Body: "وصف الحلقة", PublishedAt: 100},
		},
	}
}

func TestBuild_GreetingOnlyOnFirstTurn(t *testing.T) {
	b := NewBuilder()
	snapshot := snapshotWithEpisodes()

	first, _ := b.Build(datatypes.LanguageArabic, snapshot, nil, true, "مرحبا")
	later, _ := b.Build(datatypes.LanguageArabic, snapshot, nil, false, "مرحبا")

	greeting := templates[datatypes.LanguageArabic].greeting
	if !strings.Contains(first, greeting) {
		t.Error("first turn must carry the greeting directive")
	}
	if strings.Contains(later, greeting) {
		t.Error("later turns must not carry the greeting directive")
	}
}

func TestBuild_FollowUpDirectiveIsUnconditional(t *testing.T) {
	b := NewBuilder()

	for _, isFirst := range []bool{true, false} {
		system, _ := b.Build(datatypes.LanguageEnglish, &datatypes.KnowledgeSnapshot{},
			nil, isFirst, "hello")
		if !strings.Contains(system, templates[datatypes.LanguageEnglish].followUps) {
			t.Errorf("follow-up directive missing (isFirstTurn=%v)", isFirst)
		}
	}
}

func TestBuild_UnsupportedLanguageFallsBackToArabic(t *testing.T) {
	b := NewBuilder()

	system, _ := b.Build(datatypes.Language("fr"), snapshotWithEpisodes(), nil, false, "bonjour")
	if !strings.Contains(system, templates[datatypes.LanguageArabic].persona) {
		t.Error("unrecognized locale must render the Arabic template")
	}
}

func TestBuild_EmptyCategoriesProduceNoLines(t *testing.T) {
	b := NewBuilder()
	snapshot := snapshotWithEpisodes()

	system, _ := b.Build(datatypes.LanguageEnglish, snapshot, nil, false, "episodes?")

	if !strings.Contains(system, "Episodes:") {
		t.Error("non-empty episode section missing")
	}
	for _, label := range []string{"Articles:", "Seasons:", "Playlists:", "Team:"} {
		if strings.Contains(system, label) {
			t.Errorf("empty category rendered a section: %s", label)
		}
	}
	if strings.Contains(system, ": 0") {
		t.Error("zero counts must never be rendered")
	}
}

func TestBuild_OverviewFollowsCategoryOrder(t *testing.T) {
	b := NewBuilder()
	snapshot := &datatypes.KnowledgeSnapshot{
		Summary: datatypes.PlatformSummary{Counts: []datatypes.CategoryCount{
			{Category: datatypes.CategoryArticle, Count: 12,
				Freshest: datatypes.KnowledgeRecord{Title: "Newest Article"}},
			{Category: datatypes.CategoryEpisode, Count: 40,
				Freshest: datatypes.KnowledgeRecord{Title: "Newest Episode"}},
		}},
	}

	system, _ := b.Build(datatypes.LanguageEnglish, snapshot, nil, false, "what is new")

	articleIdx := strings.Index(system, "- Articles: 12 (latest: Newest Article)")
	episodeIdx := strings.Index(system, "- Episodes: 40 (latest: Newest Episode)")
	if articleIdx < 0 || episodeIdx < 0 {
		t.Fatalf("overview lines missing:\n%s", system)
	}
	if articleIdx > episodeIdx {
		t.Error("overview must follow the fixed category order")
	}
}

func TestBuild_ProfileFragment(t *testing.T) {
	b := NewBuilder()

	t.Run("nil profile renders nothing", func(t *testing.T) {
		system, _ := b.Build(datatypes.LanguageEnglish, &datatypes.KnowledgeSnapshot{},
			nil, false, "hi")
		if strings.Contains(system, templates[datatypes.LanguageEnglish].profileLabel) {
			t.Error("profile label rendered without a profile")
		}
	})

	t.Run("empty profile renders nothing", func(t *testing.T) {
		system, _ := b.Build(datatypes.LanguageEnglish, &datatypes.KnowledgeSnapshot{},
			&datatypes.UserProfile{}, false, "hi")
		if strings.Contains(system, templates[datatypes.LanguageEnglish].profileLabel) {
			t.Error("profile label rendered for an empty profile")
		}
	})

	t.Run("populated profile renders", func(t *testing.T) {
		profile := &datatypes.UserProfile{
			Name:      "Sami",
			Interests: []string{"history", "music"},
		}
		system, _ := b.Build(datatypes.LanguageEnglish, &datatypes.KnowledgeSnapshot{},
			profile, false, "hi")
		if !strings.Contains(system, "Sami") || !strings.Contains(system, "history, music") {
			t.Errorf("profile fragment missing:\n%s", system)
		}
	})
}

func TestBuild_UserPromptIsMessageVerbatim(t *testing.T) {
	b := NewBuilder()

	msg := "  What's ON tonight?  "
	_, user := b.Build(datatypes.LanguageEnglish, &datatypes.KnowledgeSnapshot{}, nil, false, msg)
	if user != msg {
		t.Errorf("user prompt altered: %q", user)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate must not touch short strings, got %q", got)
	}
	got := truncate(strings.Repeat("م", 500), 400)
	if runes := []rune(got); len(runes) != 401 || runes[400] != '…' {
		t.Errorf("truncate produced %d runes", len([]rune(got)))
	}
}
