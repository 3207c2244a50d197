// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompt renders the knowledge snapshot into generation prompts.
//
// Building is pure string assembly over localized templates; the builder
// holds no state and never touches the network. Arabic is the platform
// default and the fallback for any unrecognized locale.
package prompt

import (
	"fmt"
	"strings"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
)

// maxBodyRunes caps how much of a record body is inlined into the prompt.
const maxBodyRunes = 400

// template holds the localized fixed fragments of the system prompt.
type template struct {
	persona       string
	greeting      string
	overviewLabel string
	contextLabel  string
	searchLabel   string
	profileLabel  string
	followUps     string
	countLine     string // fmt: label, count, freshest title
	labels        map[datatypes.Category]string
}

var templates = map[datatypes.Language]template{
	datatypes.LanguageArabic: {
		persona: "أنت المساعد الذكي لمنصة منبر. أجب باللغة العربية بدقة واختصار، " +
			"واعتمد فقط على المعلومات المتوفرة أدناه. إذا لم تجد الإجابة فقل ذلك بوضوح.",
		greeting:      "هذه أول رسالة في المحادثة، فابدأ بتحية قصيرة ورحب بالمستخدم في منصة منبر.",
		overviewLabel: "نظرة عامة على محتوى المنصة:",
		contextLabel:  "المحتوى ذو الصلة:",
		searchLabel:   "نتائج البحث:",
		profileLabel:  "معلومات عن المستخدم:",
		followUps: "بعد الإجابة، اقترح سؤالين أو ثلاثة أسئلة متابعة قصيرة " +
			"يمكن للمستخدم طرحها.",
		countLine: "- %s: %d (الأحدث: %s)",
		labels: map[datatypes.Category]string{
			datatypes.CategoryArticle:  "المقالات",
			datatypes.CategoryEpisode:  "الحلقات",
			datatypes.CategorySeason:   "المواسم",
			datatypes.CategoryPlaylist: "قوائم التشغيل",
			datatypes.CategoryTeam:     "فريق العمل",
			datatypes.CategoryFAQ:      "الأسئلة الشائعة",
			datatypes.CategoryPrivacy:  "سياسة الخصوصية",
			datatypes.CategoryTerms:    "الشروط والأحكام",
		},
	},
	datatypes.LanguageEnglish: {
		persona: "You are the assistant for the Minbar platform. Answer in English, " +
			"precisely and concisely, using only the information provided below. " +
			"If the answer is not there, say so plainly.",
		greeting:      "This is the first message of the conversation, so open with a short greeting welcoming the user to Minbar.",
		overviewLabel: "Platform content overview:",
		contextLabel:  "Relevant content:",
		searchLabel:   "Search results:",
		profileLabel:  "About the user:",
		followUps: "After answering, suggest two or three short follow-up " +
			"questions the user could ask next.",
		countLine: "- %s: %d (latest: %s)",
		labels: map[datatypes.Category]string{
			datatypes.CategoryArticle:  "Articles",
			datatypes.CategoryEpisode:  "Episodes",
			datatypes.CategorySeason:   "Seasons",
			datatypes.CategoryPlaylist: "Playlists",
			datatypes.CategoryTeam:     "Team",
			datatypes.CategoryFAQ:      "FAQ",
			datatypes.CategoryPrivacy:  "Privacy policy",
			datatypes.CategoryTerms:    "Terms of service",
		},
	},
}

// Builder assembles the system instruction and user prompt for one request.
//
// # Thread Safety
//
// Stateless; safe for concurrent use.
type Builder struct{}

// NewBuilder creates a prompt builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build renders one request into a (system, user) prompt pair.
//
// # Description
//
// The system instruction is assembled in a fixed order: persona, optional
// greeting directive, platform overview, knowledge sections, search results,
// optional user profile, and the follow-up directive. Empty sections produce
// no output at all; there are never "0 items" lines. The follow-up directive
// is unconditional.
//
// # Inputs
//
//   - lang: Request locale. Unrecognized values fall back to Arabic.
//   - snapshot: Knowledge assembled for this request. Must not be nil.
//   - profile: Optional user profile; nil means no profile fragment.
//   - isFirstTurn: True when the conversation has no prior turns. Gates the
//     greeting directive only.
//   - userMessage: The user's current message, forwarded as the user prompt.
//
// # Outputs
//
//   - system: The full system instruction.
//   - user: The user prompt, currently the message verbatim.
func (b *Builder) Build(lang datatypes.Language, snapshot *datatypes.KnowledgeSnapshot, profile *datatypes.UserProfile, isFirstTurn bool, userMessage string) (system, user string) {
	tmpl, ok := templates[lang]
	if !ok {
		tmpl = templates[datatypes.LanguageArabic]
	}

	var sb strings.Builder
	sb.WriteString(tmpl.persona)
	sb.WriteString("\n")

	if isFirstTurn {
		sb.WriteString("\n")
		sb.WriteString(tmpl.greeting)
		sb.WriteString("\n")
	}

	writeOverview(&sb, tmpl, snapshot.Summary)
	writeSections(&sb, tmpl, snapshot)
	writeSearchResults(&sb, tmpl, snapshot.SearchResults)
	writeProfile(&sb, tmpl, profile)

	sb.WriteString("\n")
	sb.WriteString(tmpl.followUps)

	return sb.String(), userMessage
}

// writeOverview emits one count line per non-empty category, in the fixed
// platform category order.
func writeOverview(sb *strings.Builder, tmpl template, summary datatypes.PlatformSummary) {
	if len(summary.Counts) == 0 {
		return
	}
	sb.WriteString("\n")
	sb.WriteString(tmpl.overviewLabel)
	sb.WriteString("\n")
	for _, entry := range summary.Counts {
		fmt.Fprintf(sb, tmpl.countLine,
			tmpl.labels[entry.Category], entry.Count, entry.Freshest.Title)
		sb.WriteString("\n")
	}
}

// writeSections emits the intent-matched knowledge, one labeled block per
// non-empty category.
func writeSections(sb *strings.Builder, tmpl template, snapshot *datatypes.KnowledgeSnapshot) {
	var wroteHeader bool
	for _, cat := range datatypes.AllCategories {
		records := snapshot.Section(cat)
		if len(records) == 0 {
			continue
		}
		if !wroteHeader {
			sb.WriteString("\n")
			sb.WriteString(tmpl.contextLabel)
			sb.WriteString("\n")
			wroteHeader = true
		}
		fmt.Fprintf(sb, "%s:\n", tmpl.labels[cat])
		for _, rec := range records {
			writeRecord(sb, rec)
		}
	}
}

func writeSearchResults(sb *strings.Builder, tmpl template, results []datatypes.SearchResult) {
	if len(results) == 0 {
		return
	}
	sb.WriteString("\n")
	sb.WriteString(tmpl.searchLabel)
	sb.WriteString("\n")
	for _, hit := range results {
		writeRecord(sb, hit.Data)
	}
}

func writeRecord(sb *strings.Builder, rec datatypes.KnowledgeRecord) {
	sb.WriteString("• ")
	sb.WriteString(rec.Title)
	if body := truncate(rec.Body, maxBodyRunes); body != "" {
		sb.WriteString(": ")
		sb.WriteString(body)
	}
	sb.WriteString("\n")
}

func writeProfile(sb *strings.Builder, tmpl template, profile *datatypes.UserProfile) {
	if profile == nil {
		return
	}
	if profile.Name == "" && profile.Bio == "" && len(profile.Interests) == 0 {
		return
	}
	sb.WriteString("\n")
	sb.WriteString(tmpl.profileLabel)
	sb.WriteString("\n")
	if profile.Name != "" {
		fmt.Fprintf(sb, "• %s\n", profile.Name)
	}
	if profile.Bio != "" {
		fmt.Fprintf(sb, "• %s\n", truncate(profile.Bio, maxBodyRunes))
	}
	if len(profile.Interests) > 0 {
		fmt.Fprintf(sb, "• %s\n", strings.Join(profile.Interests, ", "))
	}
}

// truncate cuts s to at most n runes, appending an ellipsis when it cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
