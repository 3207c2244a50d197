// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent classifies free-text queries into content intents.
//
// # Description
//
// The classifier is a pure function over a declarative rule table: each rule
// pairs a content category with per-locale keyword sets, and rules are
// evaluated in a fixed priority order. Several rules may fire for one query
// ("who is on the team and what is the latest episode" yields two intents);
// all of them are resolved and merged downstream. This breadth-over-precision
// behavior is deliberate and callers must not collapse the result to a single
// intent.
//
// Rules live in rules.yaml, embedded at build time, so tuning keywords is a
// data change rather than a code change.
package intent

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rulesYAML []byte

// =============================================================================
// Intent
// =============================================================================

// Intent is one classified "what the user is asking for".
//
// # Fields
//
//   - Category: The content category the query referenced.
//   - Latest: True when the query asked for the single freshest item of a
//     listable category rather than the full list.
type Intent struct {
	Category datatypes.Category
	Latest   bool
}

func (i Intent) String() string {
	if i.Latest {
		return fmt.Sprintf("latest_of(%s)", i.Category)
	}
	return fmt.Sprintf("list_of(%s)", i.Category)
}

// =============================================================================
// Rule Table
// =============================================================================

type ruleFile struct {
	Rules []struct {
		Category string              `yaml:"category"`
		Keywords map[string][]string `yaml:"keywords"`
	} `yaml:"rules"`
	LatestKeywords map[string][]string `yaml:"latest_keywords"`
	Listable       []string            `yaml:"listable"`
}

// rule is one compiled classifier rule. Keywords are stored in normalized
// form so matching is a plain substring test.
type rule struct {
	category datatypes.Category
	keywords map[datatypes.Language][]string
}

// Classifier maps queries to intents using the compiled rule table.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Classifier struct {
	rules    []rule
	latest   map[datatypes.Language][]string
	listable map[datatypes.Category]bool
}

// NewClassifier compiles the embedded rule table.
//
// # Outputs
//
//   - *Classifier: Ready for use.
//   - error: Non-nil if the embedded YAML is malformed. This is a build
//     artifact problem, so callers typically treat it as fatal at startup.
func NewClassifier() (*Classifier, error) {
	return newClassifierFromYAML(rulesYAML)
}

func newClassifierFromYAML(raw []byte) (*Classifier, error) {
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse intent rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("intent rule table is empty")
	}

	c := &Classifier{
		latest:   make(map[datatypes.Language][]string, len(file.LatestKeywords)),
		listable: make(map[datatypes.Category]bool, len(file.Listable)),
	}
	for _, r := range file.Rules {
		compiled := rule{
			category: datatypes.Category(r.Category),
			keywords: make(map[datatypes.Language][]string, len(r.Keywords)),
		}
		for lang, words := range r.Keywords {
			compiled.keywords[datatypes.Language(lang)] = normalizeAll(words)
		}
		c.rules = append(c.rules, compiled)
	}
	for lang, words := range file.LatestKeywords {
		c.latest[datatypes.Language(lang)] = normalizeAll(words)
	}
	for _, cat := range file.Listable {
		c.listable[datatypes.Category(cat)] = true
	}
	return c, nil
}

func normalizeAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if n := Normalize(w); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// =============================================================================
// Classification
// =============================================================================

// Classify maps a free-text query to zero or more intents.
//
// # Description
//
// Pure and deterministic: the query is normalized once, then every rule is
// tested in table order against the language's keyword set. A matched
// listable category additionally checks the latest-keyword set to choose
// between the freshest item and the full list. An empty result signals the
// caller to take the fallback aggregation path.
//
// # Inputs
//
//   - query: Raw user text. May be empty.
//   - lang: Request locale; selects which keyword sets apply.
//
// # Outputs
//
//   - []Intent: Matched intents in rule priority order. Nil when no rule
//     fires.
func (c *Classifier) Classify(query string, lang datatypes.Language) []Intent {
	normalized := Normalize(query)
	if normalized == "" {
		return nil
	}

	wantsLatest := containsAny(normalized, c.latest[lang])

	var intents []Intent
	for _, r := range c.rules {
		if !containsAny(normalized, r.keywords[lang]) {
			continue
		}
		intents = append(intents, Intent{
			Category: r.category,
			Latest:   wantsLatest && c.listable[r.category],
		})
	}
	return intents
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
