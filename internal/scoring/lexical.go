// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scoring produces the per-definition confidence signals the routing
// engine combines: a weighted keyword score for skills and a keyword/regex/
// context-indicator score for agents. Scorers are stateless and safe for
// concurrent use.
package scoring

import (
	"strings"
	"unicode"

	"github.com/traylinx/skillrouter/internal/catalog"
)

// Tier weights are fixed by the scoring model. Normalization divides by the
// maximum achievable weighted sum for the definition, never a running value,
// so a definition's score is comparable across requests.
const (
	WeightPrimary   = 1.0
	WeightSecondary = 0.5
	WeightContext   = 0.3

	// PhraseBonus is added per matched phrase, uncapped before the final clamp.
	PhraseBonus = 0.2
)

// LexicalScore is the result of scoring one skill definition.
type LexicalScore struct {
	// Confidence is the clamped weighted score in [0,1].
	Confidence float64

	// MatchedKeywords lists every keyword and phrase that contributed,
	// for explainability and tests.
	MatchedKeywords []string
}

// LexicalScorer matches weighted keywords and phrases against request text.
type LexicalScorer struct{}

// NewLexicalScorer creates a lexical scorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score computes the skill confidence for text. Empty input or a skill with
// no keywords scores zero. Matching is case-insensitive substring containment
// over normalized text.
func (s *LexicalScorer) Score(text string, skill *catalog.SkillDefinition) LexicalScore {
	normalized := Normalize(text)
	if normalized == "" || skill == nil || skill.Keywords.Empty() {
		return LexicalScore{}
	}

	var weightedHits float64
	var matched []string

	tiers := []struct {
		keywords []string
		weight   float64
	}{
		{skill.Keywords.Primary, WeightPrimary},
		{skill.Keywords.Secondary, WeightSecondary},
		{skill.Keywords.Context, WeightContext},
	}

	maxPossible := 0.0
	for _, tier := range tiers {
		maxPossible += float64(len(tier.keywords)) * tier.weight
		for _, keyword := range tier.keywords {
			needle := Normalize(keyword)
			if needle == "" {
				continue
			}
			if strings.Contains(normalized, needle) {
				weightedHits += tier.weight
				matched = append(matched, keyword)
			}
		}
	}
	if maxPossible == 0 {
		return LexicalScore{}
	}

	confidence := weightedHits / maxPossible

	for _, phrase := range skill.Phrases {
		needle := Normalize(phrase)
		if needle == "" {
			continue
		}
		if strings.Contains(normalized, needle) {
			confidence += PhraseBonus
			matched = append(matched, phrase)
		}
	}

	confidence *= skill.Multiplier

	return LexicalScore{
		Confidence:      Clamp01(confidence),
		MatchedKeywords: matched,
	}
}

// Normalize lowercases text and collapses every non-alphanumeric run into a
// single space, so keyword containment is insensitive to punctuation.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Clamp01 bounds v to [0,1] and coerces NaN to 0.
func Clamp01(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
