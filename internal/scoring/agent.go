// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scoring

import (
	"fmt"
	"strings"

	"github.com/traylinx/skillrouter/internal/catalog"
	"github.com/traylinx/skillrouter/internal/request"
)

// PatternBonus is added per matching regex trigger, uncapped before the
// final clamp.
const PatternBonus = 0.2

// AgentScore is the result of scoring one agent definition.
type AgentScore struct {
	// Confidence is the clamped score in [0,1].
	Confidence float64

	// Reasoning explains which triggers contributed.
	Reasoning string

	// Mandatory is set when a mandatory trigger fired; the confidence then
	// carries at least the configured floor.
	Mandatory bool
}

// AgentScorer matches keyword tiers, regex triggers, and context indicators
// against request text and the typed request context.
type AgentScorer struct {
	// mandatoryFloor is the confidence floor applied on a mandatory trigger.
	mandatoryFloor float64
}

// NewAgentScorer creates an agent scorer with the configured mandatory floor.
func NewAgentScorer(mandatoryFloor float64) *AgentScorer {
	return &AgentScorer{mandatoryFloor: Clamp01(mandatoryFloor)}
}

// Score computes the agent confidence for text and ctx. Mandatory triggers
// guarantee at least the configured floor regardless of the aggregate score,
// so certain request classes always reach an agent even when lexical evidence
// alone would fall below threshold.
func (s *AgentScorer) Score(text string, ctx request.Context, agent *catalog.AgentDefinition) AgentScore {
	if agent == nil {
		return AgentScore{Reasoning: "no agent definition"}
	}

	normalized := Normalize(text)
	var reasons []string
	var confidence float64

	if normalized != "" && !agent.Keywords.Empty() {
		keywordScore, matched := s.scoreKeywords(normalized, agent.Keywords)
		confidence += keywordScore
		if len(matched) > 0 {
			reasons = append(reasons, fmt.Sprintf("keywords: %s", strings.Join(matched, ", ")))
		}
	}

	for _, re := range agent.CompiledPatterns() {
		if re.MatchString(text) {
			confidence += PatternBonus
			reasons = append(reasons, fmt.Sprintf("pattern: %s", re.String()))
		}
	}

	for i := range agent.Indicators {
		ind := &agent.Indicators[i]
		if ind.Evaluate(ctx) {
			confidence += ind.Weight
			if ind.Reason != "" {
				reasons = append(reasons, ind.Reason)
			} else {
				reasons = append(reasons, fmt.Sprintf("indicator: %s", ind.When))
			}
		}
	}

	mandatory := false
	for _, trigger := range agent.MandatoryTriggers {
		needle := Normalize(trigger)
		if needle == "" {
			continue
		}
		if strings.Contains(normalized, needle) {
			mandatory = true
			reasons = append(reasons, fmt.Sprintf("mandatory trigger: %s", trigger))
		}
	}

	confidence = Clamp01(confidence)
	if mandatory && confidence < s.mandatoryFloor {
		confidence = s.mandatoryFloor
	}

	reasoning := "no triggers matched"
	if len(reasons) > 0 {
		reasoning = strings.Join(reasons, "; ")
	}

	return AgentScore{
		Confidence: confidence,
		Reasoning:  reasoning,
		Mandatory:  mandatory,
	}
}

// scoreKeywords applies the shared tier weighting to the agent's keywords.
func (s *AgentScorer) scoreKeywords(normalized string, tiers catalog.KeywordTiers) (float64, []string) {
	var weightedHits, maxPossible float64
	var matched []string

	for _, tier := range []struct {
		keywords []string
		weight   float64
	}{
		{tiers.Primary, WeightPrimary},
		{tiers.Secondary, WeightSecondary},
		{tiers.Context, WeightContext},
	} {
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
		return 0, nil
	}
	return weightedHits / maxPossible, matched
}
