// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package engine decides how a request is routed: to a deterministic skill,
// to a general-purpose agent, or to neither. The decision logic is an
// explicit ordered rule list evaluated first-match-wins; the ordering is a
// correctness invariant, not an implementation detail, so it is expressed as
// a literal sequence of (predicate, outcome) pairs rather than a weighted
// rule engine.
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/traylinx/skillrouter/internal/config"
	"github.com/traylinx/skillrouter/internal/request"
)

// Mode is the terminal routing mode.
type Mode string

const (
	ModeSkill Mode = "SKILL"
	ModeAgent Mode = "AGENT"

	// ModeHybrid is reserved; no rule emits it today.
	ModeHybrid Mode = "HYBRID"

	// ModeDirect means no confident match; the caller proceeds manually.
	ModeDirect Mode = "DIRECT"
)

// RoutingDecision is the engine's final answer with supporting evidence.
type RoutingDecision struct {
	Mode       Mode      `json:"mode"`
	SkillName  string    `json:"skill_name,omitempty"`
	AgentName  string    `json:"agent_name,omitempty"`
	Confidence float64   `json:"confidence"`
	Trace      []string  `json:"trace"`
	Timestamp  time.Time `json:"timestamp"`
}

// decisionInput carries the blended scores and hint into the rule list.
type decisionInput struct {
	skillScore     float64
	agentScore     float64
	skillAvailable bool
	hint           *request.Hint
}

// decisionOutcome is a rule's verdict: the mode plus the winning confidence.
type decisionOutcome struct {
	mode       Mode
	confidence float64
}

// rule is one (predicate, outcome) pair. apply returns false when the rule
// does not match and evaluation falls through to the next rule.
type rule struct {
	name  string
	apply func(in decisionInput) (decisionOutcome, bool)
}

// Decider evaluates the ordered rule list with configured thresholds.
type Decider struct {
	cfg   config.RoutingConfig
	rules []rule
}

// NewDecider builds the rule list from the routing configuration. Thresholds
// are read from cfg only; nothing is hardcoded.
func NewDecider(cfg config.RoutingConfig) *Decider {
	d := &Decider{cfg: cfg}
	d.rules = []rule{
		{
			name: "skill dominant above threshold",
			apply: func(in decisionInput) (decisionOutcome, bool) {
				if in.skillScore >= cfg.SkillThreshold && in.skillAvailable && in.skillScore > in.agentScore {
					return decisionOutcome{ModeSkill, in.skillScore}, true
				}
				return decisionOutcome{}, false
			},
		},
		{
			name: "agent dominant above threshold",
			apply: func(in decisionInput) (decisionOutcome, bool) {
				if in.agentScore >= cfg.AgentThreshold && in.agentScore > in.skillScore {
					return decisionOutcome{ModeAgent, in.agentScore}, true
				}
				return decisionOutcome{}, false
			},
		},
		{
			name: "near-tie favors available skill",
			apply: func(in decisionInput) (decisionOutcome, bool) {
				if !d.bothAboveThreshold(in) {
					return decisionOutcome{}, false
				}
				diff := math.Abs(in.skillScore - in.agentScore)
				if diff <= cfg.CloseMargin && in.skillScore >= cfg.HighSkillFloor && in.skillAvailable {
					return decisionOutcome{ModeSkill, in.skillScore}, true
				}
				return decisionOutcome{}, false
			},
		},
		{
			name: "tight tie follows external hint",
			apply: func(in decisionInput) (decisionOutcome, bool) {
				if !d.bothAboveThreshold(in) {
					return decisionOutcome{}, false
				}
				diff := math.Abs(in.skillScore - in.agentScore)
				if diff >= cfg.TightMargin || in.hint == nil || in.hint.Confidence <= cfg.HintFloor {
					return decisionOutcome{}, false
				}
				return d.followHint(in)
			},
		},
		{
			name: "contested tie to larger score",
			apply: func(in decisionInput) (decisionOutcome, bool) {
				if !d.bothAboveThreshold(in) {
					return decisionOutcome{}, false
				}
				// Skill wins exact ties here.
				if in.skillScore >= in.agentScore && in.skillAvailable {
					return decisionOutcome{ModeSkill, in.skillScore}, true
				}
				return decisionOutcome{ModeAgent, in.agentScore}, true
			},
		},
		{
			name: "skill above threshold",
			apply: func(in decisionInput) (decisionOutcome, bool) {
				if in.skillScore >= cfg.SkillThreshold && in.skillAvailable {
					return decisionOutcome{ModeSkill, in.skillScore}, true
				}
				return decisionOutcome{}, false
			},
		},
		{
			name: "agent above threshold",
			apply: func(in decisionInput) (decisionOutcome, bool) {
				if in.agentScore >= cfg.AgentThreshold {
					return decisionOutcome{ModeAgent, in.agentScore}, true
				}
				return decisionOutcome{}, false
			},
		},
		{
			name: "confident hint below thresholds",
			apply: func(in decisionInput) (decisionOutcome, bool) {
				if in.hint == nil || in.hint.Confidence <= cfg.HintFloor {
					return decisionOutcome{}, false
				}
				implied := in.agentScore
				if in.hint.Type == request.HintTypeSkill {
					implied = in.skillScore
				}
				if implied <= 0.3 {
					return decisionOutcome{}, false
				}
				return d.followHint(in)
			},
		},
		{
			name: "weak evidence to larger score",
			apply: func(in decisionInput) (decisionOutcome, bool) {
				if in.skillScore <= 0 && in.agentScore <= 0 {
					return decisionOutcome{}, false
				}
				// Agent wins ties here, asymmetric with the contested-tie
				// rule: commit to a skill only when evidence leans its way.
				if in.skillScore > in.agentScore && in.skillAvailable {
					return decisionOutcome{ModeSkill, in.skillScore}, true
				}
				return decisionOutcome{ModeAgent, in.agentScore}, true
			},
		},
		{
			name: "no confident match",
			apply: func(in decisionInput) (decisionOutcome, bool) {
				return decisionOutcome{ModeDirect, 0}, true
			},
		},
	}
	return d
}

// bothAboveThreshold reports whether both blended scores clear their
// configured thresholds, the shared precondition of the tie rules.
func (d *Decider) bothAboveThreshold(in decisionInput) bool {
	return in.skillScore >= d.cfg.SkillThreshold && in.agentScore >= d.cfg.AgentThreshold
}

// followHint resolves a hint into an outcome. A skill hint with no available
// skill does not match, letting evaluation fall through.
func (d *Decider) followHint(in decisionInput) (decisionOutcome, bool) {
	switch in.hint.Type {
	case request.HintTypeSkill:
		if in.skillAvailable {
			return decisionOutcome{ModeSkill, in.skillScore}, true
		}
		return decisionOutcome{}, false
	case request.HintTypeAgent:
		return decisionOutcome{ModeAgent, in.agentScore}, true
	default:
		return decisionOutcome{}, false
	}
}

// Decide runs the rule list top to bottom and returns the first match. NaN
// scores are coerced to 0; Decide never errors on numeric input. The trace
// records the matching rule with its position and the scores it saw.
func (d *Decider) Decide(skillScore, agentScore float64, skillAvailable bool, hint *request.Hint) RoutingDecision {
	in := decisionInput{
		skillScore:     coerce(skillScore),
		agentScore:     coerce(agentScore),
		skillAvailable: skillAvailable,
		hint:           hint,
	}

	var trace []string
	for i, r := range d.rules {
		outcome, ok := r.apply(in)
		if !ok {
			continue
		}
		trace = append(trace, fmt.Sprintf("rule %d matched: %s (skill=%.3f agent=%.3f)", i+1, r.name, in.skillScore, in.agentScore))
		return RoutingDecision{
			Mode:       outcome.mode,
			Confidence: outcome.confidence,
			Trace:      trace,
			Timestamp:  time.Now().UTC(),
		}
	}

	// Unreachable: the last rule always matches.
	return RoutingDecision{Mode: ModeDirect, Trace: trace, Timestamp: time.Now().UTC()}
}

// coerce maps NaN to 0 so malformed upstream arithmetic cannot leak into the
// rule predicates.
func coerce(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
