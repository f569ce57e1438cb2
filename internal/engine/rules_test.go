// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/skillrouter/internal/config"
	"github.com/traylinx/skillrouter/internal/request"
)

func testDecider() *Decider {
	return NewDecider(config.Default().Routing)
}

func TestDecide_SkillDominant(t *testing.T) {
	d := testDecider()

	// skill 0.8 available, agent 0.5, thresholds 0.45.
	decision := d.Decide(0.8, 0.5, true, nil)
	assert.Equal(t, ModeSkill, decision.Mode)
	assert.Equal(t, 0.8, decision.Confidence)
	require.Len(t, decision.Trace, 1)
	assert.Contains(t, decision.Trace[0], "rule 1")
}

func TestDecide_AgentDominant(t *testing.T) {
	d := testDecider()

	decision := d.Decide(0.5, 0.8, true, nil)
	assert.Equal(t, ModeAgent, decision.Mode)
	assert.Equal(t, 0.8, decision.Confidence)
	assert.Contains(t, decision.Trace[0], "rule 2")
}

func TestDecide_NearTieFavorsSkill(t *testing.T) {
	d := testDecider()

	// diff 0.12 <= closeMargin 0.25, skill 0.72 >= highSkillFloor 0.70,
	// available. SKILL even though the agent clears its own threshold.
	decision := d.Decide(0.72, 0.6, true, nil)
	assert.Equal(t, ModeSkill, decision.Mode)
	assert.Equal(t, 0.72, decision.Confidence)
}

func TestDecide_NearTieUnavailableSkillFallsThrough(t *testing.T) {
	d := testDecider()

	decision := d.Decide(0.72, 0.6, false, nil)
	assert.Equal(t, ModeAgent, decision.Mode)
}

func TestDecide_TightTieFollowsHint(t *testing.T) {
	d := testDecider()

	// Exact tie above both thresholds, below the high-skill floor so the
	// near-tie rule does not fire first; the confident hint breaks the tie.
	hint := &request.Hint{Type: request.HintTypeAgent, Confidence: 0.9}
	decision := d.Decide(0.60, 0.60, true, hint)
	assert.Equal(t, ModeAgent, decision.Mode)
	assert.Equal(t, 0.60, decision.Confidence)
}

func TestDecide_ContestedTieSkillWinsExactTie(t *testing.T) {
	d := testDecider()

	decision := d.Decide(0.6, 0.6, true, nil)
	assert.Equal(t, ModeSkill, decision.Mode)
}

func TestDecide_SkillAboveThresholdAgentBelow(t *testing.T) {
	d := testDecider()

	// Agent edges out the skill but misses its threshold; skill still routes.
	decision := d.Decide(0.5, 0.44, true, nil)
	assert.Equal(t, ModeSkill, decision.Mode)
}

func TestDecide_AgentAboveThresholdSkillUnavailable(t *testing.T) {
	d := testDecider()

	decision := d.Decide(0.8, 0.5, false, nil)
	assert.Equal(t, ModeAgent, decision.Mode)
	assert.Equal(t, 0.5, decision.Confidence)
}

func TestDecide_HintBelowThresholds(t *testing.T) {
	d := testDecider()

	// Neither score clears its threshold, but the skill's implied score is
	// above 0.3 and the hint is confident.
	hint := &request.Hint{Type: request.HintTypeSkill, Confidence: 0.9}
	decision := d.Decide(0.35, 0.2, true, hint)
	assert.Equal(t, ModeSkill, decision.Mode)

	// Implied score at or below 0.3 ignores the hint; weak evidence falls to
	// the larger score.
	decision = d.Decide(0.3, 0.2, true, hint)
	assert.Equal(t, ModeSkill, decision.Mode)
	assert.Contains(t, decision.Trace[0], "weak evidence")
}

func TestDecide_WeakEvidenceAgentWinsTie(t *testing.T) {
	d := testDecider()

	// Below every threshold with equal scores; this tie goes to the agent,
	// asymmetric with the contested-tie rule.
	decision := d.Decide(0.2, 0.2, true, nil)
	assert.Equal(t, ModeAgent, decision.Mode)
}

func TestDecide_Direct(t *testing.T) {
	d := testDecider()

	decision := d.Decide(0, 0, true, nil)
	assert.Equal(t, ModeDirect, decision.Mode)
	assert.Zero(t, decision.Confidence)
}

func TestDecide_NaNCoercedToZero(t *testing.T) {
	d := testDecider()

	decision := d.Decide(math.NaN(), math.NaN(), true, nil)
	assert.Equal(t, ModeDirect, decision.Mode)

	decision = d.Decide(math.NaN(), 0.8, true, nil)
	assert.Equal(t, ModeAgent, decision.Mode)
}

func TestDecide_SkillHintWithUnavailableSkillFallsThrough(t *testing.T) {
	d := testDecider()

	hint := &request.Hint{Type: request.HintTypeSkill, Confidence: 0.9}
	decision := d.Decide(0.35, 0.1, false, hint)
	// The hint cannot route to an unavailable skill; evaluation continues.
	assert.NotEqual(t, ModeSkill, decision.Mode)
}
