// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package catalog

import (
	"fmt"
	"os"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/traylinx/skillrouter/internal/request"
	"github.com/traylinx/skillrouter/internal/util"
)

// ContextIndicator is a structured predicate over the typed request context.
// The condition is an expr-lang expression compiled once at load time; when
// it evaluates true the indicator's weight is added to the agent score.
type ContextIndicator struct {
	// When is the expr condition, e.g. `FileExtension == ".go"`.
	When string `yaml:"when"`

	// Weight is the score contribution when the condition holds.
	Weight float64 `yaml:"weight"`

	// Reason is the human-readable explanation surfaced in the score trace.
	Reason string `yaml:"reason"`

	program *vm.Program
}

// Evaluate runs the compiled predicate against ctx. An uncompiled or failing
// predicate evaluates false; indicators never make scoring error out.
func (ci *ContextIndicator) Evaluate(ctx request.Context) bool {
	if ci.program == nil {
		return false
	}
	output, err := expr.Run(ci.program, ctx)
	if err != nil {
		log.Debugf("context indicator %q failed: %v", ci.When, err)
		return false
	}
	result, ok := output.(bool)
	return ok && result
}

// AgentDefinition describes one general-purpose agent. Immutable after load.
type AgentDefinition struct {
	// Name is the agent slug.
	Name string `yaml:"name"`

	// Description explains what kinds of requests the agent handles.
	Description string `yaml:"description"`

	// Keywords are the weighted matching tiers, same weights as skills.
	Keywords KeywordTiers `yaml:"keywords"`

	// Patterns are regex triggers matched against the raw request text.
	Patterns []string `yaml:"patterns"`

	// MandatoryTriggers force the agent path with a confidence floor when
	// contained in the request text.
	MandatoryTriggers []string `yaml:"mandatory-triggers"`

	// Indicators are the structured context predicates.
	Indicators []ContextIndicator `yaml:"indicators"`

	compiled []*regexp.Regexp
}

// CompiledPatterns returns the agent's compiled regex triggers.
func (a *AgentDefinition) CompiledPatterns() []*regexp.Regexp {
	return a.compiled
}

// agentsFileSchema is the on-disk layout of agents.yaml.
type agentsFileSchema struct {
	Agents []*AgentDefinition `yaml:"agents"`
}

// LoadAgents reads the agent catalog from agentsFile. A missing file returns
// an empty slice; the router then simply never recommends an agent. Invalid
// regexes or predicates drop the offending trigger with a warning, not the
// whole agent.
func LoadAgents(agentsFile string) ([]*AgentDefinition, error) {
	if agentsFile == "" {
		return nil, nil
	}

	data, err := os.ReadFile(agentsFile)
	if err != nil {
		if os.IsNotExist(err) {
			log.Infof("No agent catalog at %s, continuing without agents", agentsFile)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read agents file: %w", err)
	}

	var schema agentsFileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse agents file: %w", err)
	}

	var loaded []*AgentDefinition
	for _, agent := range schema.Agents {
		if agent == nil || agent.Name == "" {
			continue
		}
		if !util.IsValidSlug(agent.Name) {
			log.Warnf("Skipping agent with invalid name %q", agent.Name)
			continue
		}
		if err := agent.Compile(); err != nil {
			return nil, fmt.Errorf("agent %s: %w", agent.Name, err)
		}
		loaded = append(loaded, agent)
	}

	log.Infof("Loaded %d agents from %s", len(loaded), agentsFile)
	return loaded, nil
}

// Compile prepares the regex triggers and indicator programs. LoadAgents
// calls this for every agent; callers constructing definitions by hand must
// call it themselves before scoring.
func (a *AgentDefinition) Compile() error {
	a.compiled = a.compiled[:0]
	for _, pattern := range a.Patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			log.Warnf("Agent %s: dropping invalid pattern %q: %v", a.Name, pattern, err)
			continue
		}
		a.compiled = append(a.compiled, re)
	}

	for i := range a.Indicators {
		if err := a.Indicators[i].Compile(); err != nil {
			return err
		}
	}
	return nil
}

// Compile builds the indicator's expr program against the typed request
// context. A zero weight defaults to 0.1 so a bare condition still counts.
func (ci *ContextIndicator) Compile() error {
	if ci.When == "" {
		return nil
	}
	program, err := expr.Compile(ci.When, expr.Env(request.Context{}), expr.AsBool())
	if err != nil {
		return fmt.Errorf("failed to compile indicator condition %q: %w", ci.When, err)
	}
	ci.program = program
	if ci.Weight == 0 {
		ci.Weight = 0.1
	}
	return nil
}
