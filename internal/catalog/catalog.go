// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package catalog loads the static skill and agent definitions the routing
// engine scores against. Skills are discovered by walking a skills directory
// for SKILL.md files with YAML frontmatter; agents come from a single YAML
// catalog file. Definitions are immutable after load: a reload builds an
// entirely new Catalog value and swaps it atomically.
package catalog

import (
	"fmt"
)

// NotFoundError reports a missing skill or agent definition.
type NotFoundError struct {
	Kind string // "skill" or "agent"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// Catalog is the immutable set of loaded definitions.
type Catalog struct {
	skills     map[string]*SkillDefinition
	skillsList []*SkillDefinition
	agents     map[string]*AgentDefinition
	agentsList []*AgentDefinition
}

// New builds a catalog from already-loaded definitions. Used directly by
// tests; production code goes through Load.
func New(skills []*SkillDefinition, agents []*AgentDefinition) *Catalog {
	c := &Catalog{
		skills: make(map[string]*SkillDefinition, len(skills)),
		agents: make(map[string]*AgentDefinition, len(agents)),
	}
	for _, s := range skills {
		c.skills[s.Name] = s
		c.skillsList = append(c.skillsList, s)
	}
	for _, a := range agents {
		c.agents[a.Name] = a
		c.agentsList = append(c.agentsList, a)
	}
	return c
}

// Load walks skillsDir and reads agentsFile, returning a fully built catalog.
// A missing agents file yields an agent-less catalog rather than an error.
func Load(skillsDir, agentsFile string, allowedExtensions []string) (*Catalog, error) {
	skills, err := LoadSkills(skillsDir, allowedExtensions)
	if err != nil {
		return nil, err
	}
	agents, err := LoadAgents(agentsFile)
	if err != nil {
		return nil, err
	}
	return New(skills, agents), nil
}

// Skill returns the named skill definition.
func (c *Catalog) Skill(name string) (*SkillDefinition, error) {
	s, ok := c.skills[name]
	if !ok {
		return nil, &NotFoundError{Kind: "skill", Name: name}
	}
	return s, nil
}

// Agent returns the named agent definition.
func (c *Catalog) Agent(name string) (*AgentDefinition, error) {
	a, ok := c.agents[name]
	if !ok {
		return nil, &NotFoundError{Kind: "agent", Name: name}
	}
	return a, nil
}

// Skills returns all skills in load order.
func (c *Catalog) Skills() []*SkillDefinition {
	out := make([]*SkillDefinition, len(c.skillsList))
	copy(out, c.skillsList)
	return out
}

// Agents returns all agents in load order.
func (c *Catalog) Agents() []*AgentDefinition {
	out := make([]*AgentDefinition, len(c.agentsList))
	copy(out, c.agentsList)
	return out
}

// SkillCount returns the number of loaded skills.
func (c *Catalog) SkillCount() int { return len(c.skillsList) }

// AgentCount returns the number of loaded agents.
func (c *Catalog) AgentCount() int { return len(c.agentsList) }
