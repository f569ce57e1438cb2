// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/skillrouter/internal/request"
)

func writeAgentsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAgents(t *testing.T) {
	path := writeAgentsFile(t, `
agents:
  - name: code-reviewer
    description: Reviews code for style and correctness
    keywords:
      primary: ["review", "refactor"]
      secondary: ["improve"]
      context: ["pull request"]
    patterns: ['(?i)review\s+(my|this)']
    mandatory-triggers: ["security audit"]
    indicators:
      - when: 'FileExtension == ".go"'
        weight: 0.2
        reason: "request references Go sources"
`)

	agents, err := LoadAgents(path)
	require.NoError(t, err)
	require.Len(t, agents, 1)

	agent := agents[0]
	assert.Equal(t, "code-reviewer", agent.Name)
	assert.Len(t, agent.CompiledPatterns(), 1)
	assert.True(t, agent.CompiledPatterns()[0].MatchString("please Review my change"))

	require.Len(t, agent.Indicators, 1)
	assert.True(t, agent.Indicators[0].Evaluate(request.Context{FileExtension: ".go"}))
	assert.False(t, agent.Indicators[0].Evaluate(request.Context{FileExtension: ".py"}))
}

func TestLoadAgents_MissingFileIsEmpty(t *testing.T) {
	agents, err := LoadAgents(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestLoadAgents_DropsInvalidPattern(t *testing.T) {
	path := writeAgentsFile(t, `
agents:
  - name: helper
    keywords:
      primary: ["help"]
    patterns: ['[unterminated', '(?i)assist']
`)

	agents, err := LoadAgents(path)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	// Only the valid pattern survives.
	assert.Len(t, agents[0].CompiledPatterns(), 1)
}

func TestLoadAgents_RejectsInvalidIndicator(t *testing.T) {
	path := writeAgentsFile(t, `
agents:
  - name: helper
    indicators:
      - when: 'FileExtension =='
        weight: 0.2
`)

	_, err := LoadAgents(path)
	assert.Error(t, err)
}

func TestLoadAgents_SkipsInvalidName(t *testing.T) {
	path := writeAgentsFile(t, `
agents:
  - name: "Bad Name!"
    keywords:
      primary: ["x"]
  - name: good-agent
    keywords:
      primary: ["y"]
`)

	agents, err := LoadAgents(path)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "good-agent", agents[0].Name)
}

func TestWatcherReloadSwapsCatalog(t *testing.T) {
	skillsDir := t.TempDir()
	writeSkill(t, skillsDir, "codebase-navigator", "description: nav\nkeywords:\n  primary: [\"navigate\"]\n", true)

	var swapped *Catalog
	w := NewWatcher(skillsDir, "", testExtensions, func(c *Catalog) { swapped = c })
	defer w.Stop()

	// Drive the reload path directly; fsnotify event timing is not what is
	// under test here.
	writeSkill(t, skillsDir, "semantic-search", "description: search\nkeywords:\n  primary: [\"search\"]\n", true)
	w.reload()

	require.NotNil(t, swapped)
	assert.Equal(t, 2, swapped.SkillCount())
}
