// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/skillrouter/internal/util"
)

// KeywordTiers holds the three weighted keyword tiers of a definition.
// The tier weights themselves (1.0 / 0.5 / 0.3) are fixed by the scoring
// model, not per skill.
type KeywordTiers struct {
	Primary   []string `yaml:"primary"`
	Secondary []string `yaml:"secondary"`
	Context   []string `yaml:"context"`
}

// Empty reports whether no tier carries any keyword.
func (k KeywordTiers) Empty() bool {
	return len(k.Primary) == 0 && len(k.Secondary) == 0 && len(k.Context) == 0
}

// SkillDefinition describes one procedural skill. Loaded once from the
// SKILL.md frontmatter in the skill's directory; immutable afterwards.
type SkillDefinition struct {
	// Name is the skill slug, derived from the directory name.
	Name string `yaml:"-"`

	// Description explains what the skill does.
	Description string `yaml:"description"`

	// Keywords are the weighted matching tiers.
	Keywords KeywordTiers `yaml:"keywords"`

	// Phrases each add a flat bonus when contained in the request text.
	Phrases []string `yaml:"phrases"`

	// Multiplier scales the normalized lexical score (base confidence).
	Multiplier float64 `yaml:"multiplier"`

	// Operations optionally restricts the context operation field to an
	// allow-list. Empty means any operation.
	Operations []string `yaml:"operations"`

	// Dir is the skill's directory under the skills root.
	Dir string `yaml:"-"`

	// ScriptPath is the absolute path of the executable script, empty when
	// no script with an allowed extension exists.
	ScriptPath string `yaml:"-"`

	// Available reports whether the script is present on disk.
	Available bool `yaml:"-"`
}

// AllowsOperation reports whether op passes the skill's operation allow-list.
func (s *SkillDefinition) AllowsOperation(op string) bool {
	if len(s.Operations) == 0 || op == "" {
		return true
	}
	for _, allowed := range s.Operations {
		if strings.EqualFold(allowed, op) {
			return true
		}
	}
	return false
}

// LoadSkills walks skillsDir looking for <skill>/SKILL.md files and parses
// their YAML frontmatter. Malformed skill files are skipped with a warning so
// one bad definition does not take the whole catalog down. The script is
// probed at <skill>/scripts/main<ext> for each allowed extension, first hit
// wins; skills without a script load as unavailable.
func LoadSkills(skillsDir string, allowedExtensions []string) ([]*SkillDefinition, error) {
	if skillsDir == "" {
		return nil, fmt.Errorf("skills directory not specified")
	}
	if _, err := os.Stat(skillsDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("skills directory does not exist: %s", skillsDir)
	}

	var loaded []*SkillDefinition

	err := filepath.WalkDir(skillsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(d.Name(), "SKILL.md") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("Failed to read SKILL.md at %s: %v", path, err)
			return nil
		}

		// Format: ---\nYAML\n---\nContent
		parts := strings.SplitN(string(content), "---", 3)
		if len(parts) < 3 {
			log.Warnf("Invalid SKILL.md format at %s (missing frontmatter)", path)
			return nil
		}

		var skill SkillDefinition
		if err := yaml.Unmarshal([]byte(parts[1]), &skill); err != nil {
			log.Warnf("Failed to parse SKILL.md frontmatter at %s: %v", path, err)
			return nil
		}

		skill.Name = filepath.Base(filepath.Dir(path))
		if !util.IsValidSlug(skill.Name) {
			log.Warnf("Skipping skill with invalid name %q at %s", skill.Name, path)
			return nil
		}
		if skill.Multiplier <= 0 || skill.Multiplier > 1 {
			skill.Multiplier = 1.0
		}

		skill.Dir = filepath.Dir(path)
		skill.ScriptPath, skill.Available = probeScript(skill.Dir, allowedExtensions)

		loaded = append(loaded, &skill)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk skills directory: %w", err)
	}

	log.Infof("Loaded %d skills from %s", len(loaded), skillsDir)
	return loaded, nil
}

// probeScript looks for scripts/main<ext> under dir in allow-list order.
func probeScript(dir string, allowedExtensions []string) (string, bool) {
	for _, ext := range allowedExtensions {
		candidate := filepath.Join(dir, "scripts", "main"+ext)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		return abs, true
	}
	return "", false
}
