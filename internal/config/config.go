// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the skillrouter engine.
// It handles loading and parsing the YAML configuration file and provides
// structured access to routing thresholds, sandbox limits, ledger bounds,
// and audit settings. The loaded Config is treated as immutable: it is built
// once at startup and injected into each component's constructor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the engine configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	Host string `yaml:"host"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port"`

	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug"`

	// LoggingToFile controls whether application logs are written to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// LogsDir is the directory for rotating log files when LoggingToFile is set.
	LogsDir string `yaml:"logs-dir"`

	// SkillsDir is the root directory holding one subdirectory per skill.
	// Every script the sandbox executes must resolve to a strict descendant
	// of this directory.
	SkillsDir string `yaml:"skills-dir"`

	// AgentsFile is the YAML catalog of agent definitions.
	AgentsFile string `yaml:"agents-file"`

	// StateDir holds the selection ledger, execution cache, and audit log.
	StateDir string `yaml:"state-dir"`

	// Routing nests the decision thresholds and blend weights.
	Routing RoutingConfig `yaml:"routing"`

	// Sandbox nests the execution limits for skill scripts.
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Ledger nests the selection-ledger bounds.
	Ledger LedgerConfig `yaml:"ledger"`

	// Audit nests the audit-log settings.
	Audit AuditConfig `yaml:"audit"`
}

// RoutingConfig defines the thresholds and margins consumed by the routing
// rule list, plus the signal blend weights applied upstream of it.
// None of these values are ever hardcoded in the engine.
type RoutingConfig struct {
	// SkillThreshold is the minimum blended skill confidence for a SKILL route.
	SkillThreshold float64 `yaml:"skill-threshold"`

	// AgentThreshold is the minimum agent confidence for an AGENT route.
	AgentThreshold float64 `yaml:"agent-threshold"`

	// CloseMargin is the score difference under which a near-tie favors the
	// deterministic skill path when the skill score clears HighSkillFloor.
	CloseMargin float64 `yaml:"close-margin"`

	// HighSkillFloor is the skill confidence required for the near-tie rule.
	HighSkillFloor float64 `yaml:"high-skill-floor"`

	// TightMargin is the score difference under which an external hint may
	// break a tie between two above-threshold scores.
	TightMargin float64 `yaml:"tight-margin"`

	// HintFloor is the minimum confidence an external hint must carry to be
	// considered at all.
	HintFloor float64 `yaml:"hint-floor"`

	// MandatoryAgentFloor is the confidence floor applied when an agent's
	// mandatory trigger fires.
	MandatoryAgentFloor float64 `yaml:"mandatory-agent-floor"`

	// BlendLexical and BlendHistory weight the lexical score and the
	// retrieval-boosted historical score when computing the final skill
	// confidence. They should sum to 1.
	BlendLexical float64 `yaml:"blend-lexical"`
	BlendHistory float64 `yaml:"blend-history"`

	// RetrievalLimit caps how many historical matches a routing query pulls.
	RetrievalLimit int `yaml:"retrieval-limit"`

	// RetrievalMinScore drops historical matches below this cosine similarity.
	RetrievalMinScore float64 `yaml:"retrieval-min-score"`

	// RebuildBatchSize controls how many ledger appends accumulate before the
	// retrieval index is rebuilt. 1 rebuilds synchronously on every decision.
	RebuildBatchSize int `yaml:"rebuild-batch-size"`
}

// SandboxConfig defines execution limits for skill scripts.
type SandboxConfig struct {
	// MaxConcurrent caps simultaneous script executions. Additional requests
	// are rejected with a retryable error rather than queued.
	MaxConcurrent int `yaml:"max-concurrent"`

	// TimeoutSeconds is the hard wall-clock budget per execution.
	TimeoutSeconds int `yaml:"timeout-seconds"`

	// MaxOutputBytes bounds captured stdout and stderr per stream.
	MaxOutputBytes int64 `yaml:"max-output-bytes"`

	// AllowedExtensions is the allow-list of interpretable script types.
	AllowedExtensions []string `yaml:"allowed-extensions"`

	// Interpreters maps a script extension to the interpreter binary used to
	// run it (e.g. ".py" -> "python3").
	Interpreters map[string]string `yaml:"interpreters"`

	// CacheTTLSeconds is how long a cached execution result stays valid.
	CacheTTLSeconds int `yaml:"cache-ttl-seconds"`

	// CacheRetentionDays controls self-expiry of the on-disk cache store.
	CacheRetentionDays int `yaml:"cache-retention-days"`
}

// LedgerConfig defines the selection-ledger bounds.
type LedgerConfig struct {
	// MaxEntries bounds the ledger; the oldest entries are evicted first.
	MaxEntries int `yaml:"max-entries"`
}

// AuditConfig defines the audit-log settings.
type AuditConfig struct {
	// Enabled toggles audit logging.
	Enabled bool `yaml:"enabled"`

	// MaxSizeMB is the maximum size in megabytes before rotation.
	MaxSizeMB int `yaml:"max-size-mb"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `yaml:"max-backups"`

	// MaxAgeDays is the maximum number of days to retain old log files.
	MaxAgeDays int `yaml:"max-age-days"`

	// Compress determines whether rotated log files should be compressed.
	Compress bool `yaml:"compress"`
}

// Default returns a Config populated with the engine defaults.
func Default() *Config {
	return &Config{
		Host:          "127.0.0.1",
		Port:          8317,
		LoggingToFile: false,
		LogsDir:       "logs",
		SkillsDir:     "skills",
		AgentsFile:    "agents.yaml",
		StateDir:      ".skillrouter",
		Routing: RoutingConfig{
			SkillThreshold:      0.45,
			AgentThreshold:      0.45,
			CloseMargin:         0.25,
			HighSkillFloor:      0.70,
			TightMargin:         0.10,
			HintFloor:           0.50,
			MandatoryAgentFloor: 0.75,
			BlendLexical:        0.60,
			BlendHistory:        0.40,
			RetrievalLimit:      5,
			RetrievalMinScore:   0.10,
			RebuildBatchSize:    8,
		},
		Sandbox: SandboxConfig{
			MaxConcurrent:  4,
			TimeoutSeconds: 30,
			MaxOutputBytes: 1 << 20,
			AllowedExtensions: []string{
				".py", ".sh", ".js",
			},
			Interpreters: map[string]string{
				".py": "python3",
				".sh": "bash",
				".js": "node",
			},
			CacheTTLSeconds:    300,
			CacheRetentionDays: 7,
		},
		Ledger: LedgerConfig{
			MaxEntries: 1000,
		},
		Audit: AuditConfig{
			Enabled:    true,
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// LoadConfig reads YAML from configFile on top of the defaults and validates
// the result. A missing file is not an error: the defaults are returned, so a
// bare working directory still yields a runnable engine.
func LoadConfig(configFile string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets a handful of deployment-sensitive paths be overridden
// without editing the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SKILLROUTER_SKILLS_DIR"); v != "" {
		c.SkillsDir = v
	}
	if v := os.Getenv("SKILLROUTER_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("SKILLROUTER_AGENTS_FILE"); v != "" {
		c.AgentsFile = v
	}
}

// Validate checks that every threshold is a usable probability and that the
// resource limits are positive. It normalizes derived fields in place.
func (c *Config) Validate() error {
	r := &c.Routing
	for name, v := range map[string]float64{
		"routing.skill-threshold":       r.SkillThreshold,
		"routing.agent-threshold":       r.AgentThreshold,
		"routing.close-margin":          r.CloseMargin,
		"routing.high-skill-floor":      r.HighSkillFloor,
		"routing.tight-margin":          r.TightMargin,
		"routing.hint-floor":            r.HintFloor,
		"routing.mandatory-agent-floor": r.MandatoryAgentFloor,
		"routing.blend-lexical":         r.BlendLexical,
		"routing.blend-history":         r.BlendHistory,
		"routing.retrieval-min-score":   r.RetrievalMinScore,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: %s must be in [0,1], got %v", name, v)
		}
	}

	if sum := r.BlendLexical + r.BlendHistory; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("config: blend weights must sum to 1, got %v", sum)
	}
	if r.RetrievalLimit <= 0 {
		r.RetrievalLimit = 5
	}
	if r.RebuildBatchSize <= 0 {
		r.RebuildBatchSize = 1
	}

	s := &c.Sandbox
	if s.MaxConcurrent <= 0 {
		return fmt.Errorf("config: sandbox.max-concurrent must be positive, got %d", s.MaxConcurrent)
	}
	if s.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: sandbox.timeout-seconds must be positive, got %d", s.TimeoutSeconds)
	}
	if s.MaxOutputBytes <= 0 {
		return fmt.Errorf("config: sandbox.max-output-bytes must be positive, got %d", s.MaxOutputBytes)
	}
	if len(s.AllowedExtensions) == 0 {
		return fmt.Errorf("config: sandbox.allowed-extensions must not be empty")
	}
	for i, ext := range s.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.AllowedExtensions[i] = ext
	}
	if s.CacheTTLSeconds < 0 {
		return fmt.Errorf("config: sandbox.cache-ttl-seconds must not be negative, got %d", s.CacheTTLSeconds)
	}

	if c.Ledger.MaxEntries <= 0 {
		return fmt.Errorf("config: ledger.max-entries must be positive, got %d", c.Ledger.MaxEntries)
	}

	return nil
}

// LedgerPath returns the ledger file location under the state directory.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.StateDir, "selections.jsonl")
}

// CachePath returns the execution-cache database location.
func (c *Config) CachePath() string {
	return filepath.Join(c.StateDir, "execution_cache.sqlite3")
}

// AuditLogPath returns the audit log location under the state directory.
func (c *Config) AuditLogPath() string {
	return filepath.Join(c.StateDir, "audit.log")
}
