// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/skillrouter/internal/catalog"
	"github.com/traylinx/skillrouter/internal/config"
	"github.com/traylinx/skillrouter/internal/ledger"
	"github.com/traylinx/skillrouter/internal/request"
	"github.com/traylinx/skillrouter/internal/retrieval"
	"github.com/traylinx/skillrouter/internal/scoring"
)

// RouteRequest is one routing invocation.
type RouteRequest struct {
	// Text is the free-text request to route.
	Text string

	// Context is the typed request context; sanitized before scoring.
	Context request.Context

	// Hint is an optional external classification hint.
	Hint *request.Hint
}

// Router orchestrates the full routing pipeline: lexical and agent scoring
// over the catalog, historical blending via the retrieval index, the ordered
// rule list, and the ledger append that feeds future retrieval. Safe for
// concurrent use; the catalog and index are swapped atomically under a lock.
type Router struct {
	cfg     config.RoutingConfig
	decider *Decider
	lexical *scoring.LexicalScorer
	agents  *scoring.AgentScorer
	store   *ledger.Store

	mu      sync.RWMutex
	catalog *catalog.Catalog
	index   *retrieval.Index

	// pendingAppends counts ledger appends since the last index rebuild.
	pendingAppends int
}

// NewRouter wires the routing pipeline and builds the initial retrieval index
// from the ledger. A nil store disables history blending and recording.
func NewRouter(cfg config.RoutingConfig, cat *catalog.Catalog, store *ledger.Store) (*Router, error) {
	r := &Router{
		cfg:     cfg,
		decider: NewDecider(cfg),
		lexical: scoring.NewLexicalScorer(),
		agents:  scoring.NewAgentScorer(cfg.MandatoryAgentFloor),
		store:   store,
		catalog: cat,
		index:   retrieval.NewIndex(),
	}
	r.index.Finalize()

	if store != nil {
		if err := r.RebuildIndex(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SetCatalog swaps in a freshly loaded catalog. Called by the hot-reload
// watcher; in-flight routes keep the catalog they started with.
func (r *Router) SetCatalog(cat *catalog.Catalog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog = cat
	log.Infof("Catalog swapped: %d skills, %d agents", cat.SkillCount(), cat.AgentCount())
}

// RebuildIndex rebuilds the retrieval index from the full ledger and swaps it
// in. Rebuild cost is bounded because the ledger itself is bounded.
func (r *Router) RebuildIndex() error {
	if r.store == nil {
		return nil
	}
	entries, err := r.store.All()
	if err != nil {
		return fmt.Errorf("failed to read ledger for index rebuild: %w", err)
	}

	ix := retrieval.NewIndex()
	for _, entry := range entries {
		if entry.Overridden {
			continue
		}
		ix.AddDocuments(retrieval.Document{
			ID:         entry.ID,
			Text:       entry.Input,
			TargetType: entry.TargetType,
			TargetName: entry.TargetName,
			Confidence: entry.Confidence,
		})
	}
	ix.Finalize()

	r.mu.Lock()
	r.index = ix
	r.pendingAppends = 0
	r.mu.Unlock()

	log.Debugf("Retrieval index rebuilt with %d documents", ix.Size())
	return nil
}

// Route scores the request against every catalog definition, blends in
// historical evidence, and runs the decision rules. The decision is recorded
// in the ledger unless the mode is DIRECT.
func (r *Router) Route(ctx context.Context, req RouteRequest) (*RoutingDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Hint.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	cat := r.catalog
	ix := r.index
	r.mu.RUnlock()

	reqCtx := req.Context.Sanitize()

	matches := ix.Query(req.Text, r.cfg.RetrievalLimit, r.cfg.RetrievalMinScore)

	bestSkillName, bestSkillScore, skillAvailable := r.scoreSkills(req.Text, cat, matches)
	bestAgentName, bestAgentScore := r.scoreAgents(req.Text, reqCtx, cat)

	decision := r.decider.Decide(bestSkillScore, bestAgentScore, skillAvailable, req.Hint)

	switch decision.Mode {
	case ModeSkill:
		decision.SkillName = bestSkillName
	case ModeAgent:
		decision.AgentName = bestAgentName
		if decision.AgentName == "" && req.Hint != nil && req.Hint.Type == request.HintTypeAgent {
			decision.AgentName = req.Hint.Name
		}
	}

	r.record(req.Text, &decision)
	return &decision, nil
}

// scoreSkills returns the best blended skill score across the catalog.
func (r *Router) scoreSkills(text string, cat *catalog.Catalog, matches []retrieval.Match) (name string, score float64, available bool) {
	for _, skill := range cat.Skills() {
		lex := r.lexical.Score(text, skill)
		blended := r.blend(lex.Confidence, ledger.SelectionSkill, skill.Name, matches)
		if blended > score || name == "" {
			name, score, available = skill.Name, blended, skill.Available
		}
	}
	return name, score, available
}

// scoreAgents returns the best agent score across the catalog. Agent scores
// are never blended with history; retrieval evidence feeds the lexical skill
// signal only, so a stale low-confidence agent selection can never dilute the
// agent's present score.
func (r *Router) scoreAgents(text string, reqCtx request.Context, cat *catalog.Catalog) (name string, score float64) {
	for _, agent := range cat.Agents() {
		as := r.agents.Score(text, reqCtx, agent)
		if as.Confidence > score || name == "" {
			name, score = agent.Name, as.Confidence
		}
	}
	return name, score
}

// blend combines the lexical signal with historical evidence for the same
// target. With no usable history the lexical score passes through unchanged;
// blending only ever applies when a similar past selection exists, so a cold
// ledger never penalizes a strong lexical match.
func (r *Router) blend(lexical float64, targetType, targetName string, matches []retrieval.Match) float64 {
	var best float64
	var conf float64
	for _, m := range matches {
		if m.Document.TargetType != targetType || m.Document.TargetName != targetName {
			continue
		}
		if m.Score > best {
			best = m.Score
			conf = m.Document.Confidence
		}
	}
	if best <= 0 {
		return scoring.Clamp01(lexical)
	}
	return scoring.Clamp01(r.cfg.BlendLexical*lexical + r.cfg.BlendHistory*best*conf)
}

// record appends the decision to the ledger and triggers a batched index
// rebuild. Ledger failures are logged, never surfaced: routing already
// succeeded.
func (r *Router) record(text string, decision *RoutingDecision) {
	if r.store == nil || decision.Mode == ModeDirect || decision.Mode == ModeHybrid {
		return
	}

	entry := &ledger.HistoricalSelection{
		Input:      text,
		Confidence: decision.Confidence,
	}
	switch decision.Mode {
	case ModeSkill:
		entry.TargetType = ledger.SelectionSkill
		entry.TargetName = decision.SkillName
	case ModeAgent:
		entry.TargetType = ledger.SelectionAgent
		entry.TargetName = decision.AgentName
	}
	if entry.TargetName == "" {
		return
	}

	if err := r.store.Append(entry); err != nil {
		log.Warnf("Failed to record selection: %v", err)
		return
	}

	r.mu.Lock()
	r.pendingAppends++
	due := r.pendingAppends >= r.cfg.RebuildBatchSize
	r.mu.Unlock()

	if due {
		if err := r.RebuildIndex(); err != nil {
			log.Warnf("Retrieval index rebuild failed: %v", err)
		}
	}
}

// History returns the most recent n ledger entries, newest first.
func (r *Router) History(n int) ([]*ledger.HistoricalSelection, error) {
	if r.store == nil {
		return []*ledger.HistoricalSelection{}, nil
	}
	return r.store.Tail(n)
}

// MarkOverridden records caller feedback that the selection with id was
// rejected, then rebuilds the index so the entry stops contributing evidence.
func (r *Router) MarkOverridden(id string) error {
	if r.store == nil {
		return fmt.Errorf("no ledger configured")
	}
	if err := r.store.Override(id); err != nil {
		return err
	}
	return r.RebuildIndex()
}
