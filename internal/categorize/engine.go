// Package categorize implements the dataset categorization engine (C11):
// it matches a dataset's name and description against the active
// categorization rules and assigns the highest-priority category whose
// keywords appear, falling back to "altro" when nothing matches.
package categorize

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/osservatorio-istat/osservatorio/internal/cache"
	"github.com/osservatorio-istat/osservatorio/internal/logging"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
)

// DefaultCategory is assigned when no active rule's keywords match.
const DefaultCategory = "altro"

// Engine holds the compiled ruleset. Rules are loaded lazily on first
// Classify and rebuilt on Refresh, so a running server picks up rule
// edits without a restart.
type Engine struct {
	meta *metadata.Store

	mu      sync.RWMutex
	matcher *cache.AhoCorasick
	rules   []metadata.CategorizationRule
}

// New builds an Engine around a metadata store. The ruleset is not
// loaded until the first Classify or explicit Refresh call.
func New(meta *metadata.Store) *Engine {
	return &Engine{meta: meta}
}

// Refresh reloads the active ruleset and rebuilds the matcher. Rules are
// ordered priority DESC, rule_id ASC, matching the evaluation order a
// classification must respect when more than one rule's keywords match
// the same text.
func (e *Engine) Refresh(ctx context.Context) error {
	rules, err := e.meta.Categorization().GetRules(ctx, "", true)
	if err != nil {
		return fmt.Errorf("refresh categorization rules: %w", err)
	}

	matcher := cache.NewAhoCorasick()
	for i, r := range rules {
		patterns := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			// Pad so a multi-word keyword (e.g. "tensione contrattuale")
			// matches only on whitespace boundaries, not as a mid-word
			// substring of unrelated text.
			patterns = append(patterns, " "+kw+" ")
		}
		matcher.AddPatterns(patterns, i)
	}
	matcher.Build()

	e.mu.Lock()
	e.rules = rules
	e.matcher = matcher
	e.mu.Unlock()

	logging.Debug().Int("rule_count", len(rules)).Msg("categorization engine refreshed")
	return nil
}

// Result is the outcome of a classification attempt.
type Result struct {
	Category string
	RuleID   string
	Matched  bool
}

// Classify assigns a category to the given name/description pair. When
// multiple active rules match, the one earliest in priority DESC,
// rule_id ASC order wins, regardless of where its keyword occurs in the
// text.
func (e *Engine) Classify(ctx context.Context, name, description string) (Result, error) {
	e.mu.RLock()
	matcher, rules := e.matcher, e.rules
	e.mu.RUnlock()

	if matcher == nil {
		if err := e.Refresh(ctx); err != nil {
			return Result{}, err
		}
		e.mu.RLock()
		matcher, rules = e.matcher, e.rules
		e.mu.RUnlock()
	}

	if len(rules) == 0 {
		return Result{Category: DefaultCategory}, nil
	}

	text := " " + strings.ToLower(strings.TrimSpace(name+" "+description)) + " "
	matches := matcher.Search(text)
	if len(matches) == 0 {
		return Result{Category: DefaultCategory}, nil
	}

	best := -1
	for _, m := range matches {
		idx, ok := m.Data.(int)
		if !ok {
			continue
		}
		if best == -1 || idx < best {
			best = idx
		}
	}
	if best == -1 {
		return Result{Category: DefaultCategory}, nil
	}

	rule := rules[best]
	return Result{Category: rule.Category, RuleID: rule.RuleID, Matched: true}, nil
}

// ClassifyAndStore classifies a registered dataset and persists the
// resulting category onto its registration.
func (e *Engine) ClassifyAndStore(ctx context.Context, datasetID, name, description string) (Result, error) {
	res, err := e.Classify(ctx, name, description)
	if err != nil {
		return Result{}, err
	}
	if _, err := e.meta.Datasets().UpdateCategory(ctx, datasetID, res.Category); err != nil {
		return res, fmt.Errorf("store category for %s: %w", datasetID, err)
	}
	return res, nil
}
