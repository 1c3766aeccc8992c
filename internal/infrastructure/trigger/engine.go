// Package trigger decides whether a completed command warrants analysis.
package trigger

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/termai-go/assets"
	"github.com/doeshing/termai-go/internal/domain"
)

type compiledTrigger struct {
	rule          domain.Trigger
	re            *regexp.Regexp // nil for non-pattern kinds
	order         int
	lastTriggered time.Time
}

// Engine holds the trigger registry. Registration replaces the slice
// wholesale (copy-on-write) and evaluation locks around its walk, so a
// concurrent Register or Unregister never exposes a partially-updated
// registry to Evaluate.
type Engine struct {
	mu       sync.Mutex
	triggers []*compiledTrigger
	nextOrd  int
	enabled  bool
	now      func() time.Time
}

// NewEngine returns an engine preloaded with the default rule set.
func NewEngine() *Engine {
	e := &Engine{enabled: true, now: time.Now}
	for _, rule := range defaultTriggers() {
		_ = e.Register(rule)
	}
	return e
}

// NewEmptyEngine returns an engine with no rules. Used by tests and by
// callers loading rules from a file.
func NewEmptyEngine() *Engine {
	return &Engine{enabled: true, now: time.Now}
}

// Register adds a trigger. Pattern triggers with an invalid regular
// expression are rejected.
func (e *Engine) Register(rule domain.Trigger) error {
	var re *regexp.Regexp
	if rule.Kind == domain.TriggerPattern {
		if rule.Pattern == "" {
			return fmt.Errorf("pattern trigger %q has no pattern", rule.Description)
		}
		compiled, err := regexp.Compile("(?im)" + rule.Pattern)
		if err != nil {
			return fmt.Errorf("trigger %q: %w", rule.Description, err)
		}
		re = compiled
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := make([]*compiledTrigger, len(e.triggers), len(e.triggers)+1)
	copy(next, e.triggers)
	next = append(next, &compiledTrigger{rule: rule, re: re, order: e.nextOrd})
	e.nextOrd++
	e.triggers = next
	return nil
}

// Unregister removes every trigger with the given description. Reports
// whether anything was removed.
func (e *Engine) Unregister(description string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	var next []*compiledTrigger
	removed := false
	for _, t := range e.triggers {
		if t.rule.Description == description {
			removed = true
			continue
		}
		next = append(next, t)
	}
	e.triggers = next
	return removed
}

// SetEnabled globally gates evaluation.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// Enabled reports the global gate.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Evaluate returns the highest-priority matching trigger for the record, or
// false when nothing matches, the engine is disabled, or every match is
// cooling down. Ties break by registration order, earliest wins.
func (e *Engine) Evaluate(record domain.CommandRecord) (domain.Trigger, bool) {
	e.mu.Lock()
	if !e.enabled {
		e.mu.Unlock()
		return domain.Trigger{}, false
	}
	snapshot := e.triggers
	now := e.now()

	text := record.Command + "\n" + record.Output + "\n" + record.ErrorText
	var best *compiledTrigger
	for _, t := range snapshot {
		if t.rule.Cooldown > 0 && now.Sub(t.lastTriggered) < t.rule.Cooldown {
			continue
		}
		if best != nil && (t.rule.Priority < best.rule.Priority ||
			(t.rule.Priority == best.rule.Priority && t.order > best.order)) {
			continue
		}
		if t.matches(record, text) {
			best = t
		}
	}
	if best == nil {
		e.mu.Unlock()
		return domain.Trigger{}, false
	}
	best.lastTriggered = now
	rule := best.rule
	e.mu.Unlock()
	return rule, true
}

func (t *compiledTrigger) matches(record domain.CommandRecord, text string) bool {
	switch t.rule.Kind {
	case domain.TriggerError:
		return record.ExitCode != 0
	case domain.TriggerPattern:
		return t.re != nil && t.re.MatchString(text)
	case domain.TriggerKeyword:
		return t.rule.Keyword != "" &&
			strings.Contains(strings.ToLower(record.Command), strings.ToLower(t.rule.Keyword))
	default:
		return false
	}
}

// Triggers returns a copy of the registered rules in registration order.
func (e *Engine) Triggers() []domain.Trigger {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Trigger, len(e.triggers))
	for i, t := range e.triggers {
		out[i] = t.rule
	}
	return out
}

// NewEngineFromFile builds an engine with the built-in error rule plus the
// pattern rules read from path. A missing file falls back to the embedded
// defaults; a present but malformed file is an error.
func NewEngineFromFile(path string) (*Engine, error) {
	e := NewEmptyEngine()
	rules, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	for _, rule := range append(defaultTriggers()[:1], rules...) {
		if err := e.Register(rule); err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Description, err)
		}
	}
	return e, nil
}

// rulesDocument is the YAML schema for a trigger rules file.
type rulesDocument struct {
	Rules []struct {
		Kind            string `yaml:"kind"`
		Pattern         string `yaml:"pattern"`
		Keyword         string `yaml:"keyword"`
		Priority        int    `yaml:"priority"`
		Description     string `yaml:"description"`
		CooldownSeconds int    `yaml:"cooldown_seconds"`
	} `yaml:"rules"`
}

// LoadRules reads pattern rules from the YAML file at path, falling back to
// the embedded defaults when the file is missing.
func LoadRules(path string) ([]domain.Trigger, error) {
	data := assets.DefaultTriggersYAML
	if path != "" {
		if raw, err := os.ReadFile(path); err == nil {
			data = raw
		}
	}
	var doc rulesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse trigger rules: %w", err)
	}
	rules := make([]domain.Trigger, 0, len(doc.Rules))
	for _, r := range doc.Rules {
		rules = append(rules, domain.Trigger{
			Kind:        domain.TriggerKind(r.Kind),
			Pattern:     r.Pattern,
			Keyword:     r.Keyword,
			Priority:    r.Priority,
			Description: r.Description,
			Cooldown:    time.Duration(r.CooldownSeconds) * time.Second,
		})
	}
	return rules, nil
}

// defaultTriggers is the built-in rule set: the non-zero-exit ERROR rule at
// top priority plus the embedded pattern table.
func defaultTriggers() []domain.Trigger {
	rules := []domain.Trigger{{
		Kind:        domain.TriggerError,
		Priority:    10,
		Description: "Any command that exits with non-zero code",
		Cooldown:    time.Second,
	}}
	patterns, err := LoadRules("")
	if err != nil {
		return rules
	}
	return append(rules, patterns...)
}
