// Package schedule holds the in-memory schedule of charges served on the
// request path. Rules are loaded from the repository at startup and can be
// hot-reloaded.
package schedule

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
)

// Store is the read-mostly rule store shared across concurrent requests.
type Store struct {
	mu       sync.RWMutex
	env      *cel.Env
	byCharge map[string][]*LoadedRule
}

// LoadedRule is a pricing rule with its guard expression pre-compiled.
type LoadedRule struct {
	Rule  *domain.PricingRule
	guard cel.Program
}

// New creates an empty store with a CEL environment for rule guards.
func New() (*Store, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("usage_index", cel.IntType),
		cel.Variable("outstanding", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Store{
		env:      env,
		byCharge: make(map[string][]*LoadedRule),
	}, nil
}

// ValidateRule compiles a rule's guard without loading it.
func (s *Store) ValidateRule(rule *domain.PricingRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	_, err := s.compile(rule)
	return err
}

// Load adds rules to the store, compiling guards.
func (s *Store) Load(rules []*domain.PricingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rule := range rules {
		loaded, err := s.compile(rule)
		if err != nil {
			return err
		}
		s.byCharge[rule.ChargeID] = append(s.byCharge[rule.ChargeID], loaded)
	}
	s.sortLocked()
	return nil
}

// Reload replaces all loaded rules atomically.
func (s *Store) Reload(rules []*domain.PricingRule) error {
	byCharge := make(map[string][]*LoadedRule)
	for _, rule := range rules {
		loaded, err := s.compile(rule)
		if err != nil {
			return err
		}
		byCharge[rule.ChargeID] = append(byCharge[rule.ChargeID], loaded)
	}

	s.mu.Lock()
	s.byCharge = byCharge
	s.sortLocked()
	s.mu.Unlock()
	return nil
}

// sortLocked orders each charge's rules by ID so iteration never depends
// on load order.
func (s *Store) sortLocked() {
	for _, rules := range s.byCharge {
		sort.Slice(rules, func(i, j int) bool {
			return rules[i].Rule.ID < rules[j].Rule.ID
		})
	}
}

// RulesFor returns the loaded rules for a charge identifier.
func (s *Store) RulesFor(chargeID string) []*LoadedRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := s.byCharge[chargeID]
	out := make([]*LoadedRule, len(rules))
	copy(out, rules)
	return out
}

// Rules returns all loaded rules.
func (s *Store) Rules() []*domain.PricingRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PricingRule
	for _, rules := range s.byCharge {
		for _, lr := range rules {
			out = append(out, lr.Rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of loaded rules.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rules := range s.byCharge {
		n += len(rules)
	}
	return n
}

func (s *Store) compile(rule *domain.PricingRule) (*LoadedRule, error) {
	loaded := &LoadedRule{Rule: rule}
	if rule.GuardExpression == "" {
		return loaded, nil
	}

	ast, issues := s.env.Compile(rule.GuardExpression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile guard for rule %s: %w", rule.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: guard must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := s.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create guard program for rule %s: %w", rule.ID, err)
	}

	loaded.guard = program
	return loaded, nil
}

// GuardAllows evaluates the rule's guard against the runtime inputs.
// Rules without a guard always pass. Missing inputs activate as zero.
func (lr *LoadedRule) GuardAllows(inputs *domain.RuntimeInputs) bool {
	if lr.guard == nil {
		return true
	}

	amount := 0.0
	usageIndex := 0
	outstanding := 0.0
	if inputs != nil {
		if inputs.Amount != nil {
			amount = inputs.Amount.InexactFloat64()
		}
		usageIndex = inputs.UsageIndex
		if inputs.Outstanding != nil {
			outstanding = inputs.Outstanding.InexactFloat64()
		}
	}

	out, _, err := lr.guard.Eval(map[string]any{
		"amount":      amount,
		"usage_index": usageIndex,
		"outstanding": outstanding,
	})
	if err != nil {
		return false
	}

	b, ok := out.(types.Bool)
	return ok && bool(b)
}
