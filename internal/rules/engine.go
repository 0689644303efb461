// Package rules provides the CEL-Go based escalation rule engine. Tenants
// layer custom risk rules on top of the built-in sub-analyses; a matching
// rule appends a weighted factor to the assessment.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine is the CEL-based escalation rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.EscalationRule
	Program cel.Program
}

// NewEngine creates a new escalation rule engine.
func NewEngine() (*Engine, error) {
	// Create CEL environment with claim variables
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("category", cel.StringType),
		cel.Variable("age", cel.IntType),
		cel.Variable("policy_duration", cel.IntType),
		cel.Variable("rule_score", cel.IntType),
		cel.Variable("claimant_id", cel.StringType),
		cel.Variable("active_claims", cel.IntType),
		cel.Variable("rejected_claims", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.EscalationRule) error {
	if cfg == nil {
		return fmt.Errorf("%w: rule config is required", domain.ErrInvalidInput)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.EscalationRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.EscalationRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Input holds the claim data escalation rules are evaluated against.
type Input struct {
	TenantID             string
	ClaimantID           string
	Category             domain.ClaimCategory
	Amount               float64
	Age                  int
	PolicyDurationMonths int
	RuleScore            int
	ActiveClaims         int
	RejectedClaims       int
}

// Evaluate runs every loaded rule for the tenant and returns the factors of
// those that matched, in rule-ID order for determinism. Rules stored under
// an empty or global tenant apply to all tenants. An expression that
// errors at evaluation time is skipped; it cannot fail the scoring pass.
func (e *Engine) Evaluate(input *Input) []domain.RiskFactor {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		tenant := rule.Config.TenantID
		if tenant == "" || tenant == domain.GlobalTenantID || tenant == input.TenantID {
			rules = append(rules, rule)
		}
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	sortRules(rules)

	activation := map[string]any{
		"amount":          input.Amount,
		"category":        string(input.Category),
		"age":             input.Age,
		"policy_duration": input.PolicyDurationMonths,
		"rule_score":      input.RuleScore,
		"claimant_id":     input.ClaimantID,
		"active_claims":   input.ActiveClaims,
		"rejected_claims": input.RejectedClaims,
	}

	var factors []domain.RiskFactor
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		if matched, ok := out.(types.Bool); ok && bool(matched) {
			factors = append(factors, domain.RiskFactor{
				Category:    domain.FactorCustom,
				Description: rule.Config.Factor,
				Weight:      rule.Config.Weight,
			})
		}
	}

	return factors
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.EscalationRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.EscalationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.EscalationRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.EscalationRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

func sortRules(rules []*CompiledRule) {
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Config.ID < rules[j].Config.ID
	})
}
