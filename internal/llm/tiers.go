package llm

import (
	"fmt"
)

// Tier is a task complexity class. The tier map binds each class to a
// concrete model and token strategy.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// TokenStrategy selects how the token budget is sent upstream.
type TokenStrategy string

const (
	// StrategyCompletion targets models that take completion-token
	// budgets, including reasoning models. The requested budget is
	// scaled up to leave room for reasoning tokens.
	StrategyCompletion TokenStrategy = "completion"

	// StrategyLegacy targets models with the classic max_tokens field;
	// the requested budget passes through verbatim.
	StrategyLegacy TokenStrategy = "legacy"
)

// TierSpec binds a tier to a model.
type TierSpec struct {
	Model         string        `yaml:"model" json:"model"`
	TokenStrategy TokenStrategy `yaml:"token_strategy" json:"token_strategy"`
	Temperature   *float64      `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// TierMap maps complexity classes to model specs.
type TierMap map[Tier]TierSpec

// DefaultTierMap returns a sensible out-of-the-box mapping.
func DefaultTierMap() TierMap {
	return TierMap{
		TierLow:    {Model: "gpt-4o-mini", TokenStrategy: StrategyLegacy},
		TierMedium: {Model: "gpt-4o", TokenStrategy: StrategyLegacy},
		TierHigh:   {Model: "o1-mini", TokenStrategy: StrategyCompletion},
	}
}

// Spec resolves a tier, defaulting unknown tiers to medium.
func (m TierMap) Spec(tier Tier) (TierSpec, error) {
	if spec, ok := m[tier]; ok {
		return spec, nil
	}
	if spec, ok := m[TierMedium]; ok {
		return spec, nil
	}
	return TierSpec{}, fmt.Errorf("tier map has no entry for %q and no medium fallback", tier)
}

const (
	completionBudgetFloor = 4000
	smallRequestCutoff    = 50
	smallRequestFactor    = 30
	largeRequestFactor    = 15
)

// completionTokenBudget scales a requested budget for completion-token
// models: max(4000, requested*k) with k=30 for small requests and k=15
// otherwise. Pure function of the request size.
func completionTokenBudget(requested int) int {
	k := largeRequestFactor
	if requested <= smallRequestCutoff {
		k = smallRequestFactor
	}
	budget := requested * k
	if budget < completionBudgetFloor {
		budget = completionBudgetFloor
	}
	return budget
}

// tokenBudget returns (max_tokens, max_completion_tokens) for the
// strategy; exactly one of the two is nonzero.
func tokenBudget(strategy TokenStrategy, requested int) (maxTokens, maxCompletionTokens int) {
	if strategy == StrategyCompletion {
		return 0, completionTokenBudget(requested)
	}
	return requested, 0
}
