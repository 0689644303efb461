// Package scoring implements the deterministic fraud-risk engine: the
// rule-based risk assessor, the fallback probability estimator used when the
// external model is unavailable, and the blender that combines both signals
// into the canonical fraud score.
package scoring

import (
	"context"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FallbackScorer is the deterministic rule-based probability estimator
// substituted whenever the external statistical scorer is absent, times out
// or returns malformed output. It satisfies the same contract shape as the
// external scorer so callers cannot tell the two apart.
type FallbackScorer struct{}

// NewFallbackScorer creates the fallback estimator.
func NewFallbackScorer() *FallbackScorer {
	return &FallbackScorer{}
}

// Score returns a fraud probability in [0,1] from fixed bucketed additive
// weights over age, amount and policy duration. It never fails.
func (s *FallbackScorer) Score(_ context.Context, f domain.FeatureVector, _ domain.ClaimCategory) (float64, error) {
	var p float64

	// Age risk
	if f.Age < 25 {
		p += 0.15
	} else if f.Age > 65 {
		p += 0.10
	}

	// Amount risk
	if f.Amount > 500000 {
		p += 0.30
	} else if f.Amount > 200000 {
		p += 0.15
	}

	// Policy duration risk
	if f.PolicyDurationMonths < 6 {
		p += 0.20
	} else if f.PolicyDurationMonths < 12 {
		p += 0.10
	}

	// Round amounts are disproportionately common in fraudulent claims.
	if f.Amount > 100000 && math.Mod(f.Amount, 100000) == 0 {
		p += 0.10
	}

	return clampProb(p), nil
}

func clampProb(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
