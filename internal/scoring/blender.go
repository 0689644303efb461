package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// borderlineMargin is how far below a tier boundary the canonical score may
// sit for the rule signal to escalate routing.
const borderlineMargin = 5

// Blend is the canonical scoring result combining the model and rule
// signals under the documented precedence policy: the model probability
// (external or fallback) is the primary signal, the rule score corroborates
// and breaks ties when the model signal is borderline.
type Blend struct {
	Score          int
	RuleScore      int
	ModelScore     int
	ModelAvailable bool
	Tier           domain.RiskTier
}

// Blender resolves the model probability, bounded by a timeout and backed by
// the deterministic fallback estimator, and combines it with the rule score.
type Blender struct {
	external domain.ExternalScorer // nil when no external model is wired
	fallback *FallbackScorer
	timeout  time.Duration
}

// NewBlender creates a score blender. external may be nil; the fallback
// estimator then supplies the model signal for every pass.
func NewBlender(external domain.ExternalScorer, timeout time.Duration) *Blender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Blender{
		external: external,
		fallback: NewFallbackScorer(),
		timeout:  timeout,
	}
}

// Probability returns the model fraud probability for the feature vector.
// The second return reports whether the external model produced it; false
// means the fallback estimator did. The fallback is applied identically
// whether the external scorer is absent, errors, times out or returns a
// probability outside [0,1] - there is no silent zero-score default.
func (b *Blender) Probability(ctx context.Context, f domain.FeatureVector, category domain.ClaimCategory) (float64, bool) {
	if b.external != nil {
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		prob, err := b.external.Score(callCtx, f, category)
		cancel()

		if err == nil && prob >= 0 && prob <= 1 {
			return prob, true
		}
		slog.Warn("external scorer unavailable, using fallback estimator",
			"error", err,
			"probability", prob,
		)
	}

	prob, _ := b.fallback.Score(ctx, f, category)
	return prob, false
}

// Combine produces the canonical fraud score and risk tier. The canonical
// score is the model probability expressed as a 0-100 integer; the rule
// score escalates the tier only when the canonical score is within the
// borderline margin below a tier boundary and the rule signal lands in a
// strictly higher tier.
func Combine(prob float64, modelAvailable bool, rule RuleOutput) Blend {
	score := clampScore(int(math.Round(prob * 100)))
	tier := domain.TierForScore(score)

	if escalated, ok := borderlineEscalation(score, rule.Score); ok {
		tier = escalated
	}

	return Blend{
		Score:          score,
		RuleScore:      rule.Score,
		ModelScore:     score,
		ModelAvailable: modelAvailable,
		Tier:           tier,
	}
}

func borderlineEscalation(score, ruleScore int) (domain.RiskTier, bool) {
	ruleTier := domain.TierForScore(ruleScore)

	switch {
	case score >= 70-borderlineMargin && score < 70 && ruleTier == domain.TierHigh:
		return domain.TierHigh, true
	case score >= 40-borderlineMargin && score < 40 && ruleTier != domain.TierLow:
		return domain.TierMedium, true
	}
	return "", false
}

// ModelFactor renders the model dimension as a risk factor for the
// explanation. When the external scorer was unavailable it becomes the
// transparency note required by the degradation contract.
func ModelFactor(b Blend) domain.RiskFactor {
	if !b.ModelAvailable {
		return domain.RiskFactor{
			Category:    domain.FactorModel,
			Description: "AI validation unavailable; rule-based estimate applied",
			Weight:      0,
		}
	}
	return domain.RiskFactor{
		Category:    domain.FactorModel,
		Description: fmt.Sprintf("Model fraud probability: %d%%", b.ModelScore),
		Weight:      b.ModelScore,
	}
}
