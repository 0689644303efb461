// Package explain turns a risk assessment into a structured,
// human-auditable explanation of the fraud decision.
package explain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Factors at or above this weight are primary reasons; everything below is
// a contributing factor.
const primaryWeight = 20

// Recommendation strings per decision.
const (
	recommendFlag    = "High risk: detailed investigation required. Contact claimant for verification."
	recommendReview  = "Medium risk: manual review recommended. Verify documentation."
	recommendApprove = "Low risk: safe to approve. Standard processing."
)

// Builder produces explanations from assessments. Generation is
// deterministic and never fails: minimal input still yields a valid
// decision with text acknowledging the limited data.
type Builder struct{}

// NewBuilder creates an explanation builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build derives the decision from the canonical score and tier, orders the
// contributing factors by impact, and renders the decision-specific text.
func (b *Builder) Build(a *domain.RiskAssessment, amount float64, now time.Time) *domain.Explanation {
	e := &domain.Explanation{
		ID:         uuid.New().String(),
		ClaimID:    a.ClaimID,
		GreenFlags: a.GreenFlags,
		CreatedAt:  now,
	}

	switch {
	case a.Score >= 70 || a.Tier == domain.TierHigh:
		e.Decision = domain.DecisionFlag
		e.Confidence = a.Score
		e.Recommendation = recommendFlag
	case a.Score >= 40 || a.Tier == domain.TierMedium:
		e.Decision = domain.DecisionReview
		e.Confidence = a.Score
		e.Recommendation = recommendReview
	default:
		e.Decision = domain.DecisionApprove
		e.Confidence = 100 - a.Score
		e.Recommendation = recommendApprove
	}

	// Red flags keep detection-sequence order; reasons are re-ranked by
	// weight, stable so ties preserve detection order.
	ranked := make([]domain.RiskFactor, len(a.Factors))
	copy(ranked, a.Factors)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Weight > ranked[j].Weight
	})

	for _, f := range a.Factors {
		if f.Weight > 0 {
			e.RedFlags = append(e.RedFlags, f.Description)
		}
	}
	for _, f := range ranked {
		if f.Weight >= primaryWeight {
			e.PrimaryReasons = append(e.PrimaryReasons, f.Description)
		} else {
			e.ContributingFactors = append(e.ContributingFactors, f.Description)
		}
	}

	e.Text = renderText(e, a, amount)
	return e
}

func renderText(e *domain.Explanation, a *domain.RiskAssessment, amount float64) string {
	var sb strings.Builder

	switch e.Decision {
	case domain.DecisionFlag:
		fmt.Fprintf(&sb, "HIGH FRAUD RISK (%d%%): this %.0f claim has been flagged for investigation.\n", a.Score, amount)
		writeSection(&sb, "Primary concerns", e.PrimaryReasons, 3)
		writeSection(&sb, "Red flags detected", e.RedFlags, 5)

	case domain.DecisionReview:
		fmt.Fprintf(&sb, "MEDIUM RISK (%d%%): this %.0f claim requires manual review.\n", a.Score, amount)
		writeSection(&sb, "Key factors", e.PrimaryReasons, 2)
		writeSection(&sb, "Additional considerations", e.ContributingFactors, 3)
		writeSection(&sb, "Positive indicators", e.GreenFlags, 2)

	default:
		fmt.Fprintf(&sb, "LOW RISK (%d%% confidence): this %.0f claim appears legitimate.\n", e.Confidence, amount)
		writeSection(&sb, "Positive indicators", e.GreenFlags, 4)
		writeSection(&sb, "Minor notes", e.ContributingFactors, 2)
	}

	if !a.ModelAvailable && len(a.Factors) <= 1 {
		sb.WriteString("\nLimited data available; manual review required.\n")
	}

	fmt.Fprintf(&sb, "\nRecommended action: %s", e.Recommendation)
	return sb.String()
}

func writeSection(sb *strings.Builder, heading string, items []string, limit int) {
	if len(items) == 0 {
		return
	}
	if len(items) > limit {
		items = items[:limit]
	}
	fmt.Fprintf(sb, "\n%s:\n", heading)
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}
