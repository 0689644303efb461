package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
)

// Amount thresholds for the rule-based risk analysis.
const (
	highAmountThreshold   = 500000
	mediumAmountThreshold = 200000
	roundAmountFloor      = 100000
	roundAmountStep       = 100000
)

// Contribution weights. Contributions are explicitly additive across the
// sub-analyses and the total saturates at 100.
const (
	weightAmountVeryHigh    = 35
	weightAmountHigh        = 20
	weightAmountRound       = 10
	weightManyRecentClaims  = 25
	weightTwoRecentClaims   = 15
	weightPriorRejections   = 20
	weightDocumentRedFlag   = 10
	weightPoorQuality       = 15
	weightLowConfidence     = 20
	weightMissingField      = 5
	weightNarrativeMismatch = 25
	weightWeekendFiling     = 5
	weightLateNightFiling   = 10
)

// RuleOutput is the result of the rule-based sub-analyses: a 0-100 score,
// the ordered risk factors that produced it, and the positive indicators
// observed along the way.
type RuleOutput struct {
	Score      int
	Factors    []domain.RiskFactor
	GreenFlags []string
}

// Assessor computes the auxiliary rule-based risk score from five
// independent sub-analyses. Every sub-analysis tolerates missing input by
// contributing zero; a missing input can only lower the score, never raise
// it and never fail the pass.
type Assessor struct{}

// NewAssessor creates a rule risk assessor.
func NewAssessor() *Assessor {
	return &Assessor{}
}

// Assess runs the sub-analyses in detection order: amount, history,
// document, timing. The model dimension is folded in by the blender, not
// here, so the two signals stay independent until the blending stage.
func (a *Assessor) Assess(ext features.Extracted, history *domain.ClaimantHistory, submittedAt time.Time) RuleOutput {
	var out RuleOutput

	a.assessAmount(ext.Vector.Amount, &out)
	a.assessHistory(history, &out)
	a.assessDocument(ext.Signals, &out)
	a.assessTiming(submittedAt, &out)

	out.Score = clampScore(out.Score)
	return out
}

func (a *Assessor) assessAmount(amount float64, out *RuleOutput) {
	switch {
	case amount > highAmountThreshold:
		out.add(domain.FactorAmount, weightAmountVeryHigh,
			fmt.Sprintf("Very high claim amount: %.0f", amount))
	case amount > mediumAmountThreshold:
		out.add(domain.FactorAmount, weightAmountHigh,
			fmt.Sprintf("High claim amount: %.0f", amount))
	default:
		out.green(fmt.Sprintf("Reasonable claim amount: %.0f", amount))
	}

	// Additive with the tier contribution above.
	if amount > roundAmountFloor && math.Mod(amount, roundAmountStep) == 0 {
		out.add(domain.FactorAmount, weightAmountRound, "Suspiciously round amount")
	}
}

func (a *Assessor) assessHistory(history *domain.ClaimantHistory, out *RuleOutput) {
	if history == nil {
		return
	}

	switch {
	case history.ActiveClaims >= 3:
		out.add(domain.FactorHistory, weightManyRecentClaims,
			fmt.Sprintf("%d claims in last %d days", history.ActiveClaims, history.WindowDays))
	case history.ActiveClaims == 2:
		out.add(domain.FactorHistory, weightTwoRecentClaims, "Multiple claims recently")
	default:
		out.green("No excessive claim history")
	}

	// Rejections are a boolean-weighted signal, counted once regardless
	// of how many there were.
	if history.RejectedClaims > 0 {
		out.add(domain.FactorHistory, weightPriorRejections,
			fmt.Sprintf("%d previously rejected claims", history.RejectedClaims))
	}
}

func (a *Assessor) assessDocument(sig features.Signals, out *RuleOutput) {
	if !sig.HasExtraction {
		return
	}

	for _, flag := range sig.RedFlags {
		out.add(domain.FactorDocument, weightDocumentRedFlag, "Document issue: "+flag)
	}

	switch sig.Quality {
	case domain.QualityBlurry, domain.QualityDamaged:
		out.add(domain.FactorDocument, weightPoorQuality, "Poor document quality")
	case domain.QualityClear:
		out.green("Clear, readable documents")
	}

	if sig.ConfidenceKnown {
		if sig.Confidence < 50 {
			out.add(domain.FactorDocument, weightLowConfidence,
				fmt.Sprintf("Low extraction confidence: %d%%", sig.Confidence))
		} else if sig.Confidence > 80 {
			out.green(fmt.Sprintf("High extraction confidence: %d%%", sig.Confidence))
		}
	}

	for _, field := range sig.MissingFields {
		out.add(domain.FactorDocument, weightMissingField, "Missing information: "+field)
	}

	switch sig.NarrativeVerdict {
	case domain.NarrativeInconsistent:
		out.add(domain.FactorDocument, weightNarrativeMismatch,
			"Claim narrative inconsistent with documents")
	case domain.NarrativeNeedsReview:
		out.add(domain.FactorDocument, 0, "Narrative consistency needs review")
	case domain.NarrativeConsistent:
		out.green("Narrative matches documents")
	}
}

func (a *Assessor) assessTiming(submittedAt time.Time, out *RuleOutput) {
	wd := submittedAt.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		out.add(domain.FactorTiming, weightWeekendFiling, "Claim filed on weekend")
	}

	h := submittedAt.Hour()
	if h >= 22 || h <= 5 {
		out.add(domain.FactorTiming, weightLateNightFiling,
			fmt.Sprintf("Claim filed at unusual hour: %02d:00", h))
	} else {
		out.green("Filed during normal business hours")
	}
}

func (o *RuleOutput) add(cat domain.FactorCategory, weight int, desc string) {
	o.Score += weight
	o.Factors = append(o.Factors, domain.RiskFactor{
		Category:    cat,
		Description: desc,
		Weight:      weight,
	})
}

func (o *RuleOutput) green(desc string) {
	o.GreenFlags = append(o.GreenFlags, desc)
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
