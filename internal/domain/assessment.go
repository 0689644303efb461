package domain

import (
	"time"
)

// RiskTier buckets the canonical fraud score for workflow routing.
type RiskTier string

const (
	TierLow    RiskTier = "LOW"
	TierMedium RiskTier = "MEDIUM"
	TierHigh   RiskTier = "HIGH"
)

// TierForScore maps a canonical 0-100 fraud score to its risk tier.
// The boundaries are load-bearing for workflow routing: LOW below 40,
// MEDIUM from 40 through 69, HIGH at 70 and above.
func TierForScore(score int) RiskTier {
	switch {
	case score >= 70:
		return TierHigh
	case score >= 40:
		return TierMedium
	default:
		return TierLow
	}
}

// FactorCategory tags a risk factor by the sub-analysis that produced it.
type FactorCategory string

const (
	FactorAmount   FactorCategory = "amount"
	FactorHistory  FactorCategory = "history"
	FactorDocument FactorCategory = "document"
	FactorTiming   FactorCategory = "timing"
	FactorModel    FactorCategory = "model"

	// FactorCustom marks factors produced by tenant escalation rules.
	FactorCustom FactorCategory = "custom"
)

// RiskFactor is one named contribution to the rule-based risk score.
type RiskFactor struct {
	Category    FactorCategory `json:"category"`
	Description string         `json:"description"`
	Weight      int            `json:"weight"`
}

// RiskAssessment is the derived result of one scoring pass. The Score is the
// canonical blended fraud score (model signal primary, rule signal
// corroborating); RuleScore and ModelScore are retained so the blend is
// auditable after the fact.
type RiskAssessment struct {
	ID      string `json:"id"`
	ClaimID string `json:"claimId"`

	Score      int      `json:"score"`
	RuleScore  int      `json:"ruleScore"`
	ModelScore int      `json:"modelScore"`
	Tier       RiskTier `json:"tier"`

	// ModelAvailable is false when the external scorer failed and the
	// deterministic fallback estimator supplied the model signal.
	ModelAvailable bool `json:"modelAvailable"`

	// Factors are ordered by detection sequence:
	// amount, history, document, timing, model, custom.
	Factors    []RiskFactor `json:"factors"`
	GreenFlags []string     `json:"greenFlags,omitempty"`

	RequiresManualReview bool `json:"requiresManualReview"`

	CreatedAt time.Time `json:"createdAt"`
}

// DocumentQuality is the extraction collaborator's readability verdict.
type DocumentQuality string

const (
	QualityClear   DocumentQuality = "clear"
	QualityBlurry  DocumentQuality = "blurry"
	QualityDamaged DocumentQuality = "damaged"
	QualityUnknown DocumentQuality = "unknown"
)

// NarrativeVerdict is the extraction collaborator's consistency check
// between the claimant's story and the document contents.
type NarrativeVerdict string

const (
	NarrativeConsistent   NarrativeVerdict = "consistent"
	NarrativeInconsistent NarrativeVerdict = "inconsistent"
	NarrativeNeedsReview  NarrativeVerdict = "needs_review"
	NarrativeUnknown      NarrativeVerdict = "unknown"
)

// DocumentExtraction is the structured result produced by the external
// document-analysis collaborator. Absence of this entity is a valid state;
// scoring degrades to zero document-risk contribution.
type DocumentExtraction struct {
	ClaimAmount      float64          `json:"claimAmount"`
	ProviderName     string           `json:"providerName,omitempty"`
	Quality          DocumentQuality  `json:"quality"`
	RedFlags         []string         `json:"redFlags,omitempty"`
	MissingFields    []string         `json:"missingFields,omitempty"`
	Confidence       int              `json:"confidence"`
	NarrativeVerdict NarrativeVerdict `json:"narrativeVerdict"`
	ConsistencyScore int              `json:"consistencyScore"`
}

// ClaimantHistory is a read-only projection over a claimant's prior claims
// within a trailing window. Computed fresh per scoring call, never persisted.
type ClaimantHistory struct {
	ActiveClaims   int `json:"activeClaims"`
	RejectedClaims int `json:"rejectedClaims"`
	WindowDays     int `json:"windowDays"`
}

// FeatureVector is the fixed-order numeric feature tuple consumed by the
// external scorer and the fallback estimator.
type FeatureVector struct {
	Age                  float64 `json:"age"`
	Amount               float64 `json:"amount"`
	PolicyDurationMonths float64 `json:"policyDurationMonths"`
}
