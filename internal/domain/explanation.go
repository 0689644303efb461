package domain

import (
	"time"
)

// Decision is the automated disposition recommended by a scoring pass.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReview  Decision = "REVIEW"
	DecisionFlag    Decision = "FLAG"
)

// Explanation is the structured, human-auditable decision record derived
// from a RiskAssessment. Immutable once created; one per scoring pass.
//
// Confidence always expresses confidence in the decision made, not fraud
// probability: for FLAG and REVIEW it equals the fraud score, for APPROVE it
// equals 100 minus the fraud score.
type Explanation struct {
	ID      string `json:"id"`
	ClaimID string `json:"claimId"`

	Decision   Decision `json:"decision"`
	Confidence int      `json:"confidence"`

	// PrimaryReasons lists the highest-weight contributing factors first.
	PrimaryReasons []string `json:"primaryReasons,omitempty"`

	// ContributingFactors holds the secondary signals.
	ContributingFactors []string `json:"contributingFactors,omitempty"`

	// Red and green flags are ordered by detection sequence
	// (amount, history, document, timing, model), not by weight.
	RedFlags   []string `json:"redFlags,omitempty"`
	GreenFlags []string `json:"greenFlags,omitempty"`

	Text           string `json:"text"`
	Recommendation string `json:"recommendation"`

	CreatedAt time.Time `json:"createdAt"`
}
