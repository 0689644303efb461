package domain

import "time"

// GlobalTenantID marks an escalation rule that applies to every tenant.
const GlobalTenantID = "*"

// EscalationRule is a tenant-configurable risk rule layered on top of the
// built-in sub-analyses. The CEL expression is evaluated against the claim
// being scored; when it yields true the named factor is appended to the
// assessment with the configured weight under the "custom" category.
type EscalationRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is a CEL expression over amount, category, age,
	// policy_duration, rule_score and claimant_id. Must return bool.
	Expression string `json:"expression"`

	// Factor is the description recorded when the rule matches.
	Factor string `json:"factor"`

	// Weight added to the rule score when the rule matches.
	Weight int `json:"weight"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// FraudPattern is recorded when an agent rejects a claim outright, retained
// as labelled training material for later model retraining.
type FraudPattern struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenantId"`
	ClaimID    string        `json:"claimId"`
	Score      int           `json:"score"`
	Amount     float64       `json:"amount"`
	Category   ClaimCategory `json:"category"`
	RejectedBy string        `json:"rejectedBy"`
	Reason     string        `json:"reason"`
	Features   FeatureVector `json:"features"`
	CreatedAt  time.Time     `json:"createdAt"`
}
