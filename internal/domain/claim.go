package domain

import (
	"time"
)

// ClaimCategory identifies the insurance line a claim is filed against.
type ClaimCategory string

const (
	CategoryHealth   ClaimCategory = "health"
	CategoryMotor    ClaimCategory = "motor"
	CategoryProperty ClaimCategory = "property"
	CategoryTravel   ClaimCategory = "travel"
	CategoryLife     ClaimCategory = "life"
)

// NormalizeCategory maps arbitrary category input to a known bucket.
// Unknown values fall back to health so scoring stays total.
func NormalizeCategory(raw string) ClaimCategory {
	switch ClaimCategory(raw) {
	case CategoryHealth, CategoryMotor, CategoryProperty, CategoryTravel, CategoryLife:
		return ClaimCategory(raw)
	case "vehicle":
		return CategoryMotor
	case "auto":
		return CategoryProperty
	default:
		return CategoryHealth
	}
}

// ClaimState is the workflow state of a claim.
type ClaimState string

const (
	StateSubmitted     ClaimState = "submitted"
	StateScored        ClaimState = "scored"
	StateAgentReview   ClaimState = "agent_review"
	StateAdminReview   ClaimState = "admin_review"
	StateUnderReview   ClaimState = "under_review"
	StateInfoRequested ClaimState = "info_requested"
	StateApproved      ClaimState = "approved"
	StateRejected      ClaimState = "rejected"
)

// IsTerminal reports whether no further transitions are permitted.
func (s ClaimState) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// ClaimSubmission is the immutable input captured when a claim is filed.
type ClaimSubmission struct {
	ClaimantID           string        `json:"claimantId"`
	PolicyNumber         string        `json:"policyNumber"`
	Category             ClaimCategory `json:"category"`
	Amount               float64       `json:"amount"`
	Description          string        `json:"description"`
	ClaimantAge          int           `json:"claimantAge"`
	PolicyDurationMonths int           `json:"policyDurationMonths"`
	SubmittedAt          time.Time     `json:"submittedAt"`
	Documents            []string      `json:"documents,omitempty"`
}

// WorkflowEntry is one append-only record in a claim's workflow history.
// Transitions that result from a scoring pass carry the assessment and
// explanation snapshot that drove them.
type WorkflowEntry struct {
	State       ClaimState      `json:"state"`
	Timestamp   time.Time       `json:"timestamp"`
	Actor       string          `json:"actor"`
	Notes       string          `json:"notes,omitempty"`
	Assessment  *RiskAssessment `json:"assessment,omitempty"`
	Explanation *Explanation    `json:"explanation,omitempty"`
}

// Claim is the workflow-bearing aggregate. It is mutated only through
// validated transitions; the workflow history is append-only and the current
// state always equals the state of the last history entry.
type Claim struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Submission ClaimSubmission `json:"submission"`

	State   ClaimState      `json:"state"`
	History []WorkflowEntry `json:"history"`

	// Every scoring pass appends here; earlier assessments are retained
	// as the audit trail and never overwritten.
	Assessments []RiskAssessment `json:"assessments,omitempty"`

	// Final disposition
	ApprovedAmount  float64 `json:"approvedAmount,omitempty"`
	RejectionReason string  `json:"rejectionReason,omitempty"`

	// Assigned reviewers
	AgentID string `json:"agentId,omitempty"`

	// Version supports optimistic concurrency on transitions.
	Version int64 `json:"version"`

	// TerminalProcessed flips exactly once, atomically with the terminal
	// transition, and gates the gamification side effects.
	TerminalProcessed bool `json:"terminalProcessed"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LatestAssessment returns the most recent scoring result, or nil.
func (c *Claim) LatestAssessment() *RiskAssessment {
	if len(c.Assessments) == 0 {
		return nil
	}
	return &c.Assessments[len(c.Assessments)-1]
}

// LatestExplanation returns the explanation attached to the most recent
// scoring transition, or nil if the claim has never been scored.
func (c *Claim) LatestExplanation() *Explanation {
	for i := len(c.History) - 1; i >= 0; i-- {
		if c.History[i].Explanation != nil {
			return c.History[i].Explanation
		}
	}
	return nil
}

// ClaimFilter narrows claim listings.
type ClaimFilter struct {
	State      ClaimState
	ClaimantID string
	AgentID    string
	Category   ClaimCategory
}

// SubmitRequest is the API request payload for filing a claim.
type SubmitRequest struct {
	ClaimantID           string   `json:"claimantId"`
	PolicyNumber         string   `json:"policyNumber"`
	Category             string   `json:"category"`
	Amount               float64  `json:"amount"`
	Description          string   `json:"description"`
	ClaimantAge          int      `json:"claimantAge"`
	PolicyDurationMonths int      `json:"policyDurationMonths"`
	Documents            []string `json:"documents,omitempty"`
}

// ToSubmission converts a request to the immutable submission record.
func (r *SubmitRequest) ToSubmission(now time.Time) ClaimSubmission {
	return ClaimSubmission{
		ClaimantID:           r.ClaimantID,
		PolicyNumber:         r.PolicyNumber,
		Category:             NormalizeCategory(r.Category),
		Amount:               r.Amount,
		Description:          r.Description,
		ClaimantAge:          r.ClaimantAge,
		PolicyDurationMonths: r.PolicyDurationMonths,
		SubmittedAt:          now,
		Documents:            r.Documents,
	}
}
