// Package workflow centralizes the claim lifecycle state machine: one
// transition table, one transition function, for both the single-tenant
// automated path and the multiparty agent/admin path.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// minReasonLen is the minimum length for agent notes, rejection reasons and
// info requests.
const minReasonLen = 10

// legal maps each state to the transitions permitted out of it. Terminal
// states have no entries: nothing leaves approved or rejected.
var legal = map[domain.ClaimState][]domain.ClaimState{
	domain.StateSubmitted: {
		domain.StateScored,
		domain.StateAgentReview,
	},
	domain.StateScored: {
		domain.StateApproved,
		domain.StateUnderReview,
		domain.StateAgentReview,
	},
	domain.StateUnderReview: {
		domain.StateApproved,
		domain.StateRejected,
		domain.StateInfoRequested,
	},
	domain.StateInfoRequested: {
		domain.StateUnderReview,
	},
	domain.StateAgentReview: {
		domain.StateAdminReview,
		domain.StateRejected,
	},
	domain.StateAdminReview: {
		domain.StateApproved,
		domain.StateRejected,
	},
}

// CanTransition reports whether the move is in the transition table.
func CanTransition(from, to domain.ClaimState) bool {
	for _, next := range legal[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition describes one requested state change.
type Transition struct {
	To    domain.ClaimState
	Actor string
	Notes string

	// Snapshots attached when the transition results from a scoring pass.
	Assessment  *domain.RiskAssessment
	Explanation *domain.Explanation

	// Disposition fields, required for the terminal transitions.
	ApprovedAmount  float64
	RejectionReason string
}

// Apply validates the transition and mutates the claim: exactly one history
// entry is appended, the state and disposition fields are set, and the
// version is bumped for the optimistic write. Invalid input is rejected
// before any mutation; a terminal claim is never mutated.
func Apply(claim *domain.Claim, t Transition, now time.Time) error {
	if claim.State.IsTerminal() {
		return fmt.Errorf("%w: claim %s is %s", domain.ErrTerminalState, claim.ID, claim.State)
	}
	if !CanTransition(claim.State, t.To) {
		return fmt.Errorf("%w: no transition %s -> %s", domain.ErrInvalidInput, claim.State, t.To)
	}

	switch t.To {
	case domain.StateApproved:
		if t.ApprovedAmount <= 0 {
			return fmt.Errorf("%w: approval requires a positive amount", domain.ErrInvalidInput)
		}
	case domain.StateRejected:
		if len(strings.TrimSpace(t.RejectionReason)) < minReasonLen {
			return fmt.Errorf("%w: rejection reason must be at least %d characters", domain.ErrInvalidInput, minReasonLen)
		}
	case domain.StateAdminReview:
		// Agent forwarding requires substantive notes.
		if len(strings.TrimSpace(t.Notes)) < minReasonLen {
			return fmt.Errorf("%w: agent notes must be at least %d characters", domain.ErrInvalidInput, minReasonLen)
		}
	case domain.StateInfoRequested:
		if len(strings.TrimSpace(t.Notes)) < minReasonLen {
			return fmt.Errorf("%w: requested information must be at least %d characters", domain.ErrInvalidInput, minReasonLen)
		}
	}

	notes := t.Notes
	if t.To == domain.StateRejected && notes == "" {
		notes = t.RejectionReason
	}

	claim.History = append(claim.History, domain.WorkflowEntry{
		State:       t.To,
		Timestamp:   now,
		Actor:       t.Actor,
		Notes:       notes,
		Assessment:  t.Assessment,
		Explanation: t.Explanation,
	})
	claim.State = t.To
	claim.UpdatedAt = now
	claim.Version++

	switch t.To {
	case domain.StateApproved:
		claim.ApprovedAmount = t.ApprovedAmount
		claim.TerminalProcessed = true
	case domain.StateRejected:
		claim.RejectionReason = t.RejectionReason
		claim.TerminalProcessed = true
	}

	return nil
}

// Route decides the next lifecycle state after a scoring pass.
//
// In automated mode low-risk claims below the auto-approval amount are
// approved outright; everything else parks for manual review, and a high
// claimed amount overrides a low fraud score. In multiparty mode every
// scored claim is gated behind agent review regardless of score.
func Route(decision domain.Decision, score int, amount, autoApproveAmount float64, mode domain.WorkflowMode) (domain.ClaimState, string) {
	if mode == domain.ModeMultiparty {
		return domain.StateAgentReview, "pending agent review"
	}

	switch {
	case decision == domain.DecisionFlag || score >= 70:
		return domain.StateUnderReview, "high fraud risk detected"
	case decision == domain.DecisionReview || score >= 40:
		return domain.StateUnderReview, "medium fraud risk - manual review required"
	case amount < autoApproveAmount:
		return domain.StateApproved, "low risk + amount below auto-approval threshold"
	default:
		return domain.StateUnderReview, "amount exceeds auto-approval threshold"
	}
}
