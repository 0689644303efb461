package domain

import (
	"slices"
	"time"
)

// Badge identifiers awarded at approval milestones.
const (
	BadgeFirstApproved = "first_approved_claim"
	BadgeFiveClean     = "five_clean_claims"
	BadgeTrustedMember = "trusted_customer"
	BadgeGoldMember    = "gold_member"
	BadgeFiveStreak    = "five_claim_streak"
)

// GamificationProfile is the per-claimant reputation record. It is mutated
// only by the gamification ledger, exactly once per claim reaching a
// terminal state.
type GamificationProfile struct {
	ClaimantID string `json:"claimantId"`
	TenantID   string `json:"tenantId"`

	// HonestyScore starts at 100, floors at 0 and caps at 100.
	HonestyScore int `json:"honestyScore"`

	// ClaimStreak counts consecutive approvals; any rejection resets it.
	ClaimStreak int `json:"claimStreak"`

	TotalClaims    int `json:"totalClaims"`
	ApprovedClaims int `json:"approvedClaims"`

	// Badges is append-only and never contains duplicates.
	Badges []string `json:"badges,omitempty"`

	// DiscountEligibility is a percentage.
	DiscountEligibility int `json:"discountEligibility"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// NewGamificationProfile returns the starting profile for a claimant.
func NewGamificationProfile(tenantID, claimantID string, now time.Time) *GamificationProfile {
	return &GamificationProfile{
		ClaimantID:   claimantID,
		TenantID:     tenantID,
		HonestyScore: 100,
		UpdatedAt:    now,
	}
}

// HasBadge reports whether the badge was already awarded.
func (p *GamificationProfile) HasBadge(badge string) bool {
	return slices.Contains(p.Badges, badge)
}

// AwardBadge appends the badge if not already present.
func (p *GamificationProfile) AwardBadge(badge string) {
	if !p.HasBadge(badge) {
		p.Badges = append(p.Badges, badge)
	}
}
