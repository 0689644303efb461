// Package gamification applies the reputation side effects of terminal
// workflow transitions: streaks, honesty score and badges.
package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/workflow"
)

// Honesty score bounds and deltas.
const (
	honestyFloor      = 0
	honestyCap        = 100
	honestyApproveInc = 5
	honestyRejectDec  = 10
)

// Approval-count milestones and their badges. Awards use threshold-crossing
// checks against the already-awarded set, so a count that jumps past a
// milestone still earns it.
var approvalMilestones = []struct {
	count int
	badge string
}{
	{1, domain.BadgeFirstApproved},
	{5, domain.BadgeFiveClean},
	{10, domain.BadgeTrustedMember},
	{20, domain.BadgeGoldMember},
}

// streakMilestone is the consecutive-approval count that earns the streak
// badge and discount eligibility.
const (
	streakMilestone = 5
	streakDiscount  = 10 // percent
)

// cacheTTL bounds how stale a cached profile may be.
const cacheTTL = 60 * time.Second

// Ledger mutates gamification profiles in response to claims reaching a
// terminal state. Callers invoke it exactly once per claim, gated by the
// claim's terminal-processed flag which is written atomically with the
// transition itself. Updates for different claims of the same claimant are
// serialized by a per-claimant lock; the per-claim workflow lock cannot
// cover that.
type Ledger struct {
	repo  domain.Repository
	cache domain.Cache
	locks *workflow.KeyedLocks
}

// NewLedger creates a gamification ledger. The cache is optional.
func NewLedger(repo domain.Repository, cache domain.Cache) *Ledger {
	return &Ledger{
		repo:  repo,
		cache: cache,
		locks: workflow.NewKeyedLocks(),
	}
}

// RecordSubmission counts a newly filed claim on the claimant's profile,
// creating the profile on first contact.
func (l *Ledger) RecordSubmission(ctx context.Context, tenantID, claimantID string, now time.Time) (*domain.GamificationProfile, error) {
	unlock := l.locks.Lock(tenantID + "/" + claimantID)
	defer unlock()

	profile, err := l.loadOrCreate(ctx, tenantID, claimantID, now)
	if err != nil {
		return nil, err
	}

	profile.TotalClaims++
	profile.UpdatedAt = now

	if err := l.save(ctx, tenantID, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// RecordTerminal applies the terminal-state side effects for the claim.
// On approval the streak and honesty score rise and milestones are checked;
// on rejection the streak resets and the honesty score drops, floored at
// zero. Badge sets stay duplicate-free even if a milestone is recomputed.
func (l *Ledger) RecordTerminal(ctx context.Context, tenantID string, claim *domain.Claim, now time.Time) (*domain.GamificationProfile, error) {
	if !claim.State.IsTerminal() {
		return nil, fmt.Errorf("%w: claim %s is not terminal", domain.ErrInvalidInput, claim.ID)
	}

	claimantID := claim.Submission.ClaimantID
	unlock := l.locks.Lock(tenantID + "/" + claimantID)
	defer unlock()

	profile, err := l.loadOrCreate(ctx, tenantID, claimantID, now)
	if err != nil {
		return nil, err
	}

	switch claim.State {
	case domain.StateApproved:
		l.applyApproval(profile)
	case domain.StateRejected:
		l.applyRejection(profile)
	}
	profile.UpdatedAt = now

	if err := l.save(ctx, tenantID, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (l *Ledger) applyApproval(p *domain.GamificationProfile) {
	p.ApprovedClaims++
	p.ClaimStreak++
	p.HonestyScore = min(p.HonestyScore+honestyApproveInc, honestyCap)

	for _, m := range approvalMilestones {
		if p.ApprovedClaims >= m.count {
			p.AwardBadge(m.badge)
		}
	}

	if p.ClaimStreak >= streakMilestone {
		p.AwardBadge(domain.BadgeFiveStreak)
		p.DiscountEligibility = streakDiscount
	}
}

func (l *Ledger) applyRejection(p *domain.GamificationProfile) {
	p.ClaimStreak = 0
	p.HonestyScore = max(p.HonestyScore-honestyRejectDec, honestyFloor)
}

// Profile returns the claimant's profile, cache first. ErrNotFound for
// claimants that have never filed.
func (l *Ledger) Profile(ctx context.Context, tenantID, claimantID string) (*domain.GamificationProfile, error) {
	if cached := l.fromCache(ctx, tenantID, claimantID); cached != nil {
		return cached, nil
	}

	profile, err := l.repo.GetProfile(ctx, tenantID, claimantID)
	if err != nil {
		return nil, err
	}

	l.toCache(ctx, tenantID, profile)
	return profile, nil
}

// Leaderboard returns the tenant's claimants ranked by honesty score,
// straight from the repository so rankings never go stale.
func (l *Ledger) Leaderboard(ctx context.Context, tenantID string, limit int) ([]*domain.GamificationProfile, error) {
	return l.repo.ListTopProfiles(ctx, tenantID, limit)
}

// save persists the profile and writes it through to the cache so reads see
// the update immediately.
func (l *Ledger) save(ctx context.Context, tenantID string, profile *domain.GamificationProfile) error {
	if err := l.repo.SaveProfile(ctx, tenantID, profile); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	l.toCache(ctx, tenantID, profile)
	return nil
}

func (l *Ledger) fromCache(ctx context.Context, tenantID, claimantID string) *domain.GamificationProfile {
	if l.cache == nil {
		return nil
	}

	raw, err := l.cache.Get(ctx, tenantID, domain.CacheKeyProfile+claimantID)
	if err != nil || raw == nil {
		return nil
	}

	var profile domain.GamificationProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil
	}
	return &profile
}

func (l *Ledger) toCache(ctx context.Context, tenantID string, profile *domain.GamificationProfile) {
	if l.cache == nil {
		return
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		return
	}
	if err := l.cache.Set(ctx, tenantID, domain.CacheKeyProfile+profile.ClaimantID, raw, cacheTTL); err != nil {
		slog.Debug("profile cache write failed", "error", err)
	}
}

func (l *Ledger) loadOrCreate(ctx context.Context, tenantID, claimantID string, now time.Time) (*domain.GamificationProfile, error) {
	profile, err := l.repo.GetProfile(ctx, tenantID, claimantID)
	if err == nil {
		return profile, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return domain.NewGamificationProfile(tenantID, claimantID, now), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
