package gamification

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

const testTenant = "tenant-1"

var now = time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel_ledger_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewLedger(repo, cache.NewLRUCache(100))
}

func terminalClaim(claimantID string, state domain.ClaimState) *domain.Claim {
	return &domain.Claim{
		ID:       "claim-" + claimantID,
		TenantID: testTenant,
		State:    state,
		Submission: domain.ClaimSubmission{
			ClaimantID: claimantID,
		},
	}
}

func TestRecordSubmission(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	profile, err := ledger.RecordSubmission(ctx, testTenant, "claimant-1", now)
	if err != nil {
		t.Fatalf("RecordSubmission failed: %v", err)
	}

	if profile.TotalClaims != 1 {
		t.Errorf("expected 1 total claim, got %d", profile.TotalClaims)
	}
	if profile.HonestyScore != 100 {
		t.Errorf("expected fresh profile at honesty 100, got %d", profile.HonestyScore)
	}

	profile, err = ledger.RecordSubmission(ctx, testTenant, "claimant-1", now)
	if err != nil {
		t.Fatalf("second RecordSubmission failed: %v", err)
	}
	if profile.TotalClaims != 2 {
		t.Errorf("expected 2 total claims, got %d", profile.TotalClaims)
	}
}

func TestRecordTerminalApproval(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	profile, err := ledger.RecordTerminal(ctx, testTenant, terminalClaim("claimant-1", domain.StateApproved), now)
	if err != nil {
		t.Fatalf("RecordTerminal failed: %v", err)
	}

	if profile.ApprovedClaims != 1 || profile.ClaimStreak != 1 {
		t.Errorf("expected 1 approval and streak 1, got %d/%d", profile.ApprovedClaims, profile.ClaimStreak)
	}
	if profile.HonestyScore != 100 {
		t.Errorf("honesty score must cap at 100, got %d", profile.HonestyScore)
	}
	if !hasBadge(profile, domain.BadgeFirstApproved) {
		t.Errorf("expected first approval badge, got %v", profile.Badges)
	}
}

func TestRecordTerminalRejection(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	profile, err := ledger.RecordTerminal(ctx, testTenant, terminalClaim("claimant-1", domain.StateRejected), now)
	if err != nil {
		t.Fatalf("RecordTerminal failed: %v", err)
	}
	if profile.HonestyScore != 90 {
		t.Errorf("expected honesty 90 after rejection, got %d", profile.HonestyScore)
	}
	if profile.ClaimStreak != 0 {
		t.Errorf("expected streak reset, got %d", profile.ClaimStreak)
	}

	t.Run("honesty floors at zero", func(t *testing.T) {
		for i := 0; i < 15; i++ {
			if _, err := ledger.RecordTerminal(ctx, testTenant, terminalClaim("claimant-1", domain.StateRejected), now); err != nil {
				t.Fatalf("RecordTerminal failed: %v", err)
			}
		}
		profile, err := ledger.Profile(ctx, testTenant, "claimant-1")
		if err != nil {
			t.Fatalf("Profile failed: %v", err)
		}
		if profile.HonestyScore != 0 {
			t.Errorf("expected floor 0, got %d", profile.HonestyScore)
		}
	})
}

func TestRecordTerminalRequiresTerminalState(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.RecordTerminal(context.Background(), testTenant, terminalClaim("claimant-1", domain.StateUnderReview), now)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for a non-terminal claim, got %v", err)
	}
}

func TestApprovalMilestones(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	approve := func(n int) *domain.GamificationProfile {
		t.Helper()
		var profile *domain.GamificationProfile
		var err error
		for i := 0; i < n; i++ {
			profile, err = ledger.RecordTerminal(ctx, testTenant, terminalClaim("claimant-1", domain.StateApproved), now)
			if err != nil {
				t.Fatalf("RecordTerminal failed: %v", err)
			}
		}
		return profile
	}

	profile := approve(5)
	for _, badge := range []string{domain.BadgeFirstApproved, domain.BadgeFiveClean, domain.BadgeFiveStreak} {
		if !hasBadge(profile, badge) {
			t.Errorf("expected badge %s after 5 approvals, got %v", badge, profile.Badges)
		}
	}
	if profile.DiscountEligibility != 10 {
		t.Errorf("expected 10%% discount after a 5-streak, got %d", profile.DiscountEligibility)
	}

	profile = approve(15)
	for _, badge := range []string{domain.BadgeTrustedMember, domain.BadgeGoldMember} {
		if !hasBadge(profile, badge) {
			t.Errorf("expected badge %s after 20 approvals, got %v", badge, profile.Badges)
		}
	}

	// Badges never duplicate however often milestones are recomputed.
	seen := map[string]int{}
	for _, b := range profile.Badges {
		seen[b]++
		if seen[b] > 1 {
			t.Errorf("duplicate badge %s: %v", b, profile.Badges)
		}
	}
}

func TestStreakResetsOnRejection(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := ledger.RecordTerminal(ctx, testTenant, terminalClaim("claimant-1", domain.StateApproved), now); err != nil {
			t.Fatalf("RecordTerminal failed: %v", err)
		}
	}
	profile, err := ledger.RecordTerminal(ctx, testTenant, terminalClaim("claimant-1", domain.StateRejected), now)
	if err != nil {
		t.Fatalf("RecordTerminal failed: %v", err)
	}

	if profile.ClaimStreak != 0 {
		t.Errorf("expected streak 0 after rejection, got %d", profile.ClaimStreak)
	}
	if profile.ApprovedClaims != 3 {
		t.Errorf("approved count must survive the rejection, got %d", profile.ApprovedClaims)
	}
	if hasBadge(profile, domain.BadgeFiveStreak) {
		t.Errorf("streak badge must not be awarded, got %v", profile.Badges)
	}
}

func TestConcurrentTerminalsSameClaimant(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	// Distinct claims for one claimant settle concurrently; the per-claim
	// workflow lock does not serialize these, the ledger must.
	const approvals = 20
	var wg sync.WaitGroup
	for i := 0; i < approvals; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claim := terminalClaim("claimant-1", domain.StateApproved)
			claim.ID = fmt.Sprintf("claim-%d", i)
			if _, err := ledger.RecordTerminal(ctx, testTenant, claim, now); err != nil {
				t.Errorf("RecordTerminal failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	profile, err := ledger.Profile(ctx, testTenant, "claimant-1")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if profile.ApprovedClaims != approvals {
		t.Errorf("expected %d approvals counted, got %d", approvals, profile.ApprovedClaims)
	}
	if profile.ClaimStreak != approvals {
		t.Errorf("expected streak %d, got %d", approvals, profile.ClaimStreak)
	}
}

func TestProfileCachedWriteThrough(t *testing.T) {
	c := cache.NewLRUCache(100)
	ctx := context.Background()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel_ledger_cache_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ledger := NewLedger(repo, c)
	if _, err := ledger.RecordSubmission(ctx, testTenant, "claimant-1", now); err != nil {
		t.Fatalf("RecordSubmission failed: %v", err)
	}

	raw, err := c.Get(ctx, testTenant, domain.CacheKeyProfile+"claimant-1")
	if err != nil || raw == nil {
		t.Fatalf("expected profile written through to cache, got %v / %v", raw, err)
	}

	// A ledger over an empty repository but the same cache still serves the
	// profile, so reads hit the cache first.
	empty, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel_ledger_empty_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { empty.Close() })

	profile, err := NewLedger(empty, c).Profile(ctx, testTenant, "claimant-1")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if profile.TotalClaims != 1 {
		t.Errorf("expected cached profile with 1 claim, got %d", profile.TotalClaims)
	}
}

func TestProfileNotFound(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.Profile(context.Background(), testTenant, "never-filed")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func hasBadge(p *domain.GamificationProfile, badge string) bool {
	for _, b := range p.Badges {
		if b == badge {
			return true
		}
	}
	return false
}
