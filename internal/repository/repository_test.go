package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/opensource-finance/kestrel/internal/domain"
)

const testTenant = "tenant-1"

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testClaim(id, claimantID string, createdAt time.Time) *domain.Claim {
	return &domain.Claim{
		ID:       id,
		TenantID: testTenant,
		Submission: domain.ClaimSubmission{
			ClaimantID:           claimantID,
			PolicyNumber:         "POL-1001",
			Category:             domain.CategoryMotor,
			Amount:               125000,
			Description:          "rear-end collision on highway",
			ClaimantAge:          41,
			PolicyDurationMonths: 28,
			SubmittedAt:          createdAt,
		},
		State: domain.StateSubmitted,
		History: []domain.WorkflowEntry{{
			State:     domain.StateSubmitted,
			Timestamp: createdAt,
			Actor:     claimantID,
		}},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestClaimRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	claim := testClaim("claim-1", "claimant-1", now)
	if err := repo.SaveClaim(ctx, testTenant, claim); err != nil {
		t.Fatalf("SaveClaim failed: %v", err)
	}

	got, err := repo.GetClaim(ctx, testTenant, "claim-1")
	if err != nil {
		t.Fatalf("GetClaim failed: %v", err)
	}
	if diff := cmp.Diff(claim.Submission, got.Submission); diff != "" {
		t.Errorf("submission mismatch (-want +got):\n%s", diff)
	}
	if got.State != domain.StateSubmitted {
		t.Errorf("expected state submitted, got %s", got.State)
	}
	if len(got.History) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(got.History))
	}
}

func TestGetClaimNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetClaim(context.Background(), testTenant, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimTenantIsolation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	claim := testClaim("claim-iso", "claimant-1", now)
	if err := repo.SaveClaim(ctx, testTenant, claim); err != nil {
		t.Fatalf("SaveClaim failed: %v", err)
	}

	if _, err := repo.GetClaim(ctx, "other-tenant", "claim-iso"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound across tenants, got %v", err)
	}
}

func TestUpdateClaimOptimisticVersioning(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	claim := testClaim("claim-ver", "claimant-1", now)
	if err := repo.SaveClaim(ctx, testTenant, claim); err != nil {
		t.Fatalf("SaveClaim failed: %v", err)
	}

	claim.State = domain.StateUnderReview
	claim.Version = 1
	claim.UpdatedAt = now.Add(time.Minute)
	if err := repo.UpdateClaim(ctx, testTenant, claim, 0); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	// Replaying with the stale expected version must lose the race.
	claim.Version = 2
	if err := repo.UpdateClaim(ctx, testTenant, claim, 0); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict on stale version, got %v", err)
	}

	got, err := repo.GetClaim(ctx, testTenant, "claim-ver")
	if err != nil {
		t.Fatalf("GetClaim failed: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1, got %d", got.Version)
	}
	if got.State != domain.StateUnderReview {
		t.Errorf("expected state under_review, got %s", got.State)
	}
}

func TestUpdateClaimMissing(t *testing.T) {
	repo := newTestRepo(t)

	claim := testClaim("never-saved", "claimant-1", time.Now().UTC())
	err := repo.UpdateClaim(context.Background(), testTenant, claim, 0)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListClaimsFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := testClaim("claim-a", "claimant-1", base)
	second := testClaim("claim-b", "claimant-2", base.Add(time.Hour))
	second.State = domain.StateUnderReview
	second.Submission.Category = domain.CategoryHealth

	for _, c := range []*domain.Claim{first, second} {
		if err := repo.SaveClaim(ctx, testTenant, c); err != nil {
			t.Fatalf("SaveClaim failed: %v", err)
		}
	}

	t.Run("by state", func(t *testing.T) {
		claims, err := repo.ListClaims(ctx, testTenant, domain.ClaimFilter{State: domain.StateUnderReview})
		if err != nil {
			t.Fatalf("ListClaims failed: %v", err)
		}
		if len(claims) != 1 || claims[0].ID != "claim-b" {
			t.Errorf("expected [claim-b], got %d claims", len(claims))
		}
	})

	t.Run("by claimant", func(t *testing.T) {
		claims, err := repo.ListClaims(ctx, testTenant, domain.ClaimFilter{ClaimantID: "claimant-1"})
		if err != nil {
			t.Fatalf("ListClaims failed: %v", err)
		}
		if len(claims) != 1 || claims[0].ID != "claim-a" {
			t.Errorf("expected [claim-a], got %d claims", len(claims))
		}
	})

	t.Run("newest first", func(t *testing.T) {
		claims, err := repo.ListClaims(ctx, testTenant, domain.ClaimFilter{})
		if err != nil {
			t.Fatalf("ListClaims failed: %v", err)
		}
		if len(claims) != 2 || claims[0].ID != "claim-b" {
			t.Errorf("expected claim-b first, got %v claims", len(claims))
		}
	})
}

func TestGetClaimsByClaimantWindow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	recent := testClaim("claim-recent", "claimant-1", now.AddDate(0, 0, -30))
	stale := testClaim("claim-stale", "claimant-1", now.AddDate(0, 0, -200))

	for _, c := range []*domain.Claim{recent, stale} {
		if err := repo.SaveClaim(ctx, testTenant, c); err != nil {
			t.Fatalf("SaveClaim failed: %v", err)
		}
	}

	claims, err := repo.GetClaimsByClaimant(ctx, testTenant, "claimant-1", now.AddDate(0, 0, -180))
	if err != nil {
		t.Fatalf("GetClaimsByClaimant failed: %v", err)
	}
	if len(claims) != 1 || claims[0].ID != "claim-recent" {
		t.Errorf("expected only claim-recent inside the window, got %d claims", len(claims))
	}
}

func TestAssessmentAuditTrail(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"assess-1", "assess-2"} {
		a := &domain.RiskAssessment{
			ID:             id,
			ClaimID:        "claim-1",
			Score:          40 + i,
			RuleScore:      35,
			ModelScore:     40 + i,
			Tier:           domain.TierMedium,
			ModelAvailable: true,
			Factors: []domain.RiskFactor{{
				Category:    domain.FactorAmount,
				Description: "Moderately high claim amount",
				Weight:      10,
			}},
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.SaveAssessment(ctx, testTenant, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}
	}

	trail, err := repo.ListAssessments(ctx, testTenant, "claim-1")
	if err != nil {
		t.Fatalf("ListAssessments failed: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("expected 2 assessments, got %d", len(trail))
	}
	if trail[0].ID != "assess-1" || trail[1].ID != "assess-2" {
		t.Errorf("expected oldest-first ordering, got %s then %s", trail[0].ID, trail[1].ID)
	}
	if len(trail[0].Factors) != 1 {
		t.Errorf("expected 1 factor, got %d", len(trail[0].Factors))
	}
}

func TestProfileUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.GetProfile(ctx, testTenant, "claimant-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before save, got %v", err)
	}

	profile := domain.NewGamificationProfile(testTenant, "claimant-1", now)
	profile.TotalClaims = 1
	if err := repo.SaveProfile(ctx, testTenant, profile); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	profile.ApprovedClaims = 1
	profile.ClaimStreak = 1
	profile.HonestyScore = 100
	profile.Badges = []string{domain.BadgeFirstApproved}
	if err := repo.SaveProfile(ctx, testTenant, profile); err != nil {
		t.Fatalf("SaveProfile upsert failed: %v", err)
	}

	got, err := repo.GetProfile(ctx, testTenant, "claimant-1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.ApprovedClaims != 1 || got.ClaimStreak != 1 {
		t.Errorf("expected approved=1 streak=1, got approved=%d streak=%d", got.ApprovedClaims, got.ClaimStreak)
	}
	if !got.HasBadge(domain.BadgeFirstApproved) {
		t.Error("expected first approval badge to survive round trip")
	}
}

func TestListTopProfiles(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []struct {
		claimantID string
		honesty    int
		approved   int
	}{
		{"claimant-a", 70, 2},
		{"claimant-b", 100, 5},
		{"claimant-c", 100, 1},
		{"claimant-d", 40, 0},
	}
	for _, s := range seed {
		p := domain.NewGamificationProfile(testTenant, s.claimantID, now)
		p.HonestyScore = s.honesty
		p.ApprovedClaims = s.approved
		if err := repo.SaveProfile(ctx, testTenant, p); err != nil {
			t.Fatalf("SaveProfile failed: %v", err)
		}
	}
	other := domain.NewGamificationProfile("tenant-2", "claimant-x", now)
	if err := repo.SaveProfile(ctx, "tenant-2", other); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	top, err := repo.ListTopProfiles(ctx, testTenant, 3)
	if err != nil {
		t.Fatalf("ListTopProfiles failed: %v", err)
	}

	// Honesty descending, ties broken by approvals; other tenants invisible.
	want := []string{"claimant-b", "claimant-c", "claimant-a"}
	got := make([]string, len(top))
	for i, p := range top {
		got[i] = p.ClaimantID
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("leaderboard order mismatch (-want +got):\n%s", diff)
	}
}

func TestFraudPatterns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pattern := &domain.FraudPattern{
		ID:         "pattern-1",
		TenantID:   testTenant,
		ClaimID:    "claim-1",
		Score:      82,
		Amount:     600000,
		Category:   domain.CategoryProperty,
		RejectedBy: "agent-7",
		Reason:     "fabricated damage report",
		Features:   domain.FeatureVector{Age: 23, Amount: 600000, PolicyDurationMonths: 2},
		CreatedAt:  now,
	}
	if err := repo.SaveFraudPattern(ctx, testTenant, pattern); err != nil {
		t.Fatalf("SaveFraudPattern failed: %v", err)
	}

	patterns, err := repo.ListFraudPatterns(ctx, testTenant, 10)
	if err != nil {
		t.Fatalf("ListFraudPatterns failed: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	if patterns[0].Features.Amount != 600000 {
		t.Errorf("expected features to round trip, got %+v", patterns[0].Features)
	}
}

func TestEscalationRules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rule := &domain.EscalationRule{
		ID:         "young-high-amount",
		TenantID:   testTenant,
		Name:       "Young claimant with high amount",
		Expression: `age < 25 && amount > 300000.0`,
		Factor:     "Young claimant with unusually high amount",
		Weight:     15,
		Enabled:    true,
	}
	if err := repo.SaveEscalationRule(ctx, testTenant, rule); err != nil {
		t.Fatalf("SaveEscalationRule failed: %v", err)
	}

	got, err := repo.GetEscalationRule(ctx, testTenant, "young-high-amount")
	if err != nil {
		t.Fatalf("GetEscalationRule failed: %v", err)
	}
	if got.Expression != rule.Expression || got.Weight != 15 {
		t.Errorf("rule did not round trip: %+v", got)
	}

	t.Run("disabled rules excluded from list", func(t *testing.T) {
		rule.Enabled = false
		if err := repo.SaveEscalationRule(ctx, testTenant, rule); err != nil {
			t.Fatalf("SaveEscalationRule failed: %v", err)
		}

		rules, err := repo.ListEscalationRules(ctx, testTenant)
		if err != nil {
			t.Fatalf("ListEscalationRules failed: %v", err)
		}
		if len(rules) != 0 {
			t.Errorf("expected no enabled rules, got %d", len(rules))
		}
	})
}

func TestEmptyTenantRejected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveClaim(ctx, "", testClaim("c", "cl", time.Now())); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("SaveClaim: expected ErrInvalidInput, got %v", err)
	}
	if _, err := repo.GetClaim(ctx, "", "c"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("GetClaim: expected ErrInvalidInput, got %v", err)
	}
}

func TestCorruptBadgesColumnDegrades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	profile := domain.NewGamificationProfile(testTenant, "claimant-1", time.Now().UTC())
	profile.TotalClaims = 3
	profile.Badges = []string{domain.BadgeFirstApproved}
	if err := repo.SaveProfile(ctx, testTenant, profile); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	sqlRepo := repo.(*SQLRepository)
	if _, err := sqlRepo.db.ExecContext(ctx,
		sqlRepo.rebind(`UPDATE profiles SET badges = ? WHERE claimant_id = ? AND tenant_id = ?`),
		"{not json", "claimant-1", testTenant,
	); err != nil {
		t.Fatalf("failed to corrupt badges column: %v", err)
	}

	// A corrupt badges column loses the badges but not the profile.
	got, err := repo.GetProfile(ctx, testTenant, "claimant-1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.TotalClaims != 3 {
		t.Errorf("expected counts to survive, got %d total claims", got.TotalClaims)
	}
	if len(got.Badges) != 0 {
		t.Errorf("expected no badges from corrupt column, got %v", got.Badges)
	}
}
