// Package claims orchestrates the claim lifecycle: submission, the scoring
// pass, workflow transitions and their side effects.
package claims

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/explain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/gamification"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/workflow"
)

// SystemActor identifies automated transitions in the workflow history.
const SystemActor = "system"

// Service is the core claim engine exposed to the transport layer.
type Service struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	notifier  domain.Notifier
	extractor domain.DocumentExtractor

	assessor    *scoring.Assessor
	blender     *scoring.Blender
	explainer   *explain.Builder
	escalations *rules.Engine
	ledger      *gamification.Ledger
	history     *history.Service
	locks       *workflow.KeyedLocks

	cfg  domain.ScoringConfig
	mode domain.WorkflowMode

	now func() time.Time
}

// Options carries the optional collaborators for the service.
type Options struct {
	Cache     domain.Cache
	Bus       domain.EventBus
	Notifier  domain.Notifier
	Extractor domain.DocumentExtractor
	Scorer    domain.ExternalScorer
	Rules     *rules.Engine
	Clock     func() time.Time
}

// NewService wires the claim engine. Only the repository is mandatory; every
// collaborator degrades gracefully when absent.
func NewService(repo domain.Repository, cfg domain.ScoringConfig, mode domain.WorkflowMode, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.AutoApproveAmount <= 0 {
		cfg.AutoApproveAmount = 50000
	}
	if cfg.ManualReviewScore <= 0 {
		cfg.ManualReviewScore = 60
	}
	if cfg.HistoryWindowDays <= 0 {
		cfg.HistoryWindowDays = 180
	}

	return &Service{
		repo:        repo,
		cache:       opts.Cache,
		bus:         opts.Bus,
		notifier:    opts.Notifier,
		extractor:   opts.Extractor,
		assessor:    scoring.NewAssessor(),
		blender:     scoring.NewBlender(opts.Scorer, cfg.ScorerTimeout),
		explainer:   explain.NewBuilder(),
		escalations: opts.Rules,
		ledger:      gamification.NewLedger(repo, opts.Cache),
		history:     history.NewService(repo, opts.Cache),
		locks:       workflow.NewKeyedLocks(),
		cfg:         cfg,
		mode:        mode,
		now:         clock,
	}
}

// SubmitClaim validates and persists a new claim in the submitted state and
// announces it on the bus for scoring.
func (s *Service) SubmitClaim(ctx context.Context, tenantID string, req *domain.SubmitRequest) (*domain.Claim, error) {
	if err := validateSubmission(req); err != nil {
		return nil, err
	}

	now := s.now()
	claim := &domain.Claim{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Submission: req.ToSubmission(now),
		State:      domain.StateSubmitted,
		History: []domain.WorkflowEntry{{
			State:     domain.StateSubmitted,
			Timestamp: now,
			Actor:     req.ClaimantID,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.SaveClaim(ctx, tenantID, claim); err != nil {
		return nil, fmt.Errorf("save claim: %w", err)
	}

	if _, err := s.ledger.RecordSubmission(ctx, tenantID, req.ClaimantID, now); err != nil {
		slog.Warn("submission not counted on profile", "claim_id", claim.ID, "error", err)
	}

	s.trackSubmissionVelocity(ctx, tenantID, req.ClaimantID)
	s.publish(ctx, tenantID, domain.TopicClaimSubmitted, claim.ID)

	slog.Info("claim submitted",
		"claim_id", claim.ID,
		"tenant_id", tenantID,
		"category", claim.Submission.Category,
		"amount", claim.Submission.Amount,
	)
	return claim, nil
}

// ScoreClaim runs the full scoring pass for a submitted claim and routes it
// to its next workflow state. The external scorer call happens outside the
// per-claim lock; the transition re-validates the claim version afterwards
// and reports ErrConflict if a concurrent transition won the race.
func (s *Service) ScoreClaim(ctx context.Context, tenantID, claimID string) (*domain.Claim, error) {
	// Phase 1: snapshot the claim under the lock.
	unlock := s.locks.Lock(claimID)
	claim, err := s.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		unlock()
		return nil, err
	}
	if claim.State.IsTerminal() {
		unlock()
		return nil, fmt.Errorf("%w: claim %s is %s", domain.ErrTerminalState, claimID, claim.State)
	}
	if claim.State != domain.StateSubmitted {
		unlock()
		return nil, fmt.Errorf("%w: claim %s already scored (state %s)", domain.ErrInvalidInput, claimID, claim.State)
	}
	snapshotVersion := claim.Version
	submission := claim.Submission
	unlock()

	// Phase 2: gather signals and call collaborators with no lock held.
	// Nothing is persisted here, so an abandoned pass has no side effects.
	doc := s.extractDocument(ctx, submission)
	hist := s.history.ClaimantHistory(ctx, tenantID, submission.ClaimantID, s.cfg.HistoryWindowDays, claimID)
	ext := features.Extract(submission, doc)

	ruleOut := s.assessor.Assess(ext, &hist, submission.SubmittedAt)
	s.applyEscalations(tenantID, submission, &hist, &ruleOut)

	prob, modelAvailable := s.blender.Probability(ctx, ext.Vector, submission.Category)
	blend := scoring.Combine(prob, modelAvailable, ruleOut)

	now := s.now()
	assessment := &domain.RiskAssessment{
		ID:                   uuid.New().String(),
		ClaimID:              claimID,
		Score:                blend.Score,
		RuleScore:            blend.RuleScore,
		ModelScore:           blend.ModelScore,
		Tier:                 blend.Tier,
		ModelAvailable:       blend.ModelAvailable,
		Factors:              append(ruleOut.Factors, scoring.ModelFactor(blend)),
		GreenFlags:           ruleOut.GreenFlags,
		RequiresManualReview: blend.Score > s.cfg.ManualReviewScore,
		CreatedAt:            now,
	}
	explanation := s.explainer.Build(assessment, submission.Amount, now)

	// Phase 3: reacquire the lock, re-validate, commit the transition.
	unlock = s.locks.Lock(claimID)
	defer unlock()

	claim, err = s.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Version != snapshotVersion || claim.State != domain.StateSubmitted {
		return nil, fmt.Errorf("%w: claim %s changed during scoring", domain.ErrConflict, claimID)
	}

	if err := workflow.Apply(claim, workflow.Transition{
		To:          domain.StateScored,
		Actor:       SystemActor,
		Notes:       "automated fraud scoring",
		Assessment:  assessment,
		Explanation: explanation,
	}, now); err != nil {
		return nil, err
	}

	next, reason := workflow.Route(explanation.Decision, blend.Score, submission.Amount, s.cfg.AutoApproveAmount, s.mode)
	routed := workflow.Transition{
		To:    next,
		Actor: SystemActor,
		Notes: reason,
	}
	if next == domain.StateApproved {
		routed.ApprovedAmount = submission.Amount
	}
	if err := workflow.Apply(claim, routed, now); err != nil {
		return nil, err
	}

	claim.Assessments = append(claim.Assessments, *assessment)

	if err := s.repo.UpdateClaim(ctx, tenantID, claim, snapshotVersion); err != nil {
		return nil, err
	}
	if err := s.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
		slog.Warn("assessment audit write failed", "claim_id", claimID, "error", err)
	}

	slog.Info("claim scored",
		"claim_id", claimID,
		"score", blend.Score,
		"tier", blend.Tier,
		"decision", explanation.Decision,
		"next_state", next,
		"model_available", blend.ModelAvailable,
	)

	s.publish(ctx, tenantID, domain.TopicClaimScored, claimID)
	if claim.State == domain.StateApproved {
		s.settleTerminal(ctx, tenantID, claim, domain.NotifyClaimApproved,
			fmt.Sprintf("Your claim has been approved for %.0f", claim.ApprovedAmount))
	}

	return claim, nil
}

// AgentForward moves a claim from agent review to company-admin review with
// the agent's verification notes. The forwarding agent is recorded on the
// claim.
func (s *Service) AgentForward(ctx context.Context, tenantID, claimID, actor, notes string) (*domain.Claim, error) {
	unlock := s.locks.Lock(claimID)
	defer unlock()

	claim, err := s.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		return nil, err
	}
	expected := claim.Version

	if err := workflow.Apply(claim, workflow.Transition{
		To:    domain.StateAdminReview,
		Actor: actor,
		Notes: notes,
	}, s.now()); err != nil {
		return nil, err
	}
	claim.AgentID = actor

	if err := s.repo.UpdateClaim(ctx, tenantID, claim, expected); err != nil {
		return nil, err
	}

	slog.Info("claim forwarded", "claim_id", claimID, "agent_id", actor)
	s.publish(ctx, tenantID, domain.TopicClaimForwarded, claimID)
	s.notify(ctx, tenantID, "company-admins", claimID, domain.NotifyClaimForwarded,
		fmt.Sprintf("Agent %s forwarded claim %s for your approval", actor, claimID))
	return claim, nil
}

// AgentReject rejects a claim outright at agent review. The claim's scoring
// features are recorded as a fraud pattern for later model retraining.
func (s *Service) AgentReject(ctx context.Context, tenantID, claimID, actor, reason string) (*domain.Claim, error) {
	claim, err := s.transition(ctx, tenantID, claimID, workflow.Transition{
		To:              domain.StateRejected,
		Actor:           actor,
		RejectionReason: reason,
	})
	if err != nil {
		return nil, err
	}

	s.recordFraudPattern(ctx, tenantID, claim, actor, reason)
	s.settleTerminal(ctx, tenantID, claim, domain.NotifyClaimRejected,
		"Your claim has been rejected. Reason: "+reason)
	return claim, nil
}

// AdminApprove is the terminal approval, performed by a company admin in
// multiparty mode or an admin reviewer in automated mode. The sanctioned
// amount must be strictly positive.
func (s *Service) AdminApprove(ctx context.Context, tenantID, claimID, actor string, amount float64, notes string) (*domain.Claim, error) {
	claim, err := s.transition(ctx, tenantID, claimID, workflow.Transition{
		To:             domain.StateApproved,
		Actor:          actor,
		Notes:          notes,
		ApprovedAmount: amount,
	})
	if err != nil {
		return nil, err
	}

	s.settleTerminal(ctx, tenantID, claim, domain.NotifyClaimApproved,
		fmt.Sprintf("Your claim has been approved for %.0f", amount))
	return claim, nil
}

// AdminReject is the terminal rejection.
func (s *Service) AdminReject(ctx context.Context, tenantID, claimID, actor, reason string) (*domain.Claim, error) {
	claim, err := s.transition(ctx, tenantID, claimID, workflow.Transition{
		To:              domain.StateRejected,
		Actor:           actor,
		RejectionReason: reason,
	})
	if err != nil {
		return nil, err
	}

	s.settleTerminal(ctx, tenantID, claim, domain.NotifyClaimRejected,
		"Your claim has been rejected. Reason: "+reason)
	return claim, nil
}

// RequestInfo parks an under-review claim until the claimant supplies the
// requested information.
func (s *Service) RequestInfo(ctx context.Context, tenantID, claimID, actor, requested string) (*domain.Claim, error) {
	claim, err := s.transition(ctx, tenantID, claimID, workflow.Transition{
		To:    domain.StateInfoRequested,
		Actor: actor,
		Notes: requested,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, tenantID, domain.TopicClaimInfoRequested, claimID)
	s.notify(ctx, tenantID, claim.Submission.ClaimantID, claimID, domain.NotifyInfoRequested,
		"Additional information requested: "+requested)
	return claim, nil
}

// ResumeReview returns an info-requested claim to review once the claimant
// has responded.
func (s *Service) ResumeReview(ctx context.Context, tenantID, claimID, actor, notes string) (*domain.Claim, error) {
	return s.transition(ctx, tenantID, claimID, workflow.Transition{
		To:    domain.StateUnderReview,
		Actor: actor,
		Notes: notes,
	})
}

// GetClaim loads a claim by ID.
func (s *Service) GetClaim(ctx context.Context, tenantID, claimID string) (*domain.Claim, error) {
	return s.repo.GetClaim(ctx, tenantID, claimID)
}

// ListClaims lists claims matching the filter.
func (s *Service) ListClaims(ctx context.Context, tenantID string, filter domain.ClaimFilter) ([]*domain.Claim, error) {
	return s.repo.ListClaims(ctx, tenantID, filter)
}

// GetExplanation returns the explanation from the claim's latest scoring
// pass.
func (s *Service) GetExplanation(ctx context.Context, tenantID, claimID string) (*domain.Explanation, error) {
	claim, err := s.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		return nil, err
	}

	explanation := claim.LatestExplanation()
	if explanation == nil {
		return nil, fmt.Errorf("%w: claim %s has not been scored", domain.ErrNotFound, claimID)
	}
	return explanation, nil
}

// GetGamificationProfile returns the claimant's reputation profile.
func (s *Service) GetGamificationProfile(ctx context.Context, tenantID, claimantID string) (*domain.GamificationProfile, error) {
	return s.ledger.Profile(ctx, tenantID, claimantID)
}

// Leaderboard returns the top claimant profiles ranked by honesty score.
func (s *Service) Leaderboard(ctx context.Context, tenantID string, limit int) ([]*domain.GamificationProfile, error) {
	return s.ledger.Leaderboard(ctx, tenantID, limit)
}

// ListAssessments returns the append-only scoring audit trail for a claim.
func (s *Service) ListAssessments(ctx context.Context, tenantID, claimID string) ([]*domain.RiskAssessment, error) {
	return s.repo.ListAssessments(ctx, tenantID, claimID)
}

// transition applies one human-actor transition under the per-claim lock
// with the optimistic version check.
func (s *Service) transition(ctx context.Context, tenantID, claimID string, t workflow.Transition) (*domain.Claim, error) {
	unlock := s.locks.Lock(claimID)
	defer unlock()

	claim, err := s.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		return nil, err
	}
	expected := claim.Version

	if err := workflow.Apply(claim, t, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateClaim(ctx, tenantID, claim, expected); err != nil {
		return nil, err
	}

	slog.Info("claim transitioned",
		"claim_id", claimID,
		"state", claim.State,
		"actor", t.Actor,
	)
	return claim, nil
}

// settleTerminal applies the once-per-claim gamification side effects and
// notifies the claimant. Both are best-effort relative to the transition,
// which has already committed.
func (s *Service) settleTerminal(ctx context.Context, tenantID string, claim *domain.Claim, kind, text string) {
	if _, err := s.ledger.RecordTerminal(ctx, tenantID, claim, s.now()); err != nil {
		slog.Error("gamification update failed",
			"claim_id", claim.ID,
			"claimant_id", claim.Submission.ClaimantID,
			"error", err,
		)
	}

	topic := domain.TopicClaimApproved
	if claim.State == domain.StateRejected {
		topic = domain.TopicClaimRejected
	}
	s.publish(ctx, tenantID, topic, claim.ID)
	s.notify(ctx, tenantID, claim.Submission.ClaimantID, claim.ID, kind, text)
}

func (s *Service) extractDocument(ctx context.Context, sub domain.ClaimSubmission) *domain.DocumentExtraction {
	if s.extractor == nil || len(sub.Documents) == 0 {
		return nil
	}

	doc, err := s.extractor.Extract(ctx, sub.Documents[0])
	if err != nil {
		slog.Warn("document extraction unavailable, scoring without it", "error", err)
		return nil
	}
	return doc
}

func (s *Service) applyEscalations(tenantID string, sub domain.ClaimSubmission, hist *domain.ClaimantHistory, out *scoring.RuleOutput) {
	if s.escalations == nil {
		return
	}

	matched := s.escalations.Evaluate(&rules.Input{
		TenantID:             tenantID,
		ClaimantID:           sub.ClaimantID,
		Category:             sub.Category,
		Amount:               sub.Amount,
		Age:                  sub.ClaimantAge,
		PolicyDurationMonths: sub.PolicyDurationMonths,
		RuleScore:            out.Score,
		ActiveClaims:         hist.ActiveClaims,
		RejectedClaims:       hist.RejectedClaims,
	})
	for _, f := range matched {
		out.Factors = append(out.Factors, f)
		out.Score = min(out.Score+f.Weight, 100)
	}
}

func (s *Service) recordFraudPattern(ctx context.Context, tenantID string, claim *domain.Claim, actor, reason string) {
	score := 0
	if a := claim.LatestAssessment(); a != nil {
		score = a.Score
	}

	pattern := &domain.FraudPattern{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		ClaimID:    claim.ID,
		Score:      score,
		Amount:     claim.Submission.Amount,
		Category:   claim.Submission.Category,
		RejectedBy: actor,
		Reason:     reason,
		Features: domain.FeatureVector{
			Age:                  float64(claim.Submission.ClaimantAge),
			Amount:               claim.Submission.Amount,
			PolicyDurationMonths: float64(claim.Submission.PolicyDurationMonths),
		},
		CreatedAt: s.now(),
	}
	if err := s.repo.SaveFraudPattern(ctx, tenantID, pattern); err != nil {
		slog.Warn("fraud pattern not recorded", "claim_id", claim.ID, "error", err)
	}
}

func (s *Service) trackSubmissionVelocity(ctx context.Context, tenantID, claimantID string) {
	if s.cache == nil {
		return
	}
	count, err := s.cache.IncrementCounter(ctx, tenantID, "submissions:"+claimantID, 24*time.Hour)
	if err != nil {
		slog.Debug("submission counter unavailable", "error", err)
		return
	}
	if count >= 3 {
		slog.Warn("high submission velocity",
			"claimant_id", claimantID,
			"submissions_24h", count,
		)
	}
}

func (s *Service) publish(ctx context.Context, tenantID, topic, claimID string) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, tenantID, topic, []byte(claimID)); err != nil {
		slog.Warn("event publish failed", "topic", topic, "claim_id", claimID, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, tenantID, actorID, claimID, kind, text string) {
	if s.notifier == nil {
		return
	}
	// Fire-and-forget: a failed notification never fails the transition.
	if err := s.notifier.Notify(ctx, tenantID, actorID, claimID, kind, text); err != nil {
		slog.Warn("notification failed", "claim_id", claimID, "kind", kind, "error", err)
	}
}

func validateSubmission(req *domain.SubmitRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request body is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.ClaimantID) == "" {
		return fmt.Errorf("%w: claimantId is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.PolicyNumber) == "" {
		return fmt.Errorf("%w: policyNumber is required", domain.ErrInvalidInput)
	}
	if req.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", domain.ErrInvalidInput)
	}
	if req.ClaimantAge < 0 || req.ClaimantAge > 150 {
		return fmt.Errorf("%w: claimantAge out of range", domain.ErrInvalidInput)
	}
	if req.PolicyDurationMonths < 0 {
		return fmt.Errorf("%w: policyDurationMonths must not be negative", domain.ErrInvalidInput)
	}
	return nil
}
