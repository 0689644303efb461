// Package history computes the claimant-history projection consumed by the
// rule risk assessor.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// cacheTTL bounds how stale a cached history projection may be.
const cacheTTL = 60 * time.Second

// Service builds the trailing-window claimant history. The projection is
// computed fresh per scoring call and cached briefly; it must never fail
// the scoring pass, so repository errors degrade to an empty history.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a claimant history service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// ClaimantHistory returns the claimant's claim counts within the trailing
// window, excluding the claim currently being scored. Approved and pending
// claims count as active; rejected claims count separately.
func (s *Service) ClaimantHistory(ctx context.Context, tenantID, claimantID string, windowDays int, excludeClaimID string) domain.ClaimantHistory {
	if windowDays <= 0 {
		windowDays = 180
	}

	hist := domain.ClaimantHistory{WindowDays: windowDays}
	if claimantID == "" {
		return hist
	}

	if cached, ok := s.fromCache(ctx, tenantID, claimantID, excludeClaimID); ok {
		return cached
	}

	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	claims, err := s.repo.GetClaimsByClaimant(ctx, tenantID, claimantID, since)
	if err != nil {
		slog.Warn("claimant history lookup failed, scoring without history",
			"claimant_id", claimantID,
			"error", err,
		)
		return hist
	}

	for _, c := range claims {
		if c.ID == excludeClaimID {
			continue
		}
		switch {
		case c.State == domain.StateRejected:
			hist.RejectedClaims++
		default:
			// Approved and every in-flight state count as active.
			hist.ActiveClaims++
		}
	}

	s.toCache(ctx, tenantID, claimantID, excludeClaimID, hist)
	return hist
}

func (s *Service) fromCache(ctx context.Context, tenantID, claimantID, excludeClaimID string) (domain.ClaimantHistory, bool) {
	if s.cache == nil {
		return domain.ClaimantHistory{}, false
	}

	raw, err := s.cache.Get(ctx, tenantID, cacheKey(claimantID, excludeClaimID))
	if err != nil || raw == nil {
		return domain.ClaimantHistory{}, false
	}

	var hist domain.ClaimantHistory
	if err := json.Unmarshal(raw, &hist); err != nil {
		return domain.ClaimantHistory{}, false
	}
	return hist, true
}

func (s *Service) toCache(ctx context.Context, tenantID, claimantID, excludeClaimID string, hist domain.ClaimantHistory) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(hist)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, tenantID, cacheKey(claimantID, excludeClaimID), raw, cacheTTL); err != nil {
		slog.Debug("history cache write failed", "error", err)
	}
}

func cacheKey(claimantID, excludeClaimID string) string {
	return domain.CacheKeyHistory + claimantID + ":" + excludeClaimID
}
