package domain

import (
	"context"
)

// ExternalScorer is the contract for the external statistical fraud model.
// Score returns a fraud probability in [0,1] for a feature vector and claim
// category. Implementations must return a probability for categories they do
// not recognize rather than failing. Any error, malformed output or timeout
// triggers the deterministic fallback estimator in the caller.
type ExternalScorer interface {
	Score(ctx context.Context, features FeatureVector, category ClaimCategory) (float64, error)
}

// DocumentExtractor is the contract for the external document-analysis
// collaborator. An error return is a valid, handled state: scoring proceeds
// with zero document-risk contribution.
type DocumentExtractor interface {
	Extract(ctx context.Context, documentRef string) (*DocumentExtraction, error)
}

// Notification kinds published on workflow transitions.
const (
	NotifyClaimForwarded = "claim_forwarded"
	NotifyClaimApproved  = "claim_approved"
	NotifyClaimRejected  = "claim_rejected"
	NotifyInfoRequested  = "info_requested"
)

// Notifier is the fire-and-forget notification hook invoked on specific
// transitions. Failure to notify must not fail the transition; callers log
// the returned error and move on.
type Notifier interface {
	Notify(ctx context.Context, tenantID, actorID, claimID, kind, text string) error
}
