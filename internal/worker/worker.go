// Package worker provides async claim scoring driven by the event bus.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/claims"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Worker consumes claim-submitted events and runs the scoring pass for
// each, decoupling submission latency from scoring.
type Worker struct {
	bus domain.EventBus
	svc *claims.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process.
	TenantIDs []string
}

// NewWorker creates a new scoring worker.
func NewWorker(bus domain.EventBus, svc *claims.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		svc:    svc,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing submitted claims for the given tenants.
func (w *Worker) Start(cfg Config) error {
	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("scoring workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startTenantWorker subscribes to the tenant's claim-submitted topic.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicClaimSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return w.scoreClaim(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicClaimSubmitted,
	)

	return nil
}

// scoreClaim runs the scoring pass for a submitted claim. The payload is
// the claim ID.
func (w *Worker) scoreClaim(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()
	claimID := string(msg.Payload)
	if claimID == "" {
		slog.Error("claim message with empty payload", "message_id", msg.ID)
		return nil
	}

	claim, err := w.svc.ScoreClaim(ctx, tenantID, claimID)
	if err != nil {
		// A claim already moved on by another path is not a failure.
		if errors.Is(err, domain.ErrTerminalState) || errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrConflict) {
			slog.Debug("claim no longer scorable",
				"claim_id", claimID,
				"error", err,
			)
			return nil
		}
		slog.Error("claim scoring failed",
			"claim_id", claimID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	slog.Info("claim processed",
		"claim_id", claimID,
		"tenant_id", tenantID,
		"state", claim.State,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
