// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Claim operations
	SaveClaim(ctx context.Context, tenantID string, claim *Claim) error
	// UpdateClaim persists a mutated claim aggregate only if the stored
	// version still equals expectedVersion; ErrConflict otherwise.
	UpdateClaim(ctx context.Context, tenantID string, claim *Claim, expectedVersion int64) error
	GetClaim(ctx context.Context, tenantID string, claimID string) (*Claim, error)
	ListClaims(ctx context.Context, tenantID string, filter ClaimFilter) ([]*Claim, error)
	GetClaimsByClaimant(ctx context.Context, tenantID string, claimantID string, since time.Time) ([]*Claim, error)

	// Assessment audit trail (append-only)
	SaveAssessment(ctx context.Context, tenantID string, assessment *RiskAssessment) error
	ListAssessments(ctx context.Context, tenantID string, claimID string) ([]*RiskAssessment, error)

	// Gamification profiles
	GetProfile(ctx context.Context, tenantID string, claimantID string) (*GamificationProfile, error)
	SaveProfile(ctx context.Context, tenantID string, profile *GamificationProfile) error
	// ListTopProfiles returns profiles ranked by honesty score for the
	// tenant leaderboard.
	ListTopProfiles(ctx context.Context, tenantID string, limit int) ([]*GamificationProfile, error)

	// Fraud patterns recorded on agent rejection
	SaveFraudPattern(ctx context.Context, tenantID string, pattern *FraudPattern) error
	ListFraudPatterns(ctx context.Context, tenantID string, limit int) ([]*FraudPattern, error)

	// Escalation rule configuration
	SaveEscalationRule(ctx context.Context, tenantID string, rule *EscalationRule) error
	GetEscalationRule(ctx context.Context, tenantID string, ruleID string) (*EscalationRule, error)
	ListEscalationRules(ctx context.Context, tenantID string) ([]*EscalationRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
