// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveClaim stores a new claim with tenant isolation.
func (r *SQLRepository) SaveClaim(ctx context.Context, tenantID string, claim *domain.Claim) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	submission, err := json.Marshal(claim.Submission)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	history, err := json.Marshal(claim.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	assessments, err := json.Marshal(claim.Assessments)
	if err != nil {
		return fmt.Errorf("marshal assessments: %w", err)
	}

	query := `
		INSERT INTO claims (
			id, tenant_id, claimant_id, agent_id, category, amount,
			state, approved_amount, rejection_reason,
			version, terminal_processed,
			submission, history, assessments,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		claim.ID, tenantID,
		claim.Submission.ClaimantID, claim.AgentID,
		claim.Submission.Category, claim.Submission.Amount,
		claim.State, claim.ApprovedAmount, claim.RejectionReason,
		claim.Version, boolInt(claim.TerminalProcessed),
		string(submission), string(history), string(assessments),
		claim.CreatedAt, claim.UpdatedAt,
	)
	return err
}

// UpdateClaim persists a mutated claim only if the stored version still
// equals expectedVersion. A lost race surfaces as domain.ErrConflict.
func (r *SQLRepository) UpdateClaim(ctx context.Context, tenantID string, claim *domain.Claim, expectedVersion int64) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	history, err := json.Marshal(claim.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	assessments, err := json.Marshal(claim.Assessments)
	if err != nil {
		return fmt.Errorf("marshal assessments: %w", err)
	}

	query := `
		UPDATE claims SET
			agent_id = ?,
			state = ?,
			approved_amount = ?,
			rejection_reason = ?,
			version = ?,
			terminal_processed = ?,
			history = ?,
			assessments = ?,
			updated_at = ?
		WHERE tenant_id = ? AND id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		claim.AgentID, claim.State,
		claim.ApprovedAmount, claim.RejectionReason,
		claim.Version, boolInt(claim.TerminalProcessed),
		string(history), string(assessments), claim.UpdatedAt,
		tenantID, claim.ID, expectedVersion,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing claim from a lost version race.
		if _, getErr := r.GetClaim(ctx, tenantID, claim.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: claim %s version changed", domain.ErrConflict, claim.ID)
	}
	return nil
}

const claimColumns = `
	id, tenant_id, agent_id, state, approved_amount, rejection_reason,
	version, terminal_processed, submission, history, assessments,
	created_at, updated_at
`

// GetClaim retrieves a claim by ID with tenant isolation.
func (r *SQLRepository) GetClaim(ctx context.Context, tenantID string, claimID string) (*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `SELECT ` + claimColumns + ` FROM claims WHERE tenant_id = ? AND id = ?`

	claim, err := scanClaim(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: claim %s", domain.ErrNotFound, claimID)
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// ListClaims retrieves claims matching the filter with tenant isolation.
func (r *SQLRepository) ListClaims(ctx context.Context, tenantID string, filter domain.ClaimFilter) ([]*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `SELECT ` + claimColumns + ` FROM claims WHERE tenant_id = ?`
	args := []any{tenantID}

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	if filter.ClaimantID != "" {
		query += ` AND claimant_id = ?`
		args = append(args, filter.ClaimantID)
	}
	if filter.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// GetClaimsByClaimant retrieves a claimant's claims submitted since the
// given time, newest first.
func (r *SQLRepository) GetClaimsByClaimant(ctx context.Context, tenantID string, claimantID string, since time.Time) ([]*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `SELECT ` + claimColumns + `
		FROM claims
		WHERE tenant_id = ? AND claimant_id = ? AND created_at >= ?
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, claimantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// SaveAssessment appends to the scoring audit trail.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.RiskAssessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	factors, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}
	greenFlags, err := json.Marshal(a.GreenFlags)
	if err != nil {
		return fmt.Errorf("marshal green flags: %w", err)
	}

	query := `
		INSERT INTO assessments (
			id, tenant_id, claim_id, score, rule_score, model_score,
			tier, model_available, factors, green_flags,
			requires_manual_review, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.ClaimID,
		a.Score, a.RuleScore, a.ModelScore,
		a.Tier, boolInt(a.ModelAvailable),
		string(factors), string(greenFlags),
		boolInt(a.RequiresManualReview), a.CreatedAt,
	)
	return err
}

// ListAssessments returns a claim's audit trail, oldest first.
func (r *SQLRepository) ListAssessments(ctx context.Context, tenantID string, claimID string) ([]*domain.RiskAssessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, claim_id, score, rule_score, model_score, tier,
			   model_available, factors, green_flags,
			   requires_manual_review, created_at
		FROM assessments
		WHERE tenant_id = ? AND claim_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assessments []*domain.RiskAssessment
	for rows.Next() {
		var a domain.RiskAssessment
		var modelAvailable, manualReview int
		var factors, greenFlags string

		if err := rows.Scan(
			&a.ID, &a.ClaimID, &a.Score, &a.RuleScore, &a.ModelScore, &a.Tier,
			&modelAvailable, &factors, &greenFlags, &manualReview, &a.CreatedAt,
		); err != nil {
			return nil, err
		}

		a.ModelAvailable = modelAvailable == 1
		a.RequiresManualReview = manualReview == 1
		if err := json.Unmarshal([]byte(factors), &a.Factors); err != nil {
			return nil, fmt.Errorf("parse factors for assessment %s: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(greenFlags), &a.GreenFlags); err != nil {
			slog.Warn("corrupt green flags on assessment row", "assessment_id", a.ID, "error", err)
		}
		assessments = append(assessments, &a)
	}
	return assessments, rows.Err()
}

// GetProfile retrieves a claimant's gamification profile.
func (r *SQLRepository) GetProfile(ctx context.Context, tenantID string, claimantID string) (*domain.GamificationProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT claimant_id, tenant_id, honesty_score, claim_streak,
			   total_claims, approved_claims, badges, discount_eligibility,
			   updated_at
		FROM profiles
		WHERE tenant_id = ? AND claimant_id = ?
	`

	var p domain.GamificationProfile
	var badges sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimantID).Scan(
		&p.ClaimantID, &p.TenantID, &p.HonestyScore, &p.ClaimStreak,
		&p.TotalClaims, &p.ApprovedClaims, &badges, &p.DiscountEligibility,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: profile %s", domain.ErrNotFound, claimantID)
	}
	if err != nil {
		return nil, err
	}

	if badges.Valid && badges.String != "" {
		if err := json.Unmarshal([]byte(badges.String), &p.Badges); err != nil {
			slog.Warn("corrupt badges on profile row", "claimant_id", p.ClaimantID, "error", err)
		}
	}
	return &p, nil
}

// SaveProfile upserts a claimant's gamification profile.
func (r *SQLRepository) SaveProfile(ctx context.Context, tenantID string, p *domain.GamificationProfile) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	badges, err := json.Marshal(p.Badges)
	if err != nil {
		return fmt.Errorf("marshal badges: %w", err)
	}

	query := `
		INSERT INTO profiles (
			claimant_id, tenant_id, honesty_score, claim_streak,
			total_claims, approved_claims, badges, discount_eligibility,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(claimant_id, tenant_id) DO UPDATE SET
			honesty_score = excluded.honesty_score,
			claim_streak = excluded.claim_streak,
			total_claims = excluded.total_claims,
			approved_claims = excluded.approved_claims,
			badges = excluded.badges,
			discount_eligibility = excluded.discount_eligibility,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.ClaimantID, tenantID, p.HonestyScore, p.ClaimStreak,
		p.TotalClaims, p.ApprovedClaims, string(badges), p.DiscountEligibility,
		p.UpdatedAt,
	)
	return err
}

// ListTopProfiles returns profiles ranked by honesty score, ties broken by
// approved-claim count then claimant ID for a stable ordering.
func (r *SQLRepository) ListTopProfiles(ctx context.Context, tenantID string, limit int) ([]*domain.GamificationProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT claimant_id, tenant_id, honesty_score, claim_streak,
			   total_claims, approved_claims, badges, discount_eligibility,
			   updated_at
		FROM profiles
		WHERE tenant_id = ?
		ORDER BY honesty_score DESC, approved_claims DESC, claimant_id ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.GamificationProfile
	for rows.Next() {
		var p domain.GamificationProfile
		var badges sql.NullString

		if err := rows.Scan(
			&p.ClaimantID, &p.TenantID, &p.HonestyScore, &p.ClaimStreak,
			&p.TotalClaims, &p.ApprovedClaims, &badges, &p.DiscountEligibility,
			&p.UpdatedAt,
		); err != nil {
			return nil, err
		}

		if badges.Valid && badges.String != "" {
			if err := json.Unmarshal([]byte(badges.String), &p.Badges); err != nil {
				slog.Warn("corrupt badges on profile row", "claimant_id", p.ClaimantID, "error", err)
			}
		}
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

// SaveFraudPattern records a confirmed fraud pattern.
func (r *SQLRepository) SaveFraudPattern(ctx context.Context, tenantID string, pattern *domain.FraudPattern) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	features, err := json.Marshal(pattern.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	query := `
		INSERT INTO fraud_patterns (
			id, tenant_id, claim_id, score, amount, category,
			rejected_by, reason, features, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		pattern.ID, tenantID, pattern.ClaimID,
		pattern.Score, pattern.Amount, pattern.Category,
		pattern.RejectedBy, pattern.Reason,
		string(features), pattern.CreatedAt,
	)
	return err
}

// ListFraudPatterns returns recorded patterns, newest first.
func (r *SQLRepository) ListFraudPatterns(ctx context.Context, tenantID string, limit int) ([]*domain.FraudPattern, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, claim_id, score, amount, category,
			   rejected_by, reason, features, created_at
		FROM fraud_patterns
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []*domain.FraudPattern
	for rows.Next() {
		var p domain.FraudPattern
		var features string

		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.ClaimID, &p.Score, &p.Amount, &p.Category,
			&p.RejectedBy, &p.Reason, &features, &p.CreatedAt,
		); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
			slog.Warn("corrupt features on fraud pattern row", "pattern_id", p.ID, "error", err)
		}
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}

// SaveEscalationRule upserts an escalation rule with tenant isolation.
func (r *SQLRepository) SaveEscalationRule(ctx context.Context, tenantID string, rule *domain.EscalationRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO escalation_rules (
			id, tenant_id, name, description, expression, factor,
			weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			factor = excluded.factor,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Expression, rule.Factor, rule.Weight, boolInt(rule.Enabled),
		now, now,
	)
	return err
}

// GetEscalationRule retrieves an escalation rule with tenant isolation.
func (r *SQLRepository) GetEscalationRule(ctx context.Context, tenantID string, ruleID string) (*domain.EscalationRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, factor,
			   weight, enabled, created_at, updated_at
		FROM escalation_rules
		WHERE tenant_id = ? AND id = ?
	`

	var rule domain.EscalationRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Expression, &rule.Factor, &rule.Weight, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule %s", domain.ErrNotFound, ruleID)
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListEscalationRules retrieves all enabled rules for a tenant.
func (r *SQLRepository) ListEscalationRules(ctx context.Context, tenantID string) ([]*domain.EscalationRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, factor,
			   weight, enabled, created_at, updated_at
		FROM escalation_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.EscalationRule
	for rows.Next() {
		var rule domain.EscalationRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Expression, &rule.Factor, &rule.Weight, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*domain.Claim, error) {
	var claim domain.Claim
	var agentID, rejectionReason sql.NullString
	var terminalProcessed int
	var submission, history string
	var assessments sql.NullString

	if err := row.Scan(
		&claim.ID, &claim.TenantID, &agentID, &claim.State,
		&claim.ApprovedAmount, &rejectionReason,
		&claim.Version, &terminalProcessed,
		&submission, &history, &assessments,
		&claim.CreatedAt, &claim.UpdatedAt,
	); err != nil {
		return nil, err
	}

	claim.AgentID = agentID.String
	claim.RejectionReason = rejectionReason.String
	claim.TerminalProcessed = terminalProcessed == 1

	if err := json.Unmarshal([]byte(submission), &claim.Submission); err != nil {
		return nil, fmt.Errorf("parse submission for claim %s: %w", claim.ID, err)
	}
	if err := json.Unmarshal([]byte(history), &claim.History); err != nil {
		return nil, fmt.Errorf("parse history for claim %s: %w", claim.ID, err)
	}
	if assessments.Valid && assessments.String != "" {
		if err := json.Unmarshal([]byte(assessments.String), &claim.Assessments); err != nil {
			return nil, fmt.Errorf("parse assessments for claim %s: %w", claim.ID, err)
		}
	}
	return &claim, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
