package repository

// Schema definitions for Kestrel.
// Compatible with both SQLite and PostgreSQL.

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    claimant_id TEXT NOT NULL,
    agent_id TEXT,
    category TEXT NOT NULL,
    amount REAL NOT NULL,
    state TEXT NOT NULL,
    approved_amount REAL NOT NULL DEFAULT 0,
    rejection_reason TEXT,
    version INTEGER NOT NULL DEFAULT 0,
    terminal_processed INTEGER NOT NULL DEFAULT 0,
    submission TEXT NOT NULL,
    history TEXT NOT NULL,
    assessments TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_tenant ON claims(tenant_id);
CREATE INDEX IF NOT EXISTS idx_claims_state ON claims(tenant_id, state);
CREATE INDEX IF NOT EXISTS idx_claims_claimant ON claims(tenant_id, claimant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_claims_agent ON claims(tenant_id, agent_id);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    rule_score INTEGER NOT NULL,
    model_score INTEGER NOT NULL,
    tier TEXT NOT NULL,
    model_available INTEGER NOT NULL,
    factors TEXT NOT NULL,
    green_flags TEXT,
    requires_manual_review INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_claim ON assessments(tenant_id, claim_id, created_at);
`

const schemaProfiles = `
CREATE TABLE IF NOT EXISTS profiles (
    claimant_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    honesty_score INTEGER NOT NULL DEFAULT 100,
    claim_streak INTEGER NOT NULL DEFAULT 0,
    total_claims INTEGER NOT NULL DEFAULT 0,
    approved_claims INTEGER NOT NULL DEFAULT 0,
    badges TEXT,
    discount_eligibility INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (claimant_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_profiles_tenant ON profiles(tenant_id);
`

const schemaFraudPatterns = `
CREATE TABLE IF NOT EXISTS fraud_patterns (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    amount REAL NOT NULL,
    category TEXT NOT NULL,
    rejected_by TEXT NOT NULL,
    reason TEXT NOT NULL,
    features TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_patterns_tenant ON fraud_patterns(tenant_id, created_at);
`

const schemaEscalationRules = `
CREATE TABLE IF NOT EXISTS escalation_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    factor TEXT NOT NULL,
    weight INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_escalation_rules_tenant ON escalation_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_escalation_rules_enabled ON escalation_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClaims,
		schemaAssessments,
		schemaProfiles,
		schemaFraudPatterns,
		schemaEscalationRules,
	}
}
