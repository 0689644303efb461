package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// WorkflowMode determines how scored claims are routed
	// - "automated": low-risk claims below the auto-approval amount are
	//   approved without human involvement
	// - "multiparty": every scored claim is gated behind agent review and
	//   company-admin approval
	WorkflowMode WorkflowMode `json:"workflowMode"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Scoring thresholds
	Scoring ScoringConfig `json:"scoring"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// WorkflowMode determines the claim routing strategy after scoring.
type WorkflowMode string

const (
	// ModeAutomated routes scored claims directly: auto-approve, or park
	// for manual review. Use for: single-tenant deployments.
	ModeAutomated WorkflowMode = "automated"

	// ModeMultiparty gates every automated transition behind a human actor
	// step: agent forward/reject, then company-admin approve/reject.
	// Use for: multi-tenant insurer deployments.
	ModeMultiparty WorkflowMode = "multiparty"
)

// ScoringConfig holds the fraud-scoring thresholds.
type ScoringConfig struct {
	// AutoApproveAmount is the claimed-amount ceiling for automated
	// approval of low-risk claims.
	AutoApproveAmount float64 `json:"autoApproveAmount"`

	// ManualReviewScore is the canonical score above which an assessment
	// is flagged for manual review.
	ManualReviewScore int `json:"manualReviewScore"`

	// HistoryWindowDays is the trailing window for claimant history.
	HistoryWindowDays int `json:"historyWindowDays"`

	// ScorerTimeout bounds the external model call.
	ScorerTimeout time.Duration `json:"scorerTimeout"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
// Automated workflow mode by default - single-tenant claim triage.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:         TierCommunity,
		WorkflowMode: ModeAutomated,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			AutoApproveAmount: 50000,
			ManualReviewScore: 60,
			HistoryWindowDays: 180,
			ScorerTimeout:     5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
// Pro defaults to the multiparty workflow with PostgreSQL + NATS + Redis.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.WorkflowMode = ModeMultiparty
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
