package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/claims"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// GlobalTenantID is used for escalation rules that apply to all tenants.
const GlobalTenantID = domain.GlobalTenantID

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *claims.Service
	repo    domain.Repository
	cache   domain.Cache
	engine  *rules.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc *claims.Service, repo domain.Repository, cache domain.Cache, engine *rules.Engine, version string) *Handler {
	return &Handler{
		svc:     svc,
		repo:    repo,
		cache:   cache,
		engine:  engine,
		version: version,
	}
}

// ActionRequest is the request body for review transitions performed by a
// human actor.
type ActionRequest struct {
	Actor  string  `json:"actor"`
	Notes  string  `json:"notes,omitempty"`
	Reason string  `json:"reason,omitempty"`
	Amount float64 `json:"amount,omitempty"`
}

// SubmitClaim handles POST /claims.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	claim, err := h.svc.SubmitClaim(ctx, tenantID, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, claim)
}

// ScoreClaim handles POST /claims/{id}/score: runs the scoring pass
// synchronously and returns the routed claim.
func (h *Handler) ScoreClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	claim, err := h.svc.ScoreClaim(ctx, tenantID, claimID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// GetClaim handles GET /claims/{id}.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	claim, err := h.svc.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// ListClaims handles GET /claims with optional state, claimantId, agentId
// and category query filters.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	filter := domain.ClaimFilter{
		State:      domain.ClaimState(r.URL.Query().Get("state")),
		ClaimantID: r.URL.Query().Get("claimantId"),
		AgentID:    r.URL.Query().Get("agentId"),
		Category:   domain.ClaimCategory(r.URL.Query().Get("category")),
	}

	list, err := h.svc.ListClaims(ctx, tenantID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"claims": list,
		"count":  len(list),
	})
}

// GetExplanation handles GET /claims/{id}/explanation.
func (h *Handler) GetExplanation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	explanation, err := h.svc.GetExplanation(ctx, tenantID, claimID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, explanation)
}

// ListAssessments handles GET /claims/{id}/assessments.
func (h *Handler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	trail, err := h.svc.ListAssessments(ctx, tenantID, claimID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessments": trail,
		"count":       len(trail),
	})
}

// ForwardClaim handles POST /claims/{id}/forward: agent forwards the claim
// to company-admin review.
func (h *Handler) ForwardClaim(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req *ActionRequest) (*domain.Claim, error) {
		return h.svc.AgentForward(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.Notes)
	})
}

// RejectClaim handles POST /claims/{id}/reject: agent rejects the claim
// outright at agent review.
func (h *Handler) RejectClaim(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req *ActionRequest) (*domain.Claim, error) {
		return h.svc.AgentReject(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.Reason)
	})
}

// ApproveClaim handles POST /claims/{id}/approve: terminal approval with
// the sanctioned amount.
func (h *Handler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req *ActionRequest) (*domain.Claim, error) {
		return h.svc.AdminApprove(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.Amount, req.Notes)
	})
}

// DenyClaim handles POST /claims/{id}/deny: terminal rejection.
func (h *Handler) DenyClaim(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req *ActionRequest) (*domain.Claim, error) {
		return h.svc.AdminReject(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.Reason)
	})
}

// RequestInfo handles PUT /claims/{id}/request-info.
func (h *Handler) RequestInfo(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req *ActionRequest) (*domain.Claim, error) {
		return h.svc.RequestInfo(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.Notes)
	})
}

// ResumeReview handles PUT /claims/{id}/review: returns an info-requested
// claim to review.
func (h *Handler) ResumeReview(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req *ActionRequest) (*domain.Claim, error) {
		return h.svc.ResumeReview(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.Notes)
	})
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request, fn func(*ActionRequest) (*domain.Claim, error)) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Actor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "actor is required",
		})
		return
	}

	claim, err := fn(&req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// GetProfile handles GET /profiles/{claimantID}.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimantID := chi.URLParam(r, "claimantID")

	profile, err := h.svc.GetGamificationProfile(ctx, tenantID, claimantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// Leaderboard handles GET /leaderboard: claimants ranked by honesty score.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	profiles, err := h.svc.Leaderboard(ctx, tenantID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leaderboard": profiles,
		"count":       len(profiles),
	})
}

// ListFraudPatterns handles GET /fraud-patterns.
func (h *Handler) ListFraudPatterns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	patterns, err := h.repo.ListFraudPatterns(ctx, tenantID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all loaded escalation rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves an escalation rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating an escalation rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Factor      string `json:"factor"`
	Weight      int    `json:"weight"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule creates a new escalation rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" || req.Factor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, expression, and factor are required",
		})
		return
	}
	if req.Weight <= 0 || req.Weight > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "weight must be between 1 and 100",
		})
		return
	}

	rule := &domain.EscalationRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Factor:      req.Factor,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Persist to repository (global tenant ID)
	if err := h.repo.SaveEscalationRule(ctx, GlobalTenantID, rule); err != nil {
		slog.Error("failed to save escalation rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("escalation rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all escalation rules from the database into the
// engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListEscalationRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list escalation rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("escalation rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrTerminalState), errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
