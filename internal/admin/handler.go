// Package admin exposes the read-only operational API: spend usage,
// lead listings with conversation history, and the region policy.
// All routes require an authenticated admin JWT.
package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadflow_backend/internal/eligibility"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"
)

const (
	msgInvalidRequest = "invalid request"

	defaultListLimit = 50
	maxListLimit     = 200
	turnHistoryLimit = 100
)

// BudgetReader reports the current billing period's spend.
type BudgetReader interface {
	Usage() (period string, spentMicros, limitMicros int64, percentage float64)
}

type Handler struct {
	repo    *repository.Repository
	budget  BudgetReader
	regions config.RegionConfig
	log     *logger.Logger
}

func NewHandler(repo *repository.Repository, budget BudgetReader, regions config.RegionConfig, log *logger.Logger) *Handler {
	return &Handler{repo: repo, budget: budget, regions: regions, log: log}
}

// GetUsage reports period spend against the monthly ceiling plus token
// totals aggregated from persisted conversation turns.
func (h *Handler) GetUsage(c *gin.Context) {
	period, spentMicros, limitMicros, percentage := h.budget.Usage()

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	ctx := c.Request.Context()

	tokensIn, tokensOut, err := h.repo.PeriodTokenTotals(ctx, monthStart, now)
	if err != nil {
		h.log.DatabaseError("period token totals", err)
		httpkit.HandleError(c, apperr.Internal("usage unavailable"))
		return
	}

	avgLatency, err := h.repo.PeriodAvgLatencyMs(ctx, monthStart, now)
	if err != nil {
		h.log.DatabaseError("period avg latency", err)
		httpkit.HandleError(c, apperr.Internal("usage unavailable"))
		return
	}

	byStatus, err := h.repo.CountByStatus(ctx)
	if err != nil {
		h.log.DatabaseError("count by status", err)
		httpkit.HandleError(c, apperr.Internal("usage unavailable"))
		return
	}

	schedulings, err := h.repo.CountSchedulings(ctx)
	if err != nil {
		h.log.DatabaseError("count schedulings", err)
		httpkit.HandleError(c, apperr.Internal("usage unavailable"))
		return
	}

	httpkit.OK(c, gin.H{
		"period":          period,
		"spent_micros":    spentMicros,
		"limit_micros":    limitMicros,
		"spent_usd":       float64(spentMicros) / 1_000_000,
		"limit_usd":       float64(limitMicros) / 1_000_000,
		"percentage":      percentage,
		"tokens_in":       tokensIn,
		"tokens_out":      tokensOut,
		"avg_latency_ms":  avgLatency,
		"leads_by_status": byStatus,
		"schedulings":     schedulings,
	})
}

// ListLeads returns a page of leads, optionally filtered by status.
func (h *Handler) ListLeads(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !domain.IsKnownStatus(status) {
		httpkit.Error(c, http.StatusBadRequest, "unknown status", nil)
		return
	}

	limit := parseIntQuery(c, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := parseIntQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	leads, err := h.repo.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		h.log.DatabaseError("list leads", err)
		httpkit.HandleError(c, apperr.Internal("listing unavailable"))
		return
	}

	total, err := h.repo.Count(c.Request.Context(), status)
	if err != nil {
		h.log.DatabaseError("count leads", err)
		httpkit.HandleError(c, apperr.Internal("listing unavailable"))
		return
	}

	httpkit.OK(c, gin.H{
		"items":  toLeadResponses(leads),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetLead returns one lead with its conversation history and schedulings.
func (h *Handler) GetLead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	lead, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == repository.ErrNotFound {
			httpkit.HandleError(c, apperr.NotFound("lead not found"))
			return
		}
		h.log.DatabaseError("get lead", err)
		httpkit.HandleError(c, apperr.Internal("lead unavailable"))
		return
	}

	turns, err := h.repo.ListTurns(c.Request.Context(), id, turnHistoryLimit)
	if err != nil {
		h.log.DatabaseError("list turns", err)
		httpkit.HandleError(c, apperr.Internal("lead unavailable"))
		return
	}

	schedulings, err := h.repo.ListSchedulings(c.Request.Context(), id)
	if err != nil {
		h.log.DatabaseError("list schedulings", err)
		httpkit.HandleError(c, apperr.Internal("lead unavailable"))
		return
	}

	httpkit.OK(c, gin.H{
		"lead":          toLeadResponse(lead),
		"conversations": toTurnResponses(turns),
		"schedulings":   toSchedulingResponses(schedulings),
	})
}

// GetStats returns lead counts per lifecycle status.
func (h *Handler) GetStats(c *gin.Context) {
	counts, err := h.repo.CountByStatus(c.Request.Context())
	if err != nil {
		h.log.DatabaseError("count by status", err)
		httpkit.HandleError(c, apperr.Internal("stats unavailable"))
		return
	}

	httpkit.OK(c, gin.H{"by_status": counts})
}

// GetRegions returns the active eligibility policy with display names.
func (h *Handler) GetRegions(c *gin.Context) {
	httpkit.OK(c, gin.H{
		"eligible": regionEntries(h.regions.GetEligibleRegions()),
		"interest": regionEntries(h.regions.GetInterestRegions()),
	})
}

func regionEntries(codes []string) []gin.H {
	entries := make([]gin.H, 0, len(codes))
	for _, code := range codes {
		entries = append(entries, gin.H{
			"code": code,
			"name": eligibility.RegionName(code),
		})
	}
	return entries
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// Module is the admin bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

func NewModule(repo *repository.Repository, budget BudgetReader, regions config.RegionConfig, log *logger.Logger) *Module {
	return &Module{handler: NewHandler(repo, budget, regions, log)}
}

func (m *Module) Name() string {
	return "admin"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.GET("/usage", m.handler.GetUsage)
	ctx.Admin.GET("/leads", m.handler.ListLeads)
	ctx.Admin.GET("/leads/:leadId", m.handler.GetLead)
	ctx.Admin.GET("/stats", m.handler.GetStats)
	ctx.Admin.GET("/regions", m.handler.GetRegions)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
