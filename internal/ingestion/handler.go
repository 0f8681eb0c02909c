// Package ingestion is the authenticated, idempotent, rate-limited gate
// between the messaging gateway and the lead lifecycle.
package ingestion

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"
	"leadflow_backend/platform/validator"
)

// Processor consumes events that passed all gate stages.
type Processor interface {
	HandleInbound(ctx context.Context, phone, text string, receivedAt time.Time) error
}

type Config interface {
	config.WebhookConfig
	config.RateLimitConfig
}

type Handler struct {
	secret      string
	idempotency *IdempotencySet
	limiter     *RateLimiter
	processor   Processor
	validate    *validator.Validator
	log         *logger.Logger
}

func NewHandler(cfg Config, rdb *redis.Client, processor Processor, log *logger.Logger) *Handler {
	return &Handler{
		secret:      cfg.GetWebhookSecret(),
		idempotency: NewIdempotencySet(rdb, cfg.GetIdempotencyTTL()),
		limiter:     NewRateLimiter(cfg.GetRateLimitPerSender(), cfg.GetRateLimitGlobal(), log),
		processor:   processor,
		validate:    validator.New(),
		log:         log,
	}
}

// HandleVerify answers the gateway's endpoint verification request.
func (h *Handler) HandleVerify(c *gin.Context) {
	if !h.authenticate(c) {
		return
	}
	httpkit.OK(c, gin.H{"status": "ready"})
}

// HandleInbound runs the three gate stages in order, short-circuiting on
// the first failure: authentication, idempotency, rate limiting. Only
// events passing all three reach the processor.
func (h *Handler) HandleInbound(c *gin.Context) {
	if !h.authenticate(c) {
		return
	}

	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	if payload.Event != eventMessagesUpsert {
		httpkit.OK(c, gin.H{"status": "ignored", "event": payload.Event})
		return
	}

	processed := 0
	duplicates := 0
	skipped := 0
	rateLimited := 0

	for _, msg := range payload.Data.Messages {
		// Echoes of our own outbound messages carry no new information.
		if msg.FromMe || msg.ID == "" || msg.Conversation == "" {
			skipped++
			continue
		}

		sender := phone.FromJID(msg.RemoteJID)
		if sender == "" {
			skipped++
			continue
		}

		fresh, err := h.idempotency.Register(c.Request.Context(), msg.ID)
		if err != nil {
			httpkit.Error(c, http.StatusServiceUnavailable, "idempotency store unavailable", nil)
			return
		}
		if !fresh {
			// Safe replay: acknowledge without reprocessing.
			duplicates++
			continue
		}

		if ok, _ := h.limiter.Allow(sender); !ok {
			// The event was registered but not handled; release the
			// identifier so the gateway's retry can be processed.
			h.release(c.Request.Context(), msg.ID)
			rateLimited++
			continue
		}

		receivedAt := time.Now()
		if msg.MessageTimestamp > 0 {
			receivedAt = time.Unix(msg.MessageTimestamp, 0)
		}

		if err := h.processor.HandleInbound(c.Request.Context(), sender, msg.Conversation, receivedAt); err != nil {
			// Hard failure: do not acknowledge, so the gateway retries.
			h.release(c.Request.Context(), msg.ID)
			h.log.Error("inbound processing failed", "message_id", msg.ID, "error", err.Error())
			httpkit.Error(c, http.StatusInternalServerError, "processing failed", nil)
			return
		}
		processed++
	}

	// Any rejected message fails the whole batch so the gateway retries
	// it. Messages already handled stay registered and come back as
	// duplicates on the retry; the rejected ones were released above.
	if rateLimited > 0 {
		c.Header("Retry-After", "60")
		httpkit.Error(c, http.StatusTooManyRequests, "rate limit exceeded", gin.H{
			"processed":    processed,
			"duplicates":   duplicates,
			"skipped":      skipped,
			"rate_limited": rateLimited,
		})
		return
	}

	httpkit.OK(c, gin.H{
		"status":       "ok",
		"processed":    processed,
		"duplicates":   duplicates,
		"skipped":      skipped,
		"rate_limited": rateLimited,
	})
}

// authenticate verifies the bearer credential in constant time. Failure
// rejects the request before any state mutation or quota accounting.
func (h *Handler) authenticate(c *gin.Context) bool {
	token, ok := httpkit.ExtractBearerToken(c.GetHeader("Authorization"))
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return false
	}
	return true
}

func (h *Handler) release(ctx context.Context, messageID string) {
	if err := h.idempotency.Release(ctx, messageID); err != nil {
		h.log.Error("idempotency release failed", "message_id", messageID, "error", err.Error())
	}
}

// Module is the ingestion bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

func NewModule(cfg Config, rdb *redis.Client, processor Processor, log *logger.Logger) *Module {
	return &Module{handler: NewHandler(cfg, rdb, processor, log)}
}

func (m *Module) Name() string {
	return "ingestion"
}

// RegisterRoutes mounts the public webhook endpoints (bearer secret auth, no JWT).
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.POST("/webhook/inbound", m.handler.HandleInbound)
	ctx.V1.GET("/webhook/inbound", m.handler.HandleVerify)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
