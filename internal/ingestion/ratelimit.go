package ingestion

import (
	"sync"

	"golang.org/x/time/rate"

	"leadflow_backend/platform/logger"
)

// Rate limit scopes reported on rejection.
const (
	ScopeSender = "sender"
	ScopeGlobal = "global"
)

// RateLimiter enforces a per-sender limit and a process-wide global limit.
// A breach of either rejects the event; an event rejected by the sender
// limit never consumes global quota.
type RateLimiter struct {
	senders     sync.Map
	senderRate  rate.Limit
	senderBurst int
	global      *rate.Limiter
	log         *logger.Logger
}

// NewRateLimiter creates a limiter from per-minute quotas.
func NewRateLimiter(perSenderPerMinute, globalPerMinute int, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		senderRate:  rate.Limit(float64(perSenderPerMinute) / 60.0),
		senderBurst: perSenderPerMinute,
		global:      rate.NewLimiter(rate.Limit(float64(globalPerMinute)/60.0), globalPerMinute),
		log:         log,
	}
}

func (r *RateLimiter) senderLimiter(sender string) *rate.Limiter {
	limiter, exists := r.senders.Load(sender)
	if !exists {
		newLimiter := rate.NewLimiter(r.senderRate, r.senderBurst)
		limiter, _ = r.senders.LoadOrStore(sender, newLimiter)
	}
	return limiter.(*rate.Limiter)
}

// Allow reports whether one event from the sender may pass. On rejection
// the breached scope is returned.
func (r *RateLimiter) Allow(sender string) (bool, string) {
	if !r.senderLimiter(sender).Allow() {
		if r.log != nil {
			r.log.RateLimitExceeded(sender, ScopeSender)
		}
		return false, ScopeSender
	}
	if !r.global.Allow() {
		if r.log != nil {
			r.log.RateLimitExceeded(sender, ScopeGlobal)
		}
		return false, ScopeGlobal
	}
	return true, ""
}
