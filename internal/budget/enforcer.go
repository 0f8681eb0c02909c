// Package budget enforces the monthly spend ceiling for the generation provider.
package budget

import (
	"context"
	"sync"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/platform/logger"
)

// alertThresholds are the ceiling percentages that trigger a notification,
// each at most once per billing period.
var alertThresholds = []int{50, 80, 100}

// SpendStore reads the billing period's persisted spend. Implemented by
// the leads repository over the conversations table, which every process
// writes its charges to.
type SpendStore interface {
	PeriodSpendMicros(ctx context.Context, from, to time.Time) (int64, error)
}

// Enforcer tracks cumulative provider spend against a monthly ceiling.
// All methods are safe for concurrent use.
type Enforcer struct {
	mu            sync.Mutex
	period        string // YYYY-MM billing month
	spentMicros   int64
	limitMicros   int64
	lastThreshold int // highest threshold already fired this period

	bus events.Bus
	log *logger.Logger
	now func() time.Time
}

// NewEnforcer creates a budget enforcer with the given monthly ceiling in
// micro-dollars.
func NewEnforcer(limitMicros int64, bus events.Bus, log *logger.Logger) *Enforcer {
	e := &Enforcer{
		limitMicros: limitMicros,
		bus:         bus,
		log:         log,
		now:         time.Now,
	}
	e.period = billingPeriod(e.now())
	return e
}

// Hydrate seeds the current period's spend from persisted conversation costs.
// Called once at boot so a restart does not reset the ceiling.
func (e *Enforcer) Hydrate(spentMicros int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollover()
	e.spentMicros = spentMicros
	for _, threshold := range alertThresholds {
		if e.percentageLocked() >= float64(threshold) {
			e.lastThreshold = threshold
		}
	}
}

// Charge atomically adds cost to the period total and returns the new
// percentage of ceiling. Crossing an alert threshold publishes a
// notification event, once per threshold per period.
func (e *Enforcer) Charge(ctx context.Context, costMicros int64) float64 {
	e.mu.Lock()
	e.rollover()
	e.spentMicros += costMicros
	pct := e.percentageLocked()
	fired := e.crossLocked(pct)
	period := e.period
	spent := e.spentMicros
	e.mu.Unlock()

	e.alert(ctx, fired, pct, period, spent)
	return pct
}

// Sync reconciles the ledger with persisted spend, which includes charges
// made by other processes. The local counter additionally holds charges
// not yet persisted, so the larger value wins. Thresholds crossed by
// external spend fire here exactly as in Charge.
func (e *Enforcer) Sync(ctx context.Context, store SpendStore) error {
	now := e.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	persisted, err := store.PeriodSpendMicros(ctx, monthStart, now)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.rollover()
	if persisted > e.spentMicros {
		e.spentMicros = persisted
	}
	pct := e.percentageLocked()
	fired := e.crossLocked(pct)
	period := e.period
	spent := e.spentMicros
	e.mu.Unlock()

	e.alert(ctx, fired, pct, period, spent)
	return nil
}

// SyncLoop re-reads persisted spend on a fixed interval so that the API
// and scheduler processes converge on one shared ceiling. Runs until the
// context is cancelled.
func (e *Enforcer) SyncLoop(ctx context.Context, store SpendStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Sync(ctx, store); err != nil && e.log != nil {
				e.log.Warn("budget sync failed", "error", err)
			}
		}
	}
}

// crossLocked records and returns the thresholds newly crossed at pct.
// Caller must hold e.mu.
func (e *Enforcer) crossLocked(pct float64) []int {
	var fired []int
	for _, threshold := range alertThresholds {
		if threshold > e.lastThreshold && pct >= float64(threshold) {
			e.lastThreshold = threshold
			fired = append(fired, threshold)
		}
	}
	return fired
}

func (e *Enforcer) alert(ctx context.Context, fired []int, pct float64, period string, spentMicros int64) {
	for _, threshold := range fired {
		if e.log != nil {
			e.log.BudgetAlert(threshold, pct)
		}
		if e.bus != nil {
			e.bus.Publish(ctx, events.BudgetThresholdCrossed{
				BaseEvent:   events.NewBaseEvent(),
				Period:      period,
				Threshold:   threshold,
				Percentage:  pct,
				SpentMicros: spentMicros,
				LimitMicros: e.limitMicros,
			})
		}
	}
}

// IsExhausted reports whether cumulative spend has reached the ceiling.
// Callers skip the generation call and fall back to a static notice.
func (e *Enforcer) IsExhausted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollover()
	return e.spentMicros >= e.limitMicros
}

// Usage returns the current period, spend, ceiling, and percentage.
func (e *Enforcer) Usage() (period string, spentMicros, limitMicros int64, percentage float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollover()
	return e.period, e.spentMicros, e.limitMicros, e.percentageLocked()
}

// rollover resets the ledger when the billing month has changed.
// Caller must hold e.mu.
func (e *Enforcer) rollover() {
	current := billingPeriod(e.now())
	if current == e.period {
		return
	}
	e.period = current
	e.spentMicros = 0
	e.lastThreshold = 0
}

func (e *Enforcer) percentageLocked() float64 {
	if e.limitMicros <= 0 {
		return 0
	}
	return float64(e.spentMicros) / float64(e.limitMicros) * 100
}

func billingPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}
