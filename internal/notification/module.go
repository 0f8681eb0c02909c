// Package notification delivers operational alert emails in response to
// domain events. It is a pure event consumer; nothing in the request
// path depends on it.
package notification

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"

	"leadflow_backend/internal/events"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

const fromName = "LeadFlow Alerts"

// Module subscribes to alert-worthy domain events and emails the
// configured operator address via SMTP.
type Module struct {
	cfg     config.SMTPConfig
	enabled bool
	log     *logger.Logger
}

func NewModule(cfg config.SMTPConfig, log *logger.Logger) *Module {
	return &Module{
		cfg:     cfg,
		enabled: cfg.GetEmailEnabled(),
		log:     log,
	}
}

// RegisterHandlers subscribes to all relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.BudgetThresholdCrossed{}.EventName(), m)
	bus.Subscribe(events.SchedulingConfirmed{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.BudgetThresholdCrossed:
		return m.handleBudgetThresholdCrossed(ctx, e)
	case events.SchedulingConfirmed:
		return m.handleSchedulingConfirmed(ctx, e)
	}
	return nil
}

func (m *Module) handleBudgetThresholdCrossed(ctx context.Context, e events.BudgetThresholdCrossed) error {
	subject := fmt.Sprintf("[LeadFlow] Monthly spend crossed %d%% (%s)", e.Threshold, e.Period)
	body := fmt.Sprintf(
		"Provider spend for %s reached %.1f%% of the monthly ceiling.\n\n"+
			"Spent: $%.4f\nLimit: $%.2f\n\n"+
			"At 100%% the assistant switches to static fallback replies until the period rolls over.",
		e.Period,
		e.Percentage,
		float64(e.SpentMicros)/1_000_000,
		float64(e.LimitMicros)/1_000_000,
	)
	return m.send(ctx, subject, body)
}

func (m *Module) handleSchedulingConfirmed(ctx context.Context, e events.SchedulingConfirmed) error {
	subject := "[LeadFlow] New visit scheduled"
	body := fmt.Sprintf(
		"Lead %s (%s) confirmed a visit.\nScheduling: %s",
		e.LeadID, e.Phone, e.SchedulingID,
	)
	return m.send(ctx, subject, body)
}

func (m *Module) send(ctx context.Context, subject, body string) error {
	if !m.enabled {
		return nil
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(fromName, m.cfg.GetSMTPFrom()); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(m.cfg.GetAlertEmail()); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(m.cfg.GetSMTPHost(),
		gomail.WithPort(m.cfg.GetSMTPPort()),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.cfg.GetSMTPUser()),
		gomail.WithPassword(m.cfg.GetSMTPPass()),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	m.log.Info("alert email sent", "subject", subject)
	return nil
}
