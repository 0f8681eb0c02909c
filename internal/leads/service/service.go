// Package service owns the lead lifecycle: every status transition flows
// through here, under a per-lead lock.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/agent"
	"leadflow_backend/internal/eligibility"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/sanitize"
)

// Static replies used outside the generation path.
const (
	msgIneligible = "Agradecemos muito o seu contato! No momento ainda não atendemos a sua região, mas desejamos sucesso na sua jornada."
	msgInterest   = "Que bom receber sua mensagem! Ainda não chegamos à sua região, mas registramos o seu interesse e avisaremos assim que houver expansão por aí."
)

// reengageTemplates are the static fallbacks for follow-up attempts when
// the generation path is unavailable. Indexed by attempt, capped at the last.
var reengageTemplates = []string{
	"Oi! Vi que nossa conversa ficou pela metade. Ainda tem interesse em conhecer a franquia? Estou por aqui.",
	"Olá novamente! Ficou alguma dúvida sobre a franquia? Posso ajudar com qualquer informação.",
	"Passando uma última vez por aqui. Se ainda tiver interesse, é só responder esta mensagem!",
}

const reengageInstruction = "O cliente não respondeu à última mensagem. Escreva uma mensagem curta e cordial, em português, para retomar a conversa e relembrar o interesse dele na franquia."

// Store is the persistence capability the service needs. Implemented by
// the pgx repository; faked in tests.
type Store interface {
	GetByPhone(ctx context.Context, phone string) (*domain.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	Create(ctx context.Context, phone string, receivedAt time.Time) (*domain.Lead, error)
	UpdateProfile(ctx context.Context, lead *domain.Lead) error
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next string, nextFollowUpAt *time.Time, followUpAttempts int) (bool, error)
	TouchInteraction(ctx context.Context, id uuid.UUID, at time.Time) error
	AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error
	ListTurns(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.ConversationTurn, error)
	CreateScheduling(ctx context.Context, s *domain.Scheduling) error
}

// Generator produces conversational replies.
type Generator interface {
	Generate(ctx context.Context, lead *domain.Lead, history []domain.ConversationTurn, inboundText string) (*agent.Reply, error)
}

// Budget gates generation calls against the monthly ceiling.
type Budget interface {
	IsExhausted() bool
	Charge(ctx context.Context, costMicros int64) float64
}

// Sender delivers outbound texts.
type Sender interface {
	SendText(ctx context.Context, phoneNumber, text string) error
}

// Classifier maps a region code to an eligibility outcome.
type Classifier interface {
	Classify(region string) eligibility.Outcome
}

type Service struct {
	store      Store
	generator  Generator
	budget     Budget
	sender     Sender
	classifier Classifier
	bus        events.Bus
	policy     config.FollowUpConfig
	log        *logger.Logger
	locks      *keyedMutex
	now        func() time.Time
}

func NewService(
	store Store,
	generator Generator,
	budget Budget,
	sender Sender,
	classifier Classifier,
	bus events.Bus,
	policy config.FollowUpConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		store:      store,
		generator:  generator,
		budget:     budget,
		sender:     sender,
		classifier: classifier,
		bus:        bus,
		policy:     policy,
		log:        log,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// HandleInbound processes one deduplicated, rate-limited inbound message.
// Storage failures propagate so the caller does not acknowledge the event;
// provider failures degrade to the static fallback and never fail the request.
func (s *Service) HandleInbound(ctx context.Context, phone, text string, receivedAt time.Time) error {
	unlock := s.locks.lock(phone)
	defer unlock()

	// Inbound text is stored verbatim and later rendered in the admin UI.
	text = sanitize.Text(text)

	lead, err := s.store.GetByPhone(ctx, phone)
	if errors.Is(err, repository.ErrNotFound) {
		lead, err = s.store.Create(ctx, phone, receivedAt)
		if err != nil {
			return fmt.Errorf("create lead: %w", err)
		}
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Phone:     lead.Phone,
		})
	} else if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}

	// Terminal leads keep an audit trail but never transition again.
	if domain.IsTerminal(lead.Status) {
		if err := s.store.TouchInteraction(ctx, lead.ID, receivedAt); err != nil {
			return fmt.Errorf("touch interaction: %w", err)
		}
		turn := &domain.ConversationTurn{LeadID: lead.ID, InboundText: text}
		if err := s.store.AppendTurn(ctx, turn); err != nil {
			return fmt.Errorf("append turn: %w", err)
		}
		return nil
	}

	if lead.Status == domain.StatusNovo {
		if _, err := s.transition(ctx, lead, domain.StatusEmTriagem, nil, lead.FollowUpAttempts, "inbound"); err != nil {
			return err
		}
	}

	// A real reply cancels any pending breach before anything else happens.
	if lead.Status == domain.StatusSemResposta || lead.Status == domain.StatusRecuperando {
		next := receivedAt.Add(s.policy.GetNoResponseWindow())
		if _, err := s.transition(ctx, lead, domain.StatusAguardandoResposta, &next, 0, "inbound"); err != nil {
			return err
		}
	}

	regionJustClassified, err := s.applyExtraction(ctx, lead, text, receivedAt)
	if err != nil {
		return err
	}

	// Regions outside the served set end the funnel immediately, with a
	// static reply and no generation spend.
	if regionJustClassified && lead.Eligibility != domain.EligibilityEligible {
		outbound := msgIneligible
		if lead.Eligibility == domain.EligibilityInterest {
			outbound = msgInterest
		}
		turn := &domain.ConversationTurn{LeadID: lead.ID, InboundText: text, OutboundText: outbound}
		if err := s.store.AppendTurn(ctx, turn); err != nil {
			return fmt.Errorf("append turn: %w", err)
		}
		if _, err := s.transition(ctx, lead, domain.StatusNaoElegivel, nil, lead.FollowUpAttempts, "classification"); err != nil {
			return err
		}
		s.deliver(ctx, lead, outbound)
		return nil
	}

	reply := s.generateReply(ctx, lead, text)

	turn := &domain.ConversationTurn{
		LeadID:       lead.ID,
		InboundText:  text,
		OutboundText: reply.Text,
		TokensIn:     reply.TokensIn,
		TokensOut:    reply.TokensOut,
		TokensTotal:  reply.TokensTotal,
		CostMicros:   reply.CostMicros,
		LatencyMs:    reply.LatencyMs,
	}
	if err := s.store.AppendTurn(ctx, turn); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	if lead.IsQualified() && lead.Eligibility == domain.EligibilityEligible {
		if err := s.book(ctx, lead, receivedAt); err != nil {
			return err
		}
	} else {
		next := receivedAt.Add(s.policy.GetNoResponseWindow())
		if _, err := s.transition(ctx, lead, domain.StatusAguardandoResposta, &next, 0, "inbound"); err != nil {
			return err
		}
	}

	s.deliver(ctx, lead, reply.Text)
	return nil
}

// HandleTimeout processes one synthetic scheduler event. Stale events
// (the lead progressed since the scan) are dropped without effect.
func (s *Service) HandleTimeout(ctx context.Context, leadID uuid.UUID, kind domain.TimeoutKind, firedAt time.Time) error {
	peek, err := s.store.GetByID(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}

	unlock := s.locks.lock(peek.Phone)
	defer unlock()

	// Re-read under the lock: an inbound message may have advanced the
	// lead between the scan and this point. Inbound always wins.
	lead, err := s.store.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load lead: %w", err)
	}
	if _, ok := domain.NextOnTimeout(lead.Status, kind); !ok {
		return nil
	}
	if lead.NextFollowUpAt == nil || lead.NextFollowUpAt.After(firedAt) {
		return nil
	}

	switch kind {
	case domain.TimeoutNoResponse:
		next := firedAt.Add(s.policy.GetReengageInterval())
		_, err := s.transition(ctx, lead, domain.StatusSemResposta, &next, lead.FollowUpAttempts, "timeout")
		return err

	case domain.TimeoutReengage:
		return s.reengage(ctx, lead, firedAt)

	case domain.TimeoutExpire:
		expired := lead.FollowUpAttempts >= s.policy.GetMaxFollowUpAttempts() ||
			lead.Age(firedAt) >= s.policy.GetLeadMaxAge()
		if expired {
			_, err := s.transition(ctx, lead, domain.StatusInativo, nil, lead.FollowUpAttempts, "timeout")
			return err
		}
		// Ceilings not reached yet: give the lead another response window.
		next := firedAt.Add(s.policy.GetNoResponseWindow())
		_, err := s.transition(ctx, lead, domain.StatusAguardandoResposta, &next, lead.FollowUpAttempts, "timeout")
		return err
	}

	return nil
}

// reengage sends one follow-up message and moves the lead to recuperando.
func (s *Service) reengage(ctx context.Context, lead *domain.Lead, firedAt time.Time) error {
	attempt := lead.FollowUpAttempts + 1
	next := firedAt.Add(s.policy.GetNoResponseWindow())
	applied, err := s.transition(ctx, lead, domain.StatusRecuperando, &next, attempt, "timeout")
	if err != nil || !applied {
		return err
	}

	outbound := s.reengageText(ctx, lead, attempt)

	turn := &domain.ConversationTurn{LeadID: lead.ID, OutboundText: outbound.Text,
		TokensIn: outbound.TokensIn, TokensOut: outbound.TokensOut, TokensTotal: outbound.TokensTotal,
		CostMicros: outbound.CostMicros, LatencyMs: outbound.LatencyMs,
	}
	if err := s.store.AppendTurn(ctx, turn); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	s.deliver(ctx, lead, outbound.Text)
	s.bus.Publish(ctx, events.FollowUpMessageSent{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Phone:     lead.Phone,
		Attempt:   attempt,
	})
	return nil
}

func (s *Service) reengageText(ctx context.Context, lead *domain.Lead, attempt int) *agent.Reply {
	fallbackIdx := attempt - 1
	if fallbackIdx >= len(reengageTemplates) {
		fallbackIdx = len(reengageTemplates) - 1
	}
	if fallbackIdx < 0 {
		fallbackIdx = 0
	}
	fallback := &agent.Reply{Text: reengageTemplates[fallbackIdx]}

	if s.budget.IsExhausted() {
		return fallback
	}

	history, err := s.store.ListTurns(ctx, lead.ID, 10)
	if err != nil {
		s.log.DatabaseError("list turns", err)
		return fallback
	}

	reply, err := s.generator.Generate(ctx, lead, history, reengageInstruction)
	if err != nil {
		s.log.Warn("reengage generation failed, using template", "lead_id", lead.ID, "error", err)
		return fallback
	}
	s.budget.Charge(ctx, reply.CostMicros)
	return reply
}

// generateReply runs the budget-gated generation call with the static
// fallback on exhaustion, error, or timeout. Failed calls cost nothing.
func (s *Service) generateReply(ctx context.Context, lead *domain.Lead, text string) *agent.Reply {
	fallback := &agent.Reply{Text: agent.FallbackNotice}

	if s.budget.IsExhausted() {
		s.log.Warn("budget exhausted, using fallback reply", "lead_id", lead.ID)
		return fallback
	}

	history, err := s.store.ListTurns(ctx, lead.ID, 10)
	if err != nil {
		s.log.DatabaseError("list turns", err)
		return fallback
	}

	reply, err := s.generator.Generate(ctx, lead, history, text)
	if err != nil {
		s.log.Warn("generation failed, using fallback reply", "lead_id", lead.ID, "error", err)
		return fallback
	}

	s.budget.Charge(ctx, reply.CostMicros)
	return reply
}

// applyExtraction merges any qualification fields found in the text into
// the lead and classifies the region the first time it is disclosed.
// Returns whether the region was classified by this message.
func (s *Service) applyExtraction(ctx context.Context, lead *domain.Lead, text string, receivedAt time.Time) (bool, error) {
	regionClassified := false

	if lead.Name == nil {
		if name, ok := extractName(text); ok {
			lead.Name = &name
		}
	}
	if lead.Region == nil {
		if region, ok := extractRegion(text); ok {
			lead.Region = &region
			lead.Eligibility = string(s.classifier.Classify(region))
			regionClassified = true
		}
	}
	if lead.Interest == nil {
		if interest, ok := extractInterest(text); ok {
			lead.Interest = &interest
		}
	}
	if lead.Availability == nil {
		if availability, ok := extractAvailability(text); ok {
			lead.Availability = &availability
		}
	}

	// last_interaction_at moves on every message, so the profile write is
	// unconditional.
	lead.LastInteractionAt = receivedAt
	if err := s.store.UpdateProfile(ctx, lead); err != nil {
		return false, fmt.Errorf("update profile: %w", err)
	}
	return regionClassified, nil
}

// book moves a fully qualified, eligible lead to agendado and records the visit.
func (s *Service) book(ctx context.Context, lead *domain.Lead, receivedAt time.Time) error {
	// agendado is only reachable from aguardando_resposta; a lead booking
	// straight out of triage passes through the intermediate status.
	if lead.Status == domain.StatusEmTriagem {
		if _, err := s.transition(ctx, lead, domain.StatusAguardandoResposta, nil, 0, "inbound"); err != nil {
			return err
		}
	}

	applied, err := s.transition(ctx, lead, domain.StatusAgendado, nil, lead.FollowUpAttempts, "scheduling")
	if err != nil || !applied {
		return err
	}

	meetingAt := receivedAt.Add(24 * time.Hour)
	if lead.PreferredMeetingAt != nil {
		meetingAt = *lead.PreferredMeetingAt
	}

	scheduling := &domain.Scheduling{
		LeadID:    lead.ID,
		MeetingAt: meetingAt,
		Status:    domain.SchedulingStatusScheduled,
	}
	if err := s.store.CreateScheduling(ctx, scheduling); err != nil {
		return fmt.Errorf("create scheduling: %w", err)
	}

	s.bus.Publish(ctx, events.SchedulingConfirmed{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       lead.ID,
		SchedulingID: scheduling.ID,
		Phone:        lead.Phone,
	})
	return nil
}

// transition applies one edge of the lifecycle graph via a conditional
// write. Returns false without error when the stored status moved on, in
// which case the in-memory lead is refreshed.
func (s *Service) transition(ctx context.Context, lead *domain.Lead, next string, nextFollowUpAt *time.Time, attempts int, trigger string) (bool, error) {
	if !domain.CanTransition(lead.Status, next) && lead.Status != next {
		return false, fmt.Errorf("invalid transition %s -> %s", lead.Status, next)
	}

	applied, err := s.store.UpdateStatus(ctx, lead.ID, lead.Status, next, nextFollowUpAt, attempts)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	if !applied {
		fresh, err := s.store.GetByID(ctx, lead.ID)
		if err != nil {
			return false, fmt.Errorf("reload lead: %w", err)
		}
		*lead = *fresh
		return false, nil
	}

	old := lead.Status
	lead.Status = next
	lead.NextFollowUpAt = nextFollowUpAt
	lead.FollowUpAttempts = attempts

	s.log.LeadStatusChange(lead.ID.String(), old, next)
	if old != next {
		s.bus.Publish(ctx, events.LeadStatusChanged{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			OldStatus: old,
			NewStatus: next,
			Trigger:   trigger,
		})
	}
	return true, nil
}

// deliver sends the outbound text. Delivery failures are logged, not
// propagated: the turn is already durable and the gateway retries upstream.
func (s *Service) deliver(ctx context.Context, lead *domain.Lead, text string) {
	if text == "" {
		return
	}
	if err := s.sender.SendText(ctx, lead.Phone, text); err != nil {
		s.log.Error("outbound delivery failed", "lead_id", lead.ID, "error", err.Error())
	}
}
