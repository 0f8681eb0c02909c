package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/agent"
	"leadflow_backend/internal/eligibility"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/logger"
)

// ---- fakes ----

type fakeStore struct {
	mu          sync.Mutex
	leads       map[uuid.UUID]*domain.Lead
	byPhone     map[string]uuid.UUID
	turns       []domain.ConversationTurn
	schedulings []domain.Scheduling
	failAppend  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leads:   make(map[uuid.UUID]*domain.Lead),
		byPhone: make(map[string]uuid.UUID),
	}
}

func (f *fakeStore) GetByPhone(_ context.Context, phone string) (*domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byPhone[phone]
	if !ok {
		return nil, repository.ErrNotFound
	}
	lead := *f.leads[id]
	return &lead, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *lead
	return &copied, nil
}

func (f *fakeStore) Create(_ context.Context, phone string, receivedAt time.Time) (*domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead := &domain.Lead{
		ID:                uuid.New(),
		Phone:             phone,
		Status:            domain.StatusNovo,
		LastInteractionAt: receivedAt,
		CreatedAt:         receivedAt,
		UpdatedAt:         receivedAt,
	}
	f.leads[lead.ID] = lead
	f.byPhone[phone] = lead.ID
	copied := *lead
	return &copied, nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, lead *domain.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.leads[lead.ID]
	stored.Name = lead.Name
	stored.Region = lead.Region
	stored.Interest = lead.Interest
	stored.Availability = lead.Availability
	stored.Eligibility = lead.Eligibility
	stored.PreferredMeetingAt = lead.PreferredMeetingAt
	stored.LastInteractionAt = lead.LastInteractionAt
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id uuid.UUID, expected, next string, nextFollowUpAt *time.Time, attempts int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.leads[id]
	if !ok || stored.Status != expected {
		return false, nil
	}
	stored.Status = next
	stored.NextFollowUpAt = nextFollowUpAt
	stored.FollowUpAttempts = attempts
	return true, nil
}

func (f *fakeStore) TouchInteraction(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.leads[id]
	if !ok {
		return repository.ErrNotFound
	}
	stored.LastInteractionAt = at
	return nil
}

func (f *fakeStore) AppendTurn(_ context.Context, turn *domain.ConversationTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend {
		return errors.New("storage unavailable")
	}
	turn.ID = uuid.New()
	turn.CreatedAt = time.Now()
	f.turns = append(f.turns, *turn)
	return nil
}

func (f *fakeStore) ListTurns(_ context.Context, leadID uuid.UUID, limit int) ([]domain.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ConversationTurn, 0)
	for _, turn := range f.turns {
		if turn.LeadID == leadID {
			out = append(out, turn)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) CreateScheduling(_ context.Context, s *domain.Scheduling) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	f.schedulings = append(f.schedulings, *s)
	return nil
}

func (f *fakeStore) status(t *testing.T, phone string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byPhone[phone]
	if !ok {
		t.Fatalf("no lead for phone %s", phone)
	}
	return f.leads[id].Status
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	fail  bool
	reply string
}

func (g *fakeGenerator) Generate(context.Context, *domain.Lead, []domain.ConversationTurn, string) (*agent.Reply, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail {
		return nil, errors.New("provider timeout")
	}
	text := g.reply
	if text == "" {
		text = "Entendi! Pode me contar um pouco mais?"
	}
	return &agent.Reply{Text: text, TokensIn: 100, TokensOut: 50, TokensTotal: 150, CostMicros: 45, LatencyMs: 12}, nil
}

type fakeBudget struct {
	mu        sync.Mutex
	exhausted bool
	charged   int64
}

func (b *fakeBudget) IsExhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exhausted
}

func (b *fakeBudget) Charge(_ context.Context, micros int64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.charged += micros
	return 0
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *fakeSender) SendText(_ context.Context, _ string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return nil
}

type nopBus struct{}

func (nopBus) Publish(context.Context, events.Event)          {}
func (nopBus) PublishSync(context.Context, events.Event) error { return nil }
func (nopBus) Subscribe(string, events.Handler)               {}

type testPolicy struct{}

func (testPolicy) GetNoResponseWindow() time.Duration { return 2 * time.Hour }
func (testPolicy) GetReengageInterval() time.Duration { return 4 * time.Hour }
func (testPolicy) GetMaxFollowUpAttempts() int        { return 3 }
func (testPolicy) GetLeadMaxAge() time.Duration       { return 7 * 24 * time.Hour }

func newTestService(store *fakeStore) (*Service, *fakeGenerator, *fakeBudget, *fakeSender) {
	gen := &fakeGenerator{}
	budget := &fakeBudget{}
	sender := &fakeSender{}
	classifier := eligibility.New(
		[]string{"RS", "SC", "PR", "SP", "RJ", "MG", "ES", "GO", "MT", "MS", "DF"},
		[]string{"BA", "PE", "CE", "RN", "PB", "AL", "SE", "PI", "MA", "AP", "AM", "RR", "AC", "TO"},
	)
	svc := NewService(store, gen, budget, sender, classifier, nopBus{}, testPolicy{}, logger.New("test"))
	return svc, gen, budget, sender
}

// ---- tests ----

func TestInboundCreatesLeadAndMovesToTriage(t *testing.T) {
	store := newFakeStore()
	svc, gen, budget, _ := newTestService(store)

	err := svc.HandleInbound(context.Background(), "5551999990001", "Olá, tudo bem?", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	// No qualification fields yet: the lead waits for a reply.
	if got := store.status(t, "5551999990001"); got != domain.StatusAguardandoResposta {
		t.Errorf("status = %q, want aguardando_resposta", got)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
	if budget.charged != 45 {
		t.Errorf("charged = %d, want 45", budget.charged)
	}
	if len(store.turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(store.turns))
	}
}

func TestFullQualificationBooksVisit(t *testing.T) {
	store := newFakeStore()
	svc, _, _, _ := newTestService(store)
	ctx := context.Background()
	now := time.Now()

	// Scenario: eligible region plus every required field across two messages.
	if err := svc.HandleInbound(ctx, "5551999990002", "Quero abrir uma franquia em RS", now); err != nil {
		t.Fatal(err)
	}
	if got := store.status(t, "5551999990002"); got != domain.StatusAguardandoResposta {
		t.Fatalf("status after first message = %q", got)
	}

	if err := svc.HandleInbound(ctx, "5551999990002", "Meu nome é Maria Silva, posso conversar amanhã de manhã", now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	if got := store.status(t, "5551999990002"); got != domain.StatusAgendado {
		t.Errorf("status = %q, want agendado", got)
	}
	if len(store.schedulings) != 1 {
		t.Fatalf("schedulings = %d, want 1", len(store.schedulings))
	}
	if store.schedulings[0].Status != domain.SchedulingStatusScheduled {
		t.Errorf("scheduling status = %q", store.schedulings[0].Status)
	}
}

func TestInterestRegionEndsWithoutScheduling(t *testing.T) {
	store := newFakeStore()
	svc, gen, _, sender := newTestService(store)

	err := svc.HandleInbound(context.Background(), "5571999990003", "Quero abrir na Bahia", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if got := store.status(t, "5571999990003"); got != domain.StatusNaoElegivel {
		t.Errorf("status = %q, want nao_elegivel", got)
	}
	if len(store.schedulings) != 0 {
		t.Error("interest region must not create a scheduling")
	}
	// The turn is still persisted and the static reply goes out.
	if len(store.turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(store.turns))
	}
	if gen.calls != 0 {
		t.Errorf("generator calls = %d, want 0 for non-eligible region", gen.calls)
	}
	if len(sender.sent) != 1 || sender.sent[0] != msgInterest {
		t.Errorf("sent = %v, want interest notice", sender.sent)
	}

	id := store.byPhone["5571999990003"]
	if store.leads[id].Eligibility != domain.EligibilityInterest {
		t.Errorf("eligibility = %q, want interest", store.leads[id].Eligibility)
	}
}

func TestUnknownRegionIsIneligible(t *testing.T) {
	store := newFakeStore()
	svc, _, _, sender := newTestService(store)

	err := svc.HandleInbound(context.Background(), "5569999990004", "Sou de Rondônia, quero investir", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if got := store.status(t, "5569999990004"); got != domain.StatusNaoElegivel {
		t.Errorf("status = %q, want nao_elegivel", got)
	}
	if len(sender.sent) != 1 || sender.sent[0] != msgIneligible {
		t.Errorf("sent = %v, want ineligible notice", sender.sent)
	}
}

func TestBudgetExhaustionFallsBack(t *testing.T) {
	store := newFakeStore()
	svc, gen, budget, sender := newTestService(store)
	budget.exhausted = true

	err := svc.HandleInbound(context.Background(), "5551999990005", "Quero abrir em SP", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if gen.calls != 0 {
		t.Errorf("generator calls = %d, want 0 when exhausted", gen.calls)
	}
	if budget.charged != 0 {
		t.Errorf("charged = %d, want 0", budget.charged)
	}
	if len(sender.sent) != 1 || sender.sent[0] != agent.FallbackNotice {
		t.Errorf("sent = %v, want fallback notice", sender.sent)
	}
	// The turn is persisted and the lifecycle still advances.
	if got := store.status(t, "5551999990005"); got != domain.StatusAguardandoResposta {
		t.Errorf("status = %q, want aguardando_resposta", got)
	}
}

func TestProviderFailureFallsBackWithoutCharge(t *testing.T) {
	store := newFakeStore()
	svc, gen, budget, sender := newTestService(store)
	gen.fail = true

	err := svc.HandleInbound(context.Background(), "5551999990006", "Quero abrir em SP", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if budget.charged != 0 {
		t.Errorf("charged = %d, want 0 on provider failure", budget.charged)
	}
	if len(sender.sent) != 1 || sender.sent[0] != agent.FallbackNotice {
		t.Errorf("sent = %v, want fallback notice", sender.sent)
	}
}

func TestStorageFailurePropagates(t *testing.T) {
	store := newFakeStore()
	svc, _, _, sender := newTestService(store)
	store.failAppend = true

	err := svc.HandleInbound(context.Background(), "5551999990007", "Olá", time.Now())
	if err == nil {
		t.Fatal("expected hard failure when the turn cannot be persisted")
	}
	if len(sender.sent) != 0 {
		t.Error("nothing should be delivered when persistence failed")
	}
}

func TestNoResponseTimeout(t *testing.T) {
	store := newFakeStore()
	svc, _, _, _ := newTestService(store)
	ctx := context.Background()
	start := time.Now().Add(-3 * time.Hour)

	if err := svc.HandleInbound(ctx, "5551999990008", "Quero abrir em RS", start); err != nil {
		t.Fatal(err)
	}
	id := store.byPhone["5551999990008"]

	// Scenario C: the window elapsed, the scan fires no_response.
	if err := svc.HandleTimeout(ctx, id, domain.TimeoutNoResponse, time.Now()); err != nil {
		t.Fatal(err)
	}

	if got := store.status(t, "5551999990008"); got != domain.StatusSemResposta {
		t.Errorf("status = %q, want sem_resposta", got)
	}
	if store.leads[id].NextFollowUpAt == nil {
		t.Error("next_follow_up_at should be rescheduled for the re-engagement interval")
	}
}

func TestReengageSendsFollowUpAndIncrementsAttempts(t *testing.T) {
	store := newFakeStore()
	svc, _, _, sender := newTestService(store)
	ctx := context.Background()
	start := time.Now().Add(-8 * time.Hour)

	if err := svc.HandleInbound(ctx, "5551999990009", "Quero abrir em RS", start); err != nil {
		t.Fatal(err)
	}
	id := store.byPhone["5551999990009"]

	if err := svc.HandleTimeout(ctx, id, domain.TimeoutNoResponse, start.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleTimeout(ctx, id, domain.TimeoutReengage, start.Add(6*time.Hour)); err != nil {
		t.Fatal(err)
	}

	if got := store.status(t, "5551999990009"); got != domain.StatusRecuperando {
		t.Errorf("status = %q, want recuperando", got)
	}
	if store.leads[id].FollowUpAttempts != 1 {
		t.Errorf("attempts = %d, want 1", store.leads[id].FollowUpAttempts)
	}
	if len(sender.sent) != 2 {
		t.Errorf("sent = %d messages, want reply plus follow-up", len(sender.sent))
	}
}

func TestExpireAfterAttemptCeiling(t *testing.T) {
	store := newFakeStore()
	svc, _, _, _ := newTestService(store)
	ctx := context.Background()
	start := time.Now().Add(-8 * 24 * time.Hour)

	if err := svc.HandleInbound(ctx, "5551999990010", "Quero abrir em RS", start); err != nil {
		t.Fatal(err)
	}
	id := store.byPhone["5551999990010"]

	// Scenario D: attempts exhausted and older than the age ceiling.
	store.mu.Lock()
	store.leads[id].Status = domain.StatusRecuperando
	store.leads[id].FollowUpAttempts = 3
	due := start.Add(24 * time.Hour)
	store.leads[id].NextFollowUpAt = &due
	store.mu.Unlock()

	if err := svc.HandleTimeout(ctx, id, domain.TimeoutExpire, time.Now()); err != nil {
		t.Fatal(err)
	}

	if got := store.status(t, "5551999990010"); got != domain.StatusInativo {
		t.Errorf("status = %q, want inativo", got)
	}
	if store.leads[id].NextFollowUpAt != nil {
		t.Error("next_follow_up_at must be cleared on inactivation")
	}

	// Terminal: further scheduler events are no-ops.
	if err := svc.HandleTimeout(ctx, id, domain.TimeoutExpire, time.Now()); err != nil {
		t.Fatal(err)
	}
	if got := store.status(t, "5551999990010"); got != domain.StatusInativo {
		t.Errorf("status after stale event = %q, want inativo", got)
	}
}

func TestExpireBelowCeilingsGrantsAnotherWindow(t *testing.T) {
	store := newFakeStore()
	svc, _, _, _ := newTestService(store)
	ctx := context.Background()
	start := time.Now().Add(-10 * time.Hour)

	if err := svc.HandleInbound(ctx, "5551999990011", "Quero abrir em RS", start); err != nil {
		t.Fatal(err)
	}
	id := store.byPhone["5551999990011"]

	store.mu.Lock()
	store.leads[id].Status = domain.StatusRecuperando
	store.leads[id].FollowUpAttempts = 1
	due := start.Add(8 * time.Hour)
	store.leads[id].NextFollowUpAt = &due
	store.mu.Unlock()

	if err := svc.HandleTimeout(ctx, id, domain.TimeoutExpire, time.Now()); err != nil {
		t.Fatal(err)
	}

	if got := store.status(t, "5551999990011"); got != domain.StatusAguardandoResposta {
		t.Errorf("status = %q, want aguardando_resposta for another cycle", got)
	}
}

func TestStaleTimeoutIsDropped(t *testing.T) {
	store := newFakeStore()
	svc, _, _, _ := newTestService(store)
	ctx := context.Background()
	now := time.Now()

	if err := svc.HandleInbound(ctx, "5551999990012", "Quero abrir em RS", now.Add(-3*time.Hour)); err != nil {
		t.Fatal(err)
	}
	id := store.byPhone["5551999990012"]

	// The lead replies before the scanner's event lands: inbound wins.
	if err := svc.HandleInbound(ctx, "5551999990012", "Desculpe a demora! Meu nome é João", now); err != nil {
		t.Fatal(err)
	}
	statusBefore := store.status(t, "5551999990012")

	if err := svc.HandleTimeout(ctx, id, domain.TimeoutNoResponse, now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}

	if got := store.status(t, "5551999990012"); got != statusBefore {
		t.Errorf("stale timeout changed status %q -> %q", statusBefore, got)
	}
}

func TestInboundReactivatesUnresponsiveLead(t *testing.T) {
	store := newFakeStore()
	svc, _, _, _ := newTestService(store)
	ctx := context.Background()
	start := time.Now().Add(-5 * time.Hour)

	if err := svc.HandleInbound(ctx, "5551999990013", "Quero abrir em RS", start); err != nil {
		t.Fatal(err)
	}
	id := store.byPhone["5551999990013"]
	if err := svc.HandleTimeout(ctx, id, domain.TimeoutNoResponse, start.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if got := store.status(t, "5551999990013"); got != domain.StatusSemResposta {
		t.Fatalf("status = %q, want sem_resposta", got)
	}

	if err := svc.HandleInbound(ctx, "5551999990013", "Oi, ainda tenho interesse!", time.Now()); err != nil {
		t.Fatal(err)
	}

	if got := store.status(t, "5551999990013"); got != domain.StatusAguardandoResposta {
		t.Errorf("status = %q, want aguardando_resposta after reply", got)
	}
	if store.leads[id].FollowUpAttempts != 0 {
		t.Errorf("attempts = %d, want reset to 0", store.leads[id].FollowUpAttempts)
	}
}

func TestTerminalLeadKeepsAuditTrailOnly(t *testing.T) {
	store := newFakeStore()
	svc, gen, _, sender := newTestService(store)
	ctx := context.Background()

	if err := svc.HandleInbound(ctx, "5571999990014", "Quero abrir na Bahia", time.Now()); err != nil {
		t.Fatal(err)
	}
	if got := store.status(t, "5571999990014"); got != domain.StatusNaoElegivel {
		t.Fatalf("status = %q", got)
	}
	sentBefore := len(sender.sent)

	later := time.Now().Add(time.Hour)
	if err := svc.HandleInbound(ctx, "5571999990014", "Mudei de ideia!", later); err != nil {
		t.Fatal(err)
	}

	if got := store.status(t, "5571999990014"); got != domain.StatusNaoElegivel {
		t.Errorf("terminal lead transitioned to %q", got)
	}
	id := store.byPhone["5571999990014"]
	if !store.leads[id].LastInteractionAt.Equal(later) {
		t.Error("terminal inbound should still move last_interaction_at")
	}
	if len(store.turns) != 2 {
		t.Errorf("turns = %d, want the second message recorded", len(store.turns))
	}
	if gen.calls != 0 {
		t.Errorf("generator calls = %d, want 0", gen.calls)
	}
	if len(sender.sent) != sentBefore {
		t.Error("terminal lead should not receive replies")
	}
}
