package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadflow_backend/internal/leads/domain"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, phone, name, region, interest, availability, status, eligibility,
	follow_up_attempts, last_interaction_at, next_follow_up_at, preferred_meeting_at,
	created_at, updated_at`

func scanLead(row pgx.Row) (*domain.Lead, error) {
	var lead domain.Lead
	err := row.Scan(
		&lead.ID, &lead.Phone, &lead.Name, &lead.Region, &lead.Interest, &lead.Availability,
		&lead.Status, &lead.Eligibility, &lead.FollowUpAttempts, &lead.LastInteractionAt,
		&lead.NextFollowUpAt, &lead.PreferredMeetingAt, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &lead, nil
}

// Create inserts a new lead in status novo for an unseen phone identity.
func (r *Repository) Create(ctx context.Context, phone string, receivedAt time.Time) (*domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (phone, status, last_interaction_at)
		VALUES ($1, $2, $3)
		RETURNING `+leadColumns+`
	`, phone, domain.StatusNovo, receivedAt)
	return scanLead(row)
}

func (r *Repository) GetByPhone(ctx context.Context, phone string) (*domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE phone = $1
	`, phone)
	return scanLead(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id = $1
	`, id)
	return scanLead(row)
}

// UpdateProfile persists the qualification fields collected so far.
func (r *Repository) UpdateProfile(ctx context.Context, lead *domain.Lead) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET name = $2, region = $3, interest = $4, availability = $5, eligibility = $6,
			preferred_meeting_at = $7, last_interaction_at = $8, updated_at = now()
		WHERE id = $1
	`, lead.ID, lead.Name, lead.Region, lead.Interest, lead.Availability,
		lead.Eligibility, lead.PreferredMeetingAt, lead.LastInteractionAt)
	return err
}

// UpdateStatus conditionally transitions a lead. The write applies only when
// the stored status still equals expected, which makes timeout-versus-inbound
// races safe: the loser of the race sees applied == false and drops its event.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next string, nextFollowUpAt *time.Time, followUpAttempts int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET status = $3, next_follow_up_at = $4, follow_up_attempts = $5, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, expected, next, nextFollowUpAt, followUpAttempts)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// TouchInteraction updates last_interaction_at without changing status.
func (r *Repository) TouchInteraction(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET last_interaction_at = $2, updated_at = now()
		WHERE id = $1
	`, id, at)
	return err
}

// ListDueFollowUps returns leads whose next_follow_up_at has passed and
// whose status is still timeout-eligible, oldest breach first.
func (r *Repository) ListDueFollowUps(ctx context.Context, now time.Time, limit int) ([]*domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE next_follow_up_at IS NOT NULL
			AND next_follow_up_at <= $1
			AND status = ANY($2)
		ORDER BY next_follow_up_at ASC
		LIMIT $3
	`, now, []string{domain.StatusAguardandoResposta, domain.StatusSemResposta, domain.StatusRecuperando}, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]*domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	return leads, rows.Err()
}

// AppendTurn records one immutable conversation turn.
func (r *Repository) AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO conversations (lead_id, inbound_text, outbound_text, tokens_in, tokens_out, tokens_total, cost_micros, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, turn.LeadID, turn.InboundText, turn.OutboundText, turn.TokensIn, turn.TokensOut,
		turn.TokensTotal, turn.CostMicros, turn.LatencyMs,
	).Scan(&turn.ID, &turn.CreatedAt)
}

// ListTurns returns the most recent turns for a lead in chronological order.
func (r *Repository) ListTurns(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.ConversationTurn, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, inbound_text, outbound_text, tokens_in, tokens_out, tokens_total, cost_micros, latency_ms, created_at
		FROM (
			SELECT id, lead_id, inbound_text, outbound_text, tokens_in, tokens_out, tokens_total, cost_micros, latency_ms, created_at
			FROM conversations
			WHERE lead_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := make([]domain.ConversationTurn, 0)
	for rows.Next() {
		var turn domain.ConversationTurn
		if err := rows.Scan(
			&turn.ID, &turn.LeadID, &turn.InboundText, &turn.OutboundText,
			&turn.TokensIn, &turn.TokensOut, &turn.TokensTotal,
			&turn.CostMicros, &turn.LatencyMs, &turn.CreatedAt,
		); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

// CreateScheduling records a confirmed visit for a lead.
func (r *Repository) CreateScheduling(ctx context.Context, s *domain.Scheduling) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO schedulings (lead_id, meeting_at, status, representative, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, s.LeadID, s.MeetingAt, s.Status, s.Representative, s.Notes,
	).Scan(&s.ID, &s.CreatedAt)
}

// ListSchedulings returns all schedulings for a lead, newest first.
func (r *Repository) ListSchedulings(ctx context.Context, leadID uuid.UUID) ([]domain.Scheduling, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, meeting_at, status, representative, notes, created_at
		FROM schedulings
		WHERE lead_id = $1
		ORDER BY created_at DESC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Scheduling, 0)
	for rows.Next() {
		var s domain.Scheduling
		if err := rows.Scan(&s.ID, &s.LeadID, &s.MeetingAt, &s.Status, &s.Representative, &s.Notes, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}

	return items, rows.Err()
}

// PeriodSpendMicros sums conversation costs within [from, to).
// Used to hydrate the budget ledger at boot.
func (r *Repository) PeriodSpendMicros(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(cost_micros), 0)
		FROM conversations
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&total)
	return total, err
}

// PeriodTokenTotals returns aggregate token counts within [from, to).
func (r *Repository) PeriodTokenTotals(ctx context.Context, from, to time.Time) (tokensIn, tokensOut int64, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(tokens_in), 0), COALESCE(SUM(tokens_out), 0)
		FROM conversations
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&tokensIn, &tokensOut)
	return tokensIn, tokensOut, err
}

// PeriodAvgLatencyMs returns the mean provider latency within [from, to),
// counting only turns that actually called the provider.
func (r *Repository) PeriodAvgLatencyMs(ctx context.Context, from, to time.Time) (float64, error) {
	var avg float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(latency_ms), 0)
		FROM conversations
		WHERE created_at >= $1 AND created_at < $2 AND latency_ms > 0
	`, from, to).Scan(&avg)
	return avg, err
}

// CountSchedulings returns the total number of scheduled visits.
func (r *Repository) CountSchedulings(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM schedulings WHERE status = $1
	`, domain.SchedulingStatusScheduled).Scan(&count)
	return count, err
}

// List returns leads for the admin surface, optionally filtered by status,
// newest first.
func (r *Repository) List(ctx context.Context, status string, limit, offset int) ([]*domain.Lead, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
	`
	args := []any{}
	if status != "" {
		query += `WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
		args = append(args, status, limit, offset)
	} else {
		query += `ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]*domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	return leads, rows.Err()
}

// CountByStatus returns how many leads sit in each lifecycle status.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM leads
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

// Count returns the total number of leads, optionally filtered by status.
func (r *Repository) Count(ctx context.Context, status string) (int64, error) {
	var count int64
	var err error
	if status != "" {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads WHERE status = $1`, status).Scan(&count)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return count, nil
}
