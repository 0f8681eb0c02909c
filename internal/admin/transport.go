package admin

import (
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/eligibility"
	"leadflow_backend/internal/leads/domain"
)

type leadResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Phone              string     `json:"phone"`
	Name               *string    `json:"name"`
	Region             *string    `json:"region"`
	RegionName         string     `json:"regionName,omitempty"`
	Interest           *string    `json:"interest"`
	Availability       *string    `json:"availability"`
	Status             string     `json:"status"`
	Eligibility        string     `json:"eligibility"`
	FollowUpAttempts   int        `json:"followUpAttempts"`
	LastInteractionAt  time.Time  `json:"lastInteractionAt"`
	NextFollowUpAt     *time.Time `json:"nextFollowUpAt"`
	PreferredMeetingAt *time.Time `json:"preferredMeetingAt"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

type turnResponse struct {
	ID           uuid.UUID `json:"id"`
	InboundText  string    `json:"inboundText"`
	OutboundText string    `json:"outboundText"`
	TokensIn     int       `json:"tokensIn"`
	TokensOut    int       `json:"tokensOut"`
	TokensTotal  int       `json:"tokensTotal"`
	CostMicros   int64     `json:"costMicros"`
	LatencyMs    int64     `json:"latencyMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

type schedulingResponse struct {
	ID             uuid.UUID `json:"id"`
	MeetingAt      time.Time `json:"meetingAt"`
	Status         string    `json:"status"`
	Representative *string   `json:"representative"`
	Notes          *string   `json:"notes"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toLeadResponse(lead *domain.Lead) leadResponse {
	regionName := ""
	if lead.Region != nil {
		regionName = eligibility.RegionName(*lead.Region)
	}
	return leadResponse{
		ID:                 lead.ID,
		Phone:              lead.Phone,
		Name:               lead.Name,
		Region:             lead.Region,
		RegionName:         regionName,
		Interest:           lead.Interest,
		Availability:       lead.Availability,
		Status:             lead.Status,
		Eligibility:        lead.Eligibility,
		FollowUpAttempts:   lead.FollowUpAttempts,
		LastInteractionAt:  lead.LastInteractionAt,
		NextFollowUpAt:     lead.NextFollowUpAt,
		PreferredMeetingAt: lead.PreferredMeetingAt,
		CreatedAt:          lead.CreatedAt,
		UpdatedAt:          lead.UpdatedAt,
	}
}

func toLeadResponses(leads []*domain.Lead) []leadResponse {
	items := make([]leadResponse, 0, len(leads))
	for _, lead := range leads {
		items = append(items, toLeadResponse(lead))
	}
	return items
}

func toTurnResponses(turns []domain.ConversationTurn) []turnResponse {
	items := make([]turnResponse, 0, len(turns))
	for _, turn := range turns {
		items = append(items, turnResponse{
			ID:           turn.ID,
			InboundText:  turn.InboundText,
			OutboundText: turn.OutboundText,
			TokensIn:     turn.TokensIn,
			TokensOut:    turn.TokensOut,
			TokensTotal:  turn.TokensTotal,
			CostMicros:   turn.CostMicros,
			LatencyMs:    turn.LatencyMs,
			CreatedAt:    turn.CreatedAt,
		})
	}
	return items
}

func toSchedulingResponses(schedulings []domain.Scheduling) []schedulingResponse {
	items := make([]schedulingResponse, 0, len(schedulings))
	for _, s := range schedulings {
		items = append(items, schedulingResponse{
			ID:             s.ID,
			MeetingAt:      s.MeetingAt,
			Status:         s.Status,
			Representative: s.Representative,
			Notes:          s.Notes,
			CreatedAt:      s.CreatedAt,
		})
	}
	return items
}
