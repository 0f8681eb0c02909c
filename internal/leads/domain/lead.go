package domain

import (
	"time"

	"github.com/google/uuid"
)

// Eligibility values stored on the lead once the region is known.
const (
	EligibilityUnknown    = ""
	EligibilityEligible   = "eligible"
	EligibilityInterest   = "interest"
	EligibilityIneligible = "ineligible"
)

// Lead is one prospective contact, unique per phone identity.
type Lead struct {
	ID                 uuid.UUID
	Phone              string
	Name               *string
	Region             *string
	Interest           *string
	Availability       *string
	Status             string
	Eligibility        string
	FollowUpAttempts   int
	LastInteractionAt  time.Time
	NextFollowUpAt     *time.Time
	PreferredMeetingAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsQualified reports whether every field required for booking a visit has
// been collected.
func (l *Lead) IsQualified() bool {
	return hasValue(l.Name) && hasValue(l.Region) && hasValue(l.Interest) && hasValue(l.Availability)
}

// Age returns how long ago the lead was first seen.
func (l *Lead) Age(now time.Time) time.Duration {
	return now.Sub(l.CreatedAt)
}

func hasValue(s *string) bool {
	return s != nil && *s != ""
}

// ConversationTurn is one processed inbound message and its reply.
// Immutable once written.
type ConversationTurn struct {
	ID           uuid.UUID
	LeadID       uuid.UUID
	InboundText  string
	OutboundText string
	TokensIn     int
	TokensOut    int
	TokensTotal  int
	CostMicros   int64 // micro-dollars, 1e-6 USD
	LatencyMs    int64
	CreatedAt    time.Time
}

// Scheduling statuses.
const (
	SchedulingStatusScheduled = "scheduled"
	SchedulingStatusCancelled = "cancelled"
)

// Scheduling is one confirmed visit for a lead.
type Scheduling struct {
	ID             uuid.UUID
	LeadID         uuid.UUID
	MeetingAt      time.Time
	Status         string
	Representative *string
	Notes          *string
	CreatedAt      time.Time
}
