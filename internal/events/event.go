// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"github.com/google/uuid"

	"leadflow_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published when a new lead is created from an inbound message.
type LeadCreated struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Phone  string    `json:"phone"`
	Source string    `json:"source,omitempty"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadStatusChanged is published on every lifecycle transition.
type LeadStatusChanged struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	Trigger   string    `json:"trigger"` // "inbound", "timeout", "scheduling", "classification"
}

func (e LeadStatusChanged) EventName() string { return "leads.status.changed" }

// SchedulingConfirmed is published when a lead books a visit.
type SchedulingConfirmed struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	SchedulingID uuid.UUID `json:"schedulingId"`
	Phone        string    `json:"phone"`
}

func (e SchedulingConfirmed) EventName() string { return "leads.scheduling.confirmed" }

// FollowUpMessageSent is published when the scheduler delivers a
// re-engagement message to an unresponsive lead.
type FollowUpMessageSent struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	Phone   string    `json:"phone"`
	Attempt int       `json:"attempt"`
}

func (e FollowUpMessageSent) EventName() string { return "leads.followup.sent" }

// =============================================================================
// Budget Domain Events
// =============================================================================

// BudgetThresholdCrossed is published the first time monthly spend crosses
// one of the alert thresholds within a billing period.
type BudgetThresholdCrossed struct {
	BaseEvent
	Period      string  `json:"period"` // YYYY-MM
	Threshold   int     `json:"threshold"`
	Percentage  float64 `json:"percentage"`
	SpentMicros int64   `json:"spentMicros"`
	LimitMicros int64   `json:"limitMicros"`
}

func (e BudgetThresholdCrossed) EventName() string { return "budget.threshold.crossed" }
