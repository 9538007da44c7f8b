package types

import "time"

// EventName identifies an e-billing domain event
type EventName string

const (
	EventAlertRaised      EventName = "ebilling.alert.raised"
	EventAuditLogged      EventName = "ebilling.audit.logged"
	EventDocumentUpdated  EventName = "ebilling.document.updated"
	EventUsageIncremented EventName = "ebilling.usage.incremented"
)

// Event is the envelope published on the events topic
type Event struct {
	ID        string         `json:"id"`
	EventName EventName      `json:"event_name"`
	TenantID  string         `json:"tenant_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// NewEvent builds an event with a fresh id
func NewEvent(name EventName, tenantID string, payload map[string]any) *Event {
	return &Event{
		ID:        GenerateUUIDWithPrefix(UUID_PREFIX_EVENT),
		EventName: name,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
