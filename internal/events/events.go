// Package events publishes domain events after a write has committed.
package events

import (
	"context"
	"time"
)

// TypeApplicationCreated is the envelope type of ApplicationCreated.
const TypeApplicationCreated = "application.created"

// ApplicationCreated announces a new supply. It carries ids only.
type ApplicationCreated struct {
	SupplyID  string    `json:"supply_id"`
	DemandID  string    `json:"demand_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Envelope is the wire format shared by every sink.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Publisher delivers events. Callers treat failures as non-fatal.
type Publisher interface {
	ApplicationCreated(ctx context.Context, ev ApplicationCreated) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) ApplicationCreated(context.Context, ApplicationCreated) error { return nil }
