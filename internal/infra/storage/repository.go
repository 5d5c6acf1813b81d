// Package storage provides the persistence layer for the custody server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"time"
)

// CustodyEvent mirrors the domain event structure for persistence.
// The domain package should NOT import this; use interfaces instead.
type CustodyEvent struct {
	ID         string                 `json:"id" db:"id"`
	Timestamp  time.Time              `json:"timestamp" db:"timestamp"`
	EventType  string                 `json:"event_type" db:"event_type"`
	ActorID    string                 `json:"actor_id" db:"actor_id"`
	TargetID   string                 `json:"target_id" db:"target_id"`
	Payload    map[string]interface{} `json:"payload" db:"payload"`
	CustodyDay int                    `json:"custody_day" db:"custody_day"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event CustodyEvent) error

	// GetAll retrieves the full ledger in append order (for replay).
	GetAll(ctx context.Context) ([]CustodyEvent, error)

	// GetByActorID retrieves all events concerning an actor.
	GetByActorID(ctx context.Context, actorID string) ([]CustodyEvent, error)

	// GetByCustodyDay retrieves all events from a specific custody day.
	GetByCustodyDay(ctx context.Context, day int) ([]CustodyEvent, error)

	// GetByEventType retrieves all events of a specific type.
	GetByEventType(ctx context.Context, eventType string) ([]CustodyEvent, error)
}

// OffenseRecord is a persisted rap-sheet entry.
type OffenseRecord struct {
	ID           string    `json:"id" db:"id"`
	ActorID      string    `json:"actor_id" db:"actor_id"`
	Kind         string    `json:"kind" db:"kind"`
	Severity     float64   `json:"severity" db:"severity"`
	Witnessed    bool      `json:"witnessed" db:"witnessed"`
	WitnessCount int       `json:"witness_count" db:"witness_count"`
	VictimClass  string    `json:"victim_class" db:"victim_class"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// OffenseRepository defines the interface for rap-sheet persistence.
type OffenseRepository interface {
	// Insert appends one offense record. Rap sheets are append-only.
	Insert(ctx context.Context, rec OffenseRecord) error

	// GetByActorID retrieves an actor's full rap sheet in offense order.
	GetByActorID(ctx context.Context, actorID string) ([]OffenseRecord, error)
}
