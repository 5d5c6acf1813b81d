package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/penhollow/custody-server/internal/domain/offense"
	"github.com/penhollow/custody-server/internal/events"
	"github.com/penhollow/custody-server/internal/platform/metrics"
)

// EventPersisterAdapter bridges the in-memory event log to the SQLite
// ledger. It implements events.EventPersister.
type EventPersisterAdapter struct {
	repo     EventRepository
	offenses OffenseRepository
	metrics  *metrics.Collector
	timeout  time.Duration
}

// NewEventPersisterAdapter creates the write-through adapter. offenses may
// be nil; OFFENSE_RECORDED events are then stored only in the ledger.
// metrics may be nil.
func NewEventPersisterAdapter(repo EventRepository, offenses OffenseRepository, m *metrics.Collector) *EventPersisterAdapter {
	return &EventPersisterAdapter{
		repo:     repo,
		offenses: offenses,
		metrics:  m,
		timeout:  5 * time.Second,
	}
}

// Append stores one event. Payloads are flattened to JSON maps; structured
// payload types survive the round trip as their JSON form.
func (a *EventPersisterAdapter) Append(event events.DetentionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	rec := CustodyEvent{
		ID:         event.ID,
		Timestamp:  event.Timestamp,
		EventType:  string(event.Type),
		ActorID:    event.ActorID,
		TargetID:   event.TargetID,
		Payload:    toMap(event.Payload),
		CustodyDay: event.CustodyDay,
	}
	err := a.repo.Append(ctx, rec)
	if a.metrics != nil {
		a.metrics.RecordEventWrite(err)
	}
	if err != nil {
		return err
	}

	if event.Type == events.EventTypeOffenseRecorded && a.offenses != nil {
		if o, ok := event.Payload.(offense.Offense); ok {
			return a.offenses.Insert(ctx, OffenseRecord{
				ID:           event.ID,
				ActorID:      event.ActorID,
				Kind:         string(o.Kind),
				Severity:     o.Severity,
				Witnessed:    o.Witnessed,
				WitnessCount: o.WitnessCount,
				VictimClass:  string(o.VictimClass),
				Timestamp:    o.Timestamp,
			})
		}
	}
	return nil
}

func toMap(payload interface{}) map[string]interface{} {
	if payload == nil {
		return map[string]interface{}{}
	}
	if m, ok := payload.(map[string]interface{}); ok {
		return m
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return map[string]interface{}{"unserializable": true}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		// Scalar payloads land under a single key.
		return map[string]interface{}{"value": string(raw)}
	}
	return m
}
