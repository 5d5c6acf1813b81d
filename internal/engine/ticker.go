// Package engine contains the custody simulation loop and its subsystems:
// intake booking, cell allocation, and supervised release.
//
// ARCHITECTURAL RULE: subsystems are driven by TIME_TICK events and by
// explicit callbacks; they never spin their own timers. A subsystem must
// re-validate state on every tick instead of assuming nothing changed.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/penhollow/custody-server/internal/events"
	"github.com/penhollow/custody-server/internal/platform/logger"
	"github.com/penhollow/custody-server/internal/platform/metrics"
)

// TickRate defines how often the simulated clock advances (in real time).
const TickRate = 1 * time.Second

// MinutesPerTick is how many simulated minutes pass per tick.
const MinutesPerTick = 1

// TimeTickPayload is the data attached to each TIME_TICK event.
type TimeTickPayload struct {
	Minute     int64 `json:"minute"` // simulated minutes since facility start
	CustodyDay int   `json:"custody_day"`
	Hour       int   `json:"hour"` // 0-23 simulated
	TickNumber int64 `json:"tick_number"`
}

// Ticker manages the simulation heartbeat. It does not know about actors or
// cells, only time progression.
type Ticker struct {
	eventLog   *events.EventLog
	logger     *logger.Logger
	metrics    *metrics.Collector
	tickNumber int64
	minute     int64
	stopChan   chan struct{}
}

// NewTicker creates a new simulation ticker.
func NewTicker(eventLog *events.EventLog, log *logger.Logger, m *metrics.Collector) *Ticker {
	return &Ticker{
		eventLog: eventLog,
		logger:   log,
		metrics:  m,
		stopChan: make(chan struct{}),
	}
}

// Start begins the simulation loop. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	t.logger.Info("Custody clock started.")

	ticker := time.NewTicker(TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Custody clock stopped by context.")
			return
		case <-t.stopChan:
			t.logger.Info("Custody clock stopped manually.")
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// Stop gracefully stops the ticker.
func (t *Ticker) Stop() {
	close(t.stopChan)
}

// SetTime allows bootstrapping commands to set the clock directly.
func (t *Ticker) SetTime(minute int64, tickNumber int64) {
	t.minute = minute
	t.tickNumber = tickNumber
}

// CurrentMinute returns the simulated clock in minutes.
func (t *Ticker) CurrentMinute() int64 {
	return t.minute
}

// tick advances the clock one step and emits the TIME_TICK event. Latency
// covers the synchronous handler fan-out, not just the append.
func (t *Ticker) tick() {
	start := time.Now()
	t.tickNumber++
	t.minute += MinutesPerTick

	payload := TimeTickPayload{
		Minute:     t.minute,
		CustodyDay: int(t.minute/1440) + 1,
		Hour:       int(t.minute / 60 % 24),
		TickNumber: t.tickNumber,
	}

	t.eventLog.Append(events.DetentionEvent{
		ID:         events.GenerateEventID(),
		Timestamp:  time.Now(),
		Type:       events.EventTypeTimeTick,
		ActorID:    "SYSTEM_CLOCK",
		Payload:    payload,
		CustodyDay: payload.CustodyDay,
	})

	t.metrics.RecordTick(time.Since(start))

	if t.minute%60 == 0 {
		t.logger.Event("TIME_TICK", "CLOCK", fmt.Sprintf("Day %d Hour %02d", payload.CustodyDay, payload.Hour))
	}
}
