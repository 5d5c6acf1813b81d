package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/penhollow/custody-server/internal/domain/actor"
	"github.com/penhollow/custody-server/internal/domain/offense"
	"github.com/penhollow/custody-server/internal/events"
	"github.com/penhollow/custody-server/internal/platform/logger"
	"github.com/penhollow/custody-server/internal/platform/metrics"
	"github.com/penhollow/custody-server/internal/sentencing"
)

// CustodySnapshot is the durable per-actor custody record. It carries
// enough to rebuild the custody clock after a restart.
type CustodySnapshot struct {
	ActorID         string  `json:"actor_id"`
	ActorName       string  `json:"actor_name"`
	UnitID          string  `json:"unit_id"`
	SentenceMinutes int     `json:"sentence_minutes"`
	FineAmount      float64 `json:"fine_amount"`
	StartMinute     int64   `json:"start_minute"`
	EndMinute       int64   `json:"end_minute"`
}

// CustodyRecorder persists custody snapshots. The sqlite repository
// implements it; tests use an in-memory fake.
type CustodyRecorder interface {
	CustodyStore
	SaveCustodySnapshot(s CustodySnapshot) error
	LoadCustodySnapshots() ([]CustodySnapshot, error)
}

// Engine is the composition root of the custody core: it owns the clock,
// the shared officer pool, intake, cell allocation and release, and routes
// ticks and lifecycle hand-offs between them.
type Engine struct {
	mu      sync.Mutex
	actors  map[string]*actor.Actor
	custody map[string]*CustodySnapshot

	ticker    *Ticker
	eventLog  *events.EventLog
	pool      *GuardPool
	allocator *CellAllocator
	booking   *BookingPipeline
	release   *ReleaseOrchestrator

	sentCalc *sentencing.SentenceCalculator
	fineCalc *sentencing.FineCalculator

	recorder CustodyRecorder
	notifier Notifier
	logger   *logger.Logger
	metrics  *metrics.Collector
}

// EngineDeps bundles the wired subsystems the engine composes. All fields
// are required except Recorder and Notifier.
type EngineDeps struct {
	Ticker    *Ticker
	EventLog  *events.EventLog
	Pool      *GuardPool
	Allocator *CellAllocator
	Booking   *BookingPipeline
	Release   *ReleaseOrchestrator

	SentenceCalc *sentencing.SentenceCalculator
	FineCalc     *sentencing.FineCalculator

	Recorder CustodyRecorder
	Notifier Notifier
	Logger   *logger.Logger
	Metrics  *metrics.Collector
}

// NewEngine assembles the core and installs the cross-subsystem hooks:
// intake hand-off into custody, custody-cleared back into cell release,
// and the tick fan-out.
func NewEngine(d EngineDeps) *Engine {
	e := &Engine{
		actors:    make(map[string]*actor.Actor),
		custody:   make(map[string]*CustodySnapshot),
		ticker:    d.Ticker,
		eventLog:  d.EventLog,
		pool:      d.Pool,
		allocator: d.Allocator,
		booking:   d.Booking,
		release:   d.Release,
		sentCalc:  d.SentenceCalc,
		fineCalc:  d.FineCalc,
		recorder:  d.Recorder,
		notifier:  d.Notifier,
		logger:    d.Logger,
		metrics:   d.Metrics,
	}

	e.booking.SetOnFinished(e.onBookingFinished)
	e.release.SetOnCustodyCleared(e.onCustodyCleared)
	e.eventLog.Subscribe(events.EventTypeTimeTick, e.onTick)

	return e
}

// Start begins the simulated clock. Restore should run first so the clock
// resumes rather than resets.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Custody core starting")
	go e.ticker.Start(ctx)
}

// Stop halts the clock. In-flight escorts are owned by their workers and
// wind down on their own.
func (e *Engine) Stop() {
	e.ticker.Stop()
	e.logger.Info("Custody core stopped")
}

// Restore reloads persisted custody snapshots, re-registers their actors,
// re-assigns their cells, and advances the clock past the latest snapshot
// so no custody clock runs backwards.
func (e *Engine) Restore() error {
	if e.recorder == nil {
		return nil
	}
	snaps, err := e.recorder.LoadCustodySnapshots()
	if err != nil {
		return fmt.Errorf("load custody snapshots: %w", err)
	}

	var maxStart int64
	for i := range snaps {
		s := snaps[i]
		a := actor.NewActor(s.ActorID, s.ActorName)
		a.InCustody = true

		e.mu.Lock()
		e.actors[s.ActorID] = a
		e.custody[s.ActorID] = &s
		e.mu.Unlock()

		e.release.RegisterActor(a)
		if _, err := e.allocator.AssignActor(s.ActorID); err != nil {
			e.logger.Warn("Restore could not re-assign unit for " + s.ActorID + ": " + err.Error())
		}
		if s.StartMinute > maxStart {
			maxStart = s.StartMinute
		}
	}

	if maxStart > 0 {
		e.ticker.SetTime(maxStart, maxStart)
	}
	e.logger.Info(fmt.Sprintf("Restored %d custody snapshot(s)", len(snaps)))
	return nil
}

// Admit registers a new arrival and opens their intake session.
func (e *Engine) Admit(id, name string) (*actor.Actor, error) {
	e.mu.Lock()
	a, ok := e.actors[id]
	if !ok {
		a = actor.NewActor(id, name)
		e.actors[id] = a
	}
	e.mu.Unlock()

	e.release.RegisterActor(a)
	if _, err := e.booking.StartBooking(a.Ref); err != nil {
		return nil, err
	}
	return a, nil
}

// RecordOffense appends an offense to the actor's rap sheet and emits it.
// Offenses recorded mid-custody lengthen nothing retroactively; they count
// at the next sentencing.
func (e *Engine) RecordOffense(actorID string, o offense.Offense) error {
	e.mu.Lock()
	a, ok := e.actors[actorID]
	e.mu.Unlock()
	if !ok {
		return ErrUnknownActor
	}

	a.RecordOffense(o)
	e.eventLog.Append(events.DetentionEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeOffenseRecorded,
		ActorID:   actorID,
		Payload:   o,
	})
	return nil
}

// CompleteBookingStep forwards a finished intake step to the pipeline.
func (e *Engine) CompleteBookingStep(actorID string, step BookingStep, artifact string) error {
	return e.booking.MarkStepComplete(actorID, step, artifact)
}

// CancelBooking drops an in-flight intake session.
func (e *Engine) CancelBooking(actorID string) {
	e.booking.CancelBooking(actorID)
}

// CancelRelease drops an in-flight release request.
func (e *Engine) CancelRelease(actorID string) bool {
	return e.release.CancelRelease(actorID)
}

// PostBail releases an actor early when the posted amount covers the
// outstanding fine.
func (e *Engine) PostBail(actorID string, amount float64) error {
	e.mu.Lock()
	rec, ok := e.custody[actorID]
	e.mu.Unlock()
	if !ok {
		return ErrUnknownActor
	}
	if amount < rec.FineAmount {
		return fmt.Errorf("bail %.2f does not cover fine %.2f", amount, rec.FineAmount)
	}
	return e.release.InitiateRelease(actorID, ReleaseBail, amount, "bail posted")
}

// CourtOrderRelease releases an actor on an external order, fine unpaid
// or not.
func (e *Engine) CourtOrderRelease(actorID, reason string) error {
	return e.release.InitiateRelease(actorID, ReleaseCourtOrder, 0, reason)
}

// EmergencyRelease bypasses the escort flow entirely.
func (e *Engine) EmergencyRelease(actorID string) error {
	return e.release.EmergencyRelease(actorID)
}

// ConfirmInventoryProcessed forwards the property-desk confirmation.
func (e *Engine) ConfirmInventoryProcessed(actorID string) {
	e.release.OnInventoryProcessingComplete(actorID)
}

// ConfirmExit forwards the exit-scan confirmation.
func (e *Engine) ConfirmExit(actorID string) {
	e.release.OnExitConfirmed(actorID)
}

// Actor returns the registered actor, if any.
func (e *Engine) Actor(actorID string) (*actor.Actor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.actors[actorID]
	return a, ok
}

// Custody returns the actor's live custody record, if any.
func (e *Engine) Custody(actorID string) (CustodySnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.custody[actorID]
	if !ok {
		return CustodySnapshot{}, false
	}
	return *rec, true
}

// Status is the aggregate view served on the status endpoint.
type Status struct {
	SimMinute    int64      `json:"sim_minute"`
	InCustody    int        `json:"in_custody"`
	ReleaseQueue int        `json:"release_queue"`
	OfficersIdle int        `json:"officers_idle"`
	OfficersBusy int        `json:"officers_busy"`
	LongStay     PoolStatus `json:"long_stay"`
	Holding      PoolStatus `json:"holding"`
}

// Snapshot assembles the current facility status.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	inCustody := len(e.custody)
	e.mu.Unlock()

	long, hold := e.allocator.Status()
	return Status{
		SimMinute:    e.ticker.CurrentMinute(),
		InCustody:    inCustody,
		ReleaseQueue: e.release.QueueLength(),
		OfficersIdle: e.pool.Available(),
		OfficersBusy: e.pool.Busy(),
		LongStay:     long,
		Holding:      hold,
	}
}

// onTick fans the clock out to the monitored subsystems and starts
// time-served releases for expired sentences.
func (e *Engine) onTick(event events.DetentionEvent) {
	payload, ok := event.Payload.(TimeTickPayload)
	if !ok {
		return
	}

	e.booking.OnTimeTick(payload)
	e.release.OnTimeTick(payload)

	e.mu.Lock()
	var served []string
	for id, rec := range e.custody {
		if payload.Minute >= rec.EndMinute {
			served = append(served, id)
		}
	}
	e.mu.Unlock()

	for _, id := range served {
		err := e.release.InitiateRelease(id, ReleaseTimeServed, 0, "sentence served")
		if err != nil && err != ErrReleaseActive {
			e.logger.Error("Time-served release for " + id + " failed: " + err.Error())
		}
	}
}

// onBookingFinished moves a freshly booked actor into custody: unit
// assignment, sentencing, fine, persistence, and the custody clock.
func (e *Engine) onBookingFinished(actorID string) {
	e.mu.Lock()
	a, ok := e.actors[actorID]
	e.mu.Unlock()
	if !ok {
		e.logger.Error("Booking finished for unknown actor " + actorID)
		return
	}

	unitID, err := e.allocator.AssignActor(actorID)
	if err != nil {
		// Long-stay full: keep the actor in holding rather than losing them.
		e.logger.Warn("No long-stay capacity for " + actorID + ", placing in holding: " + err.Error())
		unitID, err = e.allocator.AssignTransient(actorID, a.Name)
		if err != nil {
			e.logger.Error("Facility full, cannot place " + actorID)
			e.notify("Facility at capacity, "+a.Name+" left unplaced", "capacity")
			return
		}
	}

	sentence := e.sentCalc.Calculate(a.RapSheet)
	fine := e.fineCalc.CalculateTotalFine(a, a.RapSheet)
	now := e.ticker.CurrentMinute()

	rec := &CustodySnapshot{
		ActorID:         actorID,
		ActorName:       a.Name,
		UnitID:          unitID,
		SentenceMinutes: sentence,
		FineAmount:      fine,
		StartMinute:     now,
		EndMinute:       now + int64(sentence),
	}

	e.mu.Lock()
	a.InCustody = true
	e.custody[actorID] = rec
	e.mu.Unlock()

	if e.recorder != nil {
		if err := e.recorder.SaveCustodySnapshot(*rec); err != nil {
			e.logger.Error("Persisting custody snapshot for " + actorID + " failed: " + err.Error())
		}
	}

	e.eventLog.Append(events.DetentionEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeCustodyStarted,
		ActorID:   actorID,
		TargetID:  unitID,
		Payload:   *rec,
	})
	e.logger.Event("CUSTODY_STARTED", actorID, fmt.Sprintf("unit %s, %d min, fine %.2f", unitID, sentence, fine))
	e.notify(fmt.Sprintf("%s sentenced to %d minutes (fine %.2f), unit %s", a.Name, sentence, fine, unitID), "custody")
}

// onCustodyCleared runs when a release completes: free the unit and drop
// the live custody record. The durable snapshot is cleared by the release
// flow itself.
func (e *Engine) onCustodyCleared(actorID string) {
	e.allocator.Release(actorID)

	e.mu.Lock()
	delete(e.custody, actorID)
	e.mu.Unlock()
}

func (e *Engine) notify(message, category string) {
	if e.notifier != nil {
		e.notifier.Notify(message, category)
	}
}
