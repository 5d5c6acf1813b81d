package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/penhollow/custody-server/internal/domain/actor"
	"github.com/penhollow/custody-server/internal/events"
	"github.com/penhollow/custody-server/internal/platform/logger"
	"github.com/penhollow/custody-server/internal/platform/metrics"
)

// BookingState tracks an intake session through its lifecycle.
type BookingState string

const (
	BookingIdle             BookingState = "Idle"
	BookingInProgress       BookingState = "InProgress"
	BookingComplete         BookingState = "Complete"
	BookingEscortRequested  BookingState = "EscortRequested" // degraded: waiting out the fallback timer
	BookingEscortInProgress BookingState = "EscortInProgress"
	BookingFinished         BookingState = "Finished"
)

// BookingStep identifies one intake step.
type BookingStep string

const (
	StepMugshot   BookingStep = "Mugshot"
	StepScan      BookingStep = "Scan"
	StepGearIssue BookingStep = "GearIssue"
)

var (
	// ErrBookingActive rejects a second session for an actor with one open.
	ErrBookingActive = errors.New("booking session already active for actor")
	// ErrNoSession signals a step call for an actor with no open session.
	ErrNoSession = errors.New("no active booking session for actor")
)

// BookingConfig holds intake tuning.
type BookingConfig struct {
	// RequireBothIDSteps selects the completion predicate: both
	// identification steps, or either one, always plus gear issuance.
	RequireBothIDSteps bool

	// FallbackWaitMinutes is how long a completed session waits before
	// finishing without an escort when no worker could be acquired.
	FallbackWaitMinutes int64

	// ReceivingPoint is where the escort takes the actor after intake.
	ReceivingPoint Point
}

// DefaultBookingConfig returns the standard intake settings.
func DefaultBookingConfig() BookingConfig {
	return BookingConfig{
		RequireBothIDSteps:  true,
		FallbackWaitMinutes: 5,
		ReceivingPoint:      Point{X: 12, Y: 0, Z: -4},
	}
}

// BookingSession is the per-actor intake state. A new session always starts
// with clean flags and artifacts.
type BookingSession struct {
	Actor actor.Ref
	State BookingState

	MugshotDone bool
	ScanDone    bool
	GearIssued  bool

	RequireBothIDSteps bool
	EscortRequested    bool

	MugshotRef string // captured image handle
	ScanID     string

	Confiscated []string

	StartedAtMin     int64
	fallbackDeadline int64
	worker           EscortWorker
}

// complete evaluates the completion predicate.
func (s *BookingSession) complete() bool {
	if !s.GearIssued {
		return false
	}
	if s.RequireBothIDSteps {
		return s.MugshotDone && s.ScanDone
	}
	return s.MugshotDone || s.ScanDone
}

// BookingPipeline drives intake sessions to completion and hands finished
// actors off to the custody side. One session per actor at a time.
type BookingPipeline struct {
	mu       sync.Mutex
	cfg      BookingConfig
	sessions map[string]*BookingSession
	finished map[string]bool // actors whose session reached Finished

	pool     *GuardPool
	property PropertyService
	notifier Notifier
	eventLog *events.EventLog
	logger   *logger.Logger
	metrics  *metrics.Collector

	nowMin int64

	// onFinished notifies the custody side that booking-derived timers
	// (jail countdown, bail amount) may now start.
	onFinished func(actorID string)
}

// NewBookingPipeline creates the intake subsystem.
func NewBookingPipeline(cfg BookingConfig, pool *GuardPool, property PropertyService, notifier Notifier, eventLog *events.EventLog, log *logger.Logger, m *metrics.Collector) *BookingPipeline {
	return &BookingPipeline{
		cfg:      cfg,
		sessions: make(map[string]*BookingSession),
		finished: make(map[string]bool),
		pool:     pool,
		property: property,
		notifier: notifier,
		eventLog: eventLog,
		logger:   log,
		metrics:  m,
	}
}

// SetOnFinished installs the handoff hook. Wiring-time only.
func (bp *BookingPipeline) SetOnFinished(fn func(actorID string)) {
	bp.onFinished = fn
}

// StartBooking opens an intake session for the actor. Starting a second
// session while one is active is rejected.
func (bp *BookingPipeline) StartBooking(ref actor.Ref) (*BookingSession, error) {
	bp.mu.Lock()
	if _, exists := bp.sessions[ref.ID]; exists {
		bp.mu.Unlock()
		return nil, ErrBookingActive
	}

	// A re-admitted actor gets a clean slate.
	delete(bp.finished, ref.ID)

	s := &BookingSession{
		Actor:              ref,
		State:              BookingInProgress,
		RequireBothIDSteps: bp.cfg.RequireBothIDSteps,
		StartedAtMin:       bp.nowMin,
	}
	if bp.property != nil {
		s.Confiscated = bp.property.ConfiscatedItems(ref.ID)
	}
	bp.sessions[ref.ID] = s
	bp.mu.Unlock()

	bp.metrics.RecordBookingStarted()
	bp.emit(events.EventTypeBookingStarted, ref.ID, map[string]interface{}{
		"require_both_id_steps": s.RequireBothIDSteps,
		"confiscated":           s.Confiscated,
	})
	bp.notify(ref.Name+" has entered intake processing", "booking")

	return s, nil
}

// MarkStepComplete records one intake step and re-evaluates completion.
// Completion dispatches the escort synchronously; there is no idle waiting
// on a human trigger.
func (bp *BookingPipeline) MarkStepComplete(actorID string, step BookingStep, artifact string) error {
	bp.mu.Lock()
	s, ok := bp.sessions[actorID]
	if !ok {
		bp.mu.Unlock()
		return ErrNoSession
	}
	if s.State != BookingInProgress {
		bp.mu.Unlock()
		return errors.New("booking session is not accepting steps in state " + string(s.State))
	}

	switch step {
	case StepMugshot:
		s.MugshotDone = true
		s.MugshotRef = artifact
	case StepScan:
		s.ScanDone = true
		s.ScanID = artifact
	case StepGearIssue:
		s.GearIssued = true
	default:
		bp.mu.Unlock()
		return errors.New("unknown booking step: " + string(step))
	}

	done := s.complete()
	if done {
		s.State = BookingComplete
	}
	name := s.Actor.Name
	bp.mu.Unlock()

	bp.emit(events.EventTypeBookingStep, actorID, map[string]string{"step": string(step), "artifact": artifact})

	if done {
		bp.emit(events.EventTypeBookingComplete, actorID, nil)
		bp.notify(name+" completed intake, requesting escort", "booking")
		bp.requestEscort(actorID)
	}
	return nil
}

// IsBookingComplete reports whether the session's completion predicate is
// satisfied. Sessions that ran through Finished still report true; only a
// never-booked or cancelled actor reports false.
func (bp *BookingPipeline) IsBookingComplete(actorID string) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.finished[actorID] {
		return true
	}
	s, ok := bp.sessions[actorID]
	return ok && s.State != BookingInProgress
}

// Session returns the live session for inspection, if any.
func (bp *BookingPipeline) Session(actorID string) (*BookingSession, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	s, ok := bp.sessions[actorID]
	return s, ok
}

// CancelBooking drops an in-flight session, freeing any assigned worker.
func (bp *BookingPipeline) CancelBooking(actorID string) {
	bp.mu.Lock()
	s, ok := bp.sessions[actorID]
	if !ok {
		bp.mu.Unlock()
		bp.logger.Info("CancelBooking for actor " + actorID + " with no session, ignoring")
		return
	}
	w := s.worker
	s.worker = nil
	delete(bp.sessions, actorID)
	bp.mu.Unlock()

	bp.pool.Free(w)
	bp.emit(events.EventTypeBookingCancelled, actorID, nil)
	bp.logger.Event("BOOKING_CANCELLED", actorID, "session dropped")
}

// OnTimeTick is the periodic monitor: it re-checks completion for sessions
// whose steps completed outside the normal call path, and finishes sessions
// whose degraded fallback wait has elapsed.
func (bp *BookingPipeline) OnTimeTick(payload TimeTickPayload) {
	bp.mu.Lock()
	bp.nowMin = payload.Minute

	var toEscort, toFinish []string
	for id, s := range bp.sessions {
		switch s.State {
		case BookingInProgress:
			if s.complete() {
				s.State = BookingComplete
				toEscort = append(toEscort, id)
			}
		case BookingEscortRequested:
			if payload.Minute >= s.fallbackDeadline {
				toFinish = append(toFinish, id)
			}
		}
	}
	bp.mu.Unlock()

	for _, id := range toEscort {
		bp.emit(events.EventTypeBookingComplete, id, nil)
		bp.requestEscort(id)
	}
	for _, id := range toFinish {
		bp.logger.Warn("Booking escort fallback elapsed for " + id + ", finishing without escort")
		bp.finish(id)
	}
}

// requestEscort tries to claim a worker for the completed session. With no
// worker available the session degrades to a fixed wait instead of blocking.
func (bp *BookingPipeline) requestEscort(actorID string) {
	w := bp.pool.Acquire()

	bp.mu.Lock()
	s, ok := bp.sessions[actorID]
	if !ok {
		bp.mu.Unlock()
		bp.pool.Free(w)
		return
	}
	s.EscortRequested = true

	if w == nil {
		s.State = BookingEscortRequested
		s.fallbackDeadline = bp.nowMin + bp.cfg.FallbackWaitMinutes
		bp.mu.Unlock()

		bp.emit(events.EventTypeEscortFallback, actorID, map[string]int64{"wait_minutes": bp.cfg.FallbackWaitMinutes})
		bp.notify("No officer available, intake for "+actorID+" proceeding unescorted", "booking")
		return
	}

	s.State = BookingEscortInProgress
	s.worker = w
	bp.mu.Unlock()

	bp.emit(events.EventTypeEscortRequested, actorID, map[string]string{"worker_id": w.ID()})

	err := w.StartEscort(actorID, bp.cfg.ReceivingPoint, EscortCallbacks{
		Completed: func() { bp.escortDone(actorID) },
		Failed:    func(reason string) { bp.escortFailed(actorID, reason) },
	})
	if err != nil {
		bp.escortFailed(actorID, err.Error())
	}
}

// escortDone finishes the session once the officer delivered the actor.
func (bp *BookingPipeline) escortDone(actorID string) {
	bp.mu.Lock()
	s, ok := bp.sessions[actorID]
	if !ok {
		bp.mu.Unlock()
		return
	}
	w := s.worker
	s.worker = nil
	bp.mu.Unlock()

	bp.pool.Free(w)
	bp.finish(actorID)
}

// escortFailed degrades the session to the fixed-wait fallback path.
func (bp *BookingPipeline) escortFailed(actorID, reason string) {
	bp.mu.Lock()
	s, ok := bp.sessions[actorID]
	if !ok {
		bp.mu.Unlock()
		return
	}
	w := s.worker
	s.worker = nil
	s.State = BookingEscortRequested
	s.fallbackDeadline = bp.nowMin + bp.cfg.FallbackWaitMinutes
	bp.mu.Unlock()

	bp.pool.Free(w)
	bp.logger.Warn("Booking escort for " + actorID + " failed (" + reason + "), degrading to fallback wait")
	bp.emit(events.EventTypeEscortFallback, actorID, map[string]string{"reason": reason})
}

// finish clears the session and hands off to the custody side.
func (bp *BookingPipeline) finish(actorID string) {
	bp.mu.Lock()
	s, ok := bp.sessions[actorID]
	if !ok {
		bp.mu.Unlock()
		return
	}
	s.State = BookingFinished
	w := s.worker
	s.worker = nil
	name := s.Actor.Name
	delete(bp.sessions, actorID)
	bp.finished[actorID] = true
	bp.mu.Unlock()

	bp.pool.Free(w)
	bp.metrics.RecordBookingFinished()
	bp.emit(events.EventTypeBookingFinished, actorID, nil)
	bp.notify(name+" booked in; custody clock starts now", "booking")

	if bp.onFinished != nil {
		bp.onFinished(actorID)
	}
}

func (bp *BookingPipeline) emit(t events.EventType, actorID string, payload interface{}) {
	bp.eventLog.Append(events.DetentionEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      t,
		ActorID:   actorID,
		Payload:   payload,
	})
}

func (bp *BookingPipeline) notify(message, category string) {
	if bp.notifier != nil {
		bp.notifier.Notify(message, category)
	}
}
