package engine

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/penhollow/custody-server/internal/domain/actor"
	"github.com/penhollow/custody-server/internal/events"
	"github.com/penhollow/custody-server/internal/platform/logger"
	"github.com/penhollow/custody-server/internal/platform/metrics"
	"github.com/penhollow/custody-server/internal/sentencing"
)

// ReleaseKind distinguishes why an actor is being let out.
type ReleaseKind string

const (
	ReleaseTimeServed ReleaseKind = "TimeServed"
	ReleaseBail       ReleaseKind = "Bail"
	ReleaseCourtOrder ReleaseKind = "CourtOrder"
	ReleaseEmergency  ReleaseKind = "Emergency"
)

// ReleaseStatus is the per-request state machine position.
type ReleaseStatus string

const (
	ReleaseNotStarted          ReleaseStatus = "NotStarted"
	ReleaseGuardDispatched     ReleaseStatus = "GuardDispatched"
	ReleaseEscortingToStorage  ReleaseStatus = "EscortingToStorage"
	ReleaseInventoryProcessing ReleaseStatus = "InventoryProcessing"
	ReleaseEscortingToExit     ReleaseStatus = "EscortingToExit"
	ReleaseCompleted           ReleaseStatus = "Completed"
	ReleaseFailed              ReleaseStatus = "Failed"
)

var (
	// ErrReleaseActive rejects a duplicate request while one is in flight
	// and not provably stuck.
	ErrReleaseActive = errors.New("release request already active for actor")
	// ErrUnknownActor signals a release for an actor never registered.
	ErrUnknownActor = errors.New("actor not registered with orchestrator")
)

// ReleaseConfig holds the release flow tuning. All waits are in simulated
// minutes.
type ReleaseConfig struct {
	OverallCeilingMinutes  int64 // hard wall clock for the whole request
	InventoryWaitMinutes   int64
	StorageExitWaitMinutes int64
	StorageExitDistance    float64 // leaving-the-area threshold
	StuckAgeMinutes        int64

	StoragePoint   Point
	ExitPoint      Point
	ExitYawDegrees float64

	// ContrabandNames are name fragments matched (case-insensitive) against
	// confiscated items; matching items are never returned at release.
	ContrabandNames []string
}

// DefaultReleaseConfig returns the standard release settings.
func DefaultReleaseConfig() ReleaseConfig {
	return ReleaseConfig{
		OverallCeilingMinutes:  300,
		InventoryWaitMinutes:   60,
		StorageExitWaitMinutes: 60,
		StorageExitDistance:    8.0,
		StuckAgeMinutes:        60,
		StoragePoint:           Point{X: -6, Y: 0, Z: 10},
		ExitPoint:              Point{X: 30, Y: 0, Z: 0},
		ExitYawDegrees:         90,
		ContrabandNames:        []string{"shiv", "lockpick", "narcotic", "weapon"},
	}
}

// ReleaseRequest tracks one actor's supervised walk out of the facility.
type ReleaseRequest struct {
	ID     string
	Actor  actor.Ref
	Kind   ReleaseKind
	Status ReleaseStatus
	Reason string

	BailAmount  float64
	ExitPoint   Point
	ReturnItems []string

	CreatedAtMin int64

	worker              EscortWorker
	phaseDeadline       int64
	escortToExitStarted bool
	inventoryDone       bool
	exitConfirmed       bool
}

// ReleaseOrchestrator owns the escort worker pool, the FIFO queue of
// pending requests, and every in-flight release state machine. External
// components interact only through its methods, never by mutating request
// or worker state directly.
type ReleaseOrchestrator struct {
	mu     sync.Mutex
	cfg    ReleaseConfig
	active map[string]*ReleaseRequest // keyed by actor id; includes queued requests
	queue  []*ReleaseRequest          // strict FIFO, awaiting a worker

	actors map[string]*actor.Actor

	pool        *GuardPool
	property    PropertyService
	supervision SupervisionService
	custody     CustodyStore
	world       World
	notifier    Notifier

	supCalc  *sentencing.SupervisionCalculator
	eventLog *events.EventLog
	logger   *logger.Logger
	metrics  *metrics.Collector

	nowMin int64

	// onCustodyCleared lets the engine free the actor's cell and stop
	// custody timers when a release completes.
	onCustodyCleared func(actorID string)
}

// NewReleaseOrchestrator wires the release subsystem. Collaborators other
// than the pool may be nil; every call through them is guarded.
func NewReleaseOrchestrator(
	cfg ReleaseConfig,
	pool *GuardPool,
	property PropertyService,
	supervision SupervisionService,
	custody CustodyStore,
	world World,
	notifier Notifier,
	supCalc *sentencing.SupervisionCalculator,
	eventLog *events.EventLog,
	log *logger.Logger,
	m *metrics.Collector,
) *ReleaseOrchestrator {
	o := &ReleaseOrchestrator{
		cfg:         cfg,
		active:      make(map[string]*ReleaseRequest),
		queue:       make([]*ReleaseRequest, 0),
		actors:      make(map[string]*actor.Actor),
		pool:        pool,
		property:    property,
		supervision: supervision,
		custody:     custody,
		world:       world,
		notifier:    notifier,
		supCalc:     supCalc,
		eventLog:    eventLog,
		logger:      log,
		metrics:     m,
	}
	pool.SetOnFree(o.drainQueue)
	return o
}

// SetOnCustodyCleared installs the custody-cleared hook. Wiring-time only.
func (o *ReleaseOrchestrator) SetOnCustodyCleared(fn func(actorID string)) {
	o.onCustodyCleared = fn
}

// RegisterActor makes an actor's custody record known to the orchestrator.
func (o *ReleaseOrchestrator) RegisterActor(a *actor.Actor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actors[a.ID] = a
}

// InitiateRelease starts (or queues) a supervised release for the actor.
//
// A second request while one is active is rejected, unless the first is
// provably stuck (age exceeded, worker missing, or worker idle while the
// request claims activity); a stuck request is force-failed and cleaned
// up before the new one proceeds.
//
// With no worker free the request enters the FIFO queue and the call still
// succeeds: the actor is guaranteed eventual processing, not immediate
// processing.
func (o *ReleaseOrchestrator) InitiateRelease(actorID string, kind ReleaseKind, bailAmount float64, reason string) error {
	o.mu.Lock()
	a, known := o.actors[actorID]
	if !known {
		o.mu.Unlock()
		return ErrUnknownActor
	}

	if existing, ok := o.active[actorID]; ok {
		if !o.isStuckLocked(existing) {
			o.mu.Unlock()
			return ErrReleaseActive
		}

		// Force-clean the orphaned request rather than leaving it to rot.
		w := existing.worker
		existing.worker = nil
		existing.Status = ReleaseFailed
		delete(o.active, actorID)
		o.removeFromQueueLocked(existing)
		o.mu.Unlock()

		o.logger.Warn("Stuck release request " + existing.ID + " for " + actorID + " force-cleaned")
		if w != nil {
			w.ClearCallbacks()
		}
		o.metrics.RecordReleaseFailed()
		o.emitRelease(events.EventTypeReleaseFailed, existing, map[string]string{"reason": "stuck"})
		o.pool.Free(w)

		o.mu.Lock()
		if _, ok := o.active[actorID]; ok {
			// Someone raced in while we were cleaning up.
			o.mu.Unlock()
			return ErrReleaseActive
		}
	}

	req := &ReleaseRequest{
		ID:           uuid.NewString(),
		Actor:        a.Ref,
		Kind:         kind,
		Status:       ReleaseNotStarted,
		Reason:       reason,
		BailAmount:   bailAmount,
		ExitPoint:    o.cfg.ExitPoint,
		ReturnItems:  o.legalItems(actorID),
		CreatedAtMin: o.nowMin,
	}
	o.active[actorID] = req

	w := o.pool.Acquire()
	if w == nil {
		o.queue = append(o.queue, req)
		depth := len(o.queue)
		o.mu.Unlock()

		o.metrics.RecordReleaseQueued()
		o.metrics.SetQueueDepth(int64(depth))
		o.emitRelease(events.EventTypeReleaseQueued, req, map[string]interface{}{"queue_depth": depth})
		o.notify("No officer free; release of "+req.Actor.Name+" queued (position "+strconv.Itoa(depth)+")", "release")
		return nil
	}
	o.mu.Unlock()

	o.metrics.RecordReleaseInitiated()
	o.emitRelease(events.EventTypeReleaseRequested, req, map[string]interface{}{"kind": kind, "bail": bailAmount})
	o.startMachine(req, w)
	return nil
}

// EmergencyRelease bypasses the worker pool, queue and state machine: the
// actor is placed at the exit and the completion side effects run
// synchronously.
func (o *ReleaseOrchestrator) EmergencyRelease(actorID string) error {
	o.mu.Lock()
	a, known := o.actors[actorID]
	if !known {
		o.mu.Unlock()
		return ErrUnknownActor
	}

	// Drop any in-flight request without running its side effects.
	var w EscortWorker
	if existing, ok := o.active[actorID]; ok {
		w = existing.worker
		existing.worker = nil
		delete(o.active, actorID)
		o.removeFromQueueLocked(existing)
	}

	req := &ReleaseRequest{
		ID:           uuid.NewString(),
		Actor:        a.Ref,
		Kind:         ReleaseEmergency,
		Status:       ReleaseCompleted,
		ExitPoint:    o.cfg.ExitPoint,
		CreatedAtMin: o.nowMin,
	}
	o.mu.Unlock()

	if w != nil {
		w.ClearCallbacks()
	}
	o.pool.Free(w)

	o.logger.Event("EMERGENCY_RELEASE", actorID, "bypassing escort flow")
	if o.world != nil {
		o.world.Relocate(actorID, req.ExitPoint, o.cfg.ExitYawDegrees)
	}
	o.runCompletionSideEffects(a, req)

	o.emitRelease(events.EventTypeEmergencyRelease, req, nil)
	o.notify(a.Name+" released under emergency protocol", "release")
	return nil
}

// CancelRelease drops an in-flight request without running completion or
// failure side effects. The worker is always freed and escort registrations
// cleared. Returns false when no request exists.
func (o *ReleaseOrchestrator) CancelRelease(actorID string) bool {
	o.mu.Lock()
	req, ok := o.active[actorID]
	if !ok {
		o.mu.Unlock()
		return false
	}
	w := req.worker
	req.worker = nil
	delete(o.active, actorID)
	o.removeFromQueueLocked(req)
	depth := len(o.queue)
	o.mu.Unlock()

	if w != nil {
		w.ClearCallbacks()
	}
	o.pool.Free(w)

	o.metrics.RecordReleaseCancelled()
	o.metrics.SetQueueDepth(int64(depth))
	o.emitRelease(events.EventTypeReleaseCancelled, req, nil)
	o.logger.Event("RELEASE_CANCELLED", actorID, "request "+req.ID+" dropped")
	return true
}

// ActiveRequest returns the in-flight request for an actor, if any.
func (o *ReleaseOrchestrator) ActiveRequest(actorID string) (*ReleaseRequest, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	req, ok := o.active[actorID]
	return req, ok
}

// QueueLength returns the number of requests awaiting a worker.
func (o *ReleaseOrchestrator) QueueLength() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// drainQueue dispatches queued requests onto newly freed capacity, strictly
// in FIFO order. A head that still cannot get a worker stays at the head.
func (o *ReleaseOrchestrator) drainQueue() {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.mu.Unlock()
			o.metrics.SetQueueDepth(0)
			return
		}
		w := o.pool.Acquire()
		if w == nil {
			depth := len(o.queue)
			o.mu.Unlock()
			o.metrics.SetQueueDepth(int64(depth))
			return
		}
		req := o.queue[0]
		o.queue = o.queue[1:]
		depth := len(o.queue)
		o.mu.Unlock()

		o.metrics.SetQueueDepth(int64(depth))
		o.metrics.RecordReleaseInitiated()
		o.emitRelease(events.EventTypeReleaseRequested, req, map[string]interface{}{"dequeued": true})
		o.startMachine(req, w)
	}
}

// isStuckLocked detects orphaned dispatched requests: too old, worker lost,
// or worker idling while the request claims to be mid-flight. Queued
// requests are never stuck; waiting for a worker is their normal condition
// however long it lasts, and the overall-ceiling sweep bounds that wait
// separately. Caller holds o.mu.
func (o *ReleaseOrchestrator) isStuckLocked(req *ReleaseRequest) bool {
	if req.Status == ReleaseNotStarted {
		return false
	}
	if o.nowMin-req.CreatedAtMin > o.cfg.StuckAgeMinutes {
		return true
	}
	return req.worker == nil || req.worker.IsAvailable()
}

func (o *ReleaseOrchestrator) removeFromQueueLocked(req *ReleaseRequest) {
	for i, q := range o.queue {
		if q == req {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			return
		}
	}
}

// legalItems filters contraband out of the actor's confiscated items; only
// what remains is returned at the property desk.
func (o *ReleaseOrchestrator) legalItems(actorID string) []string {
	if o.property == nil {
		return nil
	}
	items := o.property.ConfiscatedItems(actorID)
	legal := make([]string, 0, len(items))
	for _, item := range items {
		if o.isContraband(item) {
			o.logger.Info("Withholding contraband item at release: " + item)
			continue
		}
		legal = append(legal, item)
	}
	return legal
}

func (o *ReleaseOrchestrator) isContraband(item string) bool {
	lowered := strings.ToLower(item)
	for _, name := range o.cfg.ContrabandNames {
		if strings.Contains(lowered, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

func (o *ReleaseOrchestrator) emitRelease(t events.EventType, req *ReleaseRequest, payload interface{}) {
	if payload == nil {
		payload = map[string]string{"request_id": req.ID}
	}
	o.eventLog.Append(events.DetentionEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      t,
		ActorID:   req.Actor.ID,
		TargetID:  req.ID,
		Payload:   payload,
	})
}

func (o *ReleaseOrchestrator) notify(message, category string) {
	if o.notifier != nil {
		o.notifier.Notify(message, category)
	}
}
