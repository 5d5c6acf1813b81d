package engine

import (
	"fmt"
	"time"

	"github.com/penhollow/custody-server/internal/domain/actor"
	"github.com/penhollow/custody-server/internal/events"
	"github.com/penhollow/custody-server/internal/sentencing"
)

// startMachine runs a request through its escort phases. The worker has
// already been claimed from the pool. Transitions from here on are driven
// by worker callbacks and by OnTimeTick.
func (o *ReleaseOrchestrator) startMachine(req *ReleaseRequest, w EscortWorker) {
	actorID := req.Actor.ID

	o.mu.Lock()
	req.worker = w
	req.Status = ReleaseGuardDispatched
	o.mu.Unlock()
	o.emitStatus(req, "officer "+w.ID()+" dispatched")
	o.notify("Officer "+w.ID()+" dispatched to process release of "+req.Actor.Name, "release")

	o.mu.Lock()
	req.Status = ReleaseEscortingToStorage
	o.mu.Unlock()
	o.emitStatus(req, "escorting to property storage")

	err := w.StartEscort(actorID, o.cfg.StoragePoint, EscortCallbacks{
		Completed:    func() { o.onEscortLegComplete(actorID) },
		Failed:       func(reason string) { o.failRelease(actorID, "escort failed: "+reason) },
		StatusUpdate: func(substate string) { o.onEscortStatus(actorID, substate) },
	})
	if err != nil {
		o.failRelease(actorID, "escort start failed: "+err.Error())
	}
}

// onEscortLegComplete advances the machine when the officer reports an
// escort leg done. The phase is re-validated under the lock; a stale
// callback after a terminal transition is ignored.
func (o *ReleaseOrchestrator) onEscortLegComplete(actorID string) {
	o.mu.Lock()
	req, ok := o.active[actorID]
	if !ok {
		o.mu.Unlock()
		return
	}

	switch req.Status {
	case ReleaseEscortingToStorage:
		req.Status = ReleaseInventoryProcessing
		req.phaseDeadline = o.nowMin + o.cfg.InventoryWaitMinutes
		o.mu.Unlock()
		o.emitStatus(req, "at property desk, awaiting inventory processing")
		o.notify(req.Actor.Name+" is at the property desk", "release")

	case ReleaseEscortingToExit:
		o.mu.Unlock()
		o.completeRelease(actorID)

	default:
		o.mu.Unlock()
	}
}

// onEscortStatus forwards officer substate reports into the event log.
func (o *ReleaseOrchestrator) onEscortStatus(actorID, substate string) {
	o.mu.Lock()
	req, ok := o.active[actorID]
	o.mu.Unlock()
	if !ok {
		return
	}
	o.emitStatus(req, "officer update: "+substate)
}

// OnInventoryProcessingComplete is the external confirmation that the
// property desk finished with the actor's items.
func (o *ReleaseOrchestrator) OnInventoryProcessingComplete(actorID string) {
	o.mu.Lock()
	req, ok := o.active[actorID]
	if !ok || req.Status != ReleaseInventoryProcessing {
		o.mu.Unlock()
		return
	}
	req.inventoryDone = true
	o.enterEscortToExitLocked(req)
	w, start := o.shouldStartExitLegLocked(req)
	o.mu.Unlock()

	o.emitStatus(req, "inventory processed")
	if start {
		o.startExitLeg(req, w)
	}
}

// OnExitConfirmed is the external exit-scan confirmation. Idempotent; a
// confirmation for a finished or unknown request is ignored.
func (o *ReleaseOrchestrator) OnExitConfirmed(actorID string) {
	o.mu.Lock()
	req, ok := o.active[actorID]
	if !ok || req.Status != ReleaseEscortingToExit || req.exitConfirmed {
		o.mu.Unlock()
		return
	}
	req.exitConfirmed = true
	o.mu.Unlock()

	o.completeRelease(actorID)
}

// OnTimeTick drives every release timeout: the overall request ceiling,
// the inventory-processing cap, and the storage-exit wait (distance-based
// with a capped duration). State may have changed since the last tick, so
// everything is re-validated here.
func (o *ReleaseOrchestrator) OnTimeTick(payload TimeTickPayload) {
	defer func() {
		// An internal panic must not leave workers or the queue
		// inconsistent; convert it to a logged error instead.
		if r := recover(); r != nil {
			o.logger.Error(fmt.Sprintf("release tick recovered from panic: %v", r))
		}
	}()

	o.mu.Lock()
	o.nowMin = payload.Minute

	var timedOut []string
	var forceInventory []*ReleaseRequest
	type exitStart struct {
		req *ReleaseRequest
		w   EscortWorker
	}
	var exitStarts []exitStart

	for actorID, req := range o.active {
		if o.nowMin-req.CreatedAtMin > o.cfg.OverallCeilingMinutes {
			timedOut = append(timedOut, actorID)
			continue
		}

		switch req.Status {
		case ReleaseInventoryProcessing:
			if o.nowMin >= req.phaseDeadline {
				forceInventory = append(forceInventory, req)
			}
		case ReleaseEscortingToExit:
			if w, start := o.shouldStartExitLegLocked(req); start {
				exitStarts = append(exitStarts, exitStart{req: req, w: w})
			}
		}
	}

	for _, req := range forceInventory {
		req.inventoryDone = true
		o.enterEscortToExitLocked(req)
		if w, start := o.shouldStartExitLegLocked(req); start {
			exitStarts = append(exitStarts, exitStart{req: req, w: w})
		}
	}
	o.mu.Unlock()

	for _, req := range forceInventory {
		o.logger.Warn("Inventory processing wait expired for " + req.Actor.ID + ", forcing processed")
		o.emitStatus(req, "inventory wait expired, forced processed")
	}
	for _, es := range exitStarts {
		o.startExitLeg(es.req, es.w)
	}
	for _, actorID := range timedOut {
		o.failRelease(actorID, "timeout")
	}
}

// enterEscortToExitLocked moves a request into the storage-exit phase.
// Caller holds o.mu.
func (o *ReleaseOrchestrator) enterEscortToExitLocked(req *ReleaseRequest) {
	req.Status = ReleaseEscortingToExit
	req.phaseDeadline = o.nowMin + o.cfg.StorageExitWaitMinutes
	req.escortToExitStarted = false
}

// shouldStartExitLegLocked decides whether the exit escort leg can start:
// the actor has physically left the storage area (distance threshold, not
// a flag), or the capped wait expired, or no world is wired at all.
// Marks the leg started when it returns true. Caller holds o.mu.
func (o *ReleaseOrchestrator) shouldStartExitLegLocked(req *ReleaseRequest) (EscortWorker, bool) {
	if req.Status != ReleaseEscortingToExit || req.escortToExitStarted || req.worker == nil {
		return nil, false
	}

	start := false
	if o.world == nil {
		start = true
	} else if pos, ok := o.world.ActorPosition(req.Actor.ID); ok && pos.DistanceTo(o.cfg.StoragePoint) > o.cfg.StorageExitDistance {
		start = true
	} else if o.nowMin >= req.phaseDeadline {
		o.logger.Warn("Storage-exit wait expired for " + req.Actor.ID + ", escorting out anyway")
		start = true
	}

	if !start {
		return nil, false
	}
	req.escortToExitStarted = true
	return req.worker, true
}

// startExitLeg dispatches the final escort leg to the exit point.
func (o *ReleaseOrchestrator) startExitLeg(req *ReleaseRequest, w EscortWorker) {
	actorID := req.Actor.ID
	o.emitStatus(req, "escorting to exit")

	err := w.StartEscort(actorID, req.ExitPoint, EscortCallbacks{
		Completed:    func() { o.onEscortLegComplete(actorID) },
		Failed:       func(reason string) { o.failRelease(actorID, "exit escort failed: "+reason) },
		StatusUpdate: func(substate string) { o.onEscortStatus(actorID, substate) },
	})
	if err != nil {
		o.failRelease(actorID, "exit escort start failed: "+err.Error())
	}
}

// completeRelease runs the terminal success transition: clear escort
// registrations, place the actor at the exit, run the release side
// effects, free the worker, and drain the queue.
func (o *ReleaseOrchestrator) completeRelease(actorID string) {
	o.mu.Lock()
	req, ok := o.active[actorID]
	if !ok || req.Status == ReleaseCompleted || req.Status == ReleaseFailed {
		o.mu.Unlock()
		return
	}
	req.Status = ReleaseCompleted
	w := req.worker
	req.worker = nil
	a := o.actors[actorID]
	delete(o.active, actorID)
	elapsed := o.nowMin - req.CreatedAtMin
	o.mu.Unlock()

	// Idempotent even when no registrations exist.
	if w != nil {
		w.ClearCallbacks()
	}

	if o.world != nil {
		o.world.Relocate(actorID, req.ExitPoint, o.cfg.ExitYawDegrees)
	}
	o.runCompletionSideEffects(a, req)

	o.pool.Free(w)
	o.metrics.RecordReleaseCompleted(elapsed)
	o.emitRelease(events.EventTypeReleaseCompleted, req, map[string]interface{}{
		"kind":            req.Kind,
		"elapsed_minutes": elapsed,
		"returned_items":  req.ReturnItems,
	})
	o.notify(req.Actor.Name+" has been released ("+string(req.Kind)+")", "release")
}

// runCompletionSideEffects performs the custody-clearing work shared by
// normal completion and emergency release.
func (o *ReleaseOrchestrator) runCompletionSideEffects(a *actor.Actor, req *ReleaseRequest) {
	actorID := req.Actor.ID

	if o.property != nil {
		o.property.UnlockInventory(actorID)
	}
	if a != nil {
		a.InCustody = false
	}
	if o.onCustodyCleared != nil {
		o.onCustodyCleared(actorID)
	}

	switch req.Kind {
	case ReleaseBail:
		o.logger.Event("BAIL_RELEASE", actorID, fmt.Sprintf("bail %.2f posted", req.BailAmount))
		o.notify(fmt.Sprintf("Bail of %.2f accepted for %s", req.BailAmount, req.Actor.Name), "release")
	case ReleaseTimeServed:
		o.logger.Event("TIME_SERVED", actorID, "sentence served in full")
	}

	if o.custody != nil {
		if err := o.custody.ClearCustodySnapshot(actorID); err != nil {
			o.logger.Error("Failed to clear custody snapshot for " + actorID + ": " + err.Error())
		}
	}

	// Bail shortens time in custody, never supervision: every completion
	// computes and starts a follow-on term.
	if o.supervision != nil && a != nil {
		var paused *sentencing.ParoleTerm
		if t, ok := o.supervision.PausedTerm(actorID); ok {
			paused = &t
		}
		term := o.supCalc.Compute(a.RapSheet, paused)
		o.supervision.StartSupervision(actorID, term)
		o.eventLog.Append(events.DetentionEvent{
			ID:        events.GenerateEventID(),
			Timestamp: time.Now(),
			Type:      events.EventTypeSupervisionStart,
			ActorID:   actorID,
			Payload:   term,
		})
	}
}

// failRelease runs the terminal failure transition for any reason: the
// escort registrations are cleared and the worker freed, but none of the
// completion side effects run. Silent failure is disallowed: the outcome
// is logged, recorded and surfaced outward.
func (o *ReleaseOrchestrator) failRelease(actorID, reason string) {
	o.mu.Lock()
	req, ok := o.active[actorID]
	if !ok || req.Status == ReleaseCompleted || req.Status == ReleaseFailed {
		o.mu.Unlock()
		return
	}
	req.Status = ReleaseFailed
	w := req.worker
	req.worker = nil
	delete(o.active, actorID)
	o.removeFromQueueLocked(req)
	elapsed := o.nowMin - req.CreatedAtMin
	o.mu.Unlock()

	if w != nil {
		w.ClearCallbacks()
	}

	o.logger.Error(fmt.Sprintf("Release of %s failed after %d min: %s", actorID, elapsed, reason))
	o.metrics.RecordReleaseFailed()
	o.emitRelease(events.EventTypeReleaseFailed, req, map[string]interface{}{
		"reason":          reason,
		"elapsed_minutes": elapsed,
	})
	o.notify("Release of "+req.Actor.Name+" failed: "+reason, "release-failure")

	o.pool.Free(w)
}

func (o *ReleaseOrchestrator) emitStatus(req *ReleaseRequest, detail string) {
	o.eventLog.Append(events.DetentionEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeReleaseStatus,
		ActorID:   req.Actor.ID,
		TargetID:  req.ID,
		Payload:   map[string]string{"status": string(req.Status), "detail": detail},
	})
}
