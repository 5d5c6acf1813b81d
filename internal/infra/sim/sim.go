// Package sim provides the in-process facility implementations behind the
// engine's collaborator interfaces: officer movement, actor positions,
// doors, the property desk, and the supervision ledger. A deployment with
// a real facility bridge swaps these out without touching the core.
package sim

import (
	"sync"
	"time"

	"github.com/penhollow/custody-server/internal/engine"
	"github.com/penhollow/custody-server/internal/platform/logger"
	"github.com/penhollow/custody-server/internal/sentencing"
)

// OfficerSpeed is facility units per real second of escort movement.
const OfficerSpeed = 2.0

// Officer is a simulated escort worker. Escorts take real time proportional
// to distance; completion fires on a timer.
type Officer struct {
	mu        sync.Mutex
	id        string
	post      engine.Point
	pos       engine.Point
	available bool
	cb        engine.EscortCallbacks
	timer     *time.Timer

	world  *World
	logger *logger.Logger
}

// NewOfficer creates an officer standing at their post.
func NewOfficer(id string, post engine.Point, world *World, log *logger.Logger) *Officer {
	return &Officer{
		id:        id,
		post:      post,
		pos:       post,
		available: true,
		world:     world,
		logger:    log,
	}
}

func (o *Officer) ID() string { return o.id }

func (o *Officer) IsAvailable() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.available
}

func (o *Officer) SetAvailable(available bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.available = available
}

// StartEscort walks the actor to the destination and reports through the
// callbacks. The travel time scales with distance.
func (o *Officer) StartEscort(actorID string, dest engine.Point, cb engine.EscortCallbacks) error {
	o.mu.Lock()
	o.cb = cb
	from := o.pos
	o.mu.Unlock()

	seconds := from.DistanceTo(dest) / OfficerSpeed
	if seconds < 0.5 {
		seconds = 0.5
	}
	d := time.Duration(seconds * float64(time.Second))
	o.logger.Info("Officer " + o.id + " escorting " + actorID + " (" + d.Round(time.Millisecond).String() + " walk)")

	if cb.StatusUpdate != nil {
		cb.StatusUpdate("departed")
	}

	o.mu.Lock()
	o.timer = time.AfterFunc(d, func() {
		o.mu.Lock()
		o.pos = dest
		done := o.cb.Completed
		o.mu.Unlock()

		if o.world != nil {
			o.world.Relocate(actorID, dest, 0)
		}
		if done != nil {
			done()
		}
	})
	o.mu.Unlock()
	return nil
}

// ClearCallbacks drops the registered callback set and stops any pending
// arrival timer. Idempotent.
func (o *Officer) ClearCallbacks() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cb = engine.EscortCallbacks{}
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

// ReturnToPost sends the officer back to their standby post.
func (o *Officer) ReturnToPost() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pos = o.post
}

// World tracks actor positions in facility space.
type World struct {
	mu        sync.Mutex
	positions map[string]engine.Point
}

// NewWorld creates an empty facility world.
func NewWorld() *World {
	return &World{positions: make(map[string]engine.Point)}
}

// Place sets an actor's position directly (admission, manual moves).
func (w *World) Place(actorID string, p engine.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.positions[actorID] = p
}

func (w *World) ActorPosition(actorID string) (engine.Point, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.positions[actorID]
	return p, ok
}

func (w *World) Relocate(actorID string, p engine.Point, yawDegrees float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.positions[actorID] = p
}

// DoorBank is the facility door controller. Locking is instantaneous in
// the simulation.
type DoorBank struct {
	mu     sync.Mutex
	locked map[string]bool
	logger *logger.Logger
}

func NewDoorBank(log *logger.Logger) *DoorBank {
	return &DoorBank{locked: make(map[string]bool), logger: log}
}

func (d *DoorBank) LockUnitDoor(unitID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked[unitID] = true
	d.logger.Info("Unit door locked: " + unitID)
	return nil
}

// IsLocked reports a door's state.
func (d *DoorBank) IsLocked(unitID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked[unitID]
}

// PropertyDesk holds confiscated items per actor.
type PropertyDesk struct {
	mu       sync.Mutex
	items    map[string][]string
	unlocked map[string]bool
	logger   *logger.Logger
}

func NewPropertyDesk(log *logger.Logger) *PropertyDesk {
	return &PropertyDesk{
		items:    make(map[string][]string),
		unlocked: make(map[string]bool),
		logger:   log,
	}
}

// Confiscate records items taken from an actor at intake.
func (p *PropertyDesk) Confiscate(actorID string, items []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[actorID] = append(p.items[actorID], items...)
	p.unlocked[actorID] = false
}

func (p *PropertyDesk) ConfiscatedItems(actorID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.items[actorID]))
	copy(out, p.items[actorID])
	return out
}

func (p *PropertyDesk) UnlockInventory(actorID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlocked[actorID] = true
	p.logger.Info("Inventory unlocked for " + actorID)
}

// SupervisionLedger stores paused and active supervision terms.
type SupervisionLedger struct {
	mu     sync.Mutex
	paused map[string]sentencing.ParoleTerm
	active map[string]sentencing.ParoleTerm
	logger *logger.Logger
}

func NewSupervisionLedger(log *logger.Logger) *SupervisionLedger {
	return &SupervisionLedger{
		paused: make(map[string]sentencing.ParoleTerm),
		active: make(map[string]sentencing.ParoleTerm),
		logger: log,
	}
}

// Pause records a supervision term interrupted by a new custody stay.
func (s *SupervisionLedger) Pause(actorID string, term sentencing.ParoleTerm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, actorID)
	s.paused[actorID] = term
}

func (s *SupervisionLedger) PausedTerm(actorID string) (sentencing.ParoleTerm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.paused[actorID]
	return t, ok
}

func (s *SupervisionLedger) StartSupervision(actorID string, term sentencing.ParoleTerm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, actorID)
	s.active[actorID] = term
	s.logger.Event("SUPERVISION_STARTED", actorID, term.String())
}

// ActiveTerm returns the actor's running supervision term, if any.
func (s *SupervisionLedger) ActiveTerm(actorID string) (sentencing.ParoleTerm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.active[actorID]
	return t, ok
}
