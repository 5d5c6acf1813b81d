package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/penhollow/custody-server/internal/domain/cell"
	"github.com/penhollow/custody-server/internal/events"
	"github.com/penhollow/custody-server/internal/platform/logger"
)

// ErrNoCapacity signals that no unit in the requested pool has a free slot.
// Non-fatal: callers retry or queue.
var ErrNoCapacity = errors.New("no unit capacity available")

// CellAllocatorConfig sizes the two residency pools.
type CellAllocatorConfig struct {
	LongStayUnits int // total long-stay units
	DoubleUnits   int // units [0, DoubleUnits) hold 2 occupants and are actor-eligible
	HoldingUnits  int // transient units, 3 slots each
}

// DefaultCellAllocatorConfig returns the standard facility layout.
func DefaultCellAllocatorConfig() CellAllocatorConfig {
	return CellAllocatorConfig{
		LongStayUnits: 24,
		DoubleUnits:   12,
		HoldingUnits:  2,
	}
}

// PoolStatus summarizes slot occupancy for one pool.
type PoolStatus struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Occupied  int `json:"occupied"`
}

// CellAllocator tracks capacity and occupancy of the holding and long-stay
// pools and performs assignments. An occupant has at most one assignment
// per pool type at a time.
type CellAllocator struct {
	mu       sync.Mutex
	cfg      CellAllocatorConfig
	longStay []*cell.LongStayUnit
	holding  []*cell.HoldingUnit

	longAssign map[string]string // actorID -> unitID
	holdAssign map[string]string

	doors    DoorController
	eventLog *events.EventLog
	logger   *logger.Logger
	rng      *rand.Rand
}

// NewCellAllocator builds both pools. doors may be nil (door locking is
// best-effort).
func NewCellAllocator(cfg CellAllocatorConfig, doors DoorController, eventLog *events.EventLog, log *logger.Logger) *CellAllocator {
	ca := &CellAllocator{
		cfg:        cfg,
		longAssign: make(map[string]string),
		holdAssign: make(map[string]string),
		doors:      doors,
		eventLog:   eventLog,
		logger:     log,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for i := 0; i < cfg.LongStayUnits; i++ {
		capacity := 1
		if i < cfg.DoubleUnits {
			capacity = 2
		}
		ca.longStay = append(ca.longStay, cell.NewLongStayUnit(fmt.Sprintf("CELL_%02d", i), i, capacity))
	}
	for i := 0; i < cfg.HoldingUnits; i++ {
		ca.holding = append(ca.holding, cell.NewHoldingUnit(fmt.Sprintf("HOLDING_%d", i)))
	}

	return ca
}

// AssignActor places an actor in a random long-stay unit with free capacity
// within the actor-eligible range. Re-assigning an already-assigned actor
// is idempotent and returns the existing unit.
func (ca *CellAllocator) AssignActor(actorID string) (string, error) {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	if unitID, ok := ca.longAssign[actorID]; ok {
		ca.logger.Info("Actor " + actorID + " already assigned to " + unitID + ", reusing assignment")
		return unitID, nil
	}

	var candidates []*cell.LongStayUnit
	for _, u := range ca.longStay {
		if u.Index < ca.cfg.DoubleUnits && u.HasSpace() {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return "", ErrNoCapacity
	}

	unit := candidates[ca.rng.Intn(len(candidates))]
	unit.AddOccupant(actorID)
	ca.longAssign[actorID] = unit.ID

	ca.emitAssignment(events.EventTypeCellAssigned, actorID, unit.ID, "long-stay")
	ca.lockDoor(unit.ID)
	unit.IsLocked = true

	return unit.ID, nil
}

// AssignTransient places an actor in the first free holding slot, scanning
// units in order. Idempotent for an already-held actor.
func (ca *CellAllocator) AssignTransient(actorID, label string) (string, error) {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	if unitID, ok := ca.holdAssign[actorID]; ok {
		ca.logger.Info("Actor " + actorID + " already in holding unit " + unitID + ", reusing assignment")
		return unitID, nil
	}

	for _, u := range ca.holding {
		if slot := u.Assign(actorID, label); slot >= 0 {
			ca.holdAssign[actorID] = u.ID
			ca.emitAssignment(events.EventTypeCellAssigned, actorID, u.ID, fmt.Sprintf("holding slot %d", slot))
			ca.lockDoor(u.ID)
			return u.ID, nil
		}
	}

	return "", ErrNoCapacity
}

// Release frees any assignment the actor holds in either pool. Releasing
// an actor with no assignment is a logged no-op.
func (ca *CellAllocator) Release(actorID string) {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	released := false

	if unitID, ok := ca.longAssign[actorID]; ok {
		for _, u := range ca.longStay {
			if u.ID == unitID {
				u.RemoveOccupant(actorID)
				break
			}
		}
		delete(ca.longAssign, actorID)
		ca.emitAssignment(events.EventTypeCellReleased, actorID, unitID, "long-stay")
		released = true
	}

	if unitID, ok := ca.holdAssign[actorID]; ok {
		for _, u := range ca.holding {
			if u.ID == unitID {
				u.Remove(actorID)
				break
			}
		}
		delete(ca.holdAssign, actorID)
		ca.emitAssignment(events.EventTypeCellReleased, actorID, unitID, "holding")
		released = true
	}

	if !released {
		ca.logger.Info("Release for actor " + actorID + " with no assignment, ignoring")
	}
}

// AssignedUnit returns the actor's long-stay unit, if any.
func (ca *CellAllocator) AssignedUnit(actorID string) (string, bool) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	id, ok := ca.longAssign[actorID]
	return id, ok
}

// Status reports slot occupancy for the long-stay and holding pools.
func (ca *CellAllocator) Status() (longStay PoolStatus, holding PoolStatus) {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	for _, u := range ca.longStay {
		longStay.Total += u.Capacity
		longStay.Occupied += len(u.Occupants)
	}
	longStay.Available = longStay.Total - longStay.Occupied

	for _, u := range ca.holding {
		holding.Total += cell.HoldingSlots
		holding.Occupied += u.Occupied()
	}
	holding.Available = holding.Total - holding.Occupied

	return longStay, holding
}

// lockDoor asks the door collaborator to close and lock the unit's access
// point. Best-effort: runs detached and never fails the assignment.
func (ca *CellAllocator) lockDoor(unitID string) {
	if ca.doors == nil {
		return
	}
	go func() {
		if err := ca.doors.LockUnitDoor(unitID); err != nil {
			ca.logger.Warn("Door lock for " + unitID + " failed: " + err.Error())
		}
	}()
}

func (ca *CellAllocator) emitAssignment(t events.EventType, actorID, unitID, detail string) {
	ca.eventLog.Append(events.DetentionEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      t,
		ActorID:   actorID,
		TargetID:  unitID,
		Payload:   map[string]string{"unit_id": unitID, "detail": detail},
	})
	ca.logger.Event(string(t), actorID, unitID+" ("+detail+")")
}
