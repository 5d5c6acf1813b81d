package engine

import (
	"math"

	"github.com/penhollow/custody-server/internal/sentencing"
)

// Point is a facility-space position used for escort destinations and the
// storage-exit distance check. The world itself (geometry, pathfinding,
// doors) lives behind the collaborator interfaces below.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the euclidean distance between two points.
func (p Point) DistanceTo(q Point) float64 {
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// EscortCallbacks is the per-task callback set registered on a worker when
// an escort starts. Exactly one of Completed/Failed fires, after any number
// of StatusUpdate calls. The owner must clear the registration on every
// terminal transition so no callback outlives its request.
type EscortCallbacks struct {
	Completed    func()
	Failed       func(reason string)
	StatusUpdate func(substate string)
}

// EscortWorker is the limited, mutually-exclusive officer resource that
// physically performs escorts. Implementations live outside this core
// (avatar movement, pathfinding); the pool only relies on this contract.
type EscortWorker interface {
	ID() string
	IsAvailable() bool
	SetAvailable(available bool)

	// StartEscort begins escorting the actor to the destination. Progress
	// is reported through the callbacks until ClearCallbacks is called.
	StartEscort(actorID string, dest Point, cb EscortCallbacks) error

	// ClearCallbacks drops any registered callback set. Idempotent; safe to
	// call when no escort is in flight.
	ClearCallbacks()

	// ReturnToPost sends the worker back to its standby post.
	ReturnToPost()
}

// Notifier is the fire-and-forget outward notification surface. Failures
// must never block or fail the operation that notified.
type Notifier interface {
	Notify(message, category string)
}

// DoorController is the best-effort door collaborator. Locking a unit door
// on assignment must not block or fail the assignment.
type DoorController interface {
	LockUnitDoor(unitID string) error
}

// PropertyService manages confiscated items and held inventory.
type PropertyService interface {
	ConfiscatedItems(actorID string) []string
	UnlockInventory(actorID string)
}

// SupervisionService owns supervision terms once a release hands them over.
type SupervisionService interface {
	// PausedTerm returns a previously paused term for the actor, if any.
	PausedTerm(actorID string) (sentencing.ParoleTerm, bool)

	// StartSupervision begins (or resumes) supervising the actor.
	StartSupervision(actorID string, term sentencing.ParoleTerm)
}

// CustodyStore persists per-actor custody snapshots.
type CustodyStore interface {
	ClearCustodySnapshot(actorID string) error
}

// World is the narrow window onto the physical facility the release flow
// needs: where an actor currently is, and the ability to place them at the
// exit on completion.
type World interface {
	ActorPosition(actorID string) (Point, bool)
	Relocate(actorID string, p Point, yawDegrees float64)
}
