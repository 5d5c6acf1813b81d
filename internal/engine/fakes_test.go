package engine

import (
	"sync"

	"github.com/penhollow/custody-server/internal/events"
	"github.com/penhollow/custody-server/internal/platform/logger"
	"github.com/penhollow/custody-server/internal/platform/metrics"
	"github.com/penhollow/custody-server/internal/sentencing"
)

// fakeWorker is a scriptable escort worker. With autoComplete set, every
// StartEscort reports completion synchronously.
type fakeWorker struct {
	mu           sync.Mutex
	id           string
	available    bool
	cb           EscortCallbacks
	starts       int
	lastDest     Point
	lastActor    string
	failStart    error
	autoComplete bool
	cleared      int
	returns      int
}

func newFakeWorker(id string, autoComplete bool) *fakeWorker {
	return &fakeWorker{id: id, available: true, autoComplete: autoComplete}
}

func (f *fakeWorker) ID() string { return f.id }

func (f *fakeWorker) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeWorker) SetAvailable(available bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = available
}

func (f *fakeWorker) StartEscort(actorID string, dest Point, cb EscortCallbacks) error {
	f.mu.Lock()
	if f.failStart != nil {
		err := f.failStart
		f.mu.Unlock()
		return err
	}
	f.cb = cb
	f.starts++
	f.lastDest = dest
	f.lastActor = actorID
	auto := f.autoComplete
	f.mu.Unlock()

	if auto && cb.Completed != nil {
		cb.Completed()
	}
	return nil
}

func (f *fakeWorker) ClearCallbacks() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = EscortCallbacks{}
	f.cleared++
}

func (f *fakeWorker) ReturnToPost() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.returns++
}

// complete fires the registered completion callback manually.
func (f *fakeWorker) complete() {
	f.mu.Lock()
	done := f.cb.Completed
	f.mu.Unlock()
	if done != nil {
		done()
	}
}

// fail fires the registered failure callback manually.
func (f *fakeWorker) fail(reason string) {
	f.mu.Lock()
	failed := f.cb.Failed
	f.mu.Unlock()
	if failed != nil {
		failed(reason)
	}
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(message, category string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeProperty struct {
	mu       sync.Mutex
	items    map[string][]string
	unlocked []string
}

func newFakeProperty() *fakeProperty {
	return &fakeProperty{items: make(map[string][]string)}
}

func (f *fakeProperty) ConfiscatedItems(actorID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[actorID]
}

func (f *fakeProperty) UnlockInventory(actorID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlocked = append(f.unlocked, actorID)
}

type fakeSupervision struct {
	mu      sync.Mutex
	paused  map[string]sentencing.ParoleTerm
	started map[string]sentencing.ParoleTerm
}

func newFakeSupervision() *fakeSupervision {
	return &fakeSupervision{
		paused:  make(map[string]sentencing.ParoleTerm),
		started: make(map[string]sentencing.ParoleTerm),
	}
}

func (f *fakeSupervision) PausedTerm(actorID string) (sentencing.ParoleTerm, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.paused[actorID]
	return t, ok
}

func (f *fakeSupervision) StartSupervision(actorID string, term sentencing.ParoleTerm) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started[actorID] = term
}

type fakeCustody struct {
	mu      sync.Mutex
	cleared []string
}

func (f *fakeCustody) ClearCustodySnapshot(actorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, actorID)
	return nil
}

type fakeWorld struct {
	mu        sync.Mutex
	positions map[string]Point
	relocated map[string]Point
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		positions: make(map[string]Point),
		relocated: make(map[string]Point),
	}
}

func (f *fakeWorld) ActorPosition(actorID string) (Point, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.positions[actorID]
	return p, ok
}

func (f *fakeWorld) Relocate(actorID string, p Point, yawDegrees float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[actorID] = p
	f.relocated[actorID] = p
}

func testLogger() *logger.Logger {
	return logger.NewLogger()
}

func testMetrics() *metrics.Collector {
	return metrics.NewCollector()
}

func testEventLog() *events.EventLog {
	return events.NewEventLog(nil)
}
