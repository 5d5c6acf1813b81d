package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/penhollow/custody-server/internal/domain/offense"
	"github.com/penhollow/custody-server/internal/events"
	"github.com/penhollow/custody-server/internal/sentencing"
)

// fakeRecorder is an in-memory CustodyRecorder.
type fakeRecorder struct {
	mu    sync.Mutex
	saved map[string]CustodySnapshot
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{saved: make(map[string]CustodySnapshot)}
}

func (f *fakeRecorder) SaveCustodySnapshot(s CustodySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[s.ActorID] = s
	return nil
}

func (f *fakeRecorder) LoadCustodySnapshots() ([]CustodySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CustodySnapshot, 0, len(f.saved))
	for _, s := range f.saved {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRecorder) ClearCustodySnapshot(actorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, actorID)
	return nil
}

type engineFixture struct {
	eng      *Engine
	eventLog *events.EventLog
	world    *fakeWorld
	recorder *fakeRecorder
	worker   *fakeWorker
	pool     *GuardPool
}

func newEngineFixture() *engineFixture {
	log := testLogger()
	m := testMetrics()
	eventLog := testEventLog()
	cfg := sentencing.DefaultConfig()

	world := newFakeWorld()
	recorder := newFakeRecorder()
	worker := newFakeWorker("W1", true)

	pool := NewGuardPool(log, nil)
	pool.AddWorker(worker)

	ticker := NewTicker(eventLog, log, m)
	allocator := NewCellAllocator(DefaultCellAllocatorConfig(), nil, eventLog, log)
	booking := NewBookingPipeline(DefaultBookingConfig(), pool, newFakeProperty(), nil, eventLog, log, m)
	supCalc := sentencing.NewSupervisionCalculator(cfg, log)
	release := NewReleaseOrchestrator(
		DefaultReleaseConfig(), pool, newFakeProperty(), newFakeSupervision(),
		recorder, world, nil, supCalc, eventLog, log, m,
	)

	eng := NewEngine(EngineDeps{
		Ticker:       ticker,
		EventLog:     eventLog,
		Pool:         pool,
		Allocator:    allocator,
		Booking:      booking,
		Release:      release,
		SentenceCalc: sentencing.NewSentenceCalculator(cfg, log),
		FineCalc:     sentencing.NewFineCalculator(cfg, log),
		Recorder:     recorder,
		Logger:       log,
		Metrics:      m,
	})

	return &engineFixture{
		eng:      eng,
		eventLog: eventLog,
		world:    world,
		recorder: recorder,
		worker:   worker,
		pool:     pool,
	}
}

func (f *engineFixture) tick(minute int64) {
	f.eventLog.Append(events.DetentionEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeTimeTick,
		ActorID:   "SYSTEM_CLOCK",
		Payload:   TimeTickPayload{Minute: minute},
	})
}

func TestAdmissionThroughCustody(t *testing.T) {
	f := newEngineFixture()

	a, err := f.eng.Admit("A001", "Frank")
	if err != nil {
		t.Fatalf("admit failed: %v", err)
	}
	f.eng.RecordOffense("A001", offense.Offense{
		Kind: offense.KindTheft, Severity: 1.0, Witnessed: true, WitnessCount: 1,
		Timestamp: time.Now(),
	})

	if err := completeAllSteps(f.eng.booking, "A001"); err != nil {
		t.Fatal(err)
	}

	rec, ok := f.eng.Custody("A001")
	if !ok {
		t.Fatal("no custody record after booking finished")
	}
	if rec.SentenceMinutes != 120 {
		t.Errorf("sentence %d min, want 120", rec.SentenceMinutes)
	}
	if rec.FineAmount != 150 {
		t.Errorf("fine %.2f, want 150", rec.FineAmount)
	}
	if rec.UnitID == "" {
		t.Error("no unit assigned")
	}
	if !a.InCustody {
		t.Error("actor not marked in custody")
	}
	if _, ok := f.recorder.saved["A001"]; !ok {
		t.Error("custody snapshot not persisted")
	}
}

func TestTimeServedTriggersRelease(t *testing.T) {
	f := newEngineFixture()

	a, _ := f.eng.Admit("A001", "Frank")
	completeAllSteps(f.eng.booking, "A001")

	rec, _ := f.eng.Custody("A001")
	f.world.positions["A001"] = Point{X: 100, Y: 0, Z: 0}

	// One tick past the end minute starts the supervised walk-out; the
	// storage leg auto-completes and leaves it at the property desk.
	f.tick(rec.EndMinute)

	req, ok := f.eng.release.ActiveRequest("A001")
	if !ok {
		t.Fatal("time-served release not initiated at end minute")
	}
	if req.Kind != ReleaseTimeServed {
		t.Errorf("release kind %s, want TimeServed", req.Kind)
	}

	f.eng.ConfirmInventoryProcessed("A001")

	if a.InCustody {
		t.Error("actor still in custody after release completed")
	}
	if _, ok := f.eng.Custody("A001"); ok {
		t.Error("custody record survived release")
	}
	long, _ := f.eng.allocator.Status()
	if long.Occupied != 0 {
		t.Errorf("cell not freed: %d occupied", long.Occupied)
	}
}

func TestPostBailRequiresCoveringFine(t *testing.T) {
	f := newEngineFixture()
	f.eng.Admit("A001", "Frank")
	f.eng.RecordOffense("A001", offense.Offense{Kind: offense.KindTheft, Witnessed: true, WitnessCount: 1})
	completeAllSteps(f.eng.booking, "A001")

	if err := f.eng.PostBail("A001", 50); err == nil {
		t.Error("bail below the fine must be rejected")
	}
	if err := f.eng.PostBail("A001", 150); err != nil {
		t.Errorf("covering bail rejected: %v", err)
	}
}

func TestRestoreRebuildsCustody(t *testing.T) {
	f := newEngineFixture()
	f.recorder.saved["A001"] = CustodySnapshot{
		ActorID: "A001", ActorName: "Frank", UnitID: "CELL_03",
		SentenceMinutes: 240, StartMinute: 100, EndMinute: 340,
	}

	if err := f.eng.Restore(); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	rec, ok := f.eng.Custody("A001")
	if !ok || rec.EndMinute != 340 {
		t.Fatalf("custody record not rebuilt: %+v", rec)
	}
	a, ok := f.eng.Actor("A001")
	if !ok || !a.InCustody {
		t.Error("actor not re-registered in custody")
	}
	long, _ := f.eng.allocator.Status()
	if long.Occupied != 1 {
		t.Errorf("unit not re-assigned on restore: %d occupied", long.Occupied)
	}
}
