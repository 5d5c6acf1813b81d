package engine

import (
	"testing"

	"github.com/penhollow/custody-server/internal/domain/actor"
)

func newBookingFixture(workers ...*fakeWorker) (*BookingPipeline, *GuardPool) {
	pool := NewGuardPool(testLogger(), nil)
	for _, w := range workers {
		pool.AddWorker(w)
	}
	bp := NewBookingPipeline(DefaultBookingConfig(), pool, newFakeProperty(), &fakeNotifier{}, testEventLog(), testLogger(), testMetrics())
	return bp, pool
}

func ref(id string) actor.Ref {
	return actor.Ref{ID: id, Name: "Inmate " + id}
}

func TestStartBookingRejectsDuplicate(t *testing.T) {
	bp, _ := newBookingFixture()

	if _, err := bp.StartBooking(ref("A001")); err != nil {
		t.Fatalf("first session failed: %v", err)
	}
	if _, err := bp.StartBooking(ref("A001")); err != ErrBookingActive {
		t.Errorf("expected ErrBookingActive, got %v", err)
	}
}

func TestBookingFlowWithEscort(t *testing.T) {
	w := newFakeWorker("W1", true)
	bp, pool := newBookingFixture(w)

	var finished []string
	bp.SetOnFinished(func(actorID string) { finished = append(finished, actorID) })

	bp.StartBooking(ref("A001"))

	if err := completeAllSteps(bp, "A001"); err != nil {
		t.Fatal(err)
	}

	if len(finished) != 1 || finished[0] != "A001" {
		t.Fatalf("handoff hook not fired exactly once: %v", finished)
	}
	if _, ok := bp.Session("A001"); ok {
		t.Error("session still present after finish")
	}
	if pool.Available() != 1 {
		t.Errorf("worker not returned to pool: available=%d", pool.Available())
	}
	if w.lastDest != DefaultBookingConfig().ReceivingPoint {
		t.Errorf("escort went to %+v, want receiving point", w.lastDest)
	}
}

// completeAllSteps drives all three intake steps in order.
func completeAllSteps(bp *BookingPipeline, actorID string) error {
	if err := bp.MarkStepComplete(actorID, StepMugshot, "img-001"); err != nil {
		return err
	}
	if err := bp.MarkStepComplete(actorID, StepScan, "scan-001"); err != nil {
		return err
	}
	return bp.MarkStepComplete(actorID, StepGearIssue, "")
}

func TestBookingIncompleteUntilAllSteps(t *testing.T) {
	bp, _ := newBookingFixture(newFakeWorker("W1", true))
	bp.StartBooking(ref("A001"))

	bp.MarkStepComplete("A001", StepMugshot, "img-001")
	bp.MarkStepComplete("A001", StepGearIssue, "")
	if bp.IsBookingComplete("A001") {
		t.Error("complete with only one identification step while both required")
	}

	bp.MarkStepComplete("A001", StepScan, "scan-001")
	if !bp.IsBookingComplete("A001") {
		t.Error("not complete with all three steps done")
	}
}

func TestFinishedBookingStillReportsComplete(t *testing.T) {
	// The escort auto-completes, so the third step drives the session clean
	// through Finished and out of the session map.
	bp, _ := newBookingFixture(newFakeWorker("W1", true))
	bp.StartBooking(ref("A001"))
	completeAllSteps(bp, "A001")

	if _, ok := bp.Session("A001"); ok {
		t.Fatal("session should be gone after finish")
	}
	if !bp.IsBookingComplete("A001") {
		t.Error("finished booking reports incomplete")
	}
	if bp.IsBookingComplete("A002") {
		t.Error("never-booked actor reports complete")
	}
}

func TestCancelledBookingReportsIncomplete(t *testing.T) {
	bp, _ := newBookingFixture()
	bp.StartBooking(ref("A001"))
	bp.CancelBooking("A001")

	if bp.IsBookingComplete("A001") {
		t.Error("cancelled booking reports complete")
	}

	// Re-admission after a finished stay starts from a clean slate.
	bp2, _ := newBookingFixture(newFakeWorker("W1", true))
	bp2.StartBooking(ref("A001"))
	completeAllSteps(bp2, "A001")
	bp2.StartBooking(ref("A001"))
	if bp2.IsBookingComplete("A001") {
		t.Error("fresh session inherited the previous stay's completion")
	}
}

func TestBookingEitherIDPredicate(t *testing.T) {
	cfg := DefaultBookingConfig()
	cfg.RequireBothIDSteps = false
	pool := NewGuardPool(testLogger(), nil)
	pool.AddWorker(newFakeWorker("W1", true))
	bp := NewBookingPipeline(cfg, pool, nil, nil, testEventLog(), testLogger(), testMetrics())

	done := false
	bp.SetOnFinished(func(string) { done = true })

	bp.StartBooking(ref("A001"))
	bp.MarkStepComplete("A001", StepScan, "scan-001")
	bp.MarkStepComplete("A001", StepGearIssue, "")

	if !done {
		t.Error("either-ID predicate did not finish with scan + gear only")
	}
}

func TestBookingFallbackWithoutWorker(t *testing.T) {
	bp, _ := newBookingFixture() // empty pool

	done := false
	bp.SetOnFinished(func(string) { done = true })

	bp.StartBooking(ref("A001"))
	completeAllSteps(bp, "A001")

	s, ok := bp.Session("A001")
	if !ok || s.State != BookingEscortRequested {
		t.Fatalf("expected degraded EscortRequested state, got %+v", s)
	}
	if done {
		t.Fatal("finished before the fallback wait elapsed")
	}

	wait := DefaultBookingConfig().FallbackWaitMinutes
	bp.OnTimeTick(TimeTickPayload{Minute: wait - 1})
	if done {
		t.Fatal("finished before the deadline")
	}
	bp.OnTimeTick(TimeTickPayload{Minute: wait})
	if !done {
		t.Error("fallback wait elapsed but session did not finish")
	}
}

func TestBookingEscortFailureDegrades(t *testing.T) {
	w := newFakeWorker("W1", false)
	bp, pool := newBookingFixture(w)
	bp.StartBooking(ref("A001"))
	completeAllSteps(bp, "A001")

	w.fail("actor refused to move")

	s, ok := bp.Session("A001")
	if !ok || s.State != BookingEscortRequested {
		t.Fatalf("expected fallback state after escort failure, got %+v", s)
	}
	if pool.Available() != 1 {
		t.Errorf("worker not freed after escort failure: available=%d", pool.Available())
	}
}

func TestCancelBookingFreesWorker(t *testing.T) {
	w := newFakeWorker("W1", false)
	bp, pool := newBookingFixture(w)
	bp.StartBooking(ref("A001"))
	completeAllSteps(bp, "A001")

	bp.CancelBooking("A001")

	if _, ok := bp.Session("A001"); ok {
		t.Error("session survived cancellation")
	}
	if pool.Available() != 1 {
		t.Errorf("worker not freed on cancel: available=%d", pool.Available())
	}
}
