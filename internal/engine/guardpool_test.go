package engine

import "testing"

func TestAcquireMarksBusy(t *testing.T) {
	pool := NewGuardPool(testLogger(), nil)
	w := newFakeWorker("W1", false)
	pool.AddWorker(w)

	got := pool.Acquire()
	if got == nil {
		t.Fatal("expected a worker, got nil")
	}
	if got.IsAvailable() {
		t.Error("acquired worker still reports available")
	}
	if pool.Acquire() != nil {
		t.Error("second acquire should fail with one busy worker")
	}
	if pool.Busy() != 1 || pool.Available() != 0 {
		t.Errorf("pool counts wrong: busy=%d available=%d", pool.Busy(), pool.Available())
	}
}

func TestFreeRunsDrainHook(t *testing.T) {
	pool := NewGuardPool(testLogger(), nil)
	w := newFakeWorker("W1", false)
	pool.AddWorker(w)

	fired := 0
	pool.SetOnFree(func() { fired++ })

	got := pool.Acquire()
	pool.Free(got)

	if fired != 1 {
		t.Errorf("onFree fired %d times, want 1", fired)
	}
	if !w.IsAvailable() {
		t.Error("freed worker not available")
	}
	if w.returns != 1 {
		t.Errorf("worker returned to post %d times, want 1", w.returns)
	}
	if w.cleared == 0 {
		t.Error("freed worker kept its callback registration")
	}
}

func TestFreeNilIsNoop(t *testing.T) {
	pool := NewGuardPool(testLogger(), nil)
	fired := false
	pool.SetOnFree(func() { fired = true })

	pool.Free(nil)
	if fired {
		t.Error("onFree fired for a nil worker")
	}
}

func TestStandbySpawnOnlyWhenEmpty(t *testing.T) {
	spawned := 0
	factory := func() EscortWorker {
		spawned++
		return newFakeWorker("STANDBY", false)
	}

	pool := NewGuardPool(testLogger(), factory)
	w := pool.Acquire()
	if w == nil {
		t.Fatal("empty pool with a standby factory should spawn")
	}
	if spawned != 1 {
		t.Errorf("factory ran %d times, want 1", spawned)
	}
	if w.IsAvailable() {
		t.Error("spawned standby worker not claimed as busy")
	}
	if pool.Total() != 1 || pool.Busy() != 1 {
		t.Errorf("standby worker not registered: total=%d busy=%d", pool.Total(), pool.Busy())
	}

	// Once freed, the standby worker is a normal pool member.
	pool.Free(w)
	if got := pool.Acquire(); got != w {
		t.Error("freed standby worker not reused on the next acquire")
	}
	if spawned != 1 {
		t.Errorf("factory ran %d times after reuse, want 1", spawned)
	}

	// Pool now has one busy worker; exhaustion must not spawn again.
	if w := pool.Acquire(); w != nil {
		t.Error("exhausted non-empty pool should not spawn a second standby")
	}
	if spawned != 1 {
		t.Errorf("factory ran %d times after exhaustion, want 1", spawned)
	}
}
