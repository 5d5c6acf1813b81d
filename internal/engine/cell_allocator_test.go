package engine

import (
	"fmt"
	"testing"
)

func newTestAllocator() *CellAllocator {
	return NewCellAllocator(DefaultCellAllocatorConfig(), nil, testEventLog(), testLogger())
}

func TestAssignActorIdempotent(t *testing.T) {
	ca := newTestAllocator()

	first, err := ca.AssignActor("A001")
	if err != nil {
		t.Fatalf("first assignment failed: %v", err)
	}
	second, err := ca.AssignActor("A001")
	if err != nil {
		t.Fatalf("second assignment failed: %v", err)
	}
	if first != second {
		t.Errorf("re-assignment moved the actor: %s then %s", first, second)
	}

	long, _ := ca.Status()
	if long.Occupied != 1 {
		t.Errorf("expected 1 occupied slot after idempotent assign, got %d", long.Occupied)
	}
}

func TestAssignActorCapacityExhausted(t *testing.T) {
	ca := newTestAllocator()
	cfg := DefaultCellAllocatorConfig()
	slots := cfg.DoubleUnits * 2

	for i := 0; i < slots; i++ {
		if _, err := ca.AssignActor(fmt.Sprintf("A%03d", i)); err != nil {
			t.Fatalf("assignment %d failed with capacity remaining: %v", i, err)
		}
	}

	if _, err := ca.AssignActor("OVERFLOW"); err != ErrNoCapacity {
		t.Errorf("expected ErrNoCapacity at %d occupants, got %v", slots, err)
	}
}

func TestTransientAccountingInvariant(t *testing.T) {
	ca := newTestAllocator()
	cfg := DefaultCellAllocatorConfig()
	total := cfg.HoldingUnits * 3

	for i := 0; i < total; i++ {
		if _, err := ca.AssignTransient(fmt.Sprintf("T%03d", i), "walk-in"); err != nil {
			t.Fatalf("transient assignment %d failed: %v", i, err)
		}
		_, holding := ca.Status()
		if holding.Available+holding.Occupied != holding.Total {
			t.Fatalf("slot accounting broken: %d available + %d occupied != %d total",
				holding.Available, holding.Occupied, holding.Total)
		}
	}

	if _, err := ca.AssignTransient("OVERFLOW", "walk-in"); err != ErrNoCapacity {
		t.Errorf("expected ErrNoCapacity with all holding slots full, got %v", err)
	}

	ca.Release("T000")
	if _, err := ca.AssignTransient("OVERFLOW", "walk-in"); err != nil {
		t.Errorf("expected freed slot to be reusable, got %v", err)
	}
}

func TestTransientIdempotent(t *testing.T) {
	ca := newTestAllocator()

	first, _ := ca.AssignTransient("T001", "walk-in")
	second, _ := ca.AssignTransient("T001", "walk-in")
	if first != second {
		t.Errorf("re-assignment moved the transient: %s then %s", first, second)
	}

	_, holding := ca.Status()
	if holding.Occupied != 1 {
		t.Errorf("expected 1 occupied holding slot, got %d", holding.Occupied)
	}
}

func TestReleaseUnassignedIsNoop(t *testing.T) {
	ca := newTestAllocator()
	ca.Release("GHOST")

	long, holding := ca.Status()
	if long.Occupied != 0 || holding.Occupied != 0 {
		t.Errorf("release of unassigned actor changed occupancy: %+v %+v", long, holding)
	}
}

func TestReleaseFreesBothPools(t *testing.T) {
	ca := newTestAllocator()

	ca.AssignTransient("A001", "intake")
	ca.AssignActor("A001")
	ca.Release("A001")

	long, holding := ca.Status()
	if long.Occupied != 0 {
		t.Errorf("long-stay slot still occupied after release: %d", long.Occupied)
	}
	if holding.Occupied != 0 {
		t.Errorf("holding slot still occupied after release: %d", holding.Occupied)
	}
	if _, ok := ca.AssignedUnit("A001"); ok {
		t.Error("AssignedUnit still reports a unit after release")
	}
}
