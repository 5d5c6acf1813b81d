package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/penhollow/custody-server/internal/engine"
)

func testDB(t *testing.T) *SQLiteCustodyRepository {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "custody.db"))
	if err != nil {
		t.Fatalf("init sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteCustodyRepository(db)
}

func TestCustodySnapshotRoundTrip(t *testing.T) {
	repo := testDB(t)

	snap := engine.CustodySnapshot{
		ActorID:         "A001",
		ActorName:       "Frank",
		UnitID:          "CELL_07",
		SentenceMinutes: 240,
		FineAmount:      150,
		StartMinute:     100,
		EndMinute:       340,
	}
	if err := repo.SaveCustodySnapshot(snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Upsert replaces, never duplicates.
	snap.EndMinute = 400
	if err := repo.SaveCustodySnapshot(snap); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.LoadCustodySnapshots()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 snapshot after upsert, got %d", len(got))
	}
	if got[0].EndMinute != 400 || got[0].UnitID != "CELL_07" {
		t.Errorf("round trip mismatch: %+v", got[0])
	}

	if err := repo.ClearCustodySnapshot("A001"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = repo.LoadCustodySnapshots()
	if len(got) != 0 {
		t.Errorf("snapshot survived clear: %+v", got)
	}
}

func TestOffenseLedgerAppendOnly(t *testing.T) {
	db, err := InitSQLite(filepath.Join(t.TempDir(), "custody.db"))
	if err != nil {
		t.Fatalf("init sqlite: %v", err)
	}
	defer db.Close()
	repo := NewSQLiteOffenseRepository(db)
	ctx := context.Background()

	first := OffenseRecord{
		ID: "E1", ActorID: "A001", Kind: "Theft", Severity: 1.0,
		Witnessed: true, WitnessCount: 2, Timestamp: time.Now().Add(-time.Hour),
	}
	second := OffenseRecord{
		ID: "E2", ActorID: "A001", Kind: "Assault", Severity: 2.0,
		VictimClass: "Staff", Timestamp: time.Now(),
	}
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, second); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.GetByActorID(ctx, "A001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Kind != "Theft" || got[1].Kind != "Assault" {
		t.Errorf("records out of offense order: %v %v", got[0].Kind, got[1].Kind)
	}
}

func TestEventLedgerQueries(t *testing.T) {
	db, err := InitSQLite(filepath.Join(t.TempDir(), "custody.db"))
	if err != nil {
		t.Fatalf("init sqlite: %v", err)
	}
	defer db.Close()
	repo := NewSQLiteEventRepository(db)
	ctx := context.Background()

	events := []CustodyEvent{
		{ID: "E1", Timestamp: time.Now().Add(-2 * time.Minute), EventType: "BOOKING_STARTED", ActorID: "A001", CustodyDay: 1, Payload: map[string]interface{}{}},
		{ID: "E2", Timestamp: time.Now().Add(-time.Minute), EventType: "RELEASE_REQUESTED", ActorID: "A001", CustodyDay: 2, Payload: map[string]interface{}{"kind": "Bail"}},
		{ID: "E3", Timestamp: time.Now(), EventType: "BOOKING_STARTED", ActorID: "A002", CustodyDay: 2, Payload: map[string]interface{}{}},
	}
	for _, e := range events {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append %s: %v", e.ID, err)
		}
	}

	byActor, err := repo.GetByActorID(ctx, "A001")
	if err != nil || len(byActor) != 2 {
		t.Fatalf("by actor: %v (%d records)", err, len(byActor))
	}
	byDay, err := repo.GetByCustodyDay(ctx, 2)
	if err != nil || len(byDay) != 2 {
		t.Fatalf("by day: %v (%d records)", err, len(byDay))
	}
	byType, err := repo.GetByEventType(ctx, "RELEASE_REQUESTED")
	if err != nil || len(byType) != 1 {
		t.Fatalf("by type: %v (%d records)", err, len(byType))
	}
	if byType[0].Payload["kind"] != "Bail" {
		t.Errorf("payload did not survive the round trip: %v", byType[0].Payload)
	}
}
