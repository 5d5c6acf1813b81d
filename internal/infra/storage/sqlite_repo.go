package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/penhollow/custody-server/internal/engine"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event CustodyEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, timestamp, event_type, actor_id, target_id, payload, custody_day)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.EventType, event.ActorID,
		event.TargetID, string(payloadBytes), event.CustodyDay,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]CustodyEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CustodyEvent
	for rows.Next() {
		var e CustodyEvent
		var payloadStr string
		err := rows.Scan(
			&e.ID, &e.Timestamp, &e.EventType, &e.ActorID,
			&e.TargetID, &payloadStr, &e.CustodyDay,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) GetAll(ctx context.Context) ([]CustodyEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, target_id, payload, custody_day FROM events ORDER BY timestamp ASC`
	return r.getMany(ctx, query)
}

func (r *SQLiteEventRepository) GetByActorID(ctx context.Context, actorID string) ([]CustodyEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, target_id, payload, custody_day FROM events WHERE actor_id = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, actorID)
}

func (r *SQLiteEventRepository) GetByCustodyDay(ctx context.Context, day int) ([]CustodyEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, target_id, payload, custody_day FROM events WHERE custody_day = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, day)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, eventType string) ([]CustodyEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, target_id, payload, custody_day FROM events WHERE event_type = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, eventType)
}

// ---------------------------------------------------------
// SQLiteCustodyRepository
// ---------------------------------------------------------

// SQLiteCustodyRepository implements engine.CustodyRecorder on SQLite.
type SQLiteCustodyRepository struct {
	db *sql.DB
}

func NewSQLiteCustodyRepository(db *sql.DB) *SQLiteCustodyRepository {
	return &SQLiteCustodyRepository{db: db}
}

func (r *SQLiteCustodyRepository) SaveCustodySnapshot(s engine.CustodySnapshot) error {
	query := `
		INSERT INTO custody_snapshots (actor_id, actor_name, unit_id, sentence_minutes, fine_amount, start_minute, end_minute, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor_id) DO UPDATE SET
			actor_name=excluded.actor_name,
			unit_id=excluded.unit_id,
			sentence_minutes=excluded.sentence_minutes,
			fine_amount=excluded.fine_amount,
			start_minute=excluded.start_minute,
			end_minute=excluded.end_minute,
			last_updated=excluded.last_updated
	`
	_, err := r.db.Exec(query,
		s.ActorID, s.ActorName, s.UnitID, s.SentenceMinutes, s.FineAmount, s.StartMinute, s.EndMinute, time.Now(),
	)
	return err
}

func (r *SQLiteCustodyRepository) LoadCustodySnapshots() ([]engine.CustodySnapshot, error) {
	query := `SELECT actor_id, actor_name, unit_id, sentence_minutes, fine_amount, start_minute, end_minute FROM custody_snapshots`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []engine.CustodySnapshot
	for rows.Next() {
		var s engine.CustodySnapshot
		if err := rows.Scan(&s.ActorID, &s.ActorName, &s.UnitID, &s.SentenceMinutes, &s.FineAmount, &s.StartMinute, &s.EndMinute); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func (r *SQLiteCustodyRepository) ClearCustodySnapshot(actorID string) error {
	_, err := r.db.Exec(`DELETE FROM custody_snapshots WHERE actor_id = ?`, actorID)
	return err
}

// ---------------------------------------------------------
// SQLiteOffenseRepository
// ---------------------------------------------------------

type SQLiteOffenseRepository struct {
	db *sql.DB
}

func NewSQLiteOffenseRepository(db *sql.DB) *SQLiteOffenseRepository {
	return &SQLiteOffenseRepository{db: db}
}

func (r *SQLiteOffenseRepository) Insert(ctx context.Context, rec OffenseRecord) error {
	query := `
		INSERT INTO offenses (id, actor_id, kind, severity, witnessed, witness_count, victim_class, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.ActorID, rec.Kind, rec.Severity, rec.Witnessed, rec.WitnessCount, rec.VictimClass, rec.Timestamp,
	)
	return err
}

func (r *SQLiteOffenseRepository) GetByActorID(ctx context.Context, actorID string) ([]OffenseRecord, error) {
	query := `SELECT id, actor_id, kind, severity, witnessed, witness_count, victim_class, timestamp FROM offenses WHERE actor_id = ? ORDER BY timestamp ASC`
	rows, err := r.db.QueryContext(ctx, query, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []OffenseRecord
	for rows.Next() {
		var rec OffenseRecord
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.Kind, &rec.Severity, &rec.Witnessed, &rec.WitnessCount, &rec.VictimClass, &rec.Timestamp); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
