// Package store persists exported event snapshots in a local SQLite
// database so a later run can reuse them as its historical input.
package store

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "modernc.org/sqlite"

	"calhub/internal/convert"
	"calhub/internal/model"
)

type DB struct {
	sql *sql.DB
}

// Open opens (and if necessary creates) the snapshot database at path.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS events (
  id         TEXT PRIMARY KEY,
  payload    TEXT NOT NULL,
  first_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  last_seen  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// SaveSnapshot upserts every event keyed by its canonical id. Payloads
// are the single-event interchange DTOs, so the table stays readable by
// the same codec that reads remote snapshots.
func (d *DB) SaveSnapshot(ctx context.Context, events []model.CalendarEvent) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, dto := range convert.Serialize(events) {
		var payload []byte
		payload, err = json.Marshal(dto)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO events(id, payload) VALUES(?, ?)
ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, last_seen = CURRENT_TIMESTAMP`,
			dto.ID, string(payload))
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	return err
}

// LoadSnapshot reads every stored event back, in insertion order.
func (d *DB) LoadSnapshot(ctx context.Context) ([]model.CalendarEvent, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT payload FROM events ORDER BY first_seen, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dtos []convert.EventDTO
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var dto convert.EventDTO
		if err := json.Unmarshal([]byte(payload), &dto); err != nil {
			return nil, err
		}
		dtos = append(dtos, dto)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return convert.Deserialize(dtos)
}
