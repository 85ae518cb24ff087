package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS capture_items (
		id             TEXT PRIMARY KEY,
		race_id        TEXT NOT NULL,
		bib            INTEGER NOT NULL,
		captured_at    INTEGER NOT NULL,
		state          TEXT NOT NULL,
		reason         TEXT,
		attempts       INTEGER NOT NULL DEFAULT 0,
		synced_at      INTEGER,
		finish_time_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS capture_items_race_idx ON capture_items (race_id)`,
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLiteStore keeps capture items in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore applies pragmas and creates the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("create capture schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

var _ Store = (*SQLiteStore)(nil)

// Save inserts or updates an item. Updates keep the original rowid so List
// order is capture order.
func (s *SQLiteStore) Save(ctx context.Context, item Item) error {
	var syncedAt sql.NullInt64
	if item.SyncedAt != nil {
		syncedAt = sql.NullInt64{Int64: item.SyncedAt.UnixNano(), Valid: true}
	}
	var finishID sql.NullString
	if item.FinishTimeID != nil {
		finishID = sql.NullString{String: item.FinishTimeID.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO capture_items (id, race_id, bib, captured_at, state, reason, attempts, synced_at, finish_time_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			reason = excluded.reason,
			attempts = excluded.attempts,
			synced_at = excluded.synced_at,
			finish_time_id = excluded.finish_time_id`,
		item.ID.String(), item.RaceID.String(), item.Bib, item.CapturedAt.UnixNano(),
		string(item.State), item.Reason, item.Attempts, syncedAt, finishID,
	)
	if err != nil {
		return fmt.Errorf("save capture item: %w", err)
	}
	return nil
}

// List returns a race's items in capture order.
func (s *SQLiteStore) List(ctx context.Context, raceID uuid.UUID) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, race_id, bib, captured_at, state, reason, attempts, synced_at, finish_time_id
		FROM capture_items
		WHERE race_id = ?
		ORDER BY rowid`, raceID.String())
	if err != nil {
		return nil, fmt.Errorf("list capture items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it                  Item
			id, race, state     string
			capturedAt          int64
			reasonCol, finishID sql.NullString
			syncedAt            sql.NullInt64
		)
		if err := rows.Scan(&id, &race, &it.Bib, &capturedAt, &state, &reasonCol, &it.Attempts, &syncedAt, &finishID); err != nil {
			return nil, fmt.Errorf("scan capture item: %w", err)
		}
		if it.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse capture item id: %w", err)
		}
		if it.RaceID, err = uuid.Parse(race); err != nil {
			return nil, fmt.Errorf("parse capture race id: %w", err)
		}
		it.CapturedAt = time.Unix(0, capturedAt).UTC()
		it.State = State(state)
		it.Reason = reasonCol.String
		if syncedAt.Valid {
			t := time.Unix(0, syncedAt.Int64).UTC()
			it.SyncedAt = &t
		}
		if finishID.Valid {
			if fid, err := uuid.Parse(finishID.String); err == nil {
				it.FinishTimeID = &fid
			}
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read capture items: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM capture_items WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete capture item: %w", err)
	}
	return nil
}
