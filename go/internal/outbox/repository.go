package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/raceday/go/internal/sqlutil"
)

// ErrEventNotFound is returned when an event does not exist or was already sent.
var ErrEventNotFound = errors.New("outbox event not found or already sent")

var eventColumns = []string{"id", "race_id", "event_type", "payload", "headers", "created_at", "sent_at"}

// Repository reads race_outbox through database/sql (lib/pq driver).
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ EventStore = (*Repository)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*Event, error) {
	var (
		e       Event
		payload []byte
		headers pqtype.NullRawMessage
		sentAt  sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.RaceID, &e.EventType, &payload, &headers, &e.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	e.Payload = json.RawMessage(payload)
	if headers.Valid && len(headers.RawMessage) > 0 {
		if err := json.Unmarshal(headers.RawMessage, &e.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode outbox headers: %w", err)
		}
	}
	if sentAt.Valid {
		t := sentAt.Time
		e.SentAt = &t
	}
	return &e, nil
}

// FetchUnsentByID loads an event that has not been published yet.
func (r *Repository) FetchUnsentByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	row := sqlutil.Psql.Select(eventColumns...).
		From("race_outbox").
		Where(sq.Eq{"id": id, "sent_at": nil}).
		RunWith(r.db).
		QueryRowContext(ctx)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return e, nil
}

// FetchUnsent returns up to limit unsent events, oldest first.
func (r *Repository) FetchUnsent(ctx context.Context, limit uint64) ([]Event, error) {
	rows, err := sqlutil.Psql.Select(eventColumns...).
		From("race_outbox").
		Where(sq.Eq{"sent_at": nil}).
		OrderBy("created_at").
		Limit(limit).
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox events: %w", err)
	}
	return out, nil
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := sqlutil.Psql.Update("race_outbox").
		Set("sent_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id, "sent_at": nil}).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

// CountPending returns the number of unsent events.
func (r *Repository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := sqlutil.Psql.Select("COUNT(*)").
		From("race_outbox").
		Where(sq.Eq{"sent_at": nil}).
		RunWith(r.db).
		QueryRowContext(ctx).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return n, nil
}
