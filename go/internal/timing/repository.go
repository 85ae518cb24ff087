package timing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/raceday/go/internal/events"
	"github.com/mcdev12/raceday/go/internal/models"
	"github.com/mcdev12/raceday/go/internal/sqlutil"
)

const (
	constraintRaceBib         = "race_participants_race_bib_key"
	constraintRaceParticipant = "race_participants_race_participant_key"
)

var (
	raceColumns = []string{
		"r.id", "r.name", "r.race_date", "r.start_time", "r.end_time", "r.created_at", "r.updated_at",
	}
	participantColumns = []string{
		"p.id", "p.first_name", "p.last_name", "p.gender", "p.date_of_birth", "p.email", "p.phone",
		"p.emergency_contact_name", "p.emergency_contact_phone", "p.created_at", "p.updated_at",
	}
	raceParticipantColumns = []string{
		"rp.id", "rp.race_id", "rp.participant_id", "rp.bib_number", "rp.created_at", "rp.updated_at",
	}
	finishColumns = []string{
		"ft.id", "ft.race_participant_id", "ft.finish_time", "ft.adjusted_time", "ft.created_at", "ft.updated_at",
	}
)

// Repository is the Postgres record store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Verify that Repository implements TimingRepository
var _ TimingRepository = (*Repository)(nil)

func (r *Repository) GetRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	q := sqlutil.Psql.Select(raceColumns...).From("races r").Where(sq.Eq{"r.id": raceID})
	race, err := scanRace(sqlutil.QueryRow(ctx, r.pool, q))
	if err != nil {
		if sqlutil.IsNoRows(err) {
			return nil, fmt.Errorf("race %s: %w", raceID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	return race, nil
}

func (r *Repository) CreateRace(ctx context.Context, req CreateRaceRequest) (*models.Race, error) {
	q := sqlutil.Psql.Insert("races AS r").
		Columns("id", "name", "race_date").
		Values(uuid.New(), req.Name, req.RaceDate).
		Suffix("RETURNING " + columnList(raceColumns))
	race, err := scanRace(sqlutil.QueryRow(ctx, r.pool, q))
	if err != nil {
		return nil, fmt.Errorf("failed to create race: %w", err)
	}
	return race, nil
}

// StartRace sets start_time only while it is still null.
func (r *Repository) StartRace(ctx context.Context, raceID uuid.UUID, start time.Time) (*models.Race, error) {
	var race *models.Race
	err := sqlutil.RunTx(ctx, r.pool, func(tx pgx.Tx) error {
		q := sqlutil.Psql.Update("races r").
			Set("start_time", start).
			Set("updated_at", sq.Expr("now()")).
			Where(sq.Eq{"r.id": raceID}).
			Where(sq.Eq{"r.start_time": nil}).
			Suffix("RETURNING " + columnList(raceColumns))

		var err error
		race, err = scanRace(sqlutil.QueryRow(ctx, tx, q))
		if sqlutil.IsNoRows(err) {
			exists := sqlutil.Psql.Select("1").From("races").Where(sq.Eq{"id": raceID})
			var one int
			if err := sqlutil.QueryRow(ctx, tx, exists).Scan(&one); err != nil {
				if sqlutil.IsNoRows(err) {
					return fmt.Errorf("race %s: %w", raceID, ErrNotFound)
				}
				return err
			}
			return ErrRaceAlreadyStarted
		}
		if err != nil {
			return err
		}

		return insertOutbox(ctx, tx, raceID, events.TypeRaceStarted, events.RaceStartedPayload{
			RaceID:    raceID.String(),
			StartedAt: start,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start race: %w", err)
	}
	return race, nil
}

func (r *Repository) CreateParticipant(ctx context.Context, req CreateParticipantRequest) (*models.Participant, error) {
	q := sqlutil.Psql.Insert("participants AS p").
		Columns("id", "first_name", "last_name", "gender", "date_of_birth", "email", "phone",
			"emergency_contact_name", "emergency_contact_phone").
		Values(uuid.New(),
			sqlutil.NullIfEmpty(req.FirstName),
			sqlutil.NullIfEmpty(req.LastName),
			sqlutil.NullIfEmpty(string(req.Gender)),
			sqlutil.ToSqlTime(req.DateOfBirth),
			sqlutil.NullIfEmpty(req.Email),
			sqlutil.NullIfEmpty(req.Phone),
			sqlutil.NullIfEmpty(req.EmergencyContactName),
			sqlutil.NullIfEmpty(req.EmergencyContactPhone)).
		Suffix("RETURNING " + columnList(participantColumns))
	p, err := scanParticipant(sqlutil.QueryRow(ctx, r.pool, q))
	if err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}
	return p, nil
}

func (r *Repository) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	q := sqlutil.Psql.Select(participantColumns...).From("participants p").Where(sq.Eq{"p.id": id})
	p, err := scanParticipant(sqlutil.QueryRow(ctx, r.pool, q))
	if err != nil {
		if sqlutil.IsNoRows(err) {
			return nil, fmt.Errorf("participant %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// GetRaceParticipants returns every entry with zero or one finish attached.
func (r *Repository) GetRaceParticipants(ctx context.Context, raceID uuid.UUID) ([]models.RaceParticipantView, error) {
	q := viewQuery().
		Where(sq.Eq{"rp.race_id": raceID}).
		OrderBy("rp.bib_number NULLS LAST", "rp.created_at")

	rows, err := sqlutil.Query(ctx, r.pool, q)
	if err != nil {
		return nil, fmt.Errorf("failed to get race participants: %w", err)
	}
	defer rows.Close()

	var views []models.RaceParticipantView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan race participant: %w", err)
		}
		views = append(views, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read race participants: %w", err)
	}
	return views, nil
}

func (r *Repository) GetRaceParticipantByBib(ctx context.Context, raceID uuid.UUID, bib int) (*models.RaceParticipantView, error) {
	q := viewQuery().Where(sq.Eq{"rp.race_id": raceID, "rp.bib_number": bib})
	v, err := scanView(sqlutil.QueryRow(ctx, r.pool, q))
	if err != nil {
		if sqlutil.IsNoRows(err) {
			return nil, fmt.Errorf("bib %d: %w", bib, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get race participant by bib: %w", err)
	}
	return v, nil
}

func (r *Repository) AddParticipantToRace(ctx context.Context, req AddParticipantRequest) (*models.RaceParticipant, error) {
	var rp *models.RaceParticipant
	err := sqlutil.RunTx(ctx, r.pool, func(tx pgx.Tx) error {
		q := sqlutil.Psql.Insert("race_participants AS rp").
			Columns("id", "race_id", "participant_id", "bib_number").
			Values(uuid.New(), req.RaceID, req.ParticipantID, sqlutil.ToSqlInt32(req.BibNumber)).
			Suffix("RETURNING " + columnList(raceParticipantColumns))

		var err error
		rp, err = scanRaceParticipant(sqlutil.QueryRow(ctx, tx, q))
		if err != nil {
			return registrationError(err)
		}
		return insertOutbox(ctx, tx, rp.RaceID, events.TypeParticipantAdded, entryPayload(rp))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add participant to race: %w", err)
	}
	return rp, nil
}

func (r *Repository) AssignBib(ctx context.Context, raceParticipantID uuid.UUID, bib int) (*models.RaceParticipant, error) {
	var rp *models.RaceParticipant
	err := sqlutil.RunTx(ctx, r.pool, func(tx pgx.Tx) error {
		q := sqlutil.Psql.Update("race_participants rp").
			Set("bib_number", bib).
			Set("updated_at", sq.Expr("now()")).
			Where(sq.Eq{"rp.id": raceParticipantID}).
			Suffix("RETURNING " + columnList(raceParticipantColumns))

		var err error
		rp, err = scanRaceParticipant(sqlutil.QueryRow(ctx, tx, q))
		if err != nil {
			if sqlutil.IsNoRows(err) {
				return fmt.Errorf("race participant %s: %w", raceParticipantID, ErrNotFound)
			}
			return registrationError(err)
		}
		return insertOutbox(ctx, tx, rp.RaceID, events.TypeBibAssigned, entryPayload(rp))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assign bib: %w", err)
	}
	return rp, nil
}

func (r *Repository) RemoveParticipantFromRace(ctx context.Context, raceParticipantID uuid.UUID) error {
	err := sqlutil.RunTx(ctx, r.pool, func(tx pgx.Tx) error {
		q := sqlutil.Psql.Delete("race_participants rp").
			Where(sq.Eq{"rp.id": raceParticipantID}).
			Suffix("RETURNING " + columnList(raceParticipantColumns))

		rp, err := scanRaceParticipant(sqlutil.QueryRow(ctx, tx, q))
		if err != nil {
			if sqlutil.IsNoRows(err) {
				return fmt.Errorf("race participant %s: %w", raceParticipantID, ErrNotFound)
			}
			return err
		}
		return insertOutbox(ctx, tx, rp.RaceID, events.TypeParticipantRemoved, entryPayload(rp))
	})
	if err != nil {
		return fmt.Errorf("failed to remove participant from race: %w", err)
	}
	return nil
}

// InsertFinishTime is a conditional insert: a second finish for the same
// entry is rejected with ErrAlreadyFinished, never overwritten.
func (r *Repository) InsertFinishTime(ctx context.Context, entry models.RaceParticipantView, ts time.Time) (*models.FinishTime, error) {
	var ft *models.FinishTime
	err := sqlutil.RunTx(ctx, r.pool, func(tx pgx.Tx) error {
		q := sqlutil.Psql.Insert("finish_times AS ft").
			Columns("id", "race_participant_id", "finish_time").
			Values(uuid.New(), entry.ID, ts).
			Suffix("ON CONFLICT (race_participant_id) DO NOTHING RETURNING " + columnList(finishColumns))

		var err error
		ft, err = scanFinishTime(sqlutil.QueryRow(ctx, tx, q))
		if err != nil {
			if sqlutil.IsNoRows(err) {
				return ErrAlreadyFinished
			}
			return err
		}

		bib := 0
		if entry.BibNumber != nil {
			bib = *entry.BibNumber
		}
		return insertOutbox(ctx, tx, entry.RaceID, events.TypeFinishRecorded, events.FinishRecordedPayload{
			FinishTimeID:      ft.ID.String(),
			RaceParticipantID: entry.ID.String(),
			BibNumber:         bib,
			FinishTime:        ft.FinishTime,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert finish time: %w", err)
	}
	return ft, nil
}

// UpdateFinishTime sets adjusted_time; finish_time is left untouched.
func (r *Repository) UpdateFinishTime(ctx context.Context, finishTimeID uuid.UUID, adjusted time.Time) (*models.FinishTime, error) {
	var ft *models.FinishTime
	err := sqlutil.RunTx(ctx, r.pool, func(tx pgx.Tx) error {
		raceID, _, err := finishOwner(ctx, tx, finishTimeID)
		if err != nil {
			return err
		}

		q := sqlutil.Psql.Update("finish_times ft").
			Set("adjusted_time", adjusted).
			Set("updated_at", sq.Expr("now()")).
			Where(sq.Eq{"ft.id": finishTimeID}).
			Suffix("RETURNING " + columnList(finishColumns))
		ft, err = scanFinishTime(sqlutil.QueryRow(ctx, tx, q))
		if err != nil {
			return err
		}

		return insertOutbox(ctx, tx, raceID, events.TypeFinishUpdated, events.FinishUpdatedPayload{
			FinishTimeID: ft.ID.String(),
			FinishTime:   ft.FinishTime,
			AdjustedTime: adjusted,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update finish time: %w", err)
	}
	return ft, nil
}

func (r *Repository) DeleteFinishTime(ctx context.Context, finishTimeID uuid.UUID) error {
	err := sqlutil.RunTx(ctx, r.pool, func(tx pgx.Tx) error {
		raceID, rpID, err := finishOwner(ctx, tx, finishTimeID)
		if err != nil {
			return err
		}

		if _, err := sqlutil.Exec(ctx, tx, sqlutil.Psql.Delete("finish_times").Where(sq.Eq{"id": finishTimeID})); err != nil {
			return err
		}

		return insertOutbox(ctx, tx, raceID, events.TypeFinishDeleted, events.FinishDeletedPayload{
			FinishTimeID:      finishTimeID.String(),
			RaceParticipantID: rpID.String(),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to delete finish time: %w", err)
	}
	return nil
}

// finishOwner locks a finish row and returns its race and entry.
func finishOwner(ctx context.Context, tx pgx.Tx, finishTimeID uuid.UUID) (uuid.UUID, uuid.UUID, error) {
	q := sqlutil.Psql.Select("rp.race_id", "rp.id").
		From("finish_times ft").
		Join("race_participants rp ON rp.id = ft.race_participant_id").
		Where(sq.Eq{"ft.id": finishTimeID}).
		Suffix("FOR UPDATE OF ft")

	var raceID, rpID uuid.UUID
	if err := sqlutil.QueryRow(ctx, tx, q).Scan(&raceID, &rpID); err != nil {
		if sqlutil.IsNoRows(err) {
			return uuid.Nil, uuid.Nil, fmt.Errorf("finish time %s: %w", finishTimeID, ErrNotFound)
		}
		return uuid.Nil, uuid.Nil, err
	}
	return raceID, rpID, nil
}

var outboxHeaders = []byte(`{"Event-Source":"timing"}`)

// insertOutbox writes an event in the caller's transaction so that it is
// published if and only if the change commits.
func insertOutbox(ctx context.Context, tx pgx.Tx, raceID uuid.UUID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	q := sqlutil.Psql.Insert("race_outbox").
		Columns("id", "race_id", "event_type", "payload", "headers").
		Values(uuid.New(), raceID, eventType, data, outboxHeaders)
	if _, err := sqlutil.Exec(ctx, tx, q); err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}

func registrationError(err error) error {
	if name, ok := sqlutil.UniqueViolation(err); ok {
		switch name {
		case constraintRaceBib:
			return ErrBibTaken
		case constraintRaceParticipant:
			return ErrAlreadyRegistered
		}
	}
	return err
}

func entryPayload(rp *models.RaceParticipant) events.EntryPayload {
	return events.EntryPayload{
		RaceParticipantID: rp.ID.String(),
		ParticipantID:     rp.ParticipantID.String(),
		BibNumber:         rp.BibNumber,
	}
}

func viewQuery() sq.SelectBuilder {
	cols := []string{"rp.id", "rp.race_id", "rp.bib_number"}
	cols = append(cols, participantColumns...)
	cols = append(cols, finishColumns...)
	return sqlutil.Psql.Select(cols...).
		From("race_participants rp").
		Join("participants p ON p.id = rp.participant_id").
		LeftJoin("finish_times ft ON ft.race_participant_id = rp.id")
}

func columnList(cols []string) string {
	return strings.Join(cols, ", ")
}

// Scanning

func scanRace(row pgx.Row) (*models.Race, error) {
	var race models.Race
	if err := row.Scan(
		&race.ID, &race.Name, &race.RaceDate, &race.StartTime, &race.EndTime,
		&race.CreatedAt, &race.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &race, nil
}

type participantRow struct {
	firstName, lastName, gender, email, phone, ecName, ecPhone sql.NullString
}

func (pr participantRow) apply(p *models.Participant) {
	p.FirstName = sqlutil.FromSqlString(pr.firstName, "")
	p.LastName = sqlutil.FromSqlString(pr.lastName, "")
	p.Gender = models.Gender(sqlutil.FromSqlString(pr.gender, ""))
	p.Email = sqlutil.FromSqlString(pr.email, "")
	p.Phone = sqlutil.FromSqlString(pr.phone, "")
	p.EmergencyContactName = sqlutil.FromSqlString(pr.ecName, "")
	p.EmergencyContactPhone = sqlutil.FromSqlString(pr.ecPhone, "")
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	var pr participantRow
	if err := row.Scan(
		&p.ID, &pr.firstName, &pr.lastName, &pr.gender, &p.DateOfBirth, &pr.email, &pr.phone,
		&pr.ecName, &pr.ecPhone, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	pr.apply(&p)
	return &p, nil
}

func scanRaceParticipant(row pgx.Row) (*models.RaceParticipant, error) {
	var rp models.RaceParticipant
	var bib sql.NullInt32
	if err := row.Scan(&rp.ID, &rp.RaceID, &rp.ParticipantID, &bib, &rp.CreatedAt, &rp.UpdatedAt); err != nil {
		return nil, err
	}
	rp.BibNumber = sqlutil.FromSqlInt32(bib)
	return &rp, nil
}

func scanFinishTime(row pgx.Row) (*models.FinishTime, error) {
	var ft models.FinishTime
	if err := row.Scan(
		&ft.ID, &ft.RaceParticipantID, &ft.FinishTime, &ft.AdjustedTime, &ft.CreatedAt, &ft.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ft, nil
}

// scanView collapses the LEFT JOIN into zero or one finish record.
func scanView(row pgx.Row) (*models.RaceParticipantView, error) {
	var v models.RaceParticipantView
	var bib sql.NullInt32
	var pr participantRow
	var (
		ftID             uuid.NullUUID
		ftRPID           uuid.NullUUID
		ftFinish         sql.NullTime
		ftAdjusted       sql.NullTime
		ftCreated, ftUpd sql.NullTime
	)
	if err := row.Scan(
		&v.ID, &v.RaceID, &bib,
		&v.Participant.ID, &pr.firstName, &pr.lastName, &pr.gender, &v.Participant.DateOfBirth,
		&pr.email, &pr.phone, &pr.ecName, &pr.ecPhone, &v.Participant.CreatedAt, &v.Participant.UpdatedAt,
		&ftID, &ftRPID, &ftFinish, &ftAdjusted, &ftCreated, &ftUpd,
	); err != nil {
		return nil, err
	}
	v.BibNumber = sqlutil.FromSqlInt32(bib)
	pr.apply(&v.Participant)

	if ftID.Valid {
		v.FinishTime = &models.FinishTime{
			ID:                ftID.UUID,
			RaceParticipantID: ftRPID.UUID,
			FinishTime:        ftFinish.Time,
			AdjustedTime:      sqlutil.FromSqlTime(ftAdjusted),
			CreatedAt:         ftCreated.Time,
			UpdatedAt:         ftUpd.Time,
		}
	}
	return &v, nil
}
