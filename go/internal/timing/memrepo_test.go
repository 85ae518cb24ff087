package timing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/raceday/go/internal/models"
)

// memRepo is an in-memory TimingRepository with the same rejection rules as
// the Postgres constraints.
type memRepo struct {
	mu           sync.Mutex
	races        map[uuid.UUID]*models.Race
	participants map[uuid.UUID]*models.Participant
	entries      []*models.RaceParticipant
	finishes     map[uuid.UUID]*models.FinishTime // keyed by race participant
}

var _ TimingRepository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		races:        make(map[uuid.UUID]*models.Race),
		participants: make(map[uuid.UUID]*models.Participant),
		finishes:     make(map[uuid.UUID]*models.FinishTime),
	}
}

func (m *memRepo) GetRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.races[raceID]
	if !ok {
		return nil, fmt.Errorf("race %s: %w", raceID, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) CreateRace(ctx context.Context, req CreateRaceRequest) (*models.Race, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &models.Race{ID: uuid.New(), Name: req.Name, RaceDate: req.RaceDate}
	m.races[r.ID] = r
	cp := *r
	return &cp, nil
}

func (m *memRepo) StartRace(ctx context.Context, raceID uuid.UUID, start time.Time) (*models.Race, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.races[raceID]
	if !ok {
		return nil, fmt.Errorf("race %s: %w", raceID, ErrNotFound)
	}
	if r.StartTime != nil {
		return nil, fmt.Errorf("failed to start race: %w", ErrRaceAlreadyStarted)
	}
	r.StartTime = &start
	cp := *r
	return &cp, nil
}

func (m *memRepo) CreateParticipant(ctx context.Context, req CreateParticipantRequest) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &models.Participant{
		ID:          uuid.New(),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Gender:      req.Gender,
		DateOfBirth: req.DateOfBirth,
	}
	m.participants[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *memRepo) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) view(rp *models.RaceParticipant) models.RaceParticipantView {
	v := models.RaceParticipantView{
		ID:          rp.ID,
		RaceID:      rp.RaceID,
		BibNumber:   rp.BibNumber,
		Participant: *m.participants[rp.ParticipantID],
	}
	if ft, ok := m.finishes[rp.ID]; ok {
		cp := *ft
		v.FinishTime = &cp
	}
	return v
}

func (m *memRepo) GetRaceParticipants(ctx context.Context, raceID uuid.UUID) ([]models.RaceParticipantView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RaceParticipantView
	for _, rp := range m.entries {
		if rp.RaceID == raceID {
			out = append(out, m.view(rp))
		}
	}
	return out, nil
}

func (m *memRepo) GetRaceParticipantByBib(ctx context.Context, raceID uuid.UUID, bib int) (*models.RaceParticipantView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rp := range m.entries {
		if rp.RaceID == raceID && rp.BibNumber != nil && *rp.BibNumber == bib {
			v := m.view(rp)
			return &v, nil
		}
	}
	return nil, fmt.Errorf("bib %d: %w", bib, ErrNotFound)
}

func (m *memRepo) AddParticipantToRace(ctx context.Context, req AddParticipantRequest) (*models.RaceParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rp := range m.entries {
		if rp.RaceID != req.RaceID {
			continue
		}
		if rp.ParticipantID == req.ParticipantID {
			return nil, ErrAlreadyRegistered
		}
		if req.BibNumber != nil && rp.BibNumber != nil && *rp.BibNumber == *req.BibNumber {
			return nil, ErrBibTaken
		}
	}
	rp := &models.RaceParticipant{ID: uuid.New(), RaceID: req.RaceID, ParticipantID: req.ParticipantID, BibNumber: req.BibNumber}
	m.entries = append(m.entries, rp)
	cp := *rp
	return &cp, nil
}

func (m *memRepo) AssignBib(ctx context.Context, raceParticipantID uuid.UUID, bib int) (*models.RaceParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *models.RaceParticipant
	for _, rp := range m.entries {
		if rp.ID == raceParticipantID {
			target = rp
		}
	}
	if target == nil {
		return nil, ErrNotFound
	}
	for _, rp := range m.entries {
		if rp.RaceID == target.RaceID && rp.ID != target.ID && rp.BibNumber != nil && *rp.BibNumber == bib {
			return nil, ErrBibTaken
		}
	}
	b := bib
	target.BibNumber = &b
	cp := *target
	return &cp, nil
}

func (m *memRepo) RemoveParticipantFromRace(ctx context.Context, raceParticipantID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rp := range m.entries {
		if rp.ID == raceParticipantID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			delete(m.finishes, rp.ID)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memRepo) InsertFinishTime(ctx context.Context, entry models.RaceParticipantView, ts time.Time) (*models.FinishTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.finishes[entry.ID]; ok {
		return nil, ErrAlreadyFinished
	}
	ft := &models.FinishTime{ID: uuid.New(), RaceParticipantID: entry.ID, FinishTime: ts}
	m.finishes[entry.ID] = ft
	cp := *ft
	return &cp, nil
}

func (m *memRepo) UpdateFinishTime(ctx context.Context, finishTimeID uuid.UUID, adjusted time.Time) (*models.FinishTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ft := range m.finishes {
		if ft.ID == finishTimeID {
			a := adjusted
			ft.AdjustedTime = &a
			cp := *ft
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) DeleteFinishTime(ctx context.Context, finishTimeID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for rpID, ft := range m.finishes {
		if ft.ID == finishTimeID {
			delete(m.finishes, rpID)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memRepo) finishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.finishes)
}
