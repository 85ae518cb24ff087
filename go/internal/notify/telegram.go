// Package notify announces finishes to a Telegram chat.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raceday/go/internal/events"
	"github.com/mcdev12/raceday/go/internal/placement"
	"github.com/mcdev12/raceday/go/internal/results"
)

// Sender is satisfied by *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RaceSource loads the current state of a race. *results.Cache satisfies it.
type RaceSource interface {
	Load(ctx context.Context, raceID uuid.UUID) (results.RaceData, error)
}

const seenLimit = 1024

// Announcer posts a message for every recorded finish.
type Announcer struct {
	sender Sender
	chatID int64
	races  RaceSource

	mu   sync.Mutex
	seen map[string]bool
	ring []string
}

func NewAnnouncer(sender Sender, chatID int64, races RaceSource) *Announcer {
	return &Announcer{
		sender: sender,
		chatID: chatID,
		races:  races,
		seen:   make(map[string]bool),
	}
}

// NewBot connects to the Bot API.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	bot.Debug = false
	return bot, nil
}

// HandleEvent announces finish.recorded events and ignores the rest.
// Redelivered events are announced once.
func (a *Announcer) HandleEvent(ctx context.Context, env events.Envelope) error {
	if env.EventType != events.TypeFinishRecorded || a.alreadySeen(env.EventID) {
		return nil
	}

	var payload events.FinishRecordedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode finish payload: %w", err)
	}
	raceID, err := uuid.Parse(env.RaceID)
	if err != nil {
		return fmt.Errorf("parse race ID: %w", err)
	}

	data, err := a.races.Load(ctx, raceID)
	if err != nil {
		return fmt.Errorf("failed to load race for announcement: %w", err)
	}
	text, ok := Announcement(data, payload.FinishTimeID)
	if !ok {
		log.Warn().
			Str("race_id", env.RaceID).
			Str("finish_time_id", payload.FinishTimeID).
			Msg("finish not found in race, skipping announcement")
		return nil
	}

	if _, err := a.sender.Send(tgbotapi.NewMessage(a.chatID, text)); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	a.markSeen(env.EventID)
	log.Info().Str("race_id", env.RaceID).Int("bib", payload.BibNumber).Msg("finish announced")
	return nil
}

// Announcement renders the message for one finish, placed against the
// current field.
func Announcement(data results.RaceData, finishTimeID string) (string, bool) {
	if !data.Race.Started() {
		return "", false
	}
	placements := placement.Compute(data.Entries, *data.Race.StartTime, data.Race.RaceDate)
	for _, p := range placements {
		if p.FinishTimeID.String() != finishTimeID {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "🏁 %s", data.Race.Name)
		if p.BibNumber != nil {
			fmt.Fprintf(&b, "\n#%d", *p.BibNumber)
		} else {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, " %s finished in %s", p.Participant.DisplayName(), placement.FormatElapsed(p.ElapsedTime))
		fmt.Fprintf(&b, "\nOverall: %d of %d", p.OverallPlace, len(placements))
		if p.GenderPlace != nil {
			fmt.Fprintf(&b, "\n%s: %d", p.Participant.Gender, *p.GenderPlace)
		}
		if p.AgeGroup != nil && p.AgeGroupPlace != nil {
			fmt.Fprintf(&b, "\nAge %s: %d", *p.AgeGroup, *p.AgeGroupPlace)
		}
		return b.String(), true
	}
	return "", false
}

func (a *Announcer) alreadySeen(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seen[id]
}

func (a *Announcer) markSeen(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seen[id] {
		return
	}
	a.seen[id] = true
	a.ring = append(a.ring, id)
	if len(a.ring) > seenLimit {
		delete(a.seen, a.ring[0])
		a.ring = a.ring[1:]
	}
}
