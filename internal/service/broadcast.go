package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/model"
)

// SendFunc delivers one broadcast message to a Telegram chat. The actual
// content (text, photo or video) is captured by the caller's closure so
// the fan-out stays transport-agnostic.
type SendFunc func(telegramID int64) error

// Tally is the result of one broadcast run.
type Tally struct {
	Sent   int
	Failed int
	Total  int
}

// RecipientLister enumerates broadcast recipients. The user repository
// satisfies it; tests substitute a fixture.
type RecipientLister interface {
	ListRegistered(ctx context.Context) ([]*model.User, error)
	CountRegistered(ctx context.Context) (int64, error)
}

// Broadcaster fans a message out to every registered user. One
// recipient's delivery failure never aborts delivery to the rest; failures
// are counted and logged, nothing more.
type Broadcaster struct {
	recipients RecipientLister
}

// NewBroadcaster creates a new Broadcaster instance.
func NewBroadcaster(recipients RecipientLister) *Broadcaster {
	return &Broadcaster{recipients: recipients}
}

// RecipientCount returns how many users a broadcast would reach.
func (b *Broadcaster) RecipientCount(ctx context.Context) (int, error) {
	count, err := b.recipients.CountRegistered(ctx)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Send delivers to every registered user via send and reports the tally.
func (b *Broadcaster) Send(ctx context.Context, send SendFunc) (Tally, error) {
	users, err := b.recipients.ListRegistered(ctx)
	if err != nil {
		return Tally{}, err
	}

	tally := Tally{Total: len(users)}
	for _, user := range users {
		if err := send(user.TelegramID); err != nil {
			tally.Failed++
			log.Warn().
				Err(err).
				Int64("telegram_id", user.TelegramID).
				Int("card_id", user.ID).
				Msg("Broadcast delivery failed for recipient")
			continue
		}
		tally.Sent++
	}

	log.Info().
		Int("sent", tally.Sent).
		Int("failed", tally.Failed).
		Int("total", tally.Total).
		Msg("Broadcast finished")

	return tally, nil
}
