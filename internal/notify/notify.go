// Package notify sends best-effort Telegram notifications. A failed send
// is logged and swallowed: the ledger, not the notification, is
// authoritative, so delivery failures never propagate to the caller.
package notify

import (
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// Sender is the outbound half of the bot API that notifications need.
// *tele.Bot satisfies it; tests substitute a fake.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier delivers out-of-band messages to administrators and users.
type Notifier struct {
	sender   Sender
	adminIDs []int64
}

// New creates a Notifier for the given sender and admin allow-list.
func New(sender Sender, adminIDs []int64) *Notifier {
	return &Notifier{sender: sender, adminIDs: adminIDs}
}

// NotifyAdmins sends a message to every configured administrator.
// Per-admin failures are logged and do not stop the loop.
func (n *Notifier) NotifyAdmins(text string, opts ...interface{}) {
	for _, adminID := range n.adminIDs {
		if _, err := n.sender.Send(&tele.User{ID: adminID}, text, opts...); err != nil {
			log.Warn().
				Err(err).
				Int64("admin_id", adminID).
				Msg("Failed to notify admin")
		}
	}
}

// NotifyUser sends a message to one user. Failure (the user may have
// blocked the bot) is logged and swallowed.
func (n *Notifier) NotifyUser(telegramID int64, text string) {
	if _, err := n.sender.Send(&tele.User{ID: telegramID}, text); err != nil {
		log.Warn().
			Err(err).
			Int64("telegram_id", telegramID).
			Msg("Failed to notify user")
	}
}
