package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/model"
)

// fakeRecipients is an in-memory RecipientLister for broadcast tests.
type fakeRecipients struct {
	users []*model.User
	err   error
}

func (f *fakeRecipients) ListRegistered(ctx context.Context) ([]*model.User, error) {
	return f.users, f.err
}

func (f *fakeRecipients) CountRegistered(ctx context.Context) (int64, error) {
	return int64(len(f.users)), f.err
}

func registeredUsers(telegramIDs ...int64) []*model.User {
	users := make([]*model.User, 0, len(telegramIDs))
	for i, id := range telegramIDs {
		users = append(users, &model.User{
			ID:                   i + 1,
			TelegramID:           id,
			RegistrationComplete: true,
		})
	}
	return users
}

func TestBroadcaster_SendAll(t *testing.T) {
	recipients := &fakeRecipients{users: registeredUsers(100, 200, 300)}
	b := NewBroadcaster(recipients)

	var delivered []int64
	tally, err := b.Send(context.Background(), func(telegramID int64) error {
		delivered = append(delivered, telegramID)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, Tally{Sent: 3, Failed: 0, Total: 3}, tally)
	assert.Equal(t, []int64{100, 200, 300}, delivered)
}

func TestBroadcaster_OneFailureDoesNotAbort(t *testing.T) {
	recipients := &fakeRecipients{users: registeredUsers(100, 200, 300)}
	b := NewBroadcaster(recipients)

	// Second recipient blocked the bot; the rest must still receive.
	tally, err := b.Send(context.Background(), func(telegramID int64) error {
		if telegramID == 200 {
			return errors.New("forbidden: bot was blocked by the user")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, Tally{Sent: 2, Failed: 1, Total: 3}, tally)
}

func TestBroadcaster_NoRecipients(t *testing.T) {
	b := NewBroadcaster(&fakeRecipients{})

	tally, err := b.Send(context.Background(), func(telegramID int64) error {
		t.Fatal("send called with no recipients")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Tally{}, tally)
}

func TestBroadcaster_ListError(t *testing.T) {
	listErr := errors.New("connection refused")
	b := NewBroadcaster(&fakeRecipients{err: listErr})

	_, err := b.Send(context.Background(), func(telegramID int64) error { return nil })
	assert.ErrorIs(t, err, listErr)

	_, err = b.RecipientCount(context.Background())
	assert.ErrorIs(t, err, listErr)
}

func TestBroadcaster_RecipientCount(t *testing.T) {
	b := NewBroadcaster(&fakeRecipients{users: registeredUsers(100, 200)})

	count, err := b.RecipientCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
