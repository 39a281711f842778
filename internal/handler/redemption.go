package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/notify"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/repository"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/service"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/session"
)

// RedemptionHandler drives the point-redemption dialogue: a single amount
// prompt, then a pending request for administrators to moderate.
type RedemptionHandler struct {
	loyalty  *service.LoyaltyService
	sessions *session.Store
	notifier *notify.Notifier
}

// NewRedemptionHandler creates a new RedemptionHandler.
func NewRedemptionHandler(loyalty *service.LoyaltyService, sessions *session.Store, notifier *notify.Notifier) *RedemptionHandler {
	return &RedemptionHandler{loyalty: loyalty, sessions: sessions, notifier: notifier}
}

// HandleStart enters the redemption flow from the menu button. Entry is
// refused while the balance is zero.
func (h *RedemptionHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, err := h.loyalty.GetUser(ctx, sender.ID)
	if err != nil || !user.RegistrationComplete {
		return c.Edit("Пожалуйста, завершите регистрацию через /start")
	}

	if user.Balance <= 0 {
		return c.Edit("На вашем счете нет баллов для списания.")
	}

	h.sessions.Begin(sender.ID, session.FlowRedemption, session.StepAmount)
	return c.Edit(fmt.Sprintf(
		"Ваш текущий баланс: %d баллов\n\nВведите количество баллов для списания:",
		user.Balance,
	))
}

// HandleText consumes the requested amount. Anything that is not a
// positive integer within the balance re-prompts.
func (h *RedemptionHandler) HandleText(c tele.Context, st session.State) error {
	ctx := context.Background()
	sender := c.Sender()
	text := strings.TrimSpace(c.Text())

	amount, err := ParseAmount(text)
	if err != nil {
		return c.Reply("Пожалуйста, введите целое положительное число баллов:")
	}

	user, err := h.loyalty.GetUser(ctx, sender.ID)
	if err != nil {
		h.sessions.Clear(sender.ID)
		return c.Reply("❌ Что-то пошло не так, попробуйте позже.")
	}

	request, err := h.loyalty.RequestRedemption(ctx, user.ID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return c.Reply(fmt.Sprintf(
				"Недостаточно баллов на счете. Доступно: %d. Введите другую сумму:",
				user.Balance,
			))
		}
		h.sessions.Clear(sender.ID)
		log.Error().Err(err).Int("card_id", user.ID).Msg("Redemption request failed")
		return c.Reply("❌ Не удалось создать запрос, попробуйте позже.")
	}

	h.sessions.Clear(sender.ID)

	log.Info().
		Int("card_id", user.ID).
		Int64("request_id", request.ID).
		Int64("amount", amount).
		Msg("Redemption request created")

	h.notifier.NotifyAdmins(
		fmt.Sprintf(
			"🎁 Запрос на списание баллов!\n\nПользователь: %s\nID: %d\nТелефон: %s\nСумма: %d баллов\nТекущий баланс: %d",
			user.FullName(), user.ID, user.Phone, request.Amount, user.Balance,
		),
		RedemptionReviewMenu(request.ID),
	)

	return c.Reply(fmt.Sprintf(
		"Запрос на списание %d баллов отправлен администратору. Ожидайте подтверждения.",
		amount,
	))
}
