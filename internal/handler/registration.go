package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/repository"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/service"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/session"
)

// RegistrationHandler drives the enrollment dialogue:
// first name -> last name -> phone -> confirmation.
type RegistrationHandler struct {
	loyalty  *service.LoyaltyService
	sessions *session.Store
}

// NewRegistrationHandler creates a new RegistrationHandler.
func NewRegistrationHandler(loyalty *service.LoyaltyService, sessions *session.Store) *RegistrationHandler {
	return &RegistrationHandler{loyalty: loyalty, sessions: sessions}
}

// HandleStart handles /start. Registered users get the main menu; new and
// half-registered users enter the registration flow.
func (h *RegistrationHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, created, err := h.loyalty.EnsureUser(ctx, sender.ID)
	if err != nil {
		log.Error().Err(err).Int64("telegram_id", sender.ID).Msg("Failed to ensure user on /start")
		return c.Reply("❌ Что-то пошло не так, попробуйте позже.")
	}

	if user.RegistrationComplete {
		return c.Reply(
			fmt.Sprintf("Добро пожаловать, %s!", user.FirstName),
			MainMenu(),
		)
	}

	h.sessions.Begin(sender.ID, session.FlowRegistration, session.StepFirstName)

	if created {
		if err := c.Reply("Добро пожаловать! Для регистрации в системе лояльности нам нужны ваши данные."); err != nil {
			return err
		}
	} else {
		if err := c.Reply("Пожалуйста, завершите регистрацию."); err != nil {
			return err
		}
	}
	return c.Send("Введите ваше имя:")
}

// HandleText consumes one registration input for the current step. Blank
// input re-prompts the same step.
func (h *RegistrationHandler) HandleText(c tele.Context, st session.State) error {
	sender := c.Sender()
	text := strings.TrimSpace(c.Text())

	switch st.Step {
	case session.StepFirstName:
		if text == "" {
			return c.Reply("Введите ваше имя:")
		}
		st.FirstName = text
		st.Step = session.StepLastName
		h.sessions.Put(sender.ID, st)
		return c.Reply("Введите вашу фамилию:")

	case session.StepLastName:
		if text == "" {
			return c.Reply("Введите вашу фамилию:")
		}
		st.LastName = text
		st.Step = session.StepPhone
		h.sessions.Put(sender.ID, st)
		return c.Reply("Введите ваш номер телефона:")

	case session.StepPhone:
		if text == "" {
			return c.Reply("Введите ваш номер телефона:")
		}
		st.Phone = text
		st.Step = session.StepConfirm
		h.sessions.Put(sender.ID, st)

		summary := fmt.Sprintf(
			"Проверьте ваши данные:\n\nИмя: %s\nФамилия: %s\nТелефон: %s",
			st.FirstName, st.LastName, st.Phone,
		)
		return c.Reply(summary, ConfirmMenu())

	case session.StepConfirm:
		// Text while the confirm buttons are up changes nothing.
		return c.Reply("Пожалуйста, подтвердите данные кнопками выше или отправьте /cancel.")
	}

	return nil
}

// HandleConfirm commits the registration. Ledger errors terminate the
// dialogue with a specific message and no retry.
func (h *RegistrationHandler) HandleConfirm(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	st, ok := h.sessions.Get(sender.ID)
	if !ok || st.Flow != session.FlowRegistration || st.Step != session.StepConfirm {
		return c.Respond(&tele.CallbackResponse{Text: "Регистрация уже завершена или отменена."})
	}

	user, err := h.loyalty.Register(ctx, sender.ID, st.FirstName, st.LastName, st.Phone)
	h.sessions.Clear(sender.ID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUser):
			return c.Edit("Вы уже зарегистрированы в системе лояльности.")
		case errors.Is(err, repository.ErrCapacityExceeded):
			log.Error().Int64("telegram_id", sender.ID).Msg("Card id pool exhausted")
			return c.Edit("К сожалению, свободных карт лояльности сейчас нет. Обратитесь к администратору.")
		default:
			log.Error().Err(err).Int64("telegram_id", sender.ID).Msg("Registration commit failed")
			return c.Edit("❌ Не удалось завершить регистрацию, попробуйте позже.")
		}
	}

	log.Info().
		Int64("telegram_id", sender.ID).
		Int("card_id", user.ID).
		Int64("balance", user.Balance).
		Msg("Registration completed")

	return c.Edit(
		fmt.Sprintf(
			"Благодарим за регистрацию! Вам начислено %d бонусных баллов.\n"+
				"Ваш ID: %d\n\nИмя: %s\nФамилия: %s\nТелефон: %s",
			h.loyalty.WelcomeBonus(), user.ID, user.FirstName, user.LastName, user.Phone,
		),
		MainMenu(),
	)
}

// HandleEdit restarts the dialogue from the first name, discarding the
// collected draft.
func (h *RegistrationHandler) HandleEdit(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	st, ok := h.sessions.Get(sender.ID)
	if !ok || st.Flow != session.FlowRegistration {
		return c.Respond(&tele.CallbackResponse{Text: "Регистрация уже завершена или отменена."})
	}

	h.sessions.Begin(sender.ID, session.FlowRegistration, session.StepFirstName)
	if err := c.Edit("Давайте начнем регистрацию заново."); err != nil {
		return err
	}
	return c.Send("Введите ваше имя:")
}
