package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/notify"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/service"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/session"
)

// BookingHandler drives the table reservation dialogue:
// date -> time -> guests -> confirmation.
type BookingHandler struct {
	loyalty  *service.LoyaltyService
	sessions *session.Store
	notifier *notify.Notifier
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(loyalty *service.LoyaltyService, sessions *session.Store, notifier *notify.Notifier) *BookingHandler {
	return &BookingHandler{loyalty: loyalty, sessions: sessions, notifier: notifier}
}

// HandleStart enters the booking flow from the menu button.
func (h *BookingHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, err := h.loyalty.GetUser(ctx, sender.ID)
	if err != nil || !user.RegistrationComplete {
		return c.Edit("Пожалуйста, завершите регистрацию через /start")
	}

	h.sessions.Begin(sender.ID, session.FlowBooking, session.StepDate)
	return c.Edit("🎯 Бронирование стола\n\nВведите дату в формате ДД.ММ.ГГГГ (например: 25.12.2024):")
}

// HandleText consumes one booking input for the current step. Malformed
// input re-prompts the same step with a corrective message.
func (h *BookingHandler) HandleText(c tele.Context, st session.State) error {
	sender := c.Sender()
	text := strings.TrimSpace(c.Text())

	switch st.Step {
	case session.StepDate:
		if err := ValidateDate(text); err != nil {
			return c.Reply("Неверный формат даты. Введите дату в формате ДД.ММ.ГГГГ (например: 25.12.2024):")
		}
		st.Date = text
		st.Step = session.StepTime
		h.sessions.Put(sender.ID, st)
		return c.Reply("Введите время в формате ЧЧ:ММ (например: 19:30):")

	case session.StepTime:
		if err := ValidateTime(text); err != nil {
			return c.Reply("Неверный формат времени. Введите время в формате ЧЧ:ММ (например: 19:30):")
		}
		st.Time = text
		st.Step = session.StepGuests
		h.sessions.Put(sender.ID, st)
		return c.Reply("Введите количество гостей (от 1 до 20):")

	case session.StepGuests:
		guests, err := ParseGuests(text)
		if err != nil {
			return c.Reply("Количество гостей должно быть числом от 1 до 20. Попробуйте еще раз:")
		}
		st.Guests = guests
		st.Step = session.StepConfirm
		h.sessions.Put(sender.ID, st)

		summary := fmt.Sprintf(
			"Проверьте бронирование:\n\nДата: %s\nВремя: %s\nГости: %d чел.",
			st.Date, st.Time, st.Guests,
		)
		return c.Reply(summary, BookingConfirmMenu())

	case session.StepConfirm:
		return c.Reply("Пожалуйста, подтвердите бронирование кнопками выше или отправьте /cancel.")
	}

	return nil
}

// HandleConfirm commits the reservation and notifies every administrator.
func (h *BookingHandler) HandleConfirm(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	st, ok := h.sessions.Get(sender.ID)
	if !ok || st.Flow != session.FlowBooking || st.Step != session.StepConfirm {
		return c.Respond(&tele.CallbackResponse{Text: "Бронирование уже завершено или отменено."})
	}

	user, err := h.loyalty.GetUser(ctx, sender.ID)
	if err != nil {
		h.sessions.Clear(sender.ID)
		return c.Edit("❌ Не удалось оформить бронирование, попробуйте позже.")
	}

	booking, err := h.loyalty.CreateBooking(ctx, user.ID, st.Date, st.Time, st.Guests)
	h.sessions.Clear(sender.ID)
	if err != nil {
		log.Error().Err(err).Int("card_id", user.ID).Msg("Booking commit failed")
		return c.Edit("❌ Не удалось оформить бронирование, попробуйте позже.")
	}

	log.Info().
		Int("card_id", user.ID).
		Int64("booking_id", booking.ID).
		Str("date", booking.Date).
		Str("time", booking.Time).
		Int("guests", booking.Guests).
		Msg("Booking created")

	h.notifier.NotifyAdmins(fmt.Sprintf(
		"🎯 Новое бронирование!\n\nПользователь: %s\nID: %d\nТелефон: %s\nДата: %s\nВремя: %s\nГости: %d чел.",
		user.FullName(), user.ID, user.Phone, booking.Date, booking.Time, booking.Guests,
	))

	return c.Edit(fmt.Sprintf(
		"✅ Бронирование принято!\n\nДата: %s\nВремя: %s\nГости: %d чел.\n\nМы свяжемся с вами для подтверждения.",
		booking.Date, booking.Time, booking.Guests,
	))
}

// HandleRedo loops the dialogue back to the date step.
func (h *BookingHandler) HandleRedo(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	st, ok := h.sessions.Get(sender.ID)
	if !ok || st.Flow != session.FlowBooking {
		return c.Respond(&tele.CallbackResponse{Text: "Бронирование уже завершено или отменено."})
	}

	h.sessions.Begin(sender.ID, session.FlowBooking, session.StepDate)
	return c.Edit("Начнем заново. Введите дату в формате ДД.ММ.ГГГГ:")
}
