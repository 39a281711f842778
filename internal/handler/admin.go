package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/config"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/notify"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/repository"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/service"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/session"
)

// userListLimit caps the admin user list display, like the original
// first-page truncation.
const userListLimit = 10

// AdminHandler handles the administrator panel: user list, stats,
// credit/debit/purchase flows, redemption moderation and broadcast entry.
type AdminHandler struct {
	cfg      *config.Config
	loyalty  *service.LoyaltyService
	sessions *session.Store
	notifier *notify.Notifier
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(cfg *config.Config, loyalty *service.LoyaltyService, sessions *session.Store, notifier *notify.Notifier) *AdminHandler {
	return &AdminHandler{cfg: cfg, loyalty: loyalty, sessions: sessions, notifier: notifier}
}

// Authorized re-checks the allow-list for the acting identity. Every admin
// entry point calls this before any side effect; the check is never cached
// across dialogue steps.
func (h *AdminHandler) Authorized(c tele.Context) bool {
	sender := c.Sender()
	if sender == nil {
		return false
	}
	if !h.cfg.IsAdmin(sender.ID) {
		log.Warn().
			Int64("user_id", sender.ID).
			Str("text", c.Text()).
			Msg("Non-admin attempted admin action")
		return false
	}
	return true
}

// HandlePanel handles /admin.
func (h *AdminHandler) HandlePanel(c tele.Context) error {
	if !h.Authorized(c) {
		return c.Reply("У вас нет доступа к этой команде.")
	}
	return c.Reply("Панель администратора:", AdminMenu())
}

// HandleCallback routes admin panel button presses.
func (h *AdminHandler) HandleCallback(c tele.Context, data string) error {
	if !h.Authorized(c) {
		return c.Respond(&tele.CallbackResponse{Text: "У вас нет доступа к этой функции.", ShowAlert: true})
	}

	if id, ok := ParseRequestID(data, CallbackApprovePrefix); ok {
		return h.resolveRedemption(c, id, true)
	}
	if id, ok := ParseRequestID(data, CallbackRejectPrefix); ok {
		return h.resolveRedemption(c, id, false)
	}

	switch data {
	case CallbackAdminUsers:
		return h.showUsers(c)
	case CallbackAdminStats:
		return h.showStats(c)
	case CallbackAdminCredit:
		return h.startLedgerFlow(c, session.FlowAdminCredit, "Начисление баллов")
	case CallbackAdminDebit:
		return h.startLedgerFlow(c, session.FlowAdminDebit, "Списание баллов")
	case CallbackAdminPurchase:
		return h.startLedgerFlow(c, session.FlowAdminPurchase, "Кэшбэк за покупку")
	case CallbackAdminRequests:
		return h.showPendingRequests(c)
	case CallbackAdminBack:
		return c.Edit("Панель администратора:", AdminMenu())
	}

	return nil
}

func (h *AdminHandler) showUsers(c tele.Context) error {
	ctx := context.Background()

	users, err := h.loyalty.ListRegistered(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users")
		return c.Edit("❌ Не удалось получить список пользователей.")
	}

	if len(users) == 0 {
		return c.Edit("Нет зарегистрированных пользователей.")
	}

	var sb strings.Builder
	sb.WriteString("Список пользователей:\n\n")
	shown := users
	if len(shown) > userListLimit {
		shown = shown[:userListLimit]
	}
	for _, user := range shown {
		fmt.Fprintf(&sb, "ID: %d | %s | Баланс: %d\n", user.ID, user.FullName(), user.Balance)
	}
	if rest := len(users) - len(shown); rest > 0 {
		fmt.Fprintf(&sb, "\n... и еще %d пользователей", rest)
	}

	return c.Edit(sb.String())
}

func (h *AdminHandler) showStats(c tele.Context) error {
	ctx := context.Background()

	stats, err := h.loyalty.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load stats")
		return c.Edit("❌ Не удалось получить статистику.")
	}

	return c.Edit(fmt.Sprintf(
		"📊 Статистика программы\n\n"+
			"👥 Пользователей: %d\n"+
			"💰 Баллов на счетах: %d\n"+
			"🎯 Бронирований: %d\n"+
			"🎁 Запросов на списание в ожидании: %d",
		stats.RegisteredUsers, stats.OutstandingPoints, stats.Bookings, stats.PendingRedemptions,
	))
}

func (h *AdminHandler) startLedgerFlow(c tele.Context, flow, title string) error {
	sender := c.Sender()
	h.sessions.Begin(sender.ID, flow, session.StepTarget)
	return c.Edit(title + "\n\nВведите ID пользователя или номер телефона:")
}

func (h *AdminHandler) showPendingRequests(c tele.Context) error {
	ctx := context.Background()

	pending, err := h.loyalty.PendingRedemptions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list pending redemptions")
		return c.Edit("❌ Не удалось получить запросы.")
	}

	if len(pending) == 0 {
		return c.Edit("Запросов на списание нет.")
	}

	if err := c.Edit(fmt.Sprintf("Запросы на списание: %d", len(pending))); err != nil {
		return err
	}
	for _, p := range pending {
		msg := fmt.Sprintf(
			"🎁 Запрос #%d\n\nПользователь: %s\nID: %d\nТелефон: %s\nСумма: %d баллов\nТекущий баланс: %d",
			p.Request.ID, p.User.FullName(), p.User.ID, p.User.Phone, p.Request.Amount, p.User.Balance,
		)
		if err := c.Send(msg, RedemptionReviewMenu(p.Request.ID)); err != nil {
			return err
		}
	}
	return nil
}

// resolveRedemption applies an approve/reject action. An approval that no
// longer fits the balance leaves the request pending and tells the admin.
func (h *AdminHandler) resolveRedemption(c tele.Context, requestID int64, approve bool) error {
	ctx := context.Background()
	adminID := c.Sender().ID

	res, err := h.loyalty.ResolveRedemption(ctx, requestID, adminID, approve)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			return c.Edit("Запрос не найден или уже обработан.")
		case errors.Is(err, repository.ErrInsufficientBalance):
			return c.Edit(fmt.Sprintf(
				"Недостаточно баллов на счете пользователя. Запрос #%d остается в ожидании.",
				requestID,
			))
		default:
			log.Error().Err(err).Int64("request_id", requestID).Msg("Redemption resolution failed")
			return c.Edit("❌ Не удалось обработать запрос, попробуйте позже.")
		}
	}

	log.Info().
		Int64("admin_id", adminID).
		Int64("request_id", requestID).
		Int64("amount", res.Request.Amount).
		Bool("approved", approve).
		Str("operation", "resolve_redemption").
		Msg("Admin operation executed")

	if approve {
		h.notifier.NotifyUser(res.User.TelegramID, fmt.Sprintf(
			"С вашего счета списано %d бонусных баллов.\nНовый баланс: %d",
			res.Request.Amount, res.NewBalance,
		))
		return c.Edit(fmt.Sprintf("Списание по запросу #%d подтверждено. Пользователь уведомлен.", requestID))
	}

	h.notifier.NotifyUser(res.User.TelegramID, fmt.Sprintf(
		"Ваш запрос на списание %d баллов отклонен администратором.",
		res.Request.Amount,
	))
	return c.Edit(fmt.Sprintf("Запрос #%d отклонен.", requestID))
}

// HandleText consumes one input of an in-progress credit/debit/purchase
// flow: first the target user, then the amount.
func (h *AdminHandler) HandleText(c tele.Context, st session.State) error {
	if !h.Authorized(c) {
		h.sessions.Clear(c.Sender().ID)
		return c.Reply("У вас нет доступа к этой функции.")
	}

	switch st.Step {
	case session.StepTarget:
		return h.handleTarget(c, st)
	case session.StepAmount:
		return h.handleAmount(c, st)
	}
	return nil
}

func (h *AdminHandler) handleTarget(c tele.Context, st session.State) error {
	ctx := context.Background()

	cardID, phone := ParseTarget(c.Text())
	target, err := h.loyalty.ResolveTarget(ctx, cardID, phone)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.Reply("Пользователь не найден. Введите ID карты или номер телефона:")
		}
		log.Error().Err(err).Msg("Target lookup failed")
		return c.Reply("❌ Что-то пошло не так, попробуйте позже.")
	}

	st.TargetCardID = target.ID
	st.Step = session.StepAmount
	h.sessions.Put(c.Sender().ID, st)

	prompt := "сумму для начисления"
	switch st.Flow {
	case session.FlowAdminDebit:
		prompt = "сумму для списания"
	case session.FlowAdminPurchase:
		prompt = "сумму покупки"
	}
	return c.Reply(fmt.Sprintf(
		"Пользователь: %s (ID: %d, баланс: %d)\nВведите %s:",
		target.FullName(), target.ID, target.Balance, prompt,
	))
}

func (h *AdminHandler) handleAmount(c tele.Context, st session.State) error {
	ctx := context.Background()
	adminID := c.Sender().ID

	amount, err := ParseAmount(c.Text())
	if err != nil {
		return c.Reply("Сумма должна быть целым положительным числом. Попробуйте еще раз:")
	}

	var (
		newBalance int64
		userText   string
		adminText  string
		operation  string
	)

	switch st.Flow {
	case session.FlowAdminCredit:
		operation = "admin_credit"
		newBalance, err = h.loyalty.Credit(ctx, st.TargetCardID, amount, adminID)
		if err == nil {
			userText = fmt.Sprintf("Вам начислено %d бонусных баллов!\nТекущий баланс: %d", amount, newBalance)
			adminText = fmt.Sprintf("Пользователю %d начислено %d баллов.\nНовый баланс: %d", st.TargetCardID, amount, newBalance)
		}

	case session.FlowAdminDebit:
		operation = "admin_debit"
		newBalance, err = h.loyalty.Debit(ctx, st.TargetCardID, amount, adminID)
		if errors.Is(err, repository.ErrInsufficientBalance) {
			target, lookupErr := h.loyalty.ResolveTarget(ctx, st.TargetCardID, "")
			if lookupErr != nil {
				h.sessions.Clear(adminID)
				return c.Reply("❌ Что-то пошло не так, попробуйте позже.")
			}
			return c.Reply(fmt.Sprintf(
				"Недостаточно баллов. Доступно: %d. Введите другую сумму:",
				target.Balance,
			))
		}
		if err == nil {
			userText = fmt.Sprintf("С вашего счета списано %d бонусных баллов.\nТекущий баланс: %d", amount, newBalance)
			adminText = fmt.Sprintf("У пользователя %d списано %d баллов.\nНовый баланс: %d", st.TargetCardID, amount, newBalance)
		}

	case session.FlowAdminPurchase:
		operation = "purchase_cashback"
		var credited int64
		credited, newBalance, err = h.loyalty.RecordPurchase(ctx, st.TargetCardID, amount)
		if err == nil {
			userText = fmt.Sprintf("Вам начислено %d бонусных баллов за посещение!\nТекущий баланс: %d", credited, newBalance)
			adminText = fmt.Sprintf(
				"Пользователю %d начислен кэшбэк %d баллов (%d%% от %d).\nНовый баланс: %d",
				st.TargetCardID, credited, h.loyalty.CashbackPercent(), amount, newBalance,
			)
		}
	}

	h.sessions.Clear(adminID)
	if err != nil {
		log.Error().Err(err).
			Int64("admin_id", adminID).
			Int("target_id", st.TargetCardID).
			Int64("amount", amount).
			Str("operation", operation).
			Msg("Admin ledger operation failed")
		return c.Reply("❌ Операция не выполнена, попробуйте позже.")
	}

	log.Info().
		Int64("admin_id", adminID).
		Int("target_id", st.TargetCardID).
		Int64("amount", amount).
		Int64("new_balance", newBalance).
		Str("operation", operation).
		Msg("Admin operation executed")

	// Best effort: a blocked bot must not fail the admin's operation.
	target, lookupErr := h.loyalty.ResolveTarget(ctx, st.TargetCardID, "")
	if lookupErr == nil {
		h.notifier.NotifyUser(target.TelegramID, userText)
	}

	return c.Reply("✅ " + adminText)
}
