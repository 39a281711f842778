package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/service"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/session"
)

// historyLimit caps the transaction history display.
const historyLimit = 10

// MenuHandler serves the main menu, balance and history views, and the
// /cancel fallback shared by every flow.
type MenuHandler struct {
	loyalty  *service.LoyaltyService
	sessions *session.Store
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(loyalty *service.LoyaltyService, sessions *session.Store) *MenuHandler {
	return &MenuHandler{loyalty: loyalty, sessions: sessions}
}

// HandleMenu handles /menu.
func (h *MenuHandler) HandleMenu(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, err := h.loyalty.GetUser(ctx, sender.ID)
	if err != nil || !user.RegistrationComplete {
		return c.Reply("Пожалуйста, завершите регистрацию через /start")
	}

	return c.Reply("Главное меню:", MainMenu())
}

// HandleCancel handles /cancel: from any non-terminal flow step it
// discards the in-progress state without touching the ledger.
func (h *MenuHandler) HandleCancel(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if !h.sessions.Active(sender.ID) {
		return c.Reply("Нет активного действия для отмены.")
	}

	h.sessions.Clear(sender.ID)
	return c.Reply("Действие отменено.", MainMenu())
}

// HandleBalance shows the current balance.
func (h *MenuHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, err := h.loyalty.GetUser(ctx, sender.ID)
	if err != nil || !user.RegistrationComplete {
		return c.Edit("Пожалуйста, завершите регистрацию через /start")
	}

	return c.Edit(
		fmt.Sprintf("💰 Ваш баланс: %d баллов\nКарта №%d", user.Balance, user.ID),
		MainMenu(),
	)
}

// HandleHistory shows recent transactions, newest first.
func (h *MenuHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, err := h.loyalty.GetUser(ctx, sender.ID)
	if err != nil || !user.RegistrationComplete {
		return c.Edit("Пожалуйста, завершите регистрацию через /start")
	}

	transactions, err := h.loyalty.Transactions(ctx, user.ID, historyLimit)
	if err != nil {
		return c.Edit("❌ Не удалось получить историю операций.")
	}

	if len(transactions) == 0 {
		return c.Edit("История операций пуста.", MainMenu())
	}

	var sb strings.Builder
	sb.WriteString("📜 История операций:\n\n")
	for _, tx := range transactions {
		sign := ""
		if tx.Amount > 0 {
			sign = "+"
		}
		fmt.Fprintf(&sb, "%s  %s%d — %s\n", tx.CreatedAt.Format("02.01.2006"), sign, tx.Amount, tx.Description)
	}

	return c.Edit(sb.String(), MainMenu())
}

// HandleMainMenu returns to the main menu from a submenu.
func (h *MenuHandler) HandleMainMenu(c tele.Context) error {
	return c.Edit("Главное меню:", MainMenu())
}

// HandleFallback answers free text outside any flow.
func (h *MenuHandler) HandleFallback(c tele.Context) error {
	return c.Reply("Используйте кнопки меню для навигации. Отправьте /menu, чтобы открыть меню.")
}
