package handler

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"
)

// Callback payloads. Opaque strings matched by the dispatcher; the
// admin_approve_/admin_reject_ ones carry the request id as a suffix.
const (
	CallbackBalance   = "balance"
	CallbackHistory   = "history"
	CallbackBookTable = "book_table"
	CallbackRedeem    = "redeem_points"
	CallbackMainMenu  = "main_menu"

	CallbackConfirmYes  = "confirm_yes"
	CallbackConfirmEdit = "confirm_edit"

	CallbackBookingConfirm = "booking_confirm"
	CallbackBookingRedo    = "booking_redo"

	CallbackAdminUsers     = "admin_users"
	CallbackAdminStats     = "admin_stats"
	CallbackAdminCredit    = "admin_credit"
	CallbackAdminDebit     = "admin_debit"
	CallbackAdminPurchase  = "admin_purchase"
	CallbackAdminRequests  = "admin_requests"
	CallbackAdminBroadcast = "admin_broadcast"
	CallbackAdminBack      = "admin_back"

	CallbackApprovePrefix = "admin_approve_"
	CallbackRejectPrefix  = "admin_reject_"

	CallbackBroadcastSend   = "broadcast_send"
	CallbackBroadcastCancel = "broadcast_cancel"
)

// MainMenu builds the registered user's menu keyboard.
func MainMenu() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{{Text: "💰 Мой баланс", Data: CallbackBalance}},
			{{Text: "📜 История операций", Data: CallbackHistory}},
			{{Text: "🎯 Забронировать стол", Data: CallbackBookTable}},
			{{Text: "🎁 Списать баллы", Data: CallbackRedeem}},
		},
	}
}

// AdminMenu builds the administrator panel keyboard.
func AdminMenu() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{{Text: "👥 Список пользователей", Data: CallbackAdminUsers}},
			{{Text: "📊 Статистика", Data: CallbackAdminStats}},
			{{Text: "💰 Начислить баллы", Data: CallbackAdminCredit}},
			{{Text: "➖ Списать баллы", Data: CallbackAdminDebit}},
			{{Text: "🧾 Кэшбэк за покупку", Data: CallbackAdminPurchase}},
			{{Text: "🎁 Запросы на списание", Data: CallbackAdminRequests}},
			{{Text: "📤 Рассылка", Data: CallbackAdminBroadcast}},
		},
	}
}

// ConfirmMenu builds a confirm/edit keyboard for the registration summary.
func ConfirmMenu() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{
				{Text: "✅ Подтвердить", Data: CallbackConfirmYes},
				{Text: "✏️ Исправить", Data: CallbackConfirmEdit},
			},
		},
	}
}

// BookingConfirmMenu builds a confirm/redo keyboard for the booking summary.
func BookingConfirmMenu() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{
				{Text: "✅ Подтвердить", Data: CallbackBookingConfirm},
				{Text: "🔄 Заново", Data: CallbackBookingRedo},
			},
		},
	}
}

// RedemptionReviewMenu builds approve/reject buttons bound to one request.
func RedemptionReviewMenu(requestID int64) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{
				{Text: "✅ Подтвердить", Data: fmt.Sprintf("%s%d", CallbackApprovePrefix, requestID)},
				{Text: "❌ Отклонить", Data: fmt.Sprintf("%s%d", CallbackRejectPrefix, requestID)},
			},
		},
	}
}

// BroadcastConfirmMenu builds send/cancel buttons for the broadcast preview.
func BroadcastConfirmMenu() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{
				{Text: "📤 Отправить", Data: CallbackBroadcastSend},
				{Text: "❌ Отменить", Data: CallbackBroadcastCancel},
			},
		},
	}
}

// ParseRequestID extracts the request id from an approve/reject payload.
func ParseRequestID(data, prefix string) (int64, bool) {
	raw := strings.TrimPrefix(data, prefix)
	if raw == data {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
