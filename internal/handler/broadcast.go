package handler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/notify"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/service"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/session"
)

// BroadcastHandler drives the admin broadcast dialogue: collect one
// message (text, photo or video), preview it, then fan it out to every
// registered user.
type BroadcastHandler struct {
	admin       *AdminHandler
	broadcaster *service.Broadcaster
	sessions    *session.Store
	sender      notify.Sender
}

// NewBroadcastHandler creates a new BroadcastHandler.
func NewBroadcastHandler(admin *AdminHandler, broadcaster *service.Broadcaster, sessions *session.Store, sender notify.Sender) *BroadcastHandler {
	return &BroadcastHandler{admin: admin, broadcaster: broadcaster, sessions: sessions, sender: sender}
}

// HandleStart enters the broadcast flow from the admin panel.
func (h *BroadcastHandler) HandleStart(c tele.Context) error {
	if !h.admin.Authorized(c) {
		return c.Respond(&tele.CallbackResponse{Text: "У вас нет доступа к этой функции.", ShowAlert: true})
	}

	h.sessions.Begin(c.Sender().ID, session.FlowBroadcast, session.StepContent)
	return c.Edit("Отправьте сообщение для рассылки (текст, фото или видео):")
}

// HandleContent captures the broadcast content from a text, photo or
// video message and shows the confirmation preview.
func (h *BroadcastHandler) HandleContent(c tele.Context, st session.State) error {
	ctx := context.Background()
	sender := c.Sender()

	if !h.admin.Authorized(c) {
		h.sessions.Clear(sender.ID)
		return c.Reply("У вас нет доступа к этой функции.")
	}

	msg := c.Message()
	if msg == nil {
		return nil
	}

	var preview string
	switch {
	case msg.Photo != nil:
		st.Broadcast = session.BroadcastDraft{PhotoID: msg.Photo.FileID, Caption: msg.Caption}
		preview = "📷 Фото" + captionSuffix(msg.Caption)
	case msg.Video != nil:
		st.Broadcast = session.BroadcastDraft{VideoID: msg.Video.FileID, Caption: msg.Caption}
		preview = "🎬 Видео" + captionSuffix(msg.Caption)
	case msg.Text != "":
		st.Broadcast = session.BroadcastDraft{Text: msg.Text}
		preview = msg.Text
	default:
		return c.Reply("Поддерживаются только текст, фото и видео. Отправьте сообщение для рассылки:")
	}

	st.Step = session.StepConfirm
	h.sessions.Put(sender.ID, st)

	count, err := h.broadcaster.RecipientCount(ctx)
	if err != nil {
		h.sessions.Clear(sender.ID)
		log.Error().Err(err).Msg("Failed to count broadcast recipients")
		return c.Reply("❌ Что-то пошло не так, попробуйте позже.")
	}

	return c.Reply(
		fmt.Sprintf("Получателей: %d\n\nСообщение:\n%s", count, preview),
		BroadcastConfirmMenu(),
	)
}

// HandleConfirm runs the fan-out and reports the tally.
func (h *BroadcastHandler) HandleConfirm(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	if !h.admin.Authorized(c) {
		return c.Respond(&tele.CallbackResponse{Text: "У вас нет доступа к этой функции.", ShowAlert: true})
	}

	st, ok := h.sessions.Get(sender.ID)
	if !ok || st.Flow != session.FlowBroadcast || st.Step != session.StepConfirm {
		return c.Respond(&tele.CallbackResponse{Text: "Рассылка уже завершена или отменена."})
	}

	draft := st.Broadcast
	h.sessions.Clear(sender.ID)

	if err := c.Edit("Рассылка запущена..."); err != nil {
		return err
	}

	tally, err := h.broadcaster.Send(ctx, func(telegramID int64) error {
		return h.deliver(telegramID, draft)
	})
	if err != nil {
		log.Error().Err(err).Msg("Broadcast failed to start")
		return c.Send("❌ Не удалось выполнить рассылку, попробуйте позже.")
	}

	return c.Send(fmt.Sprintf(
		"Рассылка завершена.\n\nОтправлено: %d\nНе доставлено: %d\nВсего получателей: %d",
		tally.Sent, tally.Failed, tally.Total,
	))
}

// HandleCancel abandons the prepared broadcast.
func (h *BroadcastHandler) HandleCancel(c tele.Context) error {
	h.sessions.Clear(c.Sender().ID)
	return c.Edit("Рассылка отменена.")
}

// deliver sends the draft to one recipient in its native shape.
func (h *BroadcastHandler) deliver(telegramID int64, draft session.BroadcastDraft) error {
	to := &tele.User{ID: telegramID}
	switch {
	case draft.PhotoID != "":
		_, err := h.sender.Send(to, &tele.Photo{File: tele.File{FileID: draft.PhotoID}, Caption: draft.Caption})
		return err
	case draft.VideoID != "":
		_, err := h.sender.Send(to, &tele.Video{File: tele.File{FileID: draft.VideoID}, Caption: draft.Caption})
		return err
	default:
		_, err := h.sender.Send(to, draft.Text)
		return err
	}
}

func captionSuffix(caption string) string {
	if caption == "" {
		return ""
	}
	return "\n" + caption
}
