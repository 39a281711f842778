package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/config"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/handler"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/notify"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/service"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/session"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot      *tele.Bot
	cfg      *config.Config
	sessions *session.Store

	registrationHandler *handler.RegistrationHandler
	bookingHandler      *handler.BookingHandler
	redemptionHandler   *handler.RedemptionHandler
	adminHandler        *handler.AdminHandler
	broadcastHandler    *handler.BroadcastHandler
	menuHandler         *handler.MenuHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config      *config.Config
	Loyalty     *service.LoyaltyService
	Broadcaster *service.Broadcaster
}

// New creates a Bot instance, connects to Telegram and registers all
// handlers.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	sessions := session.NewStore()
	notifier := notify.New(teleBot, deps.Config.Admin.IDs)

	b := &Bot{
		bot:      teleBot,
		cfg:      deps.Config,
		sessions: sessions,
	}

	b.registrationHandler = handler.NewRegistrationHandler(deps.Loyalty, sessions)
	b.bookingHandler = handler.NewBookingHandler(deps.Loyalty, sessions, notifier)
	b.redemptionHandler = handler.NewRedemptionHandler(deps.Loyalty, sessions, notifier)
	b.adminHandler = handler.NewAdminHandler(deps.Config, deps.Loyalty, sessions, notifier)
	b.broadcastHandler = handler.NewBroadcastHandler(b.adminHandler, deps.Broadcaster, sessions, teleBot)
	b.menuHandler = handler.NewMenuHandler(deps.Loyalty, sessions)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(RecoveryMiddleware())
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.registrationHandler.HandleStart)
	b.bot.Handle("/menu", b.menuHandler.HandleMenu)
	b.bot.Handle("/cancel", b.menuHandler.HandleCancel)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/admin", b.adminHandler.HandlePanel)

	// Free text and media are routed by the sender's dialogue state.
	b.bot.Handle(tele.OnText, b.routeText)
	b.bot.Handle(tele.OnPhoto, b.routeMedia)
	b.bot.Handle(tele.OnVideo, b.routeMedia)

	b.bot.Handle(tele.OnCallback, b.routeCallback)
}

// routeText dispatches a free-text message to the sender's in-progress
// flow, or to the fallback hint when no dialogue is active.
func (b *Bot) routeText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	st, ok := b.sessions.Get(sender.ID)
	if !ok {
		return b.menuHandler.HandleFallback(c)
	}

	switch st.Flow {
	case session.FlowRegistration:
		return b.registrationHandler.HandleText(c, st)
	case session.FlowBooking:
		return b.bookingHandler.HandleText(c, st)
	case session.FlowRedemption:
		return b.redemptionHandler.HandleText(c, st)
	case session.FlowAdminCredit, session.FlowAdminDebit, session.FlowAdminPurchase:
		return b.adminHandler.HandleText(c, st)
	case session.FlowBroadcast:
		return b.broadcastHandler.HandleContent(c, st)
	}

	return b.menuHandler.HandleFallback(c)
}

// routeMedia dispatches a photo or video. Only the broadcast flow
// consumes media.
func (b *Bot) routeMedia(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	st, ok := b.sessions.Get(sender.ID)
	if ok && st.Flow == session.FlowBroadcast && st.Step == session.StepContent {
		return b.broadcastHandler.HandleContent(c, st)
	}

	return nil
}

// routeCallback dispatches button presses by payload prefix.
func (b *Bot) routeCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot v3 may add a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")

	switch data {
	case handler.CallbackBalance:
		return b.menuHandler.HandleBalance(c)
	case handler.CallbackHistory:
		return b.menuHandler.HandleHistory(c)
	case handler.CallbackMainMenu:
		return b.menuHandler.HandleMainMenu(c)
	case handler.CallbackBookTable:
		return b.bookingHandler.HandleStart(c)
	case handler.CallbackRedeem:
		return b.redemptionHandler.HandleStart(c)
	case handler.CallbackConfirmYes:
		return b.registrationHandler.HandleConfirm(c)
	case handler.CallbackConfirmEdit:
		return b.registrationHandler.HandleEdit(c)
	case handler.CallbackBookingConfirm:
		return b.bookingHandler.HandleConfirm(c)
	case handler.CallbackBookingRedo:
		return b.bookingHandler.HandleRedo(c)
	case handler.CallbackAdminBroadcast:
		return b.broadcastHandler.HandleStart(c)
	case handler.CallbackBroadcastSend:
		return b.broadcastHandler.HandleConfirm(c)
	case handler.CallbackBroadcastCancel:
		return b.broadcastHandler.HandleCancel(c)
	}

	if strings.HasPrefix(data, "admin_") {
		return b.adminHandler.HandleCallback(c, data)
	}

	log.Debug().Str("data", data).Msg("Unrecognized callback payload")
	return nil
}

// SetCommands registers the bot command menu with Telegram.
func (b *Bot) SetCommands() error {
	return b.bot.SetCommands([]tele.Command{
		{Text: "start", Description: "Начать регистрацию"},
		{Text: "menu", Description: "Главное меню"},
		{Text: "cancel", Description: "Отменить текущее действие"},
		{Text: "admin", Description: "Панель администратора"},
	})
}

// Start starts long polling. Blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
