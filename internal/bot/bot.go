// Package bot implements the Telegram command interface and the
// reminder Notifier on top of telegram-bot-api.
package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/example/revbot/internal/config"
	"github.com/example/revbot/internal/database"
	"github.com/example/revbot/internal/engine"
	"github.com/example/revbot/internal/excel"
	"github.com/example/revbot/internal/scheduler"
	"github.com/example/revbot/pkg/models"
)

// MenuButton represents a button in an inline menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates an inline keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// Bot represents the Telegram bot application
type Bot struct {
	api      *tgbotapi.BotAPI
	store    *database.Store
	engine   *engine.Engine
	sched    *scheduler.Scheduler
	importer *excel.Importer
	cfg      *config.Config
	log      zerolog.Logger

	adminUserIDs   map[int64]bool
	awaitingUpload map[int64]bool
}

// New creates a new bot instance. The scheduler may be attached later
// with SetScheduler since it needs the bot as its notifier.
func New(cfg *config.Config, store *database.Store, eng *engine.Engine, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	b := &Bot{
		api:            api,
		store:          store,
		engine:         eng,
		cfg:            cfg,
		log:            log.With().Str("component", "bot").Logger(),
		adminUserIDs:   make(map[int64]bool),
		awaitingUpload: make(map[int64]bool),
	}
	for _, id := range cfg.AdminUserIDs {
		b.adminUserIDs[id] = true
	}
	b.importer = excel.NewImporter(store.Items, eng)
	return b, nil
}

// SetScheduler attaches the due scanner used by the /check command
func (b *Bot) SetScheduler(s *scheduler.Scheduler) {
	b.sched = s
}

// Start begins long polling for updates and blocks until ctx is done
func (b *Bot) Start(ctx context.Context) error {
	b.log.Info().Str("username", b.api.Self.UserName).Msg("bot started")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// Stop terminates long polling
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("recovered from handler panic")
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			b.log.Error().Err(err).Int64("user", update.CallbackQuery.From.ID).Msg("callback handler failed")
		}
	case update.Message != nil && update.Message.IsCommand():
		if err := b.handleCommand(ctx, update.Message); err != nil {
			b.log.Error().Err(err).Int64("user", update.Message.From.ID).Msg("command handler failed")
		}
	case update.Message != nil && update.Message.Document != nil:
		if err := b.handleDocument(ctx, update.Message); err != nil {
			b.log.Error().Err(err).Int64("user", update.Message.From.ID).Msg("document handler failed")
		}
	}
}

// SendReminder implements scheduler.Notifier: one message per due
// revision, with an inline "mark as completed" action addressed by the
// revision ID.
func (b *Bot) SendReminder(ctx context.Context, userID int64, rev models.Revision) error {
	text := reminderText(rev, b.engine.Table())
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "✅ Mark as completed", CallbackData: fmt.Sprintf("done_%d", rev.ID)}},
	})

	if err := b.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send reminder to %d: %w", userID, err)
	}
	return nil
}

// send delivers a message, honoring context cancellation. tgbotapi's
// Send has no context variant, so cancellation is checked up front and
// the call itself relies on the client's HTTP timeout.
func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.api.Send(c)
	return err
}

func (b *Bot) reply(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.api.Send(msg)
	return err
}
