package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/revbot/internal/config"
	"github.com/example/revbot/internal/engine"
	"github.com/example/revbot/internal/excel"
	"github.com/example/revbot/pkg/models"
)

// Callback data prefixes
const (
	callbackDone    = "done_"
	callbackSubject = "subj_"
	callbackDelete  = "del_"
)

// handleCommand routes bot commands
func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil || message.Chat == nil {
		return fmt.Errorf("invalid message: required fields are missing")
	}

	var err error
	switch message.Command() {
	case "start":
		err = b.handleStart(ctx, message)
	case "help":
		err = b.handleHelp(message)
	case "add":
		err = b.handleAdd(ctx, message)
	case "list":
		err = b.handleList(ctx, message)
	case "remove":
		err = b.handleRemove(ctx, message)
	case "notify":
		err = b.handleNotify(ctx, message)
	case "time":
		err = b.handleTime(ctx, message)
	case "stats":
		err = b.handleStats(ctx, message)
	case "check":
		err = b.handleCheck(ctx, message)
	case "import":
		err = b.handleImport(message)
	default:
		err = b.reply(message.Chat.ID, "Unknown command. Use /help to see what I can do.")
	}
	return err
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	user := &models.User{
		TelegramID:          message.From.ID,
		Username:            message.From.UserName,
		FirstName:           message.From.FirstName,
		LastName:            message.From.LastName,
		IsAdmin:             b.adminUserIDs[message.From.ID],
		NotificationEnabled: true,
		NotificationHour:    config.DefaultNotificationHour,
	}
	if err := b.store.Users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	text := "📚 *Ebbinghaus Forgetting Curve Bot* 📚\n\n" +
		"I'll help you remember what you study by reminding you to review " +
		"at optimal intervals (" + b.intervalSummary() + ").\n\n" +
		"*Commands:*\n" +
		"/add - Add what you studied today\n" +
		"/list - Show your current study items\n" +
		"/help - Show the full command list\n\n" +
		"Based on Hermann Ebbinghaus's research, spaced repetition helps you retain information longer!"
	return b.reply(message.Chat.ID, text)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) error {
	text := "📖 *Commands*\n\n" +
		"/add <text> - Add a study item and schedule its reviews\n" +
		"/list - Show active study items with upcoming review dates\n" +
		"/remove - Stop reminders for an item\n" +
		"/stats - Your review statistics\n" +
		"/check - Send any due reminders right now\n\n" +
		"⚙️ *Settings:*\n" +
		"/notify on|off - Enable or disable reminders\n" +
		"/time <hour> - Earliest hour of day for reminders (UTC)\n\n" +
		"🔄 *Review intervals:* " + b.intervalSummary() + "\n\n" +
		"When a reminder arrives, review the material and press " +
		"\"✅ Mark as completed\" to schedule the next review."
	return b.reply(message.Chat.ID, text)
}

func (b *Bot) handleAdd(ctx context.Context, message *tgbotapi.Message) error {
	name := strings.TrimSpace(message.CommandArguments())
	if name == "" {
		return b.reply(message.Chat.ID, "Please specify what you studied. Example:\n`/add Biology Chapter 3`")
	}
	user, err := b.requireUser(ctx, message)
	if err != nil || user == nil {
		return err
	}

	item := &models.StudyItem{
		UserID: user.TelegramID,
		Name:   name,
		Active: true,
	}
	if err := b.store.Items.Create(ctx, item); err != nil {
		return fmt.Errorf("failed to create study item: %w", err)
	}

	revs, err := b.engine.CreateSchedule(ctx, item)
	if err != nil {
		return fmt.Errorf("failed to schedule study item %d: %w", item.ID, err)
	}

	text := fmt.Sprintf("✅ Added: *%s*\n\nI'll remind you to review this in %s!",
		item.Name, formatInterval(b.engine.Table().OffsetForStage(0)))
	if len(revs) > 1 {
		text += fmt.Sprintf("\n(%d reviews scheduled in total)", len(revs))
	}
	text += "\n\nFile it under a subject?"

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = b.subjectKeyboard(item.ID)
	return b.send(ctx, msg)
}

func (b *Bot) subjectKeyboard(itemID int64) tgbotapi.InlineKeyboardMarkup {
	var row []MenuButton
	for i, subject := range config.Subjects {
		row = append(row, MenuButton{
			Text:         subject,
			CallbackData: fmt.Sprintf("%s%d_%d", callbackSubject, itemID, i),
		})
	}
	return createKeyboard([][]MenuButton{row})
}

func (b *Bot) handleList(ctx context.Context, message *tgbotapi.Message) error {
	user, err := b.requireUser(ctx, message)
	if err != nil || user == nil {
		return err
	}

	items, err := b.store.Items.GetActiveByUser(ctx, user.TelegramID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return b.reply(message.Chat.ID, "You don't have any active study items. Add one with /add!")
	}

	var sb strings.Builder
	sb.WriteString("📖 *Your Study Items* 📖\n\n")
	for _, item := range items {
		line := "• *" + item.Name + "*"
		if item.Subject != "" {
			line += " (" + item.Subject + ")"
		}
		next, err := b.store.Revisions.GetNextPending(ctx, item.ID)
		if err == nil {
			now := message.Time().UTC()
			if engine.StateOf(*next, now, b.cfg.ThrottleWindow) == engine.StateNotified {
				line += " — reminder sent, waiting for you"
			} else {
				line += " — " + formatDue(next.DueAt, now)
			}
		} else if !errors.Is(err, engine.ErrNotFound) {
			return err
		}
		sb.WriteString(line + "\n")
	}
	return b.reply(message.Chat.ID, sb.String())
}

func (b *Bot) handleRemove(ctx context.Context, message *tgbotapi.Message) error {
	user, err := b.requireUser(ctx, message)
	if err != nil || user == nil {
		return err
	}

	items, err := b.store.Items.GetActiveByUser(ctx, user.TelegramID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return b.reply(message.Chat.ID, "Nothing to remove — you have no active study items.")
	}

	var rows [][]MenuButton
	for _, item := range items {
		rows = append(rows, []MenuButton{{
			Text:         item.Name,
			CallbackData: fmt.Sprintf("%s%d", callbackDelete, item.ID),
		}})
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, "Which item should I stop reminding you about?")
	msg.ReplyMarkup = createKeyboard(rows)
	return b.send(ctx, msg)
}

func (b *Bot) handleNotify(ctx context.Context, message *tgbotapi.Message) error {
	user, err := b.requireUser(ctx, message)
	if err != nil || user == nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(message.CommandArguments())) {
	case "on":
		if err := b.store.Users.SetNotificationEnabled(ctx, user.TelegramID, true); err != nil {
			return err
		}
		return b.reply(message.Chat.ID, "🔔 Reminders enabled.")
	case "off":
		if err := b.store.Users.SetNotificationEnabled(ctx, user.TelegramID, false); err != nil {
			return err
		}
		return b.reply(message.Chat.ID, "🔕 Reminders disabled. Your schedule keeps advancing; re-enable any time with /notify on.")
	default:
		return b.reply(message.Chat.ID, "Usage: `/notify on` or `/notify off`")
	}
}

func (b *Bot) handleTime(ctx context.Context, message *tgbotapi.Message) error {
	user, err := b.requireUser(ctx, message)
	if err != nil || user == nil {
		return err
	}

	arg := strings.TrimSpace(message.CommandArguments())
	hour, err := strconv.Atoi(arg)
	if err != nil || hour < 0 || hour > 23 {
		return b.reply(message.Chat.ID, "Usage: `/time <hour>` where hour is 0-23 (UTC). Example: `/time 9`")
	}
	if err := b.store.Users.SetNotificationHour(ctx, user.TelegramID, hour); err != nil {
		return err
	}
	return b.reply(message.Chat.ID, fmt.Sprintf("⏰ Reminders will start at %02d:00 UTC.", hour))
}

func (b *Bot) handleStats(ctx context.Context, message *tgbotapi.Message) error {
	user, err := b.requireUser(ctx, message)
	if err != nil || user == nil {
		return err
	}

	items, err := b.store.Items.GetActiveByUser(ctx, user.TelegramID)
	if err != nil {
		return err
	}
	pending, completed, err := b.store.Revisions.CountByUser(ctx, user.TelegramID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("📊 *Your progress*\n\n"+
		"Active study items: %d\n"+
		"Reviews completed: %d\n"+
		"Reviews pending: %d",
		len(items), completed, pending)
	return b.reply(message.Chat.ID, text)
}

func (b *Bot) handleCheck(ctx context.Context, message *tgbotapi.Message) error {
	user, err := b.requireUser(ctx, message)
	if err != nil || user == nil {
		return err
	}
	if b.sched == nil {
		return b.reply(message.Chat.ID, "The reminder scheduler is not running.")
	}

	count, err := b.sched.RunManualCheck(ctx, user.TelegramID)
	if err != nil {
		return err
	}
	if count == 0 {
		return b.reply(message.Chat.ID, "Nothing is due right now. 🎉")
	}
	return nil
}

func (b *Bot) handleImport(message *tgbotapi.Message) error {
	if !b.adminUserIDs[message.From.ID] {
		return b.reply(message.Chat.ID, "Sorry, /import is only available to administrators.")
	}
	b.awaitingUpload[message.From.ID] = true
	return b.reply(message.Chat.ID, "Send me an .xlsx or .csv file with study items.\n"+
		"Columns: name, subject (optional), notes (optional). First row is treated as a header.")
}

// handleDocument processes an uploaded import file from an admin who
// ran /import
func (b *Bot) handleDocument(ctx context.Context, message *tgbotapi.Message) error {
	if !b.awaitingUpload[message.From.ID] {
		return nil
	}
	delete(b.awaitingUpload, message.From.ID)

	doc := message.Document
	ext := strings.ToLower(filepath.Ext(doc.FileName))
	if ext != ".xlsx" && ext != ".csv" {
		return b.reply(message.Chat.ID, "Unsupported file type. Please send an .xlsx or .csv file.")
	}

	path, err := b.downloadDocument(doc, ext)
	if err != nil {
		b.log.Error().Err(err).Str("file", doc.FileName).Msg("failed to download import file")
		return b.reply(message.Chat.ID, "I couldn't download that file, please try again.")
	}
	defer os.Remove(path)

	result, err := b.importer.Import(ctx, message.From.ID, excel.ImportConfig{FilePath: path})
	if err != nil {
		b.log.Error().Err(err).Str("file", doc.FileName).Msg("import failed")
		return b.reply(message.Chat.ID, fmt.Sprintf("Import failed: %v", err))
	}

	text := fmt.Sprintf("📥 *Import finished*\n\nRows processed: %d\nItems created: %d\nSkipped: %d",
		result.TotalProcessed, result.Created, result.Skipped)
	if len(result.Errors) > 0 {
		text += fmt.Sprintf("\nErrors: %d (first: %s)", len(result.Errors), result.Errors[0])
	}
	return b.reply(message.Chat.ID, text)
}

func (b *Bot) downloadDocument(doc *tgbotapi.Document, ext string) (string, error) {
	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file URL: %w", err)
	}
	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch file: status %s", resp.Status)
	}

	tmp, err := os.CreateTemp("", "revbot-import-*"+ext)
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return tmp.Name(), nil
}

// handleCallback routes inline button presses
func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	data := query.Data
	switch {
	case strings.HasPrefix(data, callbackDone):
		return b.handleDoneCallback(ctx, query, strings.TrimPrefix(data, callbackDone))
	case strings.HasPrefix(data, callbackSubject):
		return b.handleSubjectCallback(ctx, query, strings.TrimPrefix(data, callbackSubject))
	case strings.HasPrefix(data, callbackDelete):
		return b.handleDeleteCallback(ctx, query, strings.TrimPrefix(data, callbackDelete))
	default:
		return b.answerCallback(query, "")
	}
}

// handleDoneCallback completes a revision and reports the next review
// date. Completion is idempotent: a second tap on the same button just
// reports that the review was already done.
func (b *Bot) handleDoneCallback(ctx context.Context, query *tgbotapi.CallbackQuery, arg string) error {
	revisionID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return b.answerCallback(query, "Malformed action.")
	}

	next, err := b.engine.Complete(ctx, revisionID, query.From.ID)
	switch {
	case err == nil:
		if err := b.answerCallback(query, "Marked as completed!"); err != nil {
			return err
		}
		b.markReminderDone(query)
		if query.Message == nil {
			return nil
		}
		return b.reply(query.Message.Chat.ID, fmt.Sprintf(
			"Next review in %s. 🧠", formatInterval(b.engine.Table().OffsetForStage(next.Stage))))
	case errors.Is(err, engine.ErrAlreadyCompleted):
		return b.answerCallback(query, "Already completed. 👍")
	case errors.Is(err, engine.ErrItemInactive):
		if err := b.answerCallback(query, "Marked as completed!"); err != nil {
			return err
		}
		b.markReminderDone(query)
		return nil
	case errors.Is(err, engine.ErrNotFound):
		return b.answerCallback(query, "This review no longer exists.")
	default:
		return err
	}
}

func (b *Bot) handleSubjectCallback(ctx context.Context, query *tgbotapi.CallbackQuery, arg string) error {
	parts := strings.SplitN(arg, "_", 2)
	if len(parts) != 2 {
		return b.answerCallback(query, "Malformed action.")
	}
	itemID, err1 := strconv.ParseInt(parts[0], 10, 64)
	idx, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || idx < 0 || idx >= len(config.Subjects) {
		return b.answerCallback(query, "Malformed action.")
	}

	subject := config.Subjects[idx]
	if err := b.store.Items.SetSubject(ctx, itemID, query.From.ID, subject); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return b.answerCallback(query, "This item no longer exists.")
		}
		return err
	}
	if err := b.answerCallback(query, "Filed under "+subject+"."); err != nil {
		return err
	}
	b.clearKeyboard(query)
	return nil
}

func (b *Bot) handleDeleteCallback(ctx context.Context, query *tgbotapi.CallbackQuery, arg string) error {
	itemID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return b.answerCallback(query, "Malformed action.")
	}

	if err := b.store.Items.Deactivate(ctx, itemID, query.From.ID); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return b.answerCallback(query, "This item is already gone.")
		}
		return err
	}
	if err := b.answerCallback(query, "Removed."); err != nil {
		return err
	}
	if query.Message != nil {
		edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID,
			"🗑 Item removed. You won't get further reminders for it.")
		if _, err := b.api.Send(edit); err != nil {
			b.log.Warn().Err(err).Msg("failed to edit message after delete")
		}
	}
	return nil
}

// markReminderDone edits the reminder message so the completed state is
// visible in the chat history
func (b *Bot) markReminderDone(query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID,
		"✅ "+query.Message.Text+"\n\nMarked as completed!")
	if _, err := b.api.Send(edit); err != nil {
		b.log.Warn().Err(err).Msg("failed to edit reminder message")
	}
}

func (b *Bot) clearKeyboard(query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(query.Message.Chat.ID, query.Message.MessageID,
		tgbotapi.NewInlineKeyboardMarkup())
	if _, err := b.api.Send(edit); err != nil {
		b.log.Warn().Err(err).Msg("failed to clear keyboard")
	}
}

func (b *Bot) answerCallback(query *tgbotapi.CallbackQuery, text string) error {
	callback := tgbotapi.NewCallback(query.ID, text)
	if _, err := b.api.Request(callback); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// requireUser resolves the sender, prompting for /start when unknown.
// A nil user with nil error means the prompt was sent.
func (b *Bot) requireUser(ctx context.Context, message *tgbotapi.Message) (*models.User, error) {
	user, err := b.store.Users.GetByTelegramID(ctx, message.From.ID)
	if errors.Is(err, engine.ErrNotFound) {
		return nil, b.reply(message.Chat.ID, "Please run /start first so I can set you up.")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (b *Bot) intervalSummary() string {
	parts := make([]string, 0, len(b.cfg.IntervalDays))
	for _, d := range b.cfg.IntervalDays {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, "-") + " days"
}
