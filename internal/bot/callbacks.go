package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ddanshin/go-homework-bot/internal/repo"
	"github.com/ddanshin/go-homework-bot/internal/services"
	"github.com/ddanshin/go-homework-bot/internal/state"
)

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.Message.Chat == nil {
		b.answerCallback(q.ID)
		return
	}
	data := q.Data
	switch {
	case strings.HasPrefix(data, "sched:"):
		b.handleEditorCallback(ctx, q)
	case strings.HasPrefix(data, "hw|"):
		b.handleHomeworkCallback(ctx, q)
	default:
		b.answerCallback(q.ID)
	}
}

// ---- schedule editor callbacks ----

func (b *Bot) handleEditorCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	chatID := q.Message.Chat.ID
	userID := q.From.ID
	key := editorKey(chatID, userID)
	parts := strings.Split(q.Data, ":")

	if _, active := b.states.GetState(key); !active {
		b.alertCallback(q.ID, "Редактор закрыт. Открой заново: /schedule")
		return
	}
	grid, data := b.loadEditor(key)

	switch parts[1] {
	case "day":
		if len(parts) < 3 {
			b.answerCallback(q.ID)
			return
		}
		day, err := strconv.Atoi(parts[2])
		if err != nil || day < 0 || day > 6 {
			b.answerCallback(q.ID)
			return
		}
		b.answerCallback(q.ID)
		b.editTextAndMarkup(chatID, q.Message.MessageID,
			"✏️ <b>"+daysRU[day]+"</b>\n\nВыбери урок. Чтобы убрать предмет, отправь «-» после выбора.",
			editorSlotsKeyboard(day, grid))
	case "slot":
		if len(parts) < 4 {
			b.answerCallback(q.ID)
			return
		}
		day, err1 := strconv.Atoi(parts[2])
		slot, err2 := strconv.Atoi(parts[3])
		if err1 != nil || err2 != nil || day < 0 || day > 6 || slot < 0 || slot >= len(lessonTimes) {
			b.answerCallback(q.ID)
			return
		}
		data["day"] = int64(day)
		data["slot"] = int64(slot)
		b.saveEditor(key, grid, data)
		b.states.SetState(key, stateEnteringSlot)
		b.answerCallback(q.ID)
		b.reply(chatID, 0, "✍️ "+daysRU[day]+", "+strconv.Itoa(slot+1)+" урок ("+lessonTimes[slot]+").\n"+
			"Напиши название предмета, либо «-» чтобы очистить урок.")
	case "back":
		b.states.SetState(key, stateChoosingDay)
		b.answerCallback(q.ID)
		b.editTextAndMarkup(chatID, q.Message.MessageID,
			"✏️ <b>Редактор расписания</b>\n\nВыбери день или нажми «Сохранить».",
			editorDaysKeyboard(grid))
	case "save":
		b.saveEditorResult(ctx, q, key, grid)
	default:
		b.answerCallback(q.ID)
	}
}

func (b *Bot) saveEditorResult(ctx context.Context, q *tgbotapi.CallbackQuery, key state.Key, grid editorState) {
	chatID := q.Message.Chat.ID
	userID := q.From.ID

	if grid.empty() {
		b.alertCallback(q.ID, "Расписание пустое: отметь хотя бы один урок.")
		return
	}
	slots, err := b.schedule.SaveSlots(ctx, userID, grid.toSlots())
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("save schedule failed")
		b.alertCallback(q.ID, "Не смог сохранить расписание, попробуй позже.")
		return
	}
	b.states.Clear(key)
	b.answerCallback(q.ID)
	b.editText(chatID, q.Message.MessageID,
		"💾 Расписание сохранено: "+strconv.Itoa(len(slots))+" уроков.\n\n"+renderSchedule(slots))
}

// ---- homework callbacks ----

func (b *Bot) handleHomeworkCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	parts := strings.Split(q.Data, "|")
	if len(parts) < 3 {
		b.answerCallback(q.ID)
		return
	}
	switch parts[1] {
	case "cd":
		b.chooseDue(ctx, q, parts)
	case "del":
		b.deleteHomeworkItem(ctx, q, parts)
	case "clear_all":
		b.clearHomeworkList(ctx, q, parts)
	case "stats":
		chatID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			b.answerCallback(q.ID)
			return
		}
		b.answerCallback(q.ID)
		b.showLoad(ctx, q.Message.Chat.ID, chatID)
	default:
		b.answerCallback(q.ID)
	}
}

// chooseDue resolves a parked candidate from a "hw|cd|{handle}|{unix|none}"
// button press.
func (b *Bot) chooseDue(ctx context.Context, q *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) != 4 {
		b.answerCallback(q.ID)
		return
	}
	handle, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		b.answerCallback(q.ID)
		return
	}

	var due *time.Time
	if parts[3] != "none" {
		unix, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			b.answerCallback(q.ID)
			return
		}
		t := time.Unix(unix, 0).In(time.Local)
		due = &t
	}

	key := services.SessionKey(q.Message.Chat.ID, q.From.ID)
	res, err := b.homework.Confirm(ctx, key, handle, due)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlreadyHandled):
			b.alertCallback(q.ID, "Задание уже обработано.")
			b.deleteMessage(q.Message.Chat.ID, q.Message.MessageID)
		case errors.Is(err, services.ErrDuplicateHomework):
			b.answerCallback(q.ID)
			b.editText(q.Message.Chat.ID, q.Message.MessageID, "Это задание уже записано. 👍")
		default:
			b.logger.Error().Err(err).Int64("handle", handle).Msg("confirm failed")
			b.alertCallback(q.ID, "Не смог записать задание, попробуй ещё раз.")
		}
		return
	}
	b.answerCallback(q.ID)
	b.editText(q.Message.Chat.ID, q.Message.MessageID, confirmationText(res))
}

func (b *Bot) deleteHomeworkItem(ctx context.Context, q *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) != 4 {
		b.answerCallback(q.ID)
		return
	}
	id, err1 := strconv.ParseInt(parts[2], 10, 64)
	chatID, err2 := strconv.ParseInt(parts[3], 10, 64)
	if err1 != nil || err2 != nil {
		b.answerCallback(q.ID)
		return
	}
	if !b.listActionAllowed(q) {
		return
	}
	if err := repo.DeleteHomework(ctx, b.db, id); err != nil {
		b.logger.Error().Err(err).Int64("id", id).Msg("delete homework failed")
		b.alertCallback(q.ID, "Не смог удалить, попробуй позже.")
		return
	}
	b.answerCallback(q.ID)
	b.refreshHomeworkList(ctx, q, chatID)
}

func (b *Bot) clearHomeworkList(ctx context.Context, q *tgbotapi.CallbackQuery, parts []string) {
	chatID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		b.answerCallback(q.ID)
		return
	}
	if !b.listActionAllowed(q) {
		return
	}
	if err := repo.ClearHomework(ctx, b.db, chatID); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("clear homework failed")
		b.alertCallback(q.ID, "Не смог очистить список, попробуй позже.")
		return
	}
	b.answerCallback(q.ID)
	b.editText(q.Message.Chat.ID, q.Message.MessageID, "🗑 Список домашних заданий очищен.")
}

// listActionAllowed gates destructive list buttons: anyone in private chats,
// admins only in groups.
func (b *Bot) listActionAllowed(q *tgbotapi.CallbackQuery) bool {
	chat := q.Message.Chat
	if chat.IsPrivate() {
		return true
	}
	if b.isChatAdmin(chat.ID, q.From.ID) {
		return true
	}
	b.alertCallback(q.ID, "Удалять задания могут только администраторы чата.")
	return false
}

// refreshHomeworkList re-renders the /hw message in place after a deletion.
func (b *Bot) refreshHomeworkList(ctx context.Context, q *tgbotapi.CallbackQuery, chatID int64) {
	items, err := repo.ListHomework(ctx, b.db, chatID)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("list homework failed")
		return
	}
	if len(items) == 0 {
		b.editText(q.Message.Chat.ID, q.Message.MessageID, "Список домашних заданий пуст. 🎉")
		return
	}
	b.editTextAndMarkup(q.Message.Chat.ID, q.Message.MessageID,
		renderHomeworkList(items), homeworkListKeyboard(items, chatID))
}
