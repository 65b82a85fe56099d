package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ddanshin/go-homework-bot/internal/domain"
	"github.com/ddanshin/go-homework-bot/internal/llm"
	"github.com/ddanshin/go-homework-bot/internal/repo"
	"github.com/ddanshin/go-homework-bot/internal/services"
)

// groupMinTextLen is the shortest group message the monitor bothers sending
// to the detector, in runes. Shorter messages are noise.
const groupMinTextLen = 10

const privateHelp = `<b>Что я умею</b>

Пришли мне фото доски или текст с домашним заданием, и я запишу его с датой сдачи по твоему расписанию.

/schedule — настроить расписание уроков
/my_schedule — посмотреть расписание
/stats — нагрузка на ближайшие дни
/cancel — отменить текущее действие

В редакторе расписания можно вместо кнопок прислать всё расписание текстом, по строке на урок:
<code>Пн: Математика 8:15</code>`

const groupHelp = `<b>Команды группы</b>

/hw — список домашних заданий
/stats — нагрузка класса

Для администраторов:
/setup_subjects Математика, Физика — предметы для мониторинга
/link_schedule — привязать своё расписание к чату
/clear_hw — очистить список ДЗ
/export_csv — экспорт метрик нагрузки`

// ---- private chat ----

func (b *Bot) handlePrivate(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	userID := m.From.ID

	if m.IsCommand() {
		b.handlePrivateCommand(ctx, m)
		return
	}

	// Main-menu reply buttons act like commands.
	if _, ok := buttonTexts[m.Text]; ok {
		b.handleMenuButton(ctx, m)
		return
	}

	// An active editor session captures free text before the homework
	// pipeline sees it.
	if st, ok := b.states.GetState(editorKey(chatID, userID)); ok {
		b.handleEditorText(ctx, m, st)
		return
	}

	if len(m.Photo) > 0 {
		b.handlePrivatePhoto(ctx, m)
		return
	}
	if strings.TrimSpace(m.Text) == "" {
		return
	}

	b.reply(chatID, m.MessageID, "🔍 Разбираю задание...")
	res, err := b.homework.ProcessPrivate(ctx, chatID, userID, m.Text)
	b.renderResolution(chatID, m.MessageID, res, err, false)
}

func (b *Bot) handlePrivatePhoto(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	data, mime, err := b.downloadPhoto(ctx, m.Photo)
	if err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("photo download failed")
		b.reply(chatID, m.MessageID, "😔 Не смог скачать фото, попробуй ещё раз.")
		return
	}
	b.reply(chatID, m.MessageID, "🔍 Разбираю фото...")
	res, perr := b.homework.ProcessPrivateImage(ctx, chatID, m.From.ID, data, mime)
	b.renderResolution(chatID, m.MessageID, res, perr, false)
}

func (b *Bot) handlePrivateCommand(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	userID := m.From.ID

	switch m.Command() {
	case "start":
		b.answer(chatID,
			"Привет! Я помогаю вести домашние задания.\n\n"+
				"Пришли фото доски или текст с ДЗ, и я запишу его с датой сдачи. "+
				"Сначала настрой расписание уроков: /schedule",
			mainKeyboard())
	case "help":
		b.answer(chatID, privateHelp, mainKeyboard())
	case "cancel":
		b.cancelSession(chatID, userID)
		b.answer(chatID, "Действие отменено.", mainKeyboard())
	case "schedule":
		b.startEditor(ctx, m)
	case "my_schedule":
		b.showSchedule(ctx, chatID, userID)
	case "stats":
		b.showLoad(ctx, chatID, b.statsTenant(ctx, userID, chatID))
	default:
		b.reply(chatID, 0, "Не знаю такую команду. /help")
	}
}

func (b *Bot) handleMenuButton(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	userID := m.From.ID

	switch m.Text {
	case btnSetSchedule:
		b.startEditor(ctx, m)
	case btnSchedule:
		b.showSchedule(ctx, chatID, userID)
	case btnStats:
		b.showLoad(ctx, chatID, b.statsTenant(ctx, userID, chatID))
	case btnCalendar:
		b.showCalendarStatus(chatID)
	}
}

// cancelSession drops every in-flight flow of the user in this chat: the
// homework disambiguation (with its parked candidate) and the editor.
func (b *Bot) cancelSession(chatID, userID int64) {
	hwKey := services.SessionKey(chatID, userID)
	handle := int64(-1)
	if data := b.states.GetData(hwKey); data != nil {
		if raw, ok := data["handle"]; ok {
			switch v := raw.(type) {
			case int64:
				handle = v
			case float64:
				handle = int64(v)
			}
		}
	}
	// No parked candidate means no handle to drop. Registry handles start
	// at zero, so a default value would hit another session's candidate.
	if handle >= 0 {
		b.homework.Cancel(hwKey, handle)
	} else {
		b.states.Clear(hwKey)
	}
	b.states.Clear(editorKey(chatID, userID))
}

func (b *Bot) showCalendarStatus(chatID int64) {
	if b.homework.Calendar == nil {
		b.reply(chatID, 0,
			"Google Calendar не подключён. Задай GOOGLE_TOKEN_PATH и включи CALENDAR_ENABLED, "+
				"тогда для каждого ДЗ я буду создавать событие с напоминаниями.")
		return
	}
	b.reply(chatID, 0,
		"🔗 Google Calendar подключён: для каждого ДЗ с датой я создаю событие "+
			"с напоминаниями за час и за сутки до урока.")
}

// ---- schedule editor ----

func (b *Bot) startEditor(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	userID := m.From.ID
	key := editorKey(chatID, userID)

	saved, err := b.schedule.Get(ctx, userID)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("load schedule failed")
		b.reply(chatID, 0, "😔 Не смог загрузить расписание, попробуй позже.")
		return
	}
	grid := editorFromSlots(saved)

	b.states.SetState(key, stateChoosingDay)
	b.saveEditor(key, grid, nil)
	b.answer(chatID,
		"✏️ <b>Редактор расписания</b>\n\n"+
			"Выбери день и отметь уроки, затем нажми «Сохранить».\n"+
			"Или пришли расписание текстом, по строке на урок:\n"+
			"<code>Пн: Математика 8:15</code>",
		editorDaysKeyboard(grid))
}

// handleEditorText consumes free text while the editor session is active:
// a subject name when a slot is selected, or a whole timetable in text form.
func (b *Bot) handleEditorText(ctx context.Context, m *tgbotapi.Message, st string) {
	chatID := m.Chat.ID
	userID := m.From.ID
	key := editorKey(chatID, userID)
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	if st == stateEnteringSlot {
		grid, data := b.loadEditor(key)
		day := intField(data, "day")
		slot := intField(data, "slot")
		if day < 0 || day > 6 || slot < 0 || slot >= len(lessonTimes) {
			b.states.SetState(key, stateChoosingDay)
			b.answer(chatID, "Выбери день:", editorDaysKeyboard(grid))
			return
		}
		if text == "-" {
			grid.setSubject(day, slot, "")
		} else {
			grid.setSubject(day, slot, text)
		}
		delete(data, "day")
		delete(data, "slot")
		b.saveEditor(key, grid, data)
		b.states.SetState(key, stateChoosingDay)
		b.answer(chatID,
			fmt.Sprintf("%s, %d урок (%s) записан.", daysRU[day], slot+1, lessonTimes[slot]),
			editorSlotsKeyboard(day, grid))
		return
	}

	// Day-picker state: try the whole message as a text timetable.
	slots, err := b.schedule.SaveText(ctx, userID, text)
	if err != nil {
		if errors.Is(err, services.ErrEmptySchedule) {
			b.reply(chatID, m.MessageID,
				"Не понял формат. Пример строки:\n<code>Пн: Математика 8:15</code>")
			return
		}
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("save schedule text failed")
		b.reply(chatID, m.MessageID, "😔 Не смог сохранить расписание: "+html.EscapeString(err.Error()))
		return
	}
	b.states.Clear(key)
	b.answer(chatID,
		fmt.Sprintf("💾 Расписание сохранено: %d уроков.\n\n%s", len(slots), renderSchedule(slots)),
		mainKeyboard())
}

func (b *Bot) showSchedule(ctx context.Context, chatID, userID int64) {
	slots, err := b.schedule.Get(ctx, userID)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("load schedule failed")
		b.reply(chatID, 0, "😔 Не смог загрузить расписание, попробуй позже.")
		return
	}
	if len(slots) == 0 {
		b.reply(chatID, 0, "Расписание пока пустое. Настрой его: /schedule")
		return
	}
	b.reply(chatID, 0, "📅 <b>Твоё расписание</b>\n\n"+renderSchedule(slots))
}

// renderSchedule groups slots by weekday, one line per lesson.
func renderSchedule(slots []domain.LessonSlot) string {
	var sb strings.Builder
	for day := 0; day < 7; day++ {
		var lines []string
		for _, s := range slots {
			if s.Weekday == day {
				lines = append(lines, fmt.Sprintf("  %s  %s", s.StartTime, html.EscapeString(s.Subject)))
			}
		}
		if len(lines) == 0 {
			continue
		}
		sb.WriteString("<b>" + daysRU[day] + "</b>\n")
		sb.WriteString(strings.Join(lines, "\n"))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ---- group chat ----

func (b *Bot) handleGroup(ctx context.Context, m *tgbotapi.Message) {
	if m.IsCommand() {
		b.handleGroupCommand(ctx, m)
		return
	}

	chatID := m.Chat.ID
	senderID := senderOf(m)

	// A group member answering a day-choice keyboard goes through callbacks,
	// so everything else here is passive monitoring.
	if len(m.Photo) > 0 {
		data, mime, err := b.downloadPhoto(ctx, m.Photo)
		if err != nil {
			b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("group photo download failed")
			return
		}
		res, derr := b.homework.DetectGroupImage(ctx, chatID, senderID, data, mime)
		b.renderResolution(chatID, m.MessageID, res, derr, true)
		return
	}

	text := strings.TrimSpace(m.Text)
	if len([]rune(text)) < groupMinTextLen {
		return
	}
	res, err := b.homework.DetectGroup(ctx, chatID, senderID, text)
	b.renderResolution(chatID, m.MessageID, res, err, true)
}

func (b *Bot) handleGroupCommand(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID

	switch m.Command() {
	case "hw":
		b.showHomeworkList(ctx, chatID)
	case "stats":
		b.showLoad(ctx, chatID, chatID)
	case "help":
		b.reply(chatID, 0, groupHelp)
	case "setup_subjects":
		b.requireAdmin(m, func() { b.setupSubjects(ctx, m) })
	case "link_schedule":
		b.requireAdmin(m, func() { b.linkSchedule(ctx, m) })
	case "clear_hw":
		b.requireAdmin(m, func() { b.clearHomework(ctx, chatID) })
	case "export_csv":
		b.requireAdmin(m, func() { b.exportCSV(ctx, chatID) })
	}
}

// requireAdmin runs fn only for chat admins. Channel posts have no sender and
// pass: posting to a channel already requires admin rights.
func (b *Bot) requireAdmin(m *tgbotapi.Message, fn func()) {
	if m.From != nil && !b.isChatAdmin(m.Chat.ID, m.From.ID) {
		b.reply(m.Chat.ID, m.MessageID, "Эта команда доступна только администраторам чата.")
		return
	}
	fn()
}

func (b *Bot) setupSubjects(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	args := strings.TrimSpace(m.CommandArguments())
	if args == "" {
		current, err := repo.GetChatSubjects(ctx, b.db, chatID)
		if err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("get chat subjects failed")
			return
		}
		if len(current) == 0 {
			b.reply(chatID, m.MessageID,
				"Мониторинг выключен. Задай предметы через запятую:\n"+
					"<code>/setup_subjects Математика, Физика, История</code>")
			return
		}
		b.reply(chatID, m.MessageID,
			"Отслеживаемые предметы: "+html.EscapeString(strings.Join(current, ", ")))
		return
	}

	var subjects []string
	for _, part := range strings.Split(args, ",") {
		if s := strings.TrimSpace(part); s != "" {
			subjects = append(subjects, s)
		}
	}
	if len(subjects) == 0 {
		b.reply(chatID, m.MessageID, "Не нашёл ни одного предмета в списке.")
		return
	}
	if err := repo.SetChatSubjects(ctx, b.db, chatID, subjects); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("set chat subjects failed")
		b.reply(chatID, m.MessageID, "😔 Не смог сохранить предметы, попробуй позже.")
		return
	}
	b.reply(chatID, m.MessageID,
		fmt.Sprintf("✅ Мониторинг включён для %d предметов: %s",
			len(subjects), html.EscapeString(strings.Join(subjects, ", "))))
}

func (b *Bot) linkSchedule(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	if m.From == nil {
		b.reply(chatID, 0, "Привязать расписание можно только из обычного сообщения.")
		return
	}
	userID := m.From.ID

	has, err := b.schedule.Has(ctx, userID)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("check schedule failed")
		return
	}
	if !has {
		b.reply(chatID, m.MessageID,
			"У тебя нет сохранённого расписания. Настрой его в личке со мной (/schedule) и повтори.")
		return
	}
	if err := repo.SetScheduleOwner(ctx, b.db, chatID, userID); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("link schedule failed")
		b.reply(chatID, m.MessageID, "😔 Не смог привязать расписание, попробуй позже.")
		return
	}
	b.reply(chatID, m.MessageID,
		"🔗 Расписание привязано: даты сдачи в этом чате считаются по твоему расписанию.")
}

func (b *Bot) clearHomework(ctx context.Context, chatID int64) {
	if err := repo.ClearHomework(ctx, b.db, chatID); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("clear homework failed")
		b.reply(chatID, 0, "😔 Не смог очистить список, попробуй позже.")
		return
	}
	b.reply(chatID, 0, "🗑 Список домашних заданий очищен.")
}

func (b *Bot) exportCSV(ctx context.Context, chatID int64) {
	data, err := b.analytics.ExportCSV(ctx, chatID)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("export csv failed")
		b.reply(chatID, 0, "😔 Не смог собрать экспорт, попробуй позже.")
		return
	}
	name := fmt.Sprintf("homework_load_%s.csv", time.Now().Format("2006-01-02"))
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = "📊 Метрики нагрузки"
	b.send(doc)
}

func (b *Bot) showHomeworkList(ctx context.Context, chatID int64) {
	items, err := repo.ListHomework(ctx, b.db, chatID)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("list homework failed")
		b.reply(chatID, 0, "😔 Не смог загрузить список, попробуй позже.")
		return
	}
	if len(items) == 0 {
		b.reply(chatID, 0, "Список домашних заданий пуст. 🎉")
		return
	}
	b.answer(chatID, renderHomeworkList(items), homeworkListKeyboard(items, chatID))
}

func renderHomeworkList(items []domain.HomeworkItem) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📚 <b>Домашние задания</b> (%d)\n", len(items)))
	for i, hw := range items {
		sb.WriteString(fmt.Sprintf("\n%d. <b>%s</b>: %s",
			i+1, html.EscapeString(hw.Subject), html.EscapeString(hw.Task)))
		if hw.DueDate != nil {
			sb.WriteString("\n   📅 " + formatDueDate(*hw.DueDate))
		}
		if hw.EstimatedMinutes != nil {
			sb.WriteString(fmt.Sprintf("  ⏱ ~%d мин", *hw.EstimatedMinutes))
		}
	}
	return sb.String()
}

// statsTenant picks the analytics tenant for a private /stats request. Load
// metrics accrue under group chats, so a user bound to a group sees that
// group's forecast; otherwise the private chat itself is the tenant.
func (b *Bot) statsTenant(ctx context.Context, userID, chatID int64) int64 {
	groups, err := repo.GetChatsForOwner(ctx, b.db, userID)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("chats for owner failed")
		return chatID
	}
	if len(groups) > 0 {
		return groups[0]
	}
	return chatID
}

// showLoad renders the two-week load forecast as a text chart.
func (b *Bot) showLoad(ctx context.Context, chatID, tenantID int64) {
	days, err := b.analytics.WeeklyLoad(ctx, tenantID)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", tenantID).Msg("weekly load failed")
		b.reply(chatID, 0, "😔 Не смог посчитать нагрузку, попробуй позже.")
		return
	}
	b.reply(chatID, 0, renderLoad(days))
}

func renderLoad(days []services.DayLoad) string {
	var sb strings.Builder
	sb.WriteString("📊 <b>Нагрузка на ближайшие дни</b>\n")
	any := false
	for _, d := range days {
		if d.TaskCount == 0 {
			continue
		}
		any = true
		hours := float64(d.TotalTime) / 60
		sb.WriteString(fmt.Sprintf("\n%s %s %d.%02d  %s %.1f ч, заданий: %d",
			stressEmoji(d.StressIndex),
			daysShort[goWeekday(d.Date)], d.Date.Day(), int(d.Date.Month()),
			loadBar(hours), hours, d.TaskCount))
	}
	if !any {
		return "📊 На ближайшие две недели заданий с датами нет. 🎉"
	}
	sb.WriteString(fmt.Sprintf("\n\nНорма: до %.0f ч в день.", services.SafeDailyHours))
	return sb.String()
}

// loadBar renders hours as a bar, one block per half hour, capped at twice
// the safe norm.
func loadBar(hours float64) string {
	blocks := int(hours*2 + 0.5)
	max := int(services.SafeDailyHours * 4)
	if blocks > max {
		blocks = max
	}
	if blocks < 1 {
		blocks = 1
	}
	return strings.Repeat("▰", blocks)
}

func stressEmoji(stress float64) string {
	switch {
	case stress < 0.33:
		return "🟢"
	case stress < 0.66:
		return "🟡"
	default:
		return "🔴"
	}
}

// ---- shared rendering ----

// renderResolution turns a pipeline outcome into chat messages. In group
// mode detection misses stay silent.
func (b *Bot) renderResolution(chatID int64, replyTo int, res *services.Resolution, err error, group bool) {
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotHomework):
			return
		case errors.Is(err, services.ErrNoSchedule):
			if group {
				return
			}
			b.reply(chatID, replyTo, "Сначала настрой расписание уроков: /schedule")
		case errors.Is(err, services.ErrUnknownSubject):
			if group {
				return
			}
			b.reply(chatID, replyTo,
				"🤔 Не нашёл такой предмет в твоём расписании. Проверь расписание: /my_schedule")
		case errors.Is(err, services.ErrDuplicateHomework):
			b.reply(chatID, replyTo, "Это задание уже записано. 👍")
		case errors.Is(err, llm.ErrRateLimited):
			b.reply(chatID, replyTo, "⏳ Сервис распознавания перегружен, попробуй через минуту.")
		default:
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("homework pipeline failed")
			if !group {
				b.reply(chatID, replyTo, "😔 Что-то пошло не так, попробуй ещё раз.")
			}
		}
		return
	}

	switch res.Status {
	case services.StatusAwaitingChoice:
		text := fmt.Sprintf("📚 <b>%s</b>: %s\n\nКогда сдавать?",
			html.EscapeString(res.Subject), html.EscapeString(res.Task))
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.ReplyToMessageID = replyTo
		msg.ReplyMarkup = dueChoiceKeyboard(res.Handle, res.Options)
		b.send(msg)
	default:
		b.reply(chatID, replyTo, confirmationText(res))
	}
}

func confirmationText(res *services.Resolution) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ Записал: <b>%s</b>\n%s",
		html.EscapeString(res.Subject), html.EscapeString(res.Task)))
	if res.Due != nil {
		sb.WriteString("\n📅 Сдать: " + formatDueDate(res.Due.Format(time.DateOnly)))
	}
	switch {
	case res.EventLink != "":
		sb.WriteString(fmt.Sprintf("\n🔗 <a href=\"%s\">Событие в календаре</a>", res.EventLink))
	case calendarNotAuthorized(res.CalendarErr):
		sb.WriteString("\n⚠️ Google Calendar не авторизован, событие не создано.")
	case res.CalendarErr != nil:
		sb.WriteString("\n⚠️ Событие в календаре создать не удалось.")
	}
	return sb.String()
}

// senderOf returns the message author, or the chat itself for channel posts.
func senderOf(m *tgbotapi.Message) int64 {
	if m.From != nil {
		return m.From.ID
	}
	return m.Chat.ID
}

// intField reads an integer out of a session data payload, which may carry
// it as int64 (fresh) or float64 (after a JSON round trip). Missing = -1.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return -1
	}
}
