package bot

import (
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ddanshin/go-homework-bot/internal/domain"
	"github.com/ddanshin/go-homework-bot/internal/services"
)

var (
	daysRU    = [...]string{"Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота", "Воскресенье"}
	daysShort = [...]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}
	monthsRU  = [...]string{"янв", "фев", "мар", "апр", "май", "июн", "июл", "авг", "сен", "окт", "ноя", "дек"}
)

// lessonTimes is the school bell schedule, one start time per slot.
var lessonTimes = [...]string{
	"8:15",
	"9:15",
	"10:10",
	"11:05",
	"12:00",
	"12:50",
	"13:40",
	"14:30",
}

// Main-menu reply buttons.
const (
	btnSchedule    = "📅 Моё расписание"
	btnSetSchedule = "✏️ Изменить расписание"
	btnCalendar    = "🔗 Google Calendar"
	btnStats       = "📊 Нагрузка"
)

var buttonTexts = map[string]struct{}{
	btnSchedule:    {},
	btnSetSchedule: {},
	btnCalendar:    {},
	btnStats:       {},
}

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSetSchedule),
			tgbotapi.NewKeyboardButton(btnSchedule),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCalendar),
			tgbotapi.NewKeyboardButton(btnStats),
		),
	)
	kb.ResizeKeyboard = true
	kb.InputFieldPlaceholder = "Отправь фото или текст с ДЗ..."
	return kb
}

// editorDaysKeyboard is the schedule editor's day picker: seven day buttons
// plus save, with a checkmark on days that already have lessons.
func editorDaysKeyboard(temp editorState) tgbotapi.InlineKeyboardMarkup {
	var buttons []tgbotapi.InlineKeyboardButton
	for i, name := range daysShort {
		mark := "◻️"
		if temp.hasLessons(i) {
			mark = "✅"
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(
			mark+" "+name, fmt.Sprintf("sched:day:%d", i)))
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(buttons); i += 3 {
		end := i + 3
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("💾 Сохранить", "sched:save")))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// editorSlotsKeyboard is one day's lesson grid, two buttons per row.
func editorSlotsKeyboard(day int, temp editorState) tgbotapi.InlineKeyboardMarkup {
	var buttons []tgbotapi.InlineKeyboardButton
	for slot := 0; slot < len(lessonTimes); slot++ {
		label := fmt.Sprintf("%d урок  %s", slot+1, lessonTimes[slot])
		if subject := temp.subject(day, slot); subject != "" {
			label = fmt.Sprintf("%d ✅ %s", slot+1, subject)
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(
			label, fmt.Sprintf("sched:slot:%d:%d", day, slot)))
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(buttons); i += 2 {
		end := i + 2
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ К дням", "sched:back")))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// dueChoiceKeyboard offers due dates for a parked homework candidate. With
// options from the timetable each option is one row; without options it falls
// back to the next seven days (Sundays skipped), three per row. Every
// keyboard ends with a "no date" row.
//
// Callback format: "hw|cd|{handle}|{unix}" or "hw|cd|{handle}|none".
func dueChoiceKeyboard(handle int64, opts []services.DayOption) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	if len(opts) > 0 {
		for _, o := range opts {
			label := fmt.Sprintf("%s %d %s · %s",
				daysRU[o.Weekday], o.Date.Day(), monthsRU[o.Date.Month()-1], o.StartTime)
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(label, dueCallback(handle, o.Date))))
		}
	} else {
		today := time.Now()
		var row []tgbotapi.InlineKeyboardButton
		for delta := 0; delta < 7; delta++ {
			d := today.AddDate(0, 0, delta)
			wd := goWeekday(d)
			if wd == 6 { // Sunday
				continue
			}
			var label string
			switch delta {
			case 0:
				label = fmt.Sprintf("Сегодня %s %d", daysShort[wd], d.Day())
			case 1:
				label = fmt.Sprintf("Завтра %s %d", daysShort[wd], d.Day())
			default:
				label = fmt.Sprintf("%s %d", daysShort[wd], d.Day())
				if d.Month() != today.Month() {
					label += " " + monthsRU[d.Month()-1]
				}
			}
			due := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, dueCallback(handle, due)))
			if len(row) == 3 {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📆 Без даты",
			fmt.Sprintf("hw|cd|%d|none", handle))))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func dueCallback(handle int64, due time.Time) string {
	return fmt.Sprintf("hw|cd|%d|%d", handle, due.Unix())
}

// goWeekday maps time.Weekday onto the 0=Monday convention.
func goWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// slotIndex returns the bell-schedule slot for a start time, or -1.
func slotIndex(startTime string) int {
	for i, t := range lessonTimes {
		if t == startTime {
			return i
		}
	}
	return -1
}

// formatDueDate renders "YYYY-MM-DD" as "Понедельник, 3 мар".
func formatDueDate(iso string) string {
	d, err := time.Parse(time.DateOnly, iso)
	if err != nil {
		return iso
	}
	return fmt.Sprintf("%s, %d %s", daysRU[goWeekday(d)], d.Day(), monthsRU[d.Month()-1])
}

// homeworkListKeyboard builds per-item delete buttons for the /hw view.
func homeworkListKeyboard(items []domain.HomeworkItem, chatID int64) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, hw := range items {
		label := "🗑 " + truncateRunes(hw.Subject, 15) + " — " + truncateRunes(hw.Task, 25)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label,
				"hw|del|"+strconv.FormatInt(hw.ID, 10)+"|"+strconv.FormatInt(chatID, 10))))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🗑 Очистить всё",
			"hw|clear_all|"+strconv.FormatInt(chatID, 10))))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📊 Нагрузка класса",
			"hw|stats|"+strconv.FormatInt(chatID, 10))))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
