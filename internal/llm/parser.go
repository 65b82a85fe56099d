package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ddanshin/go-homework-bot/internal/domain"
	"github.com/ddanshin/go-homework-bot/internal/services"
)

var (
	dayShort = [...]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}
	dayFull  = [...]string{"понедельник", "вторник", "среда", "четверг", "пятница", "суббота", "воскресенье"}

	jsonObjectRE = regexp.MustCompile(`(?s)\{.*\}`)
	firstIntRE   = regexp.MustCompile(`\d+`)
)

const groupJSONHint = `Ответь СТРОГО одним из двух вариантов (без markdown, без пояснений):
Если ДЗ: {"subject":"...","task":"...","due_day":<0-6 или null>,"due_date":"<YYYY-MM-DD или null>"}
Если НЕ ДЗ: null

due_day: день недели из текста (0=Пн, 1=Вт, 2=Ср, 3=Чт, 4=Пт, 5=Сб, 6=Вс), null если не указан явно
due_date: конкретная дата из текста в формате YYYY-MM-DD, null если не указана`

const groupExamples = `ПРИМЕРЫ - ЧТО ЯВЛЯЕТСЯ ДЗ:
«ДЗ по физике: параграф 8, задачи 1-3»
«На пятницу выучить стихотворение (литература)»
«Математика: стр.45 упр.7, сдать в четверг»
«Не забудьте параграф 12 прочитать к завтрашнему уроку химии»

ПРИМЕРЫ - ЧТО НЕ ЯВЛЯЕТСЯ ДЗ:
«Кто сделал домашку по математике?» (вопрос, не задание)
«Завтра контрольная по физике» (объявление, не ДЗ)
«Привет всем!» (переписка)
«Молодцы, все справились» (комментарий)`

const parseJSONHint = `Ответь СТРОГО в виде JSON-объекта без markdown-блоков:
{"subject": "...", "task": "..."}

subject должен совпадать с одним из предметов расписания.`

// Parser turns the raw Mistral client into the homework detection and time
// estimation contracts of the services package.
type Parser struct {
	Client *Client

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

// NewParser binds a Parser to a client.
func NewParser(client *Client) *Parser {
	return &Parser{Client: client}
}

func (p *Parser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// todayContext renders the current day for the detection prompt, e.g.
// "суббота, 30.08.2026".
func (p *Parser) todayContext() string {
	now := p.now()
	wd := (int(now.Weekday()) + 6) % 7
	return fmt.Sprintf("%s, %s", dayFull[wd], now.Format("02.01.2006"))
}

// formatSchedule renders timetable slots one per line, "Пн: Математика 8:15".
func formatSchedule(slots []domain.LessonSlot) string {
	var b strings.Builder
	for i, s := range slots {
		if i > 0 {
			b.WriteByte('\n')
		}
		name := ""
		if s.Weekday >= 0 && s.Weekday < len(dayShort) {
			name = dayShort[s.Weekday]
		}
		fmt.Fprintf(&b, "%s: %s %s", name, s.Subject, s.StartTime)
	}
	return b.String()
}

// parsedWire is the JSON shape the prompts ask the model to produce.
type parsedWire struct {
	Subject string  `json:"subject"`
	Task    string  `json:"task"`
	DueDay  *int    `json:"due_day"`
	DueDate *string `json:"due_date"`
}

// extractJSON pulls the first JSON object out of a model reply, tolerating
// surrounding prose and markdown fences.
func extractJSON(raw string) (*parsedWire, error) {
	match := jsonObjectRE.FindString(raw)
	if match == "" {
		return nil, fmt.Errorf("%w: %.200s", ErrBadOutput, raw)
	}
	var w parsedWire
	if err := json.Unmarshal([]byte(match), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	return &w, nil
}

func (w *parsedWire) toParsed() (*services.ParsedHomework, error) {
	subject := strings.TrimSpace(w.Subject)
	task := strings.TrimSpace(w.Task)
	if subject == "" || task == "" {
		return nil, fmt.Errorf("%w: missing subject or task", ErrBadOutput)
	}
	out := &services.ParsedHomework{Subject: subject, Task: task}
	if w.DueDay != nil && *w.DueDay >= 0 && *w.DueDay <= 6 {
		d := *w.DueDay
		out.DueDay = &d
	}
	if w.DueDate != nil {
		if t, err := time.Parse(time.DateOnly, *w.DueDate); err == nil {
			d := t.Format(time.DateOnly)
			out.DueDate = &d
		}
	}
	return out, nil
}

// ParseHomework extracts subject and task from a private-chat message known
// to carry homework, against the sender's timetable.
func (p *Parser) ParseHomework(ctx context.Context, text string, slots []domain.LessonSlot) (*services.ParsedHomework, error) {
	prompt := "Ты помощник школьника. Тебе дан текст с домашним заданием и расписание уроков.\n\n" +
		"Расписание (формат «День: Предмет ЧЧ:ММ»):\n" + formatSchedule(slots) +
		"\n\nТекст домашнего задания:\n" + text +
		"\n\nЗадача:\n" +
		"1. Определи предмет из расписания (subject).\n" +
		"2. Извлеки краткое описание задания (task).\n\n" +
		parseJSONHint
	raw, err := p.Client.chat(ctx, p.Client.cfg.TextModel, userMessage(prompt))
	if err != nil {
		return nil, err
	}
	w, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	return w.toParsed()
}

// ParseHomeworkImage is ParseHomework for a photo of the assignment.
func (p *Parser) ParseHomeworkImage(ctx context.Context, image []byte, mime string, slots []domain.LessonSlot) (*services.ParsedHomework, error) {
	prompt := "Ты помощник школьника. На изображении записано домашнее задание.\n\n" +
		"Расписание уроков (формат «День: Предмет ЧЧ:ММ»):\n" + formatSchedule(slots) +
		"\n\nЗадача:\n" +
		"1. Прочитай текст на изображении.\n" +
		"2. Определи предмет из расписания (subject).\n" +
		"3. Извлеки краткое описание задания (task).\n\n" +
		parseJSONHint
	raw, err := p.Client.chat(ctx, p.Client.cfg.VisionModel, userImageMessage(prompt, image, mime))
	if err != nil {
		return nil, err
	}
	w, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	return w.toParsed()
}

// DetectHomework decides whether a group-chat message announces homework for
// one of the chat's subjects. Returns (nil, nil) when it does not or when the
// reply cannot be parsed: a noisy group chat must never produce errors for
// ordinary conversation.
func (p *Parser) DetectHomework(ctx context.Context, text string, subjects []string) (*services.ParsedHomework, error) {
	prompt := "Ты определяешь, является ли сообщение из школьного чата домашним заданием.\n\n" +
		"Сегодня: " + p.todayContext() + "\n" +
		"Предметы класса: " + strings.Join(subjects, ", ") + "\n\n" +
		groupExamples + "\n\n" +
		"Сообщение для анализа:\n«" + text + "»\n\n" +
		groupJSONHint
	raw, err := p.Client.chat(ctx, p.Client.cfg.TextModel, userMessage(prompt))
	if err != nil {
		return nil, err
	}
	return detectResult(raw), nil
}

// DetectHomeworkImage is DetectHomework for a photo.
func (p *Parser) DetectHomeworkImage(ctx context.Context, image []byte, mime string, subjects []string) (*services.ParsedHomework, error) {
	prompt := "Ты определяешь, содержит ли изображение домашнее задание из школы.\n\n" +
		"Сегодня: " + p.todayContext() + "\n" +
		"Предметы класса: " + strings.Join(subjects, ", ") + "\n\n" +
		"Прочитай весь текст на изображении. Это домашнее задание по одному из предметов?\n\n" +
		groupJSONHint
	raw, err := p.Client.chat(ctx, p.Client.cfg.VisionModel, userImageMessage(prompt, image, mime))
	if err != nil {
		return nil, err
	}
	return detectResult(raw), nil
}

// detectResult maps a detection reply onto a candidate: "null" and anything
// unparseable both mean "not homework".
func detectResult(raw string) *services.ParsedHomework {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "none" {
		return nil
	}
	w, err := extractJSON(raw)
	if err != nil {
		return nil
	}
	parsed, err := w.toParsed()
	if err != nil {
		return nil
	}
	return parsed
}

// EstimateMinutes asks the model how long an assignment takes for an average
// student. The caller clamps the value to its own bounds.
func (p *Parser) EstimateMinutes(ctx context.Context, subject, task string) (int, error) {
	prompt := "Ты опытный учитель средней школы. Оцени примерное время выполнения " +
		"домашнего задания для среднего ученика 10 класса.\n\n" +
		"Предмет: " + subject + "\n" +
		"Задание: " + task + "\n\n" +
		"Ответь ТОЛЬКО одним целым числом: количество минут (от 5 до 240). " +
		"Никаких пояснений, только число."
	raw, err := p.Client.chat(ctx, p.Client.cfg.TextModel, userMessage(prompt))
	if err != nil {
		return 0, err
	}
	m := firstIntRE.FindString(raw)
	if m == "" {
		return 0, fmt.Errorf("%w: %.80s", ErrBadOutput, raw)
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	return n, nil
}

var (
	_ services.HomeworkParser = (*Parser)(nil)
	_ services.Estimator      = (*Parser)(nil)
)
