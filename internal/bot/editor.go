package bot

import (
	"strconv"

	"github.com/ddanshin/go-homework-bot/internal/domain"
	"github.com/ddanshin/go-homework-bot/internal/state"
)

// Schedule editor flow states.
const (
	stateChoosingDay  = "schedule:choosing_day"
	stateEnteringSlot = "schedule:entering_lesson"
	flowContextEditor = "editor"
)

// editorState is the in-progress timetable being built in the schedule
// editor: day index to slot index to subject. It survives restarts by living
// in the session store's data payload, where JSON round-trips force string
// keys and turn the working copy into map[string]any.
type editorState map[int]map[int]string

func (e editorState) hasLessons(day int) bool {
	return len(e[day]) > 0
}

func (e editorState) subject(day, slot int) string {
	return e[day][slot]
}

func (e editorState) setSubject(day, slot int, subject string) {
	if subject == "" {
		delete(e[day], slot)
		if len(e[day]) == 0 {
			delete(e, day)
		}
		return
	}
	if e[day] == nil {
		e[day] = map[int]string{}
	}
	e[day][slot] = subject
}

func (e editorState) empty() bool {
	for _, slots := range e {
		if len(slots) > 0 {
			return false
		}
	}
	return true
}

// toSlots flattens the editor grid into persistable lesson slots.
func (e editorState) toSlots() []domain.LessonSlot {
	var out []domain.LessonSlot
	for day := 0; day < 7; day++ {
		for slot := 0; slot < len(lessonTimes); slot++ {
			if subject := e.subject(day, slot); subject != "" {
				out = append(out, domain.LessonSlot{
					Weekday:   day,
					Subject:   subject,
					StartTime: lessonTimes[slot],
				})
			}
		}
	}
	return out
}

// editorFromSlots seeds the editor grid from a saved timetable so an edit
// session starts from what the user already has. Slots whose start time is
// off the bell schedule are dropped rather than misplaced.
func editorFromSlots(slots []domain.LessonSlot) editorState {
	e := editorState{}
	for _, s := range slots {
		if idx := slotIndex(s.StartTime); idx >= 0 {
			e.setSubject(s.Weekday, idx, s.Subject)
		}
	}
	return e
}

// encode renders the grid with string keys for the session store.
func (e editorState) encode() map[string]any {
	grid := map[string]any{}
	for day, slots := range e {
		if len(slots) == 0 {
			continue
		}
		inner := map[string]any{}
		for slot, subject := range slots {
			inner[strconv.Itoa(slot)] = subject
		}
		grid[strconv.Itoa(day)] = inner
	}
	return map[string]any{"grid": grid}
}

// decodeEditorState rebuilds the grid from a session data payload. Unparseable
// keys and non-string values are skipped, so a stale or hand-edited snapshot
// degrades to a partial grid instead of failing the flow.
func decodeEditorState(data map[string]any) editorState {
	e := editorState{}
	grid, _ := data["grid"].(map[string]any)
	for dayStr, rawSlots := range grid {
		day, err := strconv.Atoi(dayStr)
		if err != nil || day < 0 || day > 6 {
			continue
		}
		slots, _ := rawSlots.(map[string]any)
		for slotStr, rawSubject := range slots {
			slot, err := strconv.Atoi(slotStr)
			if err != nil || slot < 0 || slot >= len(lessonTimes) {
				continue
			}
			if subject, ok := rawSubject.(string); ok && subject != "" {
				e.setSubject(day, slot, subject)
			}
		}
	}
	return e
}

// editorKey scopes the editor session to one user in one chat.
func editorKey(chatID, userID int64) state.Key {
	return state.Key{Chat: chatID, User: userID, Context: flowContextEditor}
}

// loadEditor reads the current editor grid for the session, plus any extra
// scalar fields the flow parked alongside it.
func (b *Bot) loadEditor(k state.Key) (editorState, map[string]any) {
	data := b.states.GetData(k)
	return decodeEditorState(data), data
}

// saveEditor writes the grid back, preserving unrelated fields in data.
func (b *Bot) saveEditor(k state.Key, e editorState, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	for key, v := range e.encode() {
		data[key] = v
	}
	b.states.SetData(k, data)
}
