package bot

import (
	"encoding/json"
	"testing"

	"github.com/ddanshin/go-homework-bot/internal/domain"
)

func TestEditorState_SetAndClear(t *testing.T) {
	e := editorState{}
	if !e.empty() {
		t.Fatal("fresh grid not empty")
	}

	e.setSubject(0, 0, "Математика")
	e.setSubject(0, 1, "Физика")
	if !e.hasLessons(0) || e.hasLessons(1) {
		t.Fatalf("hasLessons = %v, %v", e.hasLessons(0), e.hasLessons(1))
	}
	if e.subject(0, 1) != "Физика" {
		t.Fatalf("subject = %q", e.subject(0, 1))
	}

	e.setSubject(0, 0, "")
	if e.subject(0, 0) != "" {
		t.Fatal("cleared slot kept its subject")
	}
	e.setSubject(0, 1, "")
	if e.hasLessons(0) {
		t.Fatal("day with no slots still reports lessons")
	}
	if !e.empty() {
		t.Fatal("cleared grid not empty")
	}
}

func TestEditorState_ToSlotsOrdered(t *testing.T) {
	e := editorState{}
	e.setSubject(4, 1, "Физика")
	e.setSubject(0, 0, "Математика")

	slots := e.toSlots()
	if len(slots) != 2 {
		t.Fatalf("len = %d; want 2", len(slots))
	}
	// Day-major, slot-minor order regardless of insertion order.
	if slots[0].Subject != "Математика" || slots[0].Weekday != 0 || slots[0].StartTime != "8:15" {
		t.Fatalf("slots[0] = %+v", slots[0])
	}
	if slots[1].Subject != "Физика" || slots[1].Weekday != 4 || slots[1].StartTime != "9:15" {
		t.Fatalf("slots[1] = %+v", slots[1])
	}
}

func TestEditorFromSlots_DropsOffGridTimes(t *testing.T) {
	e := editorFromSlots([]domain.LessonSlot{
		{Weekday: 0, Subject: "Математика", StartTime: "8:15"},
		{Weekday: 0, Subject: "Кружок", StartTime: "16:00"}, // not a bell slot
	})
	if e.subject(0, 0) != "Математика" {
		t.Fatalf("slot 0 = %q", e.subject(0, 0))
	}
	if len(e[0]) != 1 {
		t.Fatalf("day 0 slots = %v", e[0])
	}
}

func TestEditorState_EncodeDecodeRoundTrip(t *testing.T) {
	e := editorState{}
	e.setSubject(2, 3, "История")
	e.setSubject(6, 7, "Физкультура")

	// Simulate the store's JSON snapshot cycle.
	raw, err := json.Marshal(e.encode())
	if err != nil {
		t.Fatal(err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}

	got := decodeEditorState(data)
	if got.subject(2, 3) != "История" || got.subject(6, 7) != "Физкультура" {
		t.Fatalf("round trip = %v", got)
	}
}

func TestDecodeEditorState_SkipsGarbage(t *testing.T) {
	data := map[string]any{
		"grid": map[string]any{
			"1":   map[string]any{"0": "Физика", "99": "мимо", "x": "мимо"},
			"9":   map[string]any{"0": "мимо"},
			"два": map[string]any{"0": "мимо"},
		},
	}
	got := decodeEditorState(data)
	if got.subject(1, 0) != "Физика" {
		t.Fatalf("valid entry lost: %v", got)
	}
	if len(got) != 1 || len(got[1]) != 1 {
		t.Fatalf("garbage kept: %v", got)
	}
}

func TestSlotIndex(t *testing.T) {
	if got := slotIndex("8:15"); got != 0 {
		t.Fatalf("slotIndex(8:15) = %d", got)
	}
	if got := slotIndex("14:30"); got != len(lessonTimes)-1 {
		t.Fatalf("slotIndex(14:30) = %d", got)
	}
	if got := slotIndex("03:00"); got != -1 {
		t.Fatalf("slotIndex(03:00) = %d", got)
	}
}
