package schedule

import (
	"testing"
	"time"
)

// fixedNow pins the resolver to Wednesday, 2026-09-02 10:00 local time.
func fixedNow() time.Time {
	return time.Date(2026, 9, 2, 10, 0, 0, 0, time.Local)
}

func TestNextOccurrence_LaterThisWeek(t *testing.T) {
	r := Resolver{Now: fixedNow}

	got := r.NextOccurrence(4, 8, 15) // Friday
	want := time.Date(2026, 9, 4, 8, 15, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("NextOccurrence = %v; want %v", got, want)
	}
}

func TestNextOccurrence_EarlierWeekdayWraps(t *testing.T) {
	r := Resolver{Now: fixedNow}

	got := r.NextOccurrence(0, 8, 15) // Monday, already past this week
	want := time.Date(2026, 9, 7, 8, 15, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("NextOccurrence = %v; want %v", got, want)
	}
}

func TestNextOccurrence_TodayBeforeStart(t *testing.T) {
	r := Resolver{Now: fixedNow}

	got := r.NextOccurrence(2, 14, 30) // Wednesday afternoon, still ahead
	want := time.Date(2026, 9, 2, 14, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("NextOccurrence = %v; want %v", got, want)
	}
}

func TestNextOccurrence_TodayAtOrAfterStartSkipsAWeek(t *testing.T) {
	r := Resolver{Now: fixedNow}

	cases := []struct {
		hour, minute int
	}{
		{10, 0}, // exactly now
		{8, 15}, // already past
	}
	for _, tc := range cases {
		got := r.NextOccurrence(2, tc.hour, tc.minute)
		want := time.Date(2026, 9, 9, tc.hour, tc.minute, 0, 0, time.Local)
		if !got.Equal(want) {
			t.Fatalf("NextOccurrence(%d:%02d) = %v; want %v", tc.hour, tc.minute, got, want)
		}
	}
}

func TestNextOccurrences_WeekApart(t *testing.T) {
	r := Resolver{Now: fixedNow}

	got := r.NextOccurrences(4, 9, 15, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d; want 3", len(got))
	}
	first := time.Date(2026, 9, 4, 9, 15, 0, 0, time.Local)
	for i, occ := range got {
		want := first.AddDate(0, 0, 7*i)
		if !occ.Equal(want) {
			t.Fatalf("occurrence %d = %v; want %v", i, occ, want)
		}
	}
}

func TestNextOccurrences_NonPositiveN(t *testing.T) {
	r := Resolver{Now: fixedNow}
	if got := r.NextOccurrences(0, 8, 0, 0); got != nil {
		t.Fatalf("NextOccurrences(0) = %v; want nil", got)
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("8:15")
	if err != nil || h != 8 || m != 15 {
		t.Fatalf("ParseClock(8:15) = %d, %d, %v", h, m, err)
	}
	if _, _, err := ParseClock("25:00"); err == nil {
		t.Fatal("ParseClock(25:00) accepted")
	}
	if _, _, err := ParseClock("8:75"); err == nil {
		t.Fatal("ParseClock(8:75) accepted")
	}
	if _, _, err := ParseClock("noon"); err == nil {
		t.Fatal("ParseClock(noon) accepted")
	}
}
