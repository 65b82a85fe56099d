package match

import "testing"

func TestSimilarity_Basics(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"Математика", "математика", 1},
		{"Русский язык", "русский", 0.5},
		{"Алгебра", "Геометрия", 0},
		{"", "Физика", 0},
		{"", "", 0},
	}
	for _, tc := range cases {
		if got := Similarity(tc.a, tc.b); got != tc.want {
			t.Fatalf("Similarity(%q, %q) = %v; want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSimilarity_PunctuationIgnored(t *testing.T) {
	if got := Similarity("физ-ра", "Физ ра"); got != 1 {
		t.Fatalf("Similarity = %v; want 1", got)
	}
}

func TestBestSubject_PicksClosest(t *testing.T) {
	candidates := []string{"Математика", "Русский язык", "Физика"}

	got, ok := BestSubject("русский", candidates, 0)
	if !ok || got != "Русский язык" {
		t.Fatalf("BestSubject = %q, %v; want %q, true", got, ok, "Русский язык")
	}
}

func TestBestSubject_BelowThreshold(t *testing.T) {
	if got, ok := BestSubject("Химия", []string{"Математика", "Физика"}, 0); ok {
		t.Fatalf("BestSubject = %q, true; want miss", got)
	}
}

func TestBestSubject_StableOnTies(t *testing.T) {
	// Identical candidates score the same; the first wins.
	got, ok := BestSubject("история", []string{"История", "история"}, 0)
	if !ok || got != "История" {
		t.Fatalf("BestSubject = %q, %v; want first candidate", got, ok)
	}
}
