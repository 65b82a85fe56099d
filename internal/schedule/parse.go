package schedule

import (
	"regexp"
	"strings"
)

// Entry is one parsed timetable line item: a subject taught on a weekday at a
// given start time.
type Entry struct {
	Weekday   int    // 0=Monday … 6=Sunday
	Subject   string
	StartTime string // "H:MM" as written by the user
}

// dayNames maps Russian day names (short and full, including the declined
// forms people actually type) to weekday numbers.
var dayNames = map[string]int{
	"пн": 0, "понедельник": 0,
	"вт": 1, "вторник": 1,
	"ср": 2, "среда": 2, "среду": 2,
	"чт": 3, "четверг": 3,
	"пт": 4, "пятница": 4, "пятницу": 4,
	"сб": 5, "суббота": 5, "субботу": 5,
	"вс": 6, "воскресенье": 6,
}

// entryRE matches a "Subject H:MM" token within a timetable line.
var entryRE = regexp.MustCompile(`^(.+?)\s+(\d{1,2}:\d{2})$`)

// ParseText parses a timetable written as one line per day:
//
//	Пн: Математика 8:00, Физика 9:45
//	Вт: Алгебра 8:00, История 9:45
//
// Lines with an unknown day name and tokens without a trailing time are
// skipped rather than reported; the caller decides whether an empty result
// is an error.
func ParseText(text string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, ":")
		if line == "" || idx < 0 {
			continue
		}

		day, ok := dayNames[strings.ToLower(strings.TrimSpace(line[:idx]))]
		if !ok {
			continue
		}

		for _, part := range strings.Split(line[idx+1:], ",") {
			m := entryRE.FindStringSubmatch(strings.TrimSpace(part))
			if m == nil {
				continue
			}
			entries = append(entries, Entry{
				Weekday:   day,
				Subject:   strings.TrimSpace(m[1]),
				StartTime: m[2],
			})
		}
	}
	return entries
}
