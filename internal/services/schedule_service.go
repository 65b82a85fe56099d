// Package services – ScheduleService
//
// This file implements ScheduleService, which owns personal weekly
// timetables: parsing them from free text, validating and normalizing lesson
// slots, and replacing a user's saved timetable wholesale.
package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ddanshin/go-homework-bot/internal/domain"
	"github.com/ddanshin/go-homework-bot/internal/repo"
	"github.com/ddanshin/go-homework-bot/internal/schedule"
)

// ScheduleService provides timetable operations for one user.
type ScheduleService struct {
	DB *gorm.DB

	// SubjectCaser title-cases subject names for consistent matching and
	// display ("физика" and "Физика" are the same subject).
	SubjectCaser cases.Caser
}

// NewScheduleService constructs a ScheduleService with a Russian title caser.
func NewScheduleService(db *gorm.DB) *ScheduleService {
	return &ScheduleService{
		DB:           db,
		SubjectCaser: cases.Title(language.Russian, cases.NoLower),
	}
}

// SaveText parses a timetable written as "День: Предмет Ч:ММ, …" lines and
// replaces ownerID's saved timetable with the result. Returns
// ErrEmptySchedule when nothing parseable was found, and a validation error
// when a parsed entry carries an impossible time.
func (s *ScheduleService) SaveText(ctx context.Context, ownerID int64, text string) ([]domain.LessonSlot, error) {
	entries := schedule.ParseText(text)
	if len(entries) == 0 {
		return nil, ErrEmptySchedule
	}
	slots := make([]domain.LessonSlot, 0, len(entries))
	for _, e := range entries {
		slots = append(slots, domain.LessonSlot{
			Weekday:   e.Weekday,
			Subject:   s.normalizeSubject(e.Subject),
			StartTime: e.StartTime,
		})
	}
	return s.SaveSlots(ctx, ownerID, slots)
}

// SaveSlots validates and persists a full timetable for ownerID,
// delete-all-then-insert. Slot subjects are normalized before storage.
func (s *ScheduleService) SaveSlots(ctx context.Context, ownerID int64, slots []domain.LessonSlot) ([]domain.LessonSlot, error) {
	if len(slots) == 0 {
		return nil, ErrEmptySchedule
	}
	for i := range slots {
		if slots[i].Weekday < 0 || slots[i].Weekday > 6 {
			return nil, fmt.Errorf("invalid weekday %d", slots[i].Weekday)
		}
		if _, _, err := schedule.ParseClock(slots[i].StartTime); err != nil {
			return nil, err
		}
		slots[i].Subject = s.normalizeSubject(slots[i].Subject)
		if slots[i].Subject == "" {
			return nil, fmt.Errorf("empty subject in slot %d", i)
		}
	}
	if err := repo.ReplaceSchedule(ctx, s.DB, ownerID, slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// Get returns ownerID's timetable ordered by weekday then start time.
func (s *ScheduleService) Get(ctx context.Context, ownerID int64) ([]domain.LessonSlot, error) {
	return repo.GetSchedule(ctx, s.DB, ownerID)
}

// Has reports whether ownerID has a saved timetable.
func (s *ScheduleService) Has(ctx context.Context, ownerID int64) (bool, error) {
	return repo.HasSchedule(ctx, s.DB, ownerID)
}

// normalizeSubject trims, collapses inner whitespace, and title-cases the
// first word of a subject name.
func (s *ScheduleService) normalizeSubject(subject string) string {
	subject = subjectSpaceRE.ReplaceAllString(strings.TrimSpace(subject), " ")
	if subject == "" {
		return ""
	}
	return s.SubjectCaser.String(subject[:firstRuneLen(subject)]) + subject[firstRuneLen(subject):]
}

// firstRuneLen returns the byte length of the first rune of s.
func firstRuneLen(s string) int {
	for i := range s {
		if i > 0 {
			return i
		}
	}
	return len(s)
}

// subjectSpaceRE collapses consecutive whitespace to a single space.
var subjectSpaceRE = regexp.MustCompile(`\s+`)
