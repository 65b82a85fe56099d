// Package services – HomeworkService
//
// This file implements HomeworkService, the application-level component that
// owns the homework pipeline: parsing a candidate out of a message, matching
// its subject against the relevant weekly timetable, branching between
// auto-resolution and a user day choice, and confirming the final item with a
// duplicate check, persistence, a calendar event, and best-effort load
// analytics.
//
// Observability: the pipeline entry points are OpenTelemetry-instrumented;
// spans carry chat/user identifiers.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ddanshin/go-homework-bot/internal/domain"
	"github.com/ddanshin/go-homework-bot/internal/match"
	"github.com/ddanshin/go-homework-bot/internal/pending"
	"github.com/ddanshin/go-homework-bot/internal/repo"
	"github.com/ddanshin/go-homework-bot/internal/schedule"
	"github.com/ddanshin/go-homework-bot/internal/state"
)

// StateChoosingDay is the symbolic session state persisted while a homework
// candidate awaits the user's day choice. The session key context is
// SessionContext.
const StateChoosingDay = "homework:choosing_day"

// SessionContext scopes homework-flow session keys in the state store.
const SessionContext = "homework"

// choiceDatesPerSlot is how many upcoming dates each matching slot expands to
// when the user is offered a choice.
const choiceDatesPerSlot = 2

// ParsedHomework is the structured guess returned by the LLM parser.
// A nil ParsedHomework from the detection methods means "not homework".
type ParsedHomework struct {
	Subject string
	Task    string
	DueDay  *int    // weekday mentioned in the text (0=Monday), if any
	DueDate *string // explicit "YYYY-MM-DD" mentioned in the text, if any
}

// HomeworkParser extracts homework candidates from text or images. The
// concrete implementation lives in internal/llm; tests substitute fakes.
type HomeworkParser interface {
	// ParseHomework parses a private-chat message known to carry homework,
	// using the sender's timetable as context.
	ParseHomework(ctx context.Context, text string, slots []domain.LessonSlot) (*ParsedHomework, error)

	// ParseHomeworkImage is ParseHomework for a photo.
	ParseHomeworkImage(ctx context.Context, image []byte, mime string, slots []domain.LessonSlot) (*ParsedHomework, error)

	// DetectHomework decides whether an arbitrary group message announces
	// homework for one of the chat's subjects. Returns (nil, nil) when it
	// does not.
	DetectHomework(ctx context.Context, text string, subjects []string) (*ParsedHomework, error)

	// DetectHomeworkImage is DetectHomework for a photo.
	DetectHomeworkImage(ctx context.Context, image []byte, mime string, subjects []string) (*ParsedHomework, error)
}

// CalendarWriter creates calendar events for confirmed homework.
type CalendarWriter interface {
	// CreateEvent inserts an event starting at start and returns a link to it.
	CreateEvent(ctx context.Context, subject, task string, start time.Time) (string, error)
}

// LoadRecorder receives confirmed homework items for complexity estimation
// and daily load aggregation. Implementations must swallow their own errors;
// the pipeline never waits on or surfaces analytics failures.
type LoadRecorder interface {
	RecordConfirmed(ctx context.Context, item *domain.HomeworkItem)
}

// ResolutionStatus is the workflow outcome of a detected candidate.
type ResolutionStatus int

const (
	// StatusAutoResolved: the subject matched exactly one slot and the item
	// was confirmed without user interaction.
	StatusAutoResolved ResolutionStatus = iota
	// StatusAwaitingChoice: the candidate is parked in the pending registry
	// and the session awaits a day choice.
	StatusAwaitingChoice
	// StatusConfirmed: a pending candidate was confirmed by a choice event.
	StatusConfirmed
)

// DayOption is one selectable due date offered during disambiguation.
type DayOption struct {
	Weekday   int
	StartTime string
	Date      time.Time
}

// Resolution describes what the pipeline did with a candidate.
type Resolution struct {
	Status  ResolutionStatus
	Subject string
	Task    string

	// AwaitingChoice fields.
	Handle  int64
	Options []DayOption // empty with StatusAwaitingChoice = free date choice

	// AutoResolved / Confirmed fields.
	Due         *time.Time
	Item        *domain.HomeworkItem
	EventLink   string
	CalendarErr error // calendar write failed; the item itself is persisted
}

// HomeworkService orchestrates detection, disambiguation, and confirmation.
type HomeworkService struct {
	DB       *gorm.DB
	States   *state.Store
	Pending  *pending.Registry
	Resolver schedule.Resolver
	Parser   HomeworkParser
	Calendar CalendarWriter // optional
	Load     LoadRecorder   // optional

	// Logger defaults to the global logger with a component field.
	Logger *zerolog.Logger
}

// SessionKey returns the state-store key gating the homework flow of one
// user in one chat.
func SessionKey(chatID, userID int64) state.Key {
	return state.Key{Chat: chatID, User: userID, Context: SessionContext}
}

func (s *HomeworkService) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	l := log.With().Str("component", "homework").Logger()
	return &l
}

// ProcessPrivate runs the private-chat pipeline for a text message: parse
// against the sender's timetable, then resolve strictly (an unknown subject
// is terminal). Returns ErrNoSchedule when the sender has no timetable.
func (s *HomeworkService) ProcessPrivate(ctx context.Context, chatID, userID int64, text string) (*Resolution, error) {
	tr := otel.Tracer("services/HomeworkService")
	ctx, span := tr.Start(ctx, "ProcessPrivate",
		trace.WithAttributes(
			attribute.Int64("chat.id", chatID),
			attribute.Int64("user.id", userID),
		),
	)
	defer span.End()

	slots, err := s.ownSlots(ctx, userID)
	if err != nil {
		return nil, err
	}
	parsed, err := s.Parser.ParseHomework(ctx, text, slots)
	if err != nil {
		return nil, fmt.Errorf("parse homework: %w", err)
	}
	return s.resolve(ctx, chatID, userID, parsed, slots)
}

// ProcessPrivateImage is ProcessPrivate for a photo.
func (s *HomeworkService) ProcessPrivateImage(ctx context.Context, chatID, userID int64, image []byte, mime string) (*Resolution, error) {
	tr := otel.Tracer("services/HomeworkService")
	ctx, span := tr.Start(ctx, "ProcessPrivateImage",
		trace.WithAttributes(
			attribute.Int64("chat.id", chatID),
			attribute.Int64("user.id", userID),
		),
	)
	defer span.End()

	slots, err := s.ownSlots(ctx, userID)
	if err != nil {
		return nil, err
	}
	parsed, err := s.Parser.ParseHomeworkImage(ctx, image, mime, slots)
	if err != nil {
		return nil, fmt.Errorf("parse homework image: %w", err)
	}
	return s.resolve(ctx, chatID, userID, parsed, slots)
}

// DetectGroup runs the group-chat pipeline for a message: if the chat has
// configured subjects, ask the detector whether the message announces
// homework, then resolve against the bound schedule owner's timetable.
//
// Returns ErrNotHomework both when detection is disabled for the chat and
// when the detector says no; the transport stays silent in either case.
// When no timetable is bound to the chat, the candidate goes to a free date
// choice (Options empty) instead of failing.
func (s *HomeworkService) DetectGroup(ctx context.Context, chatID, senderID int64, text string) (*Resolution, error) {
	return s.detectGroup(ctx, chatID, senderID, func(ctx context.Context, subjects []string) (*ParsedHomework, error) {
		return s.Parser.DetectHomework(ctx, text, subjects)
	})
}

// DetectGroupImage is DetectGroup for a photo.
func (s *HomeworkService) DetectGroupImage(ctx context.Context, chatID, senderID int64, image []byte, mime string) (*Resolution, error) {
	return s.detectGroup(ctx, chatID, senderID, func(ctx context.Context, subjects []string) (*ParsedHomework, error) {
		return s.Parser.DetectHomeworkImage(ctx, image, mime, subjects)
	})
}

func (s *HomeworkService) detectGroup(ctx context.Context, chatID, senderID int64, detect func(context.Context, []string) (*ParsedHomework, error)) (*Resolution, error) {
	tr := otel.Tracer("services/HomeworkService")
	ctx, span := tr.Start(ctx, "DetectGroup",
		trace.WithAttributes(attribute.Int64("chat.id", chatID)),
	)
	defer span.End()

	subjects, err := repo.GetChatSubjects(ctx, s.DB, chatID)
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, ErrNotHomework
	}

	parsed, err := detect(ctx, subjects)
	if err != nil {
		return nil, fmt.Errorf("detect homework: %w", err)
	}
	if parsed == nil {
		return nil, ErrNotHomework
	}

	ownerID, bound, err := repo.GetScheduleOwner(ctx, s.DB, chatID)
	if err != nil {
		return nil, err
	}
	if !bound {
		// No timetable to match against: park the candidate and let the
		// user pick any upcoming date.
		return s.awaitChoice(chatID, senderID, parsed, nil), nil
	}

	slots, err := repo.GetSchedule(ctx, s.DB, ownerID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, chatID, senderID, parsed, slots)
}

// resolve implements the DETECTED branch point: 0 matches is terminal, 1
// match auto-resolves, more than one parks the candidate for a day choice.
func (s *HomeworkService) resolve(ctx context.Context, chatID, userID int64, parsed *ParsedHomework, slots []domain.LessonSlot) (*Resolution, error) {
	if parsed == nil {
		return nil, ErrNotHomework
	}
	homeworkDetected.Inc()
	matching := matchSlots(parsed.Subject, slots)
	if len(matching) == 0 {
		homeworkRejected.WithLabelValues("unknown_subject").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubject, parsed.Subject)
	}

	// An explicit date in the message itself trumps timetable inference.
	if parsed.DueDate != nil {
		if due, err := time.Parse(time.DateOnly, *parsed.DueDate); err == nil {
			return s.confirm(ctx, chatID, parsed.Subject, parsed.Task, &due, StatusAutoResolved)
		}
	}

	// A weekday mentioned in the message narrows an ambiguous timetable.
	if parsed.DueDay != nil && len(matching) > 1 {
		var onDay []domain.LessonSlot
		for _, slot := range matching {
			if slot.Weekday == *parsed.DueDay {
				onDay = append(onDay, slot)
			}
		}
		if len(onDay) > 0 {
			matching = onDay
		}
	}

	switch len(matching) {
	case 1:
		due := s.nextLesson(matching[0])
		return s.confirm(ctx, chatID, parsed.Subject, parsed.Task, &due, StatusAutoResolved)
	default:
		var opts []DayOption
		for _, slot := range matching {
			for _, dt := range s.nextLessons(slot, choiceDatesPerSlot) {
				opts = append(opts, DayOption{
					Weekday:   slot.Weekday,
					StartTime: slot.StartTime,
					Date:      dt,
				})
			}
		}
		return s.awaitChoice(chatID, userID, parsed, opts), nil
	}
}

// awaitChoice registers the candidate and persists the session's symbolic
// state so a later, independent callback can resolve it.
func (s *HomeworkService) awaitChoice(chatID, userID int64, parsed *ParsedHomework, opts []DayOption) *Resolution {
	h := s.Pending.Register(pending.Candidate{
		ChatID:  chatID,
		Subject: parsed.Subject,
		Task:    parsed.Task,
	})
	key := SessionKey(chatID, userID)
	s.States.SetState(key, StateChoosingDay)
	s.States.SetData(key, map[string]any{"handle": h})

	s.logger().Info().
		Int64("chat_id", chatID).
		Str("subject", parsed.Subject).
		Int64("handle", h).
		Int("options", len(opts)).
		Msg("awaiting day choice")

	return &Resolution{
		Status:  StatusAwaitingChoice,
		Subject: parsed.Subject,
		Task:    parsed.Task,
		Handle:  h,
		Options: opts,
	}
}

// Confirm resolves a pending candidate to a concrete due time (nil = "no
// date") in response to the user's choice event. A stale or duplicate choice
// event yields ErrAlreadyHandled and changes nothing. The session state is
// cleared whichever way the candidate is consumed.
func (s *HomeworkService) Confirm(ctx context.Context, key state.Key, handle int64, due *time.Time) (*Resolution, error) {
	tr := otel.Tracer("services/HomeworkService")
	ctx, span := tr.Start(ctx, "Confirm",
		trace.WithAttributes(attribute.Int64("pending.handle", handle)),
	)
	defer span.End()

	cand, ok := s.Pending.Consume(handle)
	if !ok {
		homeworkRejected.WithLabelValues("stale_handle").Inc()
		return nil, ErrAlreadyHandled
	}
	s.States.Clear(key)

	return s.confirm(ctx, cand.ChatID, cand.Subject, cand.Task, due, StatusConfirmed)
}

// Cancel aborts an in-flight disambiguation: the session state is cleared and
// the pending candidate, if any, is dropped. A straggling detection that
// completes afterwards consumes nothing.
func (s *HomeworkService) Cancel(key state.Key, handle int64) {
	s.Pending.Drop(handle)
	s.States.Clear(key)
}

// confirm performs the duplicate check, persists the item, and fires the
// side effects: best-effort load analytics and the calendar event.
func (s *HomeworkService) confirm(ctx context.Context, chatID int64, subject, task string, due *time.Time, status ResolutionStatus) (*Resolution, error) {
	exists, err := repo.HomeworkExists(ctx, s.DB, chatID, subject, task)
	if err != nil {
		return nil, err
	}
	if exists {
		homeworkRejected.WithLabelValues("duplicate").Inc()
		return nil, ErrDuplicateHomework
	}

	var dueDate *string
	if due != nil {
		d := due.Format(time.DateOnly)
		dueDate = &d
	}
	item, err := repo.SaveHomework(ctx, s.DB, chatID, subject, task, dueDate)
	if err != nil {
		return nil, err
	}

	res := &Resolution{
		Status:  status,
		Subject: subject,
		Task:    task,
		Due:     due,
		Item:    item,
	}

	// Fire-and-forget: the user's confirmation never waits on analytics.
	if s.Load != nil && dueDate != nil {
		go func(item domain.HomeworkItem) {
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			s.Load.RecordConfirmed(bg, &item)
		}(*item)
	}

	if s.Calendar != nil && due != nil {
		link, err := s.Calendar.CreateEvent(ctx, subject, task, *due)
		if err != nil {
			s.logger().Warn().Err(err).
				Int64("chat_id", chatID).
				Str("subject", subject).
				Msg("calendar write failed")
			res.CalendarErr = err
		} else {
			res.EventLink = link
		}
	}

	resolution := "choice"
	if status == StatusAutoResolved {
		resolution = "auto"
	}
	homeworkConfirmed.WithLabelValues(resolution).Inc()

	s.logger().Info().
		Int64("chat_id", chatID).
		Str("subject", subject).
		Bool("dated", due != nil).
		Msg("homework confirmed")
	return res, nil
}

// ownSlots loads userID's timetable, mapping an empty timetable to
// ErrNoSchedule.
func (s *HomeworkService) ownSlots(ctx context.Context, userID int64) ([]domain.LessonSlot, error) {
	slots, err := repo.GetSchedule(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, ErrNoSchedule
	}
	return slots, nil
}

// nextLesson computes the soonest occurrence of a slot. Slot times are
// validated on save, so a parse failure here is a contract violation and
// resolves as midnight rather than panicking.
func (s *HomeworkService) nextLesson(slot domain.LessonSlot) time.Time {
	h, m, _ := schedule.ParseClock(slot.StartTime)
	return s.Resolver.NextOccurrence(slot.Weekday, h, m)
}

// nextLessons computes the n soonest occurrences of a slot, 7 days apart.
func (s *HomeworkService) nextLessons(slot domain.LessonSlot, n int) []time.Time {
	h, m, _ := schedule.ParseClock(slot.StartTime)
	return s.Resolver.NextOccurrences(slot.Weekday, h, m, n)
}

// matchSlots returns the slots whose subject equals subject, compared
// case-insensitively with surrounding whitespace ignored. When nothing
// matches exactly, a fuzzy pass absorbs parser variations like "русский"
// for "Русский язык".
func matchSlots(subject string, slots []domain.LessonSlot) []domain.LessonSlot {
	want := strings.ToLower(strings.TrimSpace(subject))
	var out []domain.LessonSlot
	for _, slot := range slots {
		if strings.ToLower(strings.TrimSpace(slot.Subject)) == want {
			out = append(out, slot)
		}
	}
	if len(out) > 0 {
		return out
	}

	seen := map[string]struct{}{}
	var subjects []string
	for _, slot := range slots {
		if _, ok := seen[slot.Subject]; !ok {
			seen[slot.Subject] = struct{}{}
			subjects = append(subjects, slot.Subject)
		}
	}
	best, ok := match.BestSubject(subject, subjects, 0)
	if !ok {
		return nil
	}
	for _, slot := range slots {
		if slot.Subject == best {
			out = append(out, slot)
		}
	}
	return out
}
