// Package services defines the business logic for timetables, homework
// detection and confirmation, and load analytics. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; the
// Telegram transport translates them into user-facing replies.
package services

import "errors"

var (
	// ErrNoSchedule is returned when an operation needs a personal timetable
	// and the user has not saved one yet.
	ErrNoSchedule = errors.New("no schedule configured")

	// ErrEmptySchedule is returned when a timetable save request parses to
	// zero lesson slots.
	ErrEmptySchedule = errors.New("schedule has no lessons")

	// ErrUnknownSubject indicates the detected subject matches no lesson slot
	// in the relevant timetable. Terminal: the user fixes the timetable or
	// re-sends, there is nothing to retry automatically.
	ErrUnknownSubject = errors.New("subject not found in schedule")

	// ErrDuplicateHomework indicates an item with the same (chat, subject,
	// task) is already persisted; the candidate is discarded.
	ErrDuplicateHomework = errors.New("homework already recorded")

	// ErrAlreadyHandled is returned when a confirmation references a pending
	// handle that was consumed earlier or dropped by a restart. Benign: the
	// transport answers "already handled" and moves on.
	ErrAlreadyHandled = errors.New("candidate already handled")

	// ErrNotHomework is returned by the detection path when the parser
	// decides the message is not a homework announcement.
	ErrNotHomework = errors.New("not a homework announcement")
)
