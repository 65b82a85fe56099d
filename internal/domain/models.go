// Package domain defines the persistence models for lesson schedules,
// homework, per-chat configuration, and aggregated load metrics. These types
// are mapped with GORM and form the core data layer of the bot.
package domain

import "time"

// LessonSlot is one recurring weekly class in a user's timetable: a subject
// taught on a weekday (0=Monday … 6=Sunday) at a fixed start time. Slots are
// immutable once created; saving a timetable replaces the owner's slots
// wholesale.
//
// Multiple slots may share a subject across different days; that ambiguity
// is resolved at homework-confirmation time, never deduplicated here.
type LessonSlot struct {
	ID        int64  `json:"id"         gorm:"primaryKey;autoIncrement"`
	OwnerID   int64  `json:"owner_id"   gorm:"not null;index:idx_owner_slots"`
	Weekday   int    `json:"weekday"    gorm:"not null;check:weekday BETWEEN 0 AND 6"`
	Subject   string `json:"subject"    gorm:"type:varchar(128);not null"`
	StartTime string `json:"start_time" gorm:"type:varchar(5);not null"` // "H:MM"
}

// TableName returns the database table name for LessonSlot.
func (LessonSlot) TableName() string { return "lesson_slots" }

// HomeworkItem is a confirmed, persisted assignment. Items are never mutated
// after insert (estimation fields excepted), only deleted. The triple
// (ChatID, Subject, Task) is the natural duplicate key: a second insert with
// the same triple is rejected before it reaches storage.
//
// Fields:
//   - DueDate: the resolved lesson date in "YYYY-MM-DD", nil when the user
//     saved the item without a date.
//   - EstimatedMinutes / PriorityLevel: filled in asynchronously by the
//     complexity estimator; nil until the first analysis.
type HomeworkItem struct {
	ID               int64     `json:"id"       gorm:"primaryKey;autoIncrement"`
	ChatID           int64     `json:"chat_id"  gorm:"not null;index:idx_chat_homework"`
	Subject          string    `json:"subject"  gorm:"type:varchar(128);not null"`
	Task             string    `json:"task"     gorm:"type:text;not null"`
	AddedAt          time.Time `json:"added_at" gorm:"not null"`
	DueDate          *string   `json:"due_date,omitempty"          gorm:"type:varchar(10)"`
	EstimatedMinutes *int      `json:"estimated_minutes,omitempty" gorm:"column:estimated_time_minutes"`
	PriorityLevel    *int      `json:"priority_level,omitempty"`
}

// TableName returns the database table name for HomeworkItem.
func (HomeworkItem) TableName() string { return "chat_homework" }

// ChatSubject is one subject monitored in a group chat. The detector only
// runs in chats that have at least one configured subject.
type ChatSubject struct {
	ChatID  int64  `json:"chat_id" gorm:"primaryKey;autoIncrement:false"`
	Subject string `json:"subject" gorm:"type:varchar(128);primaryKey"`
}

// TableName returns the database table name for ChatSubject.
func (ChatSubject) TableName() string { return "chat_subjects" }

// ChatConfig binds a group chat to the user whose personal timetable is used
// to resolve due dates for homework detected in that chat.
type ChatConfig struct {
	ChatID          int64  `json:"chat_id" gorm:"primaryKey;autoIncrement:false"`
	ScheduleOwnerID *int64 `json:"schedule_owner_id,omitempty"`
}

// TableName returns the database table name for ChatConfig.
func (ChatConfig) TableName() string { return "chat_config" }

// DailyLoadMetric is the aggregated homework load of one chat on one due
// date. Rows carry only chat-level aggregates (no user identifiers, no task
// text) and are recomputed from chat_homework rather than incremented,
// so they survive deletions and edits.
type DailyLoadMetric struct {
	ID          int64   `json:"id"           gorm:"primaryKey;autoIncrement"`
	TenantID    int64   `json:"tenant_id"    gorm:"not null;uniqueIndex:ux_tenant_date"`
	MetricDate  string  `json:"metric_date"  gorm:"type:varchar(10);not null;uniqueIndex:ux_tenant_date"`
	TaskCount   int     `json:"task_count"   gorm:"not null;default:0"`
	TotalTime   int     `json:"total_time"   gorm:"not null;default:0"` // minutes
	StressIndex float64 `json:"stress_index" gorm:"not null;default:0"`
}

// TableName returns the database table name for DailyLoadMetric.
func (DailyLoadMetric) TableName() string { return "daily_load_metrics" }
