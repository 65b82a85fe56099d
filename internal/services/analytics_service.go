// Package services – AnalyticsService
//
// This file implements the academic load analytics: an LLM complexity
// estimate per confirmed item, a per-day stress index aggregated at chat
// level, and a CSV export of the aggregates.
//
// Privacy: metric rows carry only the chat identifier and numeric aggregates.
// The estimator sees the subject and the task text, never user identifiers.
package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ddanshin/go-homework-bot/internal/domain"
	"github.com/ddanshin/go-homework-bot/internal/repo"
)

// SafeDailyHours is the safe daily homework norm used in the stress index
// zones.
const SafeDailyHours = 3.0

const (
	// fallbackMinutes is assumed for items the estimator has not scored yet.
	fallbackMinutes = 30

	// minEstimate / maxEstimate clamp the LLM's answer to a sane range.
	minEstimate = 5
	maxEstimate = 240

	// loadWindowDays is the horizon of WeeklyLoad.
	loadWindowDays = 14
)

// Estimator produces a completion-time estimate in minutes for one task.
type Estimator interface {
	EstimateMinutes(ctx context.Context, subject, task string) (int, error)
}

// DayLoad is the aggregated load of one calendar day.
type DayLoad struct {
	Date        time.Time
	TaskCount   int
	TotalTime   int // minutes
	StressIndex float64
}

// AnalyticsService aggregates homework load per chat and day. It implements
// the LoadRecorder contract consumed by HomeworkService.
type AnalyticsService struct {
	DB        *gorm.DB
	Estimator Estimator // optional; aggregation still runs without it

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	Logger *zerolog.Logger
}

func (s *AnalyticsService) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	l := log.With().Str("component", "analytics").Logger()
	return &l
}

func (s *AnalyticsService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// StressIndex computes (task_count × avg_hours) / days_until_deadline.
//
// Zones: < 1.0 low, 1.0–2.0 moderate, 2.0–3.0 high, > 3.0 critical.
func StressIndex(taskCount int, avgMinutes float64, daysUntilDeadline int) float64 {
	if taskCount == 0 || avgMinutes == 0 {
		return 0
	}
	if daysUntilDeadline < 1 {
		daysUntilDeadline = 1
	}
	return (float64(taskCount) * avgMinutes / 60.0) / float64(daysUntilDeadline)
}

// RecordConfirmed estimates the item's complexity and recomputes the metric
// row for its due date. All failures are logged and swallowed: analytics is
// best-effort and must never surface into the confirmation flow.
func (s *AnalyticsService) RecordConfirmed(ctx context.Context, item *domain.HomeworkItem) {
	if item == nil || item.DueDate == nil {
		return
	}

	if s.Estimator != nil {
		minutes, err := s.Estimator.EstimateMinutes(ctx, item.Subject, item.Task)
		if err != nil {
			s.logger().Warn().Err(err).Int64("homework_id", item.ID).Msg("complexity estimate failed")
		} else {
			minutes = clamp(minutes, minEstimate, maxEstimate)
			if err := repo.SetEstimatedMinutes(ctx, s.DB, item.ID, minutes); err != nil {
				s.logger().Warn().Err(err).Int64("homework_id", item.ID).Msg("estimate write failed")
			}
		}
	}

	if err := s.Recompute(ctx, item.ChatID, *item.DueDate); err != nil {
		s.logger().Warn().Err(err).
			Int64("chat_id", item.ChatID).
			Str("due_date", *item.DueDate).
			Msg("metric recompute failed")
	}
}

// Recompute rebuilds the (chatID, dueDate) metric row from the current
// homework table. Recomputing rather than incrementing keeps the row correct
// after deletions and repeat confirmations.
func (s *AnalyticsService) Recompute(ctx context.Context, chatID int64, dueDate string) error {
	count, total, err := repo.HomeworkLoad(ctx, s.DB, chatID, dueDate, fallbackMinutes)
	if err != nil {
		return err
	}

	daysLeft := 1
	if deadline, err := time.Parse(time.DateOnly, dueDate); err == nil {
		today := s.now()
		today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
		if d := int(deadline.Sub(today).Hours() / 24); d > 1 {
			daysLeft = d
		}
	}

	var avg float64
	if count > 0 {
		avg = float64(total) / float64(count)
	}

	return repo.UpsertDailyMetric(ctx, s.DB, domain.DailyLoadMetric{
		TenantID:    chatID,
		MetricDate:  dueDate,
		TaskCount:   count,
		TotalTime:   total,
		StressIndex: StressIndex(count, avg, daysLeft),
	})
}

// WeeklyLoad returns the load for the next loadWindowDays days starting
// today, including zero rows for days without homework.
func (s *AnalyticsService) WeeklyLoad(ctx context.Context, chatID int64) ([]DayLoad, error) {
	today := s.now()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	rows, err := repo.ListDailyMetricsFrom(ctx, s.DB, chatID, today.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]domain.DailyLoadMetric, len(rows))
	for _, r := range rows {
		byDate[r.MetricDate] = r
	}

	out := make([]DayLoad, 0, loadWindowDays)
	for i := 0; i < loadWindowDays; i++ {
		d := today.AddDate(0, 0, i)
		m := byDate[d.Format(time.DateOnly)]
		out = append(out, DayLoad{
			Date:        d,
			TaskCount:   m.TaskCount,
			TotalTime:   m.TotalTime,
			StressIndex: m.StressIndex,
		})
	}
	return out, nil
}

// ExportCSV renders all of chatID's metric rows as CSV encoded as UTF-8 with
// a BOM so spreadsheet applications detect the encoding. Only aggregated
// numbers are included.
func (s *AnalyticsService) ExportCSV(ctx context.Context, chatID int64) ([]byte, error) {
	rows, err := repo.ListDailyMetrics(ctx, s.DB, chatID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("\uFEFF")
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"date", "task_count", "total_time_minutes", "total_time_hours", "stress_index"}); err != nil {
		return nil, err
	}
	for _, r := range rows {
		rec := []string{
			r.MetricDate,
			fmt.Sprintf("%d", r.TaskCount),
			fmt.Sprintf("%d", r.TotalTime),
			fmt.Sprintf("%.2f", float64(r.TotalTime)/60),
			fmt.Sprintf("%.4f", r.StressIndex),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
