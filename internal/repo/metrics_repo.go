// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the aggregated
// daily load metrics consumed by the analytics service.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ddanshin/go-homework-bot/internal/domain"
)

// HomeworkLoad aggregates chat_homework for one (chat, due date): the number
// of items and their summed time estimate, with unestimated items counted at
// fallbackMinutes each.
func HomeworkLoad(ctx context.Context, db *gorm.DB, chatID int64, dueDate string, fallbackMinutes int) (count int, totalMinutes int, err error) {
	row := struct {
		Cnt   int
		Total int
	}{}
	err = db.WithContext(ctx).
		Model(&domain.HomeworkItem{}).
		Select("COUNT(*) as cnt, COALESCE(SUM(COALESCE(estimated_time_minutes, ?)), 0) as total", fallbackMinutes).
		Where("chat_id = ? AND due_date = ?", chatID, dueDate).
		Scan(&row).Error
	return row.Cnt, row.Total, err
}

// UpsertDailyMetric writes the aggregated metric row for (tenant, date),
// replacing any previous values. Recomputing from source data keeps the
// metric idempotent under homework deletion and re-confirmation.
func UpsertDailyMetric(ctx context.Context, db *gorm.DB, m domain.DailyLoadMetric) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "metric_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"task_count", "total_time", "stress_index"}),
		}).
		Create(&m).Error
}

// ListDailyMetricsFrom returns tenantID's metric rows with metric_date >=
// from ("YYYY-MM-DD"), ascending by date.
func ListDailyMetricsFrom(ctx context.Context, db *gorm.DB, tenantID int64, from string) ([]domain.DailyLoadMetric, error) {
	var out []domain.DailyLoadMetric
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND metric_date >= ?", tenantID, from).
		Order("metric_date").
		Find(&out).Error
	return out, err
}

// ListDailyMetrics returns all of tenantID's metric rows ascending by date,
// for CSV export.
func ListDailyMetrics(ctx context.Context, db *gorm.DB, tenantID int64) ([]domain.DailyLoadMetric, error) {
	var out []domain.DailyLoadMetric
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("metric_date").
		Find(&out).Error
	return out, err
}
