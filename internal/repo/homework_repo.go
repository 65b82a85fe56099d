// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for homework items.
//
// Error semantics:
//   - DeleteHomework returns ErrNotFound when no row matched.
//   - Duplicate detection is a service-level concern; HomeworkExists is the
//     primitive it is built on.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ddanshin/go-homework-bot/internal/domain"
)

// listLimit caps ListHomework so a long-lived chat cannot flood a reply.
const listLimit = 50

// SaveHomework inserts a confirmed homework item for chatID with AddedAt set
// to now (UTC). dueDate is "YYYY-MM-DD" or nil for "no date". Returns the
// persisted item with its assigned ID.
func SaveHomework(ctx context.Context, db *gorm.DB, chatID int64, subject, task string, dueDate *string) (*domain.HomeworkItem, error) {
	item := &domain.HomeworkItem{
		ChatID:  chatID,
		Subject: subject,
		Task:    task,
		AddedAt: time.Now().UTC(),
		DueDate: dueDate,
	}
	if err := db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// HomeworkExists reports whether chatID already has an item with exactly the
// given subject and task, the natural duplicate key.
func HomeworkExists(ctx context.Context, db *gorm.DB, chatID int64, subject, task string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.HomeworkItem{}).
		Where("chat_id = ? AND subject = ? AND task = ?", chatID, subject, task).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

// ListHomework returns up to 50 items for chatID, most recent first.
func ListHomework(ctx context.Context, db *gorm.DB, chatID int64) ([]domain.HomeworkItem, error) {
	var out []domain.HomeworkItem
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id desc").
		Limit(listLimit).
		Find(&out).Error
	return out, err
}

// DeleteHomework removes one item by ID. Returns ErrNotFound when the item
// does not exist (already deleted via another button press, for instance).
func DeleteHomework(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).Delete(&domain.HomeworkItem{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearHomework removes every item belonging to chatID.
func ClearHomework(ctx context.Context, db *gorm.DB, chatID int64) error {
	return db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&domain.HomeworkItem{}).Error
}

// SetEstimatedMinutes records the complexity estimate for an item. Estimates
// arrive from a best-effort background task, so a missing row is not an error.
func SetEstimatedMinutes(ctx context.Context, db *gorm.DB, id int64, minutes int) error {
	return db.WithContext(ctx).
		Model(&domain.HomeworkItem{}).
		Where("id = ?", id).
		Update("estimated_time_minutes", minutes).Error
}
