// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for lesson slots.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/ddanshin/go-homework-bot/internal/domain"
)

// ReplaceSchedule replaces ownerID's timetable wholesale: all existing slots
// are deleted and the given slots inserted, in one transaction. OwnerID on
// each slot is overwritten with ownerID so callers cannot cross-save.
func ReplaceSchedule(ctx context.Context, db *gorm.DB, ownerID int64, slots []domain.LessonSlot) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ?", ownerID).Delete(&domain.LessonSlot{}).Error; err != nil {
			return err
		}
		if len(slots) == 0 {
			return nil
		}
		for i := range slots {
			slots[i].ID = 0
			slots[i].OwnerID = ownerID
		}
		return tx.Create(&slots).Error
	})
}

// GetSchedule returns all lesson slots owned by ownerID, ordered by weekday
// then start time. It returns an empty slice when no timetable is saved.
func GetSchedule(ctx context.Context, db *gorm.DB, ownerID int64) ([]domain.LessonSlot, error) {
	var out []domain.LessonSlot
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("weekday, start_time").
		Find(&out).Error
	return out, err
}

// HasSchedule reports whether ownerID has saved at least one lesson slot.
func HasSchedule(ctx context.Context, db *gorm.DB, ownerID int64) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.LessonSlot{}).
		Where("owner_id = ?", ownerID).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}
