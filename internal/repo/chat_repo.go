// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for per-chat
// configuration: the monitored subject list and the schedule-owner binding.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ddanshin/go-homework-bot/internal/domain"
)

// GetChatSubjects returns the subjects monitored in chatID, sorted
// alphabetically. An empty slice means detection is disabled for the chat.
func GetChatSubjects(ctx context.Context, db *gorm.DB, chatID int64) ([]string, error) {
	var rows []domain.ChatSubject
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("subject").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Subject)
	}
	return out, nil
}

// SetChatSubjects replaces chatID's subject list wholesale, in one
// transaction.
func SetChatSubjects(ctx context.Context, db *gorm.DB, chatID int64, subjects []string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&domain.ChatSubject{}).Error; err != nil {
			return err
		}
		if len(subjects) == 0 {
			return nil
		}
		rows := make([]domain.ChatSubject, 0, len(subjects))
		for _, s := range subjects {
			rows = append(rows, domain.ChatSubject{ChatID: chatID, Subject: s})
		}
		return tx.Create(&rows).Error
	})
}

// SetScheduleOwner binds chatID to ownerID's personal timetable, replacing
// any previous binding (upsert on chat_id).
func SetScheduleOwner(ctx context.Context, db *gorm.DB, chatID, ownerID int64) error {
	cfg := domain.ChatConfig{ChatID: chatID, ScheduleOwnerID: &ownerID}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"schedule_owner_id"}),
		}).
		Create(&cfg).Error
}

// GetScheduleOwner returns the user whose timetable resolves due dates for
// chatID, or ok=false when no schedule is bound.
func GetScheduleOwner(ctx context.Context, db *gorm.DB, chatID int64) (int64, bool, error) {
	var cfg domain.ChatConfig
	err := db.WithContext(ctx).Where("chat_id = ?", chatID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if cfg.ScheduleOwnerID == nil {
		return 0, false, nil
	}
	return *cfg.ScheduleOwnerID, true, nil
}

// GetChatsForOwner returns the chats whose due-date resolution is bound to
// ownerID's timetable.
func GetChatsForOwner(ctx context.Context, db *gorm.DB, ownerID int64) ([]int64, error) {
	var rows []domain.ChatConfig
	err := db.WithContext(ctx).
		Where("schedule_owner_id = ?", ownerID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ChatID)
	}
	return out, nil
}
