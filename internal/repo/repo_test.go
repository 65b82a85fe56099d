package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/ddanshin/go-homework-bot/internal/domain"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

// ---- homework ----

func TestHomework_SaveListDelete(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first, err := SaveHomework(ctx, db, -100, "Математика", "№ 312", strPtr("2026-09-04"))
	if err != nil {
		t.Fatalf("SaveHomework: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("saved item has no ID")
	}
	second, err := SaveHomework(ctx, db, -100, "Физика", "параграф 12", nil)
	if err != nil {
		t.Fatalf("SaveHomework: %v", err)
	}
	if _, err := SaveHomework(ctx, db, -200, "Химия", "опыт", nil); err != nil {
		t.Fatalf("SaveHomework other chat: %v", err)
	}

	items, err := ListHomework(ctx, db, -100)
	if err != nil {
		t.Fatalf("ListHomework: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d; want 2", len(items))
	}
	// Most recent first.
	if items[0].ID != second.ID || items[1].ID != first.ID {
		t.Fatalf("order = %d, %d; want %d, %d", items[0].ID, items[1].ID, second.ID, first.ID)
	}
	if items[1].DueDate == nil || *items[1].DueDate != "2026-09-04" {
		t.Fatalf("due date = %v", items[1].DueDate)
	}

	if err := DeleteHomework(ctx, db, first.ID); err != nil {
		t.Fatalf("DeleteHomework: %v", err)
	}
	if err := DeleteHomework(ctx, db, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v; want ErrNotFound", err)
	}
}

func TestHomework_Exists(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := SaveHomework(ctx, db, -100, "История", "даты", nil); err != nil {
		t.Fatal(err)
	}

	ok, err := HomeworkExists(ctx, db, -100, "История", "даты")
	if err != nil || !ok {
		t.Fatalf("HomeworkExists = %v, %v; want true", ok, err)
	}
	ok, err = HomeworkExists(ctx, db, -100, "История", "другое")
	if err != nil || ok {
		t.Fatalf("HomeworkExists(other task) = %v, %v; want false", ok, err)
	}
	ok, err = HomeworkExists(ctx, db, -200, "История", "даты")
	if err != nil || ok {
		t.Fatalf("HomeworkExists(other chat) = %v, %v; want false", ok, err)
	}
}

func TestHomework_ClearScopedToChat(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := SaveHomework(ctx, db, -100, "А", "1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := SaveHomework(ctx, db, -200, "Б", "2", nil); err != nil {
		t.Fatal(err)
	}

	if err := ClearHomework(ctx, db, -100); err != nil {
		t.Fatalf("ClearHomework: %v", err)
	}
	items, err := ListHomework(ctx, db, -100)
	if err != nil || len(items) != 0 {
		t.Fatalf("cleared chat has %d items, err %v", len(items), err)
	}
	items, err = ListHomework(ctx, db, -200)
	if err != nil || len(items) != 1 {
		t.Fatalf("other chat has %d items, err %v", len(items), err)
	}
}

func TestHomework_SetEstimatedMinutes(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	item, err := SaveHomework(ctx, db, -100, "Алгебра", "№ 40", strPtr("2026-09-07"))
	if err != nil {
		t.Fatal(err)
	}
	if err := SetEstimatedMinutes(ctx, db, item.ID, 45); err != nil {
		t.Fatalf("SetEstimatedMinutes: %v", err)
	}

	items, err := ListHomework(ctx, db, -100)
	if err != nil || len(items) != 1 {
		t.Fatalf("ListHomework: %d, %v", len(items), err)
	}
	if items[0].EstimatedMinutes == nil || *items[0].EstimatedMinutes != 45 {
		t.Fatalf("estimate = %v; want 45", items[0].EstimatedMinutes)
	}

	// Missing row is not an error: estimates arrive from a background task.
	if err := SetEstimatedMinutes(ctx, db, 99999, 10); err != nil {
		t.Fatalf("SetEstimatedMinutes(missing) = %v", err)
	}
}

// ---- schedule ----

func TestSchedule_ReplaceAndGet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	slots := []domain.LessonSlot{
		{Weekday: 1, Subject: "Физика", StartTime: "9:15"},
		{Weekday: 0, Subject: "Математика", StartTime: "8:15"},
	}
	if err := ReplaceSchedule(ctx, db, 42, slots); err != nil {
		t.Fatalf("ReplaceSchedule: %v", err)
	}

	got, err := GetSchedule(ctx, db, 42)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d; want 2", len(got))
	}
	// Ordered by weekday.
	if got[0].Subject != "Математика" || got[1].Subject != "Физика" {
		t.Fatalf("order = %q, %q", got[0].Subject, got[1].Subject)
	}
	if got[0].OwnerID != 42 {
		t.Fatalf("owner = %d; want 42", got[0].OwnerID)
	}

	// Replace drops the old timetable entirely.
	if err := ReplaceSchedule(ctx, db, 42, []domain.LessonSlot{
		{Weekday: 2, Subject: "История", StartTime: "10:10"},
	}); err != nil {
		t.Fatalf("ReplaceSchedule second: %v", err)
	}
	got, err = GetSchedule(ctx, db, 42)
	if err != nil || len(got) != 1 || got[0].Subject != "История" {
		t.Fatalf("after replace: %+v, %v", got, err)
	}
}

func TestSchedule_Has(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	ok, err := HasSchedule(ctx, db, 42)
	if err != nil || ok {
		t.Fatalf("HasSchedule(empty) = %v, %v", ok, err)
	}
	if err := ReplaceSchedule(ctx, db, 42, []domain.LessonSlot{
		{Weekday: 0, Subject: "Математика", StartTime: "8:15"},
	}); err != nil {
		t.Fatal(err)
	}
	ok, err = HasSchedule(ctx, db, 42)
	if err != nil || !ok {
		t.Fatalf("HasSchedule = %v, %v; want true", ok, err)
	}
}

// ---- chat config ----

func TestChatSubjects_ReplaceWholesale(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := SetChatSubjects(ctx, db, -100, []string{"Физика", "Математика"}); err != nil {
		t.Fatalf("SetChatSubjects: %v", err)
	}
	got, err := GetChatSubjects(ctx, db, -100)
	if err != nil {
		t.Fatalf("GetChatSubjects: %v", err)
	}
	// Alphabetical.
	if len(got) != 2 || got[0] != "Математика" || got[1] != "Физика" {
		t.Fatalf("subjects = %v", got)
	}

	if err := SetChatSubjects(ctx, db, -100, []string{"История"}); err != nil {
		t.Fatal(err)
	}
	got, err = GetChatSubjects(ctx, db, -100)
	if err != nil || len(got) != 1 || got[0] != "История" {
		t.Fatalf("after replace: %v, %v", got, err)
	}
}

func TestScheduleOwner_BindRebind(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, ok, err := GetScheduleOwner(ctx, db, -100); err != nil || ok {
		t.Fatalf("unbound chat: ok=%v err=%v", ok, err)
	}

	if err := SetScheduleOwner(ctx, db, -100, 42); err != nil {
		t.Fatalf("SetScheduleOwner: %v", err)
	}
	owner, ok, err := GetScheduleOwner(ctx, db, -100)
	if err != nil || !ok || owner != 42 {
		t.Fatalf("owner = %d, %v, %v; want 42", owner, ok, err)
	}

	// Rebinding upserts.
	if err := SetScheduleOwner(ctx, db, -100, 77); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	owner, ok, err = GetScheduleOwner(ctx, db, -100)
	if err != nil || !ok || owner != 77 {
		t.Fatalf("rebound owner = %d, %v, %v; want 77", owner, ok, err)
	}

	chats, err := GetChatsForOwner(ctx, db, 77)
	if err != nil || len(chats) != 1 || chats[0] != -100 {
		t.Fatalf("GetChatsForOwner = %v, %v", chats, err)
	}
}

// ---- metrics ----

func TestMetrics_UpsertAndList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := UpsertDailyMetric(ctx, db, domain.DailyLoadMetric{
		TenantID: -100, MetricDate: "2026-09-04", TaskCount: 2, TotalTime: 90, StressIndex: 0.4,
	}); err != nil {
		t.Fatalf("UpsertDailyMetric: %v", err)
	}
	// Same (tenant, date) replaces values instead of duplicating the row.
	if err := UpsertDailyMetric(ctx, db, domain.DailyLoadMetric{
		TenantID: -100, MetricDate: "2026-09-04", TaskCount: 3, TotalTime: 120, StressIndex: 0.6,
	}); err != nil {
		t.Fatalf("upsert twice: %v", err)
	}
	if err := UpsertDailyMetric(ctx, db, domain.DailyLoadMetric{
		TenantID: -100, MetricDate: "2026-09-01", TaskCount: 1, TotalTime: 30, StressIndex: 0.1,
	}); err != nil {
		t.Fatal(err)
	}

	rows, err := ListDailyMetrics(ctx, db, -100)
	if err != nil {
		t.Fatalf("ListDailyMetrics: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len = %d; want 2", len(rows))
	}
	if rows[0].MetricDate != "2026-09-01" || rows[1].MetricDate != "2026-09-04" {
		t.Fatalf("order = %v, %v", rows[0].MetricDate, rows[1].MetricDate)
	}
	if rows[1].TaskCount != 3 || rows[1].TotalTime != 120 {
		t.Fatalf("upsert kept stale values: %+v", rows[1])
	}

	from, err := ListDailyMetricsFrom(ctx, db, -100, "2026-09-02")
	if err != nil || len(from) != 1 || from[0].MetricDate != "2026-09-04" {
		t.Fatalf("ListDailyMetricsFrom = %+v, %v", from, err)
	}
}

func TestMetrics_HomeworkLoadFallback(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	a, err := SaveHomework(ctx, db, -100, "Математика", "№ 1", strPtr("2026-09-04"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := SaveHomework(ctx, db, -100, "Физика", "№ 2", strPtr("2026-09-04")); err != nil {
		t.Fatal(err)
	}
	if _, err := SaveHomework(ctx, db, -100, "Химия", "№ 3", strPtr("2026-09-05")); err != nil {
		t.Fatal(err)
	}
	if err := SetEstimatedMinutes(ctx, db, a.ID, 60); err != nil {
		t.Fatal(err)
	}

	count, total, err := HomeworkLoad(ctx, db, -100, "2026-09-04", 30)
	if err != nil {
		t.Fatalf("HomeworkLoad: %v", err)
	}
	// One estimated at 60, one falling back to 30.
	if count != 2 || total != 90 {
		t.Fatalf("load = %d items, %d min; want 2, 90", count, total)
	}

	count, total, err = HomeworkLoad(ctx, db, -100, "2026-12-31", 30)
	if err != nil || count != 0 || total != 0 {
		t.Fatalf("empty day load = %d, %d, %v", count, total, err)
	}
}
