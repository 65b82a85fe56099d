package services

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ddanshin/go-homework-bot/internal/repo"
)

type fakeEstimator struct {
	minutes int
	err     error
	calls   int
}

func (f *fakeEstimator) EstimateMinutes(context.Context, string, string) (int, error) {
	f.calls++
	return f.minutes, f.err
}

func strPtr(s string) *string { return &s }

func newAnalytics(t *testing.T) (*AnalyticsService, *gorm.DB) {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "an.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return &AnalyticsService{DB: db, Now: testNow}, db
}

func TestStressIndex(t *testing.T) {
	cases := []struct {
		count    int
		avg      float64
		days     int
		want     float64
	}{
		{0, 60, 3, 0},
		{2, 0, 3, 0},
		{2, 60, 2, 1},    // 2 tasks × 1h / 2 days
		{3, 120, 0, 6},   // days clamp to 1
		{1, 30, 1, 0.5},
	}
	for _, tc := range cases {
		if got := StressIndex(tc.count, tc.avg, tc.days); got != tc.want {
			t.Fatalf("StressIndex(%d, %v, %d) = %v; want %v", tc.count, tc.avg, tc.days, got, tc.want)
		}
	}
}

func TestRecordConfirmed_EstimatesAndAggregates(t *testing.T) {
	svc, db := newAnalytics(t)
	est := &fakeEstimator{minutes: 60}
	svc.Estimator = est
	ctx := context.Background()

	item, err := repo.SaveHomework(ctx, db, -100, "Математика", "№ 1", strPtr("2026-09-04"))
	if err != nil {
		t.Fatal(err)
	}
	svc.RecordConfirmed(ctx, item)

	if est.calls != 1 {
		t.Fatalf("estimator calls = %d; want 1", est.calls)
	}
	items, _ := repo.ListHomework(ctx, db, -100)
	if items[0].EstimatedMinutes == nil || *items[0].EstimatedMinutes != 60 {
		t.Fatalf("estimate = %v; want 60", items[0].EstimatedMinutes)
	}

	rows, err := repo.ListDailyMetrics(ctx, db, -100)
	if err != nil || len(rows) != 1 {
		t.Fatalf("metric rows = %d, %v", len(rows), err)
	}
	m := rows[0]
	if m.MetricDate != "2026-09-04" || m.TaskCount != 1 || m.TotalTime != 60 {
		t.Fatalf("metric = %+v", m)
	}
	// 1 task × 1h over 2 days until the Friday deadline.
	if m.StressIndex != 0.5 {
		t.Fatalf("stress = %v; want 0.5", m.StressIndex)
	}
}

func TestRecordConfirmed_EstimateClamped(t *testing.T) {
	svc, db := newAnalytics(t)
	svc.Estimator = &fakeEstimator{minutes: 9999}
	ctx := context.Background()

	item, err := repo.SaveHomework(ctx, db, -100, "Физика", "проект", strPtr("2026-09-10"))
	if err != nil {
		t.Fatal(err)
	}
	svc.RecordConfirmed(ctx, item)

	items, _ := repo.ListHomework(ctx, db, -100)
	if items[0].EstimatedMinutes == nil || *items[0].EstimatedMinutes != maxEstimate {
		t.Fatalf("estimate = %v; want clamp to %d", items[0].EstimatedMinutes, maxEstimate)
	}
}

func TestRecordConfirmed_EstimatorFailureStillAggregates(t *testing.T) {
	svc, db := newAnalytics(t)
	svc.Estimator = &fakeEstimator{err: errors.New("llm down")}
	var logBuf bytes.Buffer
	lg := zerolog.New(&logBuf)
	svc.Logger = &lg
	ctx := context.Background()

	item, err := repo.SaveHomework(ctx, db, -100, "Химия", "опыт", strPtr("2026-09-04"))
	if err != nil {
		t.Fatal(err)
	}
	svc.RecordConfirmed(ctx, item)

	rows, err := repo.ListDailyMetrics(ctx, db, -100)
	if err != nil || len(rows) != 1 {
		t.Fatalf("metric rows = %d, %v", len(rows), err)
	}
	// Unestimated item counted at the fallback.
	if rows[0].TotalTime != fallbackMinutes {
		t.Fatalf("total = %d; want %d", rows[0].TotalTime, fallbackMinutes)
	}
	if !strings.Contains(logBuf.String(), "complexity estimate failed") {
		t.Fatalf("estimator failure not logged: %q", logBuf.String())
	}
}

func TestRecordConfirmed_SkipsDatelessItems(t *testing.T) {
	svc, db := newAnalytics(t)
	ctx := context.Background()

	item, err := repo.SaveHomework(ctx, db, -100, "История", "даты", nil)
	if err != nil {
		t.Fatal(err)
	}
	svc.RecordConfirmed(ctx, item)
	svc.RecordConfirmed(ctx, nil)

	rows, err := repo.ListDailyMetrics(ctx, db, -100)
	if err != nil || len(rows) != 0 {
		t.Fatalf("metric rows = %d, %v; want none", len(rows), err)
	}
}

func TestRecompute_IdempotentAfterDeletion(t *testing.T) {
	svc, db := newAnalytics(t)
	ctx := context.Background()

	a, _ := repo.SaveHomework(ctx, db, -100, "А", "1", strPtr("2026-09-04"))
	if _, err := repo.SaveHomework(ctx, db, -100, "Б", "2", strPtr("2026-09-04")); err != nil {
		t.Fatal(err)
	}
	if err := svc.Recompute(ctx, -100, "2026-09-04"); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	if err := repo.DeleteHomework(ctx, db, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Recompute(ctx, -100, "2026-09-04"); err != nil {
		t.Fatalf("Recompute after delete: %v", err)
	}

	rows, _ := repo.ListDailyMetrics(ctx, db, -100)
	if len(rows) != 1 || rows[0].TaskCount != 1 {
		t.Fatalf("metric after delete = %+v", rows)
	}
}

func TestWeeklyLoad_FillsEmptyDays(t *testing.T) {
	svc, db := newAnalytics(t)
	ctx := context.Background()

	if _, err := repo.SaveHomework(ctx, db, -100, "А", "1", strPtr("2026-09-04")); err != nil {
		t.Fatal(err)
	}
	if err := svc.Recompute(ctx, -100, "2026-09-04"); err != nil {
		t.Fatal(err)
	}

	days, err := svc.WeeklyLoad(ctx, -100)
	if err != nil {
		t.Fatalf("WeeklyLoad: %v", err)
	}
	if len(days) != loadWindowDays {
		t.Fatalf("len = %d; want %d", len(days), loadWindowDays)
	}
	if !days[0].Date.Equal(time.Date(2026, 9, 2, 0, 0, 0, 0, time.Local)) {
		t.Fatalf("first day = %v", days[0].Date)
	}
	if days[0].TaskCount != 0 {
		t.Fatalf("today count = %d; want 0", days[0].TaskCount)
	}
	if days[2].TaskCount != 1 {
		t.Fatalf("friday count = %d; want 1", days[2].TaskCount)
	}
}

func TestExportCSV(t *testing.T) {
	svc, db := newAnalytics(t)
	ctx := context.Background()

	if _, err := repo.SaveHomework(ctx, db, -100, "А", "1", strPtr("2026-09-04")); err != nil {
		t.Fatal(err)
	}
	if err := svc.Recompute(ctx, -100, "2026-09-04"); err != nil {
		t.Fatal(err)
	}

	out, err := svc.ExportCSV(ctx, -100)
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("\xef\xbb\xbf")) {
		t.Fatal("CSV misses UTF-8 BOM")
	}
	if !bytes.Contains(out, []byte("date,task_count,total_time_minutes,total_time_hours,stress_index")) {
		t.Fatalf("header missing: %s", out)
	}
	if !bytes.Contains(out, []byte("2026-09-04,1,30,0.50,")) {
		t.Fatalf("row missing: %s", out)
	}
}
