package bot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ddanshin/go-homework-bot/internal/pending"
	"github.com/ddanshin/go-homework-bot/internal/repo"
	"github.com/ddanshin/go-homework-bot/internal/services"
	"github.com/ddanshin/go-homework-bot/internal/state"
)

func testStates(t *testing.T) *state.Store {
	t.Helper()
	s := state.Open(filepath.Join(t.TempDir(), "fsm.json"), 0)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestCancelSession_IdleSessionKeepsOthersPending(t *testing.T) {
	states := testStates(t)
	reg := pending.NewRegistry()
	b := &Bot{
		states:   states,
		homework: &services.HomeworkService{States: states, Pending: reg},
		logger:   zerolog.Nop(),
	}

	// User 1 has a parked candidate awaiting a day choice.
	h := reg.Register(pending.Candidate{ChatID: 1, Subject: "Математика", Task: "№ 1"})
	key := services.SessionKey(1, 1)
	states.SetState(key, services.StateChoosingDay)
	states.SetData(key, map[string]any{"handle": h})

	// User 2 cancels with nothing in flight.
	b.cancelSession(2, 2)
	if reg.Len() != 1 {
		t.Fatalf("idle cancel dropped another session's candidate: len = %d", reg.Len())
	}

	// The owner's cancel still drops it and clears the session.
	b.cancelSession(1, 1)
	if reg.Len() != 0 {
		t.Fatalf("owner cancel left the candidate: len = %d", reg.Len())
	}
	if _, active := states.GetState(key); active {
		t.Fatal("session state not cleared")
	}
}

func TestCancelSession_HandleSurvivesJSONRoundTrip(t *testing.T) {
	states := testStates(t)
	reg := pending.NewRegistry()
	b := &Bot{
		states:   states,
		homework: &services.HomeworkService{States: states, Pending: reg},
		logger:   zerolog.Nop(),
	}

	h := reg.Register(pending.Candidate{ChatID: 1, Subject: "Физика", Task: "§ 4"})
	key := services.SessionKey(1, 1)
	// Snapshot reloads hand numbers back as float64.
	states.SetData(key, map[string]any{"handle": float64(h)})

	b.cancelSession(1, 1)
	if reg.Len() != 0 {
		t.Fatalf("candidate not dropped: len = %d", reg.Len())
	}
}

func TestStatsTenant_PrefersBoundGroup(t *testing.T) {
	db := testDB(t)
	b := &Bot{db: db, logger: zerolog.Nop()}
	ctx := context.Background()

	// Unbound user: the private chat is the tenant.
	if got := b.statsTenant(ctx, 42, 42); got != 42 {
		t.Fatalf("tenant = %d; want 42", got)
	}

	if err := repo.SetScheduleOwner(ctx, db, -100, 42); err != nil {
		t.Fatal(err)
	}
	if got := b.statsTenant(ctx, 42, 42); got != -100 {
		t.Fatalf("tenant = %d; want -100", got)
	}
}
