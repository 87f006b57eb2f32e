package reconcile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/snevemoney/nextbest/internal/database"
	"github.com/snevemoney/nextbest/internal/engine"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func candidate(key string, score float64) engine.Candidate {
	return engine.Candidate{
		Title:         "Follow up with Acme",
		Priority:      engine.PriorityHigh,
		Score:         score,
		SourceType:    engine.SourceTypeRule,
		DedupeKey:     key,
		CreatedByRule: "growth_overdue_followups",
		EntityType:    "schedule",
		EntityID:      7,
		Payload: engine.GrowthPayload{
			Kind:       engine.PayloadKindGrowth,
			Bucket:     "overdue",
			ScheduleID: 7,
		},
	}
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	db := openTestDB(t)
	rec := New(db)

	summary, err := rec.Upsert(engine.ScopeFounderGrowth, []engine.Candidate{candidate("k1", 70)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Created != 1 || summary.Updated != 0 {
		t.Errorf("expected 1 created, got %+v", summary)
	}

	// Same dedupe key again: update, never a second row
	summary, err = rec.Upsert(engine.ScopeFounderGrowth, []engine.Candidate{candidate("k1", 85)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Created != 0 || summary.Updated != 1 {
		t.Errorf("expected 1 updated, got %+v", summary)
	}

	actions, _ := db.ListActions("", "")
	if len(actions) != 1 {
		t.Fatalf("expected exactly 1 persisted action, got %d", len(actions))
	}
	if actions[0].Score != 85 {
		t.Errorf("expected refreshed score 85, got %v", actions[0].Score)
	}
}

func TestDismissedActionNotResurrected(t *testing.T) {
	db := openTestDB(t)
	rec := New(db)

	rec.Upsert(engine.ScopeFounderGrowth, []engine.Candidate{candidate("k1", 70)})
	a, _ := db.GetActionByDedupeKey("k1")
	if ok, _ := db.DismissAction(a.ID); !ok {
		t.Fatal("dismiss failed")
	}

	// Trigger still holds; reconciler runs again
	if _, err := rec.Upsert(engine.ScopeFounderGrowth, []engine.Candidate{candidate("k1", 90)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ = db.GetActionByDedupeKey("k1")
	if a.Status != database.ActionStatusDismissed {
		t.Errorf("dismissed action revived to %q", a.Status)
	}
	// Mutable fields still refresh
	if a.Score != 90 {
		t.Errorf("expected score refreshed to 90, got %v", a.Score)
	}
}

func TestActiveSnoozeSurvivesReconcile(t *testing.T) {
	db := openTestDB(t)
	rec := New(db)

	rec.Upsert(engine.ScopeFounderGrowth, []engine.Candidate{candidate("k1", 70)})
	a, _ := db.GetActionByDedupeKey("k1")
	db.SnoozeAction(a.ID, database.FormatTime(time.Now().Add(72*time.Hour)))

	rec.Upsert(engine.ScopeFounderGrowth, []engine.Candidate{candidate("k1", 70)})

	a, _ = db.GetActionByDedupeKey("k1")
	if a.Status != database.ActionStatusSnoozed {
		t.Errorf("active snooze revived to %q", a.Status)
	}
}

func TestExpiredSnoozeRequeuedByReconcile(t *testing.T) {
	db := openTestDB(t)
	rec := New(db)

	rec.Upsert(engine.ScopeFounderGrowth, []engine.Candidate{candidate("k1", 70)})
	a, _ := db.GetActionByDedupeKey("k1")
	db.SnoozeAction(a.ID, database.FormatTime(time.Now().Add(-time.Hour)))

	rec.Upsert(engine.ScopeFounderGrowth, []engine.Candidate{candidate("k1", 70)})

	a, _ = db.GetActionByDedupeKey("k1")
	if a.Status != database.ActionStatusQueued {
		t.Errorf("expected expired snooze back in queue, got %q", a.Status)
	}
}

func TestUpsertPreservesDedupeKeyAndID(t *testing.T) {
	db := openTestDB(t)
	rec := New(db)

	rec.Upsert(engine.ScopeFounderGrowth, []engine.Candidate{candidate("k1", 70)})
	before, _ := db.GetActionByDedupeKey("k1")

	c := candidate("k1", 75)
	c.Title = "Renamed title"
	rec.Upsert(engine.ScopeFounderGrowth, []engine.Candidate{c})

	after, _ := db.GetActionByDedupeKey("k1")
	if after.ID != before.ID {
		t.Errorf("id changed across upsert: %d vs %d", after.ID, before.ID)
	}
	if after.Title != "Renamed title" {
		t.Errorf("expected title refreshed, got %q", after.Title)
	}
}

func TestUpsertMixedBatch(t *testing.T) {
	db := openTestDB(t)
	rec := New(db)

	rec.Upsert(engine.ScopeFounderGrowth, []engine.Candidate{candidate("k1", 70)})
	summary, err := rec.Upsert(engine.ScopeFounderGrowth, []engine.Candidate{
		candidate("k1", 72),
		candidate("k2", 50),
		candidate("k3", 60),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Created != 2 || summary.Updated != 1 {
		t.Errorf("expected 2 created / 1 updated, got %+v", summary)
	}
}
