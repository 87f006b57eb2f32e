package execute

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/snevemoney/nextbest/internal/database"
	"github.com/snevemoney/nextbest/internal/engine"
	"github.com/snevemoney/nextbest/internal/memory"
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

func insertAction(t *testing.T, db *database.DB, rule string, payload engine.Payload) int64 {
	t.Helper()
	payloadJSON, err := engine.EncodePayload(payload)
	if err != nil {
		t.Fatalf("encoding payload: %v", err)
	}
	id, err := db.InsertAction(database.NextAction{
		Title:         "test action",
		Priority:      string(engine.PriorityHigh),
		Score:         70,
		SourceType:    engine.SourceTypeRule,
		Scope:         string(engine.ScopeFounderGrowth),
		DedupeKey:     rule + ":test",
		CreatedByRule: rule,
		PayloadJSON:   payloadJSON,
	})
	if err != nil {
		t.Fatalf("inserting action: %v", err)
	}
	return id
}

func TestRunScheduleFollowUp(t *testing.T) {
	db := openTestDB(t)
	runner := NewRunner(db, memory.NewOutbox(db))

	dealID, _ := db.InsertDeal("Acme", engine.DealStageContacted, 0)
	overdueID, _ := db.InsertSchedule(dealID, 0, engine.ScheduleKindFollowUp,
		database.FormatTime(time.Now().Add(-48*time.Hour)))

	actionID := insertAction(t, db, "growth_overdue_followups", engine.GrowthPayload{
		Kind:       engine.PayloadKindGrowth,
		Bucket:     "overdue",
		DealID:     dealID,
		ScheduleID: overdueID,
	})

	result, err := runner.Run(Request{
		NextActionID: actionID,
		ActionKey:    engine.ActionKeyScheduleFollowUp3d,
		ActorUserID:  "founder",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected success, got %+v", result)
	}

	// Old touchpoint closed, new one due in ~3 days
	old, _ := db.GetSchedule(overdueID)
	if old.Status != engine.ScheduleStatusDone {
		t.Errorf("expected old schedule done, got %q", old.Status)
	}
	schedules, _ := db.ListSchedules()
	if len(schedules) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(schedules))
	}
	due, err := database.ParseTime(schedules[0].DueAt)
	if err != nil {
		t.Fatalf("parsing due_at: %v", err)
	}
	want := time.Now().UTC().Add(72 * time.Hour)
	if diff := due.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expected due ~%v, got %v", want, due)
	}

	// Action left the queue, execution recorded as success
	action, _ := db.GetAction(actionID)
	if action.Status != database.ActionStatusExecuted {
		t.Errorf("expected executed status, got %q", action.Status)
	}
	exec, _ := db.GetExecution(result.ExecutionID)
	if exec == nil || exec.Status != database.ExecutionStatusSuccess {
		t.Errorf("expected success execution record, got %+v", exec)
	}
	if exec.FinishedAt == nil {
		t.Error("expected finished_at stamped")
	}

	// Feedback queued for the memory worker
	tasks, _ := db.DueOutboxTasks(database.FormatTime(time.Now().Add(time.Minute)), 0)
	if len(tasks) != 1 || tasks[0].Kind != memory.TaskExecution {
		t.Errorf("expected 1 execution feedback task, got %+v", tasks)
	}
	if !strings.Contains(tasks[0].PayloadJSON, "growth_overdue_followups") {
		t.Errorf("feedback task missing rule key: %s", tasks[0].PayloadJSON)
	}
}

func TestRunMarkStageReplied(t *testing.T) {
	db := openTestDB(t)
	runner := NewRunner(db, nil)

	dealID, _ := db.InsertDeal("Acme", engine.DealStageContacted, 0)
	actionID := insertAction(t, db, "growth_overdue_followups", engine.GrowthPayload{
		Kind:   engine.PayloadKindGrowth,
		DealID: dealID,
	})

	result, err := runner.Run(Request{
		NextActionID: actionID,
		ActionKey:    engine.ActionKeyMarkStageReplied,
		ActorUserID:  "founder",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected success, got %+v", result)
	}

	snap, _ := db.BuildSnapshot(time.Now())
	deal, ok := snap.DealByID(dealID)
	if !ok || deal.Stage != engine.DealStageReplied {
		t.Errorf("expected deal in replied stage, got %+v", deal)
	}
}

func TestRunScheduleKickoff(t *testing.T) {
	db := openTestDB(t)
	runner := NewRunner(db, nil)

	dealID, _ := db.InsertDeal("Acme", engine.DealStageWon, 0)
	actionID, err := db.InsertAction(database.NextAction{
		Title:         "Schedule kickoff",
		Priority:      string(engine.PriorityMedium),
		Score:         50,
		SourceType:    engine.SourceTypeRule,
		Scope:         string(engine.ScopeCommandCenter),
		DedupeKey:     "cc_unscheduled_deals:test",
		CreatedByRule: "cc_unscheduled_deals",
		PayloadJSON: mustEncode(t, engine.RiskPayload{
			Kind:   engine.PayloadKindRisk,
			Reason: "unscheduled",
			DealID: dealID,
		}),
	})
	if err != nil {
		t.Fatalf("inserting action: %v", err)
	}

	result, err := runner.Run(Request{
		NextActionID: actionID,
		ActionKey:    engine.ActionKeyScheduleKickoff,
		ActorUserID:  "founder",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected success, got %+v", result)
	}

	schedules, _ := db.ListSchedules()
	if len(schedules) != 1 || schedules[0].Kind != engine.ScheduleKindKickoff {
		t.Errorf("expected 1 kickoff schedule, got %+v", schedules)
	}
}

func TestRunRejectsForeignActionKey(t *testing.T) {
	db := openTestDB(t)
	runner := NewRunner(db, nil)

	actionID := insertAction(t, db, "growth_overdue_followups", engine.GrowthPayload{
		Kind: engine.PayloadKindGrowth, DealID: 1,
	})

	// Kickoff belongs to the command-center rules, not this one
	_, err := runner.Run(Request{
		NextActionID: actionID,
		ActionKey:    engine.ActionKeyScheduleKickoff,
		ActorUserID:  "founder",
	})
	if !errors.Is(err, ErrInvalidActionKey) {
		t.Fatalf("expected ErrInvalidActionKey, got %v", err)
	}

	// Rejected before any state changed
	execs, _ := db.ListExecutionsForAction(actionID)
	if len(execs) != 0 {
		t.Errorf("expected no execution records, got %d", len(execs))
	}
	action, _ := db.GetAction(actionID)
	if action.Status != database.ActionStatusQueued {
		t.Errorf("expected action untouched, got %q", action.Status)
	}
}

func TestRunUnknownAction(t *testing.T) {
	db := openTestDB(t)
	runner := NewRunner(db, nil)

	_, err := runner.Run(Request{
		NextActionID: 999,
		ActionKey:    engine.ActionKeyScheduleFollowUp3d,
		ActorUserID:  "founder",
	})
	if !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("expected ErrActionNotFound, got %v", err)
	}
}

func TestRunRejectsBadAttribution(t *testing.T) {
	db := openTestDB(t)
	runner := NewRunner(db, nil)

	actionID := insertAction(t, db, "growth_overdue_followups", engine.GrowthPayload{
		Kind: engine.PayloadKindGrowth, DealID: 1,
	})

	_, err := runner.Run(Request{
		NextActionID: actionID,
		ActionKey:    engine.ActionKeyScheduleFollowUp3d,
		ActorUserID:  "founder",
		Attribution:  "amazing",
	})
	if !errors.Is(err, ErrInvalidAttribution) {
		t.Fatalf("expected ErrInvalidAttribution, got %v", err)
	}
}

func TestRunExecutorFailureIsSanitized(t *testing.T) {
	db := openTestDB(t)
	runner := NewRunner(db, memory.NewOutbox(db))

	// No deal in the payload: stageReplied fails inside the executor
	actionID := insertAction(t, db, "growth_overdue_followups", engine.GrowthPayload{
		Kind: engine.PayloadKindGrowth,
	})

	result, err := runner.Run(Request{
		NextActionID: actionID,
		ActionKey:    engine.ActionKeyMarkStageReplied,
		ActorUserID:  "founder",
	})
	if err != nil {
		t.Fatalf("executor failure must not surface as error: %v", err)
	}
	if result.OK {
		t.Fatal("expected failed result")
	}
	if result.Summary != "executor growth_mark_stage_replied failed" {
		t.Errorf("expected sanitized summary, got %q", result.Summary)
	}

	exec, _ := db.GetExecution(result.ExecutionID)
	if exec == nil || exec.Status != database.ExecutionStatusFailed {
		t.Errorf("expected failed execution record, got %+v", exec)
	}

	// Action remains queued for a retry
	action, _ := db.GetAction(actionID)
	if action.Status != database.ActionStatusQueued {
		t.Errorf("expected action still queued, got %q", action.Status)
	}

	// Failure still feeds the learning loop
	tasks, _ := db.DueOutboxTasks(database.FormatTime(time.Now().Add(time.Minute)), 0)
	if len(tasks) != 1 {
		t.Errorf("expected 1 feedback task, got %d", len(tasks))
	}
}

func TestStampTokenVariants(t *testing.T) {
	g := stampToken(engine.GrowthPayload{Kind: engine.PayloadKindGrowth}, "tok-1")
	if g.(engine.GrowthPayload).IdempotencyToken != "tok-1" {
		t.Error("growth payload missing token")
	}
	r := stampToken(engine.RiskPayload{Kind: engine.PayloadKindRisk}, "tok-2")
	if r.(engine.RiskPayload).IdempotencyToken != "tok-2" {
		t.Error("risk payload missing token")
	}
	if p := stampToken(nil, "tok-3"); p != nil {
		t.Errorf("nil payload should stay nil, got %+v", p)
	}
}

func mustEncode(t *testing.T, p engine.Payload) string {
	t.Helper()
	s, err := engine.EncodePayload(p)
	if err != nil {
		t.Fatalf("encoding payload: %v", err)
	}
	return s
}
