package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/snevemoney/nextbest/internal/database"
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

type captureTelemetry struct {
	events []string
}

func (c *captureTelemetry) Event(name string, fields map[string]any) {
	c.events = append(c.events, name)
}

func TestIngestExecutionSuccess(t *testing.T) {
	db := openTestDB(t)
	in := NewIngestor(db, nil)

	in.IngestExecution(ExecutionEvent{
		ActorUserID: "founder",
		RuleKey:     "growth_overdue_followups",
		ActionKey:   "growth_schedule_followup_3d",
		Success:     true,
	})

	rule, _ := db.GetWeight("founder", database.WeightKindRule, "growth_overdue_followups")
	if rule == nil || rule.Weight != 1 {
		t.Errorf("expected rule weight 1, got %+v", rule)
	}
	action, _ := db.GetWeight("founder", database.WeightKindAction, "growth_schedule_followup_3d")
	if action == nil || action.Weight != 1 {
		t.Errorf("expected action weight 1, got %+v", action)
	}
	if action.Stats.SuccessCount != 1 {
		t.Errorf("expected successCount 1, got %d", action.Stats.SuccessCount)
	}

	events, _ := db.ListMemoryEvents("founder", 10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].SourceType != SourceExecute || events[0].Outcome != OutcomeSuccess {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestIngestExecutionFailure(t *testing.T) {
	db := openTestDB(t)
	in := NewIngestor(db, nil)

	in.IngestExecution(ExecutionEvent{
		ActorUserID: "founder",
		RuleKey:     "cc_unscheduled_deals",
		ActionKey:   "cc_schedule_kickoff",
		Success:     false,
	})

	rule, _ := db.GetWeight("founder", database.WeightKindRule, "cc_unscheduled_deals")
	if rule == nil || rule.Weight != -1 {
		t.Errorf("expected rule weight -1, got %+v", rule)
	}
	if rule.Stats.SuccessCount != 0 {
		t.Errorf("failure must not count as success, got %d", rule.Stats.SuccessCount)
	}
}

func TestAttributionOverridesRawOutcome(t *testing.T) {
	db := openTestDB(t)
	in := NewIngestor(db, nil)

	// Executor succeeded, but the operator judged the result worsened
	in.IngestExecution(ExecutionEvent{
		ActorUserID: "founder",
		RuleKey:     "growth_stale_proposals",
		ActionKey:   "growth_schedule_followup_3d",
		Success:     true,
		Attribution: OutcomeWorsened,
	})

	rule, _ := db.GetWeight("founder", database.WeightKindRule, "growth_stale_proposals")
	if rule == nil || rule.Weight != -1 {
		t.Errorf("expected attribution to win, got %+v", rule)
	}
	events, _ := db.ListMemoryEvents("founder", 10)
	if events[0].Outcome != OutcomeWorsened {
		t.Errorf("expected recorded outcome %q, got %q", OutcomeWorsened, events[0].Outcome)
	}
}

func TestDismissAndSnoozeDeltas(t *testing.T) {
	db := openTestDB(t)
	in := NewIngestor(db, nil)

	in.IngestDismiss(ResolutionEvent{ActorUserID: "founder", RuleKey: "growth_idle_new_leads"})
	in.IngestSnooze(ResolutionEvent{ActorUserID: "founder", RuleKey: "growth_idle_new_leads"})

	rule, _ := db.GetWeight("founder", database.WeightKindRule, "growth_idle_new_leads")
	if rule == nil || rule.Weight != -0.75 {
		t.Errorf("expected -0.5 + -0.25 = -0.75, got %+v", rule)
	}
	if rule.Stats.Total != 2 {
		t.Errorf("expected total 2, got %d", rule.Stats.Total)
	}
}

func TestCopilotUnknownOutcomeReadsNeutral(t *testing.T) {
	db := openTestDB(t)
	in := NewIngestor(db, nil)

	in.IngestCopilotAction(CopilotEvent{
		ActorUserID: "founder",
		ActionKey:   "growth_mark_stage_replied",
		Outcome:     "shrug",
	})

	action, _ := db.GetWeight("founder", database.WeightKindAction, "growth_mark_stage_replied")
	if action == nil || action.Weight != 0 {
		t.Errorf("expected neutral weight 0, got %+v", action)
	}
	if action.Stats.Total != 1 {
		t.Errorf("neutral events still count, got total %d", action.Stats.Total)
	}
}

func TestRepeatedSuccessSaturates(t *testing.T) {
	db := openTestDB(t)
	in := NewIngestor(db, nil)

	for i := 0; i < 15; i++ {
		in.IngestExecution(ExecutionEvent{
			ActorUserID: "founder",
			RuleKey:     "growth_overdue_followups",
			ActionKey:   "growth_schedule_followup_3d",
			Success:     true,
		})
	}

	rule, _ := db.GetWeight("founder", database.WeightKindRule, "growth_overdue_followups")
	if rule.Weight != database.WeightCeil {
		t.Errorf("expected saturation at %v, got %v", database.WeightCeil, rule.Weight)
	}
	if rule.Stats.Total != 15 {
		t.Errorf("expected total 15, got %d", rule.Stats.Total)
	}
}

func TestSafeIngestSwallowsPanics(t *testing.T) {
	tel := &captureTelemetry{}
	// nil store: any ingest attempt panics inside
	in := NewIngestor(nil, tel)

	in.IngestExecution(ExecutionEvent{ActorUserID: "founder", RuleKey: "r", ActionKey: "a", Success: true})

	if len(tel.events) != 1 || tel.events[0] != "memory_ingest_panic" {
		t.Errorf("expected one panic telemetry event, got %v", tel.events)
	}
}

func TestOutboxRoundTrip(t *testing.T) {
	db := openTestDB(t)
	in := NewIngestor(db, nil)
	ob := NewOutbox(db)
	w := NewWorker(db, in, time.Second, 5)

	err := ob.EnqueueExecution(ExecutionEvent{
		ActorUserID: "founder",
		RuleKey:     "growth_overdue_followups",
		ActionKey:   "growth_schedule_followup_3d",
		Success:     true,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if done := w.DrainOnce(time.Now()); done != 1 {
		t.Fatalf("expected 1 task done, got %d", done)
	}

	rule, _ := db.GetWeight("founder", database.WeightKindRule, "growth_overdue_followups")
	if rule == nil || rule.Weight != 1 {
		t.Errorf("expected weight applied via outbox, got %+v", rule)
	}

	// Nothing left to do
	if done := w.DrainOnce(time.Now()); done != 0 {
		t.Errorf("expected drained queue, got %d", done)
	}
}

func TestOutboxRetriesThenDies(t *testing.T) {
	db := openTestDB(t)
	in := NewIngestor(db, nil)
	w := NewWorker(db, in, time.Second, 2)

	// Undecodable payload: every attempt fails
	id, err := db.EnqueueOutbox(TaskExecution, "{not json", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	now := time.Now()
	if done := w.DrainOnce(now); done != 0 {
		t.Fatalf("expected failure, got %d done", done)
	}

	// Not due again until the backoff elapses
	tasks, _ := db.DueOutboxTasks(database.FormatTime(now), 0)
	if len(tasks) != 0 {
		t.Fatalf("expected task rescheduled into the future, got %d due", len(tasks))
	}

	// Second attempt exhausts maxAttempts
	w.DrainOnce(now.Add(2 * time.Minute))
	tasks, _ = db.DueOutboxTasks(database.FormatTime(now.Add(24*time.Hour)), 0)
	if len(tasks) != 0 {
		t.Errorf("dead task %d still queued", id)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	if backoff(0) != 30*time.Second {
		t.Errorf("expected 30s first backoff, got %v", backoff(0))
	}
	if backoff(1) != time.Minute {
		t.Errorf("expected 1m second backoff, got %v", backoff(1))
	}
	if backoff(20) != time.Hour {
		t.Errorf("expected cap at 1h, got %v", backoff(20))
	}
}

func TestMineRuleKeysFromReview(t *testing.T) {
	review := []byte("# Week 34\n\n" +
		"Keep `growth_overdue_followups`, the reminders were helpful.\n\n" +
		"- drop `growth_idle_new_leads`, pure noise\n" +
		"- growth_stale_proposals fired twice, not sure yet\n")

	mentions := MineRuleKeys(review, []string{
		"growth_overdue_followups",
		"growth_idle_new_leads",
		"growth_stale_proposals",
		"cc_aging_deals",
	})

	byKey := make(map[string]string)
	for _, m := range mentions {
		byKey[m.RuleKey] = m.Outcome
	}
	if len(mentions) != 3 {
		t.Fatalf("expected 3 mentions, got %d: %v", len(mentions), byKey)
	}
	if byKey["growth_overdue_followups"] != OutcomeSuccess {
		t.Errorf("expected success for kept rule, got %q", byKey["growth_overdue_followups"])
	}
	if byKey["growth_idle_new_leads"] != OutcomeFailure {
		t.Errorf("expected failure for dropped rule, got %q", byKey["growth_idle_new_leads"])
	}
	if byKey["growth_stale_proposals"] != OutcomeNeutral {
		t.Errorf("expected neutral for unclear mention, got %q", byKey["growth_stale_proposals"])
	}
}

func TestFounderReviewIngestMovesWeights(t *testing.T) {
	db := openTestDB(t)
	in := NewIngestor(db, nil)

	review := []byte("Keep `growth_overdue_followups`, worked great.\n\ndrop `cc_aging_deals`, noise.\n")
	n := in.IngestFounderWeekReview("founder", review)
	if n != 2 {
		t.Fatalf("expected 2 mentions ingested, got %d", n)
	}

	up, _ := db.GetWeight("founder", database.WeightKindRule, "growth_overdue_followups")
	down, _ := db.GetWeight("founder", database.WeightKindRule, "cc_aging_deals")
	if up == nil || up.Weight != 1 {
		t.Errorf("expected +1 for kept rule, got %+v", up)
	}
	if down == nil || down.Weight != -1 {
		t.Errorf("expected -1 for dropped rule, got %+v", down)
	}

	events, _ := db.ListMemoryEvents("founder", 10)
	if len(events) != 2 {
		t.Errorf("expected 2 review events, got %d", len(events))
	}
}
