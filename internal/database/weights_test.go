package database

import "testing"

func TestFirstDismissCreatesWeightRow(t *testing.T) {
	db := openTestDB(t)

	w, err := db.ApplyWeightDelta("founder", WeightKindRule, "overdue_reminders", -0.5, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Weight != -0.5 {
		t.Errorf("expected weight -0.5, got %v", w.Weight)
	}
	if w.Stats.Total != 1 {
		t.Errorf("expected total 1, got %d", w.Stats.Total)
	}
	if w.Stats.SuccessCount != 0 {
		t.Errorf("expected successCount 0, got %d", w.Stats.SuccessCount)
	}

	stored, _ := db.GetWeight("founder", WeightKindRule, "overdue_reminders")
	if stored == nil || stored.Weight != -0.5 {
		t.Errorf("expected stored weight -0.5, got %+v", stored)
	}
}

func TestWeightSaturatesAtCeiling(t *testing.T) {
	db := openTestDB(t)

	var last *LearnedWeight
	var err error
	for i := 0; i < 21; i++ {
		last, err = db.ApplyWeightDelta("founder", WeightKindRule, "growth_overdue_followups", 1, true)
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		if last.Weight < WeightFloor || last.Weight > WeightCeil {
			t.Fatalf("weight %v escaped bounds on apply %d", last.Weight, i)
		}
	}
	if last.Weight != WeightCeil {
		t.Errorf("expected saturation at %v, got %v", WeightCeil, last.Weight)
	}
	if last.Stats.Total != 21 {
		t.Errorf("expected total 21, got %d", last.Stats.Total)
	}
	if last.Stats.SuccessCount != 21 {
		t.Errorf("expected successCount 21, got %d", last.Stats.SuccessCount)
	}
}

func TestWeightSaturatesAtFloor(t *testing.T) {
	db := openTestDB(t)

	var last *LearnedWeight
	for i := 0; i < 25; i++ {
		last, _ = db.ApplyWeightDelta("founder", WeightKindAction, "bad_key", -1, false)
	}
	if last.Weight != WeightFloor {
		t.Errorf("expected saturation at %v, got %v", WeightFloor, last.Weight)
	}
}

func TestWeightStatsMonotonic(t *testing.T) {
	db := openTestDB(t)

	prevTotal := 0
	deltas := []struct {
		delta   float64
		success bool
	}{{1, true}, {-1, false}, {-0.5, false}, {1, true}, {-0.25, false}}
	for _, d := range deltas {
		w, err := db.ApplyWeightDelta("founder", WeightKindRule, "mixed", d.delta, d.success)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w.Stats.Total <= prevTotal {
			t.Errorf("total not monotonic: %d after %d", w.Stats.Total, prevTotal)
		}
		if w.Stats.SuccessCount > w.Stats.Total {
			t.Errorf("successCount %d exceeds total %d", w.Stats.SuccessCount, w.Stats.Total)
		}
		if w.Stats.LastSeenAt == "" {
			t.Error("expected lastSeenAt set")
		}
		prevTotal = w.Stats.Total
	}
}

func TestWeightsAreActorScoped(t *testing.T) {
	db := openTestDB(t)
	db.ApplyWeightDelta("alice", WeightKindRule, "shared_rule", 2, true)
	db.ApplyWeightDelta("bob", WeightKindRule, "shared_rule", -3, false)

	alice, _ := db.GetWeight("alice", WeightKindRule, "shared_rule")
	bob, _ := db.GetWeight("bob", WeightKindRule, "shared_rule")
	if alice.Weight != 2 || bob.Weight != -3 {
		t.Errorf("expected isolated weights, got alice=%v bob=%v", alice.Weight, bob.Weight)
	}
}

func TestActorWeightsReader(t *testing.T) {
	db := openTestDB(t)
	db.ApplyWeightDelta("founder", WeightKindRule, "growth_stale_proposals", 4, true)

	reader := db.WeightsFor("founder")
	if got := reader.Weight(WeightKindRule, "growth_stale_proposals"); got != 4 {
		t.Errorf("expected 4, got %v", got)
	}
	if got := reader.Weight(WeightKindRule, "never_seen"); got != 0 {
		t.Errorf("expected 0 for unseen key, got %v", got)
	}
}

func TestListWeightsOrdering(t *testing.T) {
	db := openTestDB(t)
	db.ApplyWeightDelta("founder", WeightKindRule, "weak", -2, false)
	db.ApplyWeightDelta("founder", WeightKindRule, "strong", 5, true)

	weights, err := db.ListWeights("founder")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(weights) != 2 {
		t.Fatalf("expected 2 weights, got %d", len(weights))
	}
	if weights[0].Key != "strong" {
		t.Errorf("expected strongest first, got %q", weights[0].Key)
	}
}
