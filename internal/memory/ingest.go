// Package memory is the learning half of the engine: it turns operator
// feedback (executions, dismissals, snoozes, copilot actions, weekly
// reviews) into an append-only event trail and per-actor learned
// weights. Ingest is strictly best-effort from the caller's point of
// view: a learning failure must never break the operation that
// triggered it.
package memory

import (
	"fmt"

	"github.com/snevemoney/nextbest/internal/database"
	"github.com/snevemoney/nextbest/internal/engine"
)

// Per-outcome weight deltas. Attribution outcomes replace the raw
// execution outcome when present.
var weightDeltas = map[string]float64{
	OutcomeSuccess:  1,
	OutcomeFailure:  -1,
	OutcomeDismiss:  -0.5,
	OutcomeSnooze:   -0.25,
	OutcomeImproved: 1,
	OutcomeNeutral:  0,
	OutcomeWorsened: -1,
}

// Ingestor applies feedback events to the memory store.
type Ingestor struct {
	db        *database.DB
	telemetry Telemetry
}

// NewIngestor creates an ingestor. A nil telemetry falls back to the
// standard logger.
func NewIngestor(db *database.DB, telemetry Telemetry) *Ingestor {
	if telemetry == nil {
		telemetry = NewLogTelemetry()
	}
	return &Ingestor{db: db, telemetry: telemetry}
}

// IngestExecution records a finished execution attempt. Errors and
// panics are swallowed after a telemetry event; the execution result
// already reached the operator and must not be disturbed.
func (in *Ingestor) IngestExecution(ev ExecutionEvent) {
	in.safeIngest("execution", func() error { return in.ingestExecution(ev) })
}

// IngestDismiss records a dismissed action.
func (in *Ingestor) IngestDismiss(ev ResolutionEvent) {
	in.safeIngest("dismiss", func() error { return in.ingestResolution(SourceDismiss, OutcomeDismiss, ev) })
}

// IngestSnooze records a snoozed action.
func (in *Ingestor) IngestSnooze(ev ResolutionEvent) {
	in.safeIngest("snooze", func() error { return in.ingestResolution(SourceSnooze, OutcomeSnooze, ev) })
}

// IngestCopilotAction records an action the copilot logged on the
// operator's behalf.
func (in *Ingestor) IngestCopilotAction(ev CopilotEvent) {
	in.safeIngest("copilot", func() error { return in.ingestCopilot(ev) })
}

// IngestFounderWeekReview mines a weekly review document for rule
// mentions and applies them as feedback. Returns the number of
// mentions processed, 0 when ingest failed.
func (in *Ingestor) IngestFounderWeekReview(actorUserID string, source []byte) int {
	var n int
	in.safeIngest("founder_review", func() error {
		var err error
		n, err = in.ingestFounderReview(actorUserID, source)
		return err
	})
	return n
}

// safeIngest is the best-effort envelope around every public entry
// point: failures and panics become telemetry events and nothing else.
func (in *Ingestor) safeIngest(trigger string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			in.telemetry.Event("memory_ingest_panic", map[string]any{
				"trigger": trigger,
				"panic":   fmt.Sprint(r),
			})
		}
	}()
	if err := fn(); err != nil {
		in.telemetry.Event("memory_ingest_failed", map[string]any{
			"trigger": trigger,
			"error":   err.Error(),
		})
	}
}

// executionOutcome resolves the outcome for an execution event: a
// valid attribution wins over the raw success flag.
func executionOutcome(ev ExecutionEvent) string {
	if ev.Attribution != "" && ValidAttribution(ev.Attribution) {
		return ev.Attribution
	}
	if ev.Success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

func (in *Ingestor) ingestExecution(ev ExecutionEvent) error {
	outcome := executionOutcome(ev)
	if err := in.recordEvent(ev.ActorUserID, SourceExecute, ev.RuleKey, ev.ActionKey, outcome); err != nil {
		return err
	}
	return in.applyDeltas(ev.ActorUserID, ev.RuleKey, ev.ActionKey, outcome)
}

func (in *Ingestor) ingestResolution(source, outcome string, ev ResolutionEvent) error {
	if err := in.recordEvent(ev.ActorUserID, source, ev.RuleKey, ev.ActionKey, outcome); err != nil {
		return err
	}
	return in.applyDeltas(ev.ActorUserID, ev.RuleKey, ev.ActionKey, outcome)
}

func (in *Ingestor) ingestCopilot(ev CopilotEvent) error {
	outcome := ev.Outcome
	if _, ok := weightDeltas[outcome]; !ok {
		outcome = OutcomeNeutral
	}
	if err := in.recordEvent(ev.ActorUserID, SourceCopilotAction, ev.RuleKey, ev.ActionKey, outcome); err != nil {
		return err
	}
	return in.applyDeltas(ev.ActorUserID, ev.RuleKey, ev.ActionKey, outcome)
}

func (in *Ingestor) ingestFounderReview(actorUserID string, source []byte) (int, error) {
	mentions := MineRuleKeys(source, engine.AllRuleNames())
	for _, m := range mentions {
		if err := in.recordEvent(actorUserID, SourceFounderReview, m.RuleKey, "", m.Outcome); err != nil {
			return 0, err
		}
		if err := in.applyDeltas(actorUserID, m.RuleKey, "", m.Outcome); err != nil {
			return 0, err
		}
	}
	return len(mentions), nil
}

func (in *Ingestor) recordEvent(actorUserID, source, ruleKey, actionKey, outcome string) error {
	var rk, ak *string
	if ruleKey != "" {
		rk = &ruleKey
	}
	if actionKey != "" {
		ak = &actionKey
	}
	if _, err := in.db.InsertMemoryEvent(actorUserID, source, rk, ak, outcome, nil); err != nil {
		return fmt.Errorf("recording %s event: %w", source, err)
	}
	return nil
}

// applyDeltas shifts the rule and action weights for one outcome. The
// clamp lives in the store; this only picks the delta.
func (in *Ingestor) applyDeltas(actorUserID, ruleKey, actionKey, outcome string) error {
	delta := weightDeltas[outcome]
	success := outcome == OutcomeSuccess || outcome == OutcomeImproved
	if ruleKey != "" {
		if _, err := in.db.ApplyWeightDelta(actorUserID, database.WeightKindRule, ruleKey, delta, success); err != nil {
			return fmt.Errorf("rule weight %s: %w", ruleKey, err)
		}
	}
	if actionKey != "" {
		if _, err := in.db.ApplyWeightDelta(actorUserID, database.WeightKindAction, actionKey, delta, success); err != nil {
			return fmt.Errorf("action weight %s: %w", actionKey, err)
		}
	}
	return nil
}
