// Package reconcile owns all writes to the next-action store. It folds
// candidate actions into persisted rows keyed by dedupe key, so a rule
// firing every cycle for the same situation never produces duplicates
// and never revives an action the operator already resolved.
package reconcile

import (
	"fmt"
	"time"

	"github.com/snevemoney/nextbest/internal/database"
	"github.com/snevemoney/nextbest/internal/engine"
)

// Summary reports what an upsert pass did.
type Summary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Reconciler upserts evaluator output into the action store.
type Reconciler struct {
	db *database.DB
}

// New creates a reconciler over the given store.
func New(db *database.DB) *Reconciler {
	return &Reconciler{db: db}
}

// Upsert folds candidates into persisted actions. New dedupe keys are
// inserted as queued; existing rows get their mutable fields refreshed
// while id and any non-queued status are preserved — a dismissed or
// snoozed action stays resolved even while its trigger still holds.
// Races between overlapping evaluation runs resolve at the unique
// constraint: a losing insert falls back to update.
func (r *Reconciler) Upsert(scope engine.Scope, candidates []engine.Candidate) (Summary, error) {
	var summary Summary

	// Expired snoozes come back first so this pass refreshes them too.
	if _, err := r.db.RequeueExpiredSnoozes(database.FormatTime(time.Now())); err != nil {
		return summary, fmt.Errorf("requeueing expired snoozes: %w", err)
	}

	for _, c := range candidates {
		payloadJSON, err := engine.EncodePayload(c.Payload)
		if err != nil {
			return summary, fmt.Errorf("candidate %s: %w", c.DedupeKey, err)
		}

		existing, err := r.db.GetActionByDedupeKey(c.DedupeKey)
		if err != nil {
			return summary, fmt.Errorf("looking up %s: %w", c.DedupeKey, err)
		}

		if existing == nil {
			_, err := r.db.InsertAction(rowFromCandidate(scope, c, payloadJSON))
			if err == nil {
				summary.Created++
				continue
			}
			if !database.IsUniqueViolation(err) {
				return summary, fmt.Errorf("inserting %s: %w", c.DedupeKey, err)
			}
			// Lost a race with a concurrent run; fall through to update.
			existing, err = r.db.GetActionByDedupeKey(c.DedupeKey)
			if err != nil {
				return summary, fmt.Errorf("re-reading %s: %w", c.DedupeKey, err)
			}
			if existing == nil {
				return summary, fmt.Errorf("action %s vanished after unique violation", c.DedupeKey)
			}
		}

		if err := r.db.UpdateActionCandidateFields(existing.ID, c.Title, string(c.Priority), c.Score, payloadJSON); err != nil {
			return summary, fmt.Errorf("updating %s: %w", c.DedupeKey, err)
		}
		summary.Updated++
	}

	return summary, nil
}

func rowFromCandidate(scope engine.Scope, c engine.Candidate, payloadJSON string) database.NextAction {
	a := database.NextAction{
		Title:         c.Title,
		Priority:      string(c.Priority),
		Score:         c.Score,
		SourceType:    c.SourceType,
		Scope:         string(scope),
		DedupeKey:     c.DedupeKey,
		CreatedByRule: c.CreatedByRule,
		PayloadJSON:   payloadJSON,
		Status:        database.ActionStatusQueued,
	}
	if c.EntityType != "" {
		et := c.EntityType
		a.EntityType = &et
	}
	if c.EntityID != 0 {
		id := c.EntityID
		a.EntityID = &id
	}
	return a
}
