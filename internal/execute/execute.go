// Package execute carries queued next actions out against the live
// store. Every attempt leaves an execution record; failures surface to
// the operator as a short sanitized summary while the full error goes
// to the log only.
package execute

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/snevemoney/nextbest/internal/database"
	"github.com/snevemoney/nextbest/internal/engine"
	"github.com/snevemoney/nextbest/internal/memory"
)

var (
	// ErrActionNotFound means the referenced next action does not exist.
	ErrActionNotFound = errors.New("next action not found")
	// ErrInvalidActionKey means the key is not declared by the rule that
	// created the action.
	ErrInvalidActionKey = errors.New("action key not allowed for this action")
	// ErrInvalidAttribution means the attribution is not one of
	// improved, neutral or worsened.
	ErrInvalidAttribution = errors.New("invalid attribution")
)

// Executor performs one action kind. The summary it returns is shown
// to the operator verbatim, so it must stay free of internal detail.
type Executor interface {
	Key() string
	Execute(db *database.DB, payload engine.Payload) (string, error)
}

// Request identifies what to execute and on whose behalf.
type Request struct {
	NextActionID int64
	ActionKey    string
	ActorUserID  string
	// Attribution optionally grades the outcome (improved, neutral,
	// worsened) for the learning loop.
	Attribution string
}

// Result is the operator-facing outcome of one attempt.
type Result struct {
	OK          bool   `json:"ok"`
	ExecutionID int64  `json:"execution_id"`
	Summary     string `json:"result_summary"`
}

// Runner validates, dispatches and records execution attempts.
type Runner struct {
	db        *database.DB
	outbox    *memory.Outbox
	executors map[string]Executor
}

// NewRunner creates a runner with the built-in executors registered.
// outbox may be nil, which disables learning feedback.
func NewRunner(db *database.DB, outbox *memory.Outbox) *Runner {
	r := &Runner{
		db:        db,
		outbox:    outbox,
		executors: make(map[string]Executor),
	}
	r.register(followUpScheduler{})
	r.register(stageReplied{})
	r.register(kickoffScheduler{})
	return r
}

func (r *Runner) register(e Executor) {
	r.executors[e.Key()] = e
}

// Run executes one action. Validation failures return an error and
// leave no trace; once an execution record exists, executor failures
// come back as a failed Result with err == nil.
func (r *Runner) Run(req Request) (Result, error) {
	if !memory.ValidAttribution(req.Attribution) {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidAttribution, req.Attribution)
	}

	action, err := r.db.GetAction(req.NextActionID)
	if err != nil {
		return Result{}, fmt.Errorf("loading action %d: %w", req.NextActionID, err)
	}
	if action == nil {
		return Result{}, fmt.Errorf("%w: id %d", ErrActionNotFound, req.NextActionID)
	}

	if !engine.LegalActionKey(action.CreatedByRule, req.ActionKey) {
		return Result{}, fmt.Errorf("%w: %q against rule %q", ErrInvalidActionKey, req.ActionKey, action.CreatedByRule)
	}
	executor, ok := r.executors[req.ActionKey]
	if !ok {
		return Result{}, fmt.Errorf("%w: no executor for %q", ErrInvalidActionKey, req.ActionKey)
	}

	payload, err := engine.DecodePayload(action.PayloadJSON)
	if err != nil {
		return Result{}, fmt.Errorf("action %d payload: %w", action.ID, err)
	}
	payload = stampToken(payload, uuid.NewString())

	execID, err := r.db.InsertExecution(action.ID, req.ActionKey)
	if err != nil {
		return Result{}, fmt.Errorf("recording execution: %w", err)
	}

	summary, execErr := executor.Execute(r.db, payload)
	if execErr != nil {
		if err := r.db.FinishExecution(execID, database.ExecutionStatusFailed); err != nil {
			log.Printf("execute: finishing failed execution %d: %v", execID, err)
		}
		log.Printf("execute: action %d key %s: %v", action.ID, req.ActionKey, execErr)
		r.feedback(action, req, false)
		// The action stays queued so the operator can retry.
		return Result{
			ExecutionID: execID,
			Summary:     fmt.Sprintf("executor %s failed", req.ActionKey),
		}, nil
	}

	if err := r.db.FinishExecution(execID, database.ExecutionStatusSuccess); err != nil {
		return Result{}, fmt.Errorf("finishing execution %d: %w", execID, err)
	}
	if err := r.db.MarkActionExecuted(action.ID); err != nil {
		return Result{}, fmt.Errorf("marking action %d executed: %w", action.ID, err)
	}
	r.feedback(action, req, true)

	return Result{OK: true, ExecutionID: execID, Summary: summary}, nil
}

// feedback enqueues the learning event. Best-effort: a full outbox or
// broken insert never disturbs the execution result.
func (r *Runner) feedback(action *database.NextAction, req Request, success bool) {
	if r.outbox == nil {
		return
	}
	err := r.outbox.EnqueueExecution(memory.ExecutionEvent{
		ActorUserID: req.ActorUserID,
		RuleKey:     action.CreatedByRule,
		ActionKey:   req.ActionKey,
		Success:     success,
		Attribution: req.Attribution,
	})
	if err != nil {
		log.Printf("execute: enqueueing feedback for action %d: %v", action.ID, err)
	}
}

// stampToken attaches a fresh idempotency token before the payload
// reaches an executor.
func stampToken(p engine.Payload, token string) engine.Payload {
	switch v := p.(type) {
	case engine.GrowthPayload:
		v.IdempotencyToken = token
		return v
	case engine.RiskPayload:
		v.IdempotencyToken = token
		return v
	}
	return p
}
