package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/snevemoney/nextbest/internal/database"
)

// Outbox task kinds. Each maps to one ingest path.
const (
	TaskExecution = "nba_execute"
	TaskDismiss   = "nba_dismiss"
	TaskSnooze    = "nba_snooze"
	TaskCopilot   = "copilot_action"
)

const backoffBase = 30 * time.Second
const backoffCap = time.Hour

// Outbox queues feedback events for asynchronous ingest. Enqueueing is
// a single insert, so the hot path (finishing an execution, dismissing
// an action) pays almost nothing for learning.
type Outbox struct {
	db *database.DB
}

// NewOutbox creates an outbox over the given store.
func NewOutbox(db *database.DB) *Outbox {
	return &Outbox{db: db}
}

// EnqueueExecution queues an execution event for ingest.
func (o *Outbox) EnqueueExecution(ev ExecutionEvent) error {
	return o.enqueue(TaskExecution, ev)
}

// EnqueueDismiss queues a dismiss event for ingest.
func (o *Outbox) EnqueueDismiss(ev ResolutionEvent) error {
	return o.enqueue(TaskDismiss, ev)
}

// EnqueueSnooze queues a snooze event for ingest.
func (o *Outbox) EnqueueSnooze(ev ResolutionEvent) error {
	return o.enqueue(TaskSnooze, ev)
}

// EnqueueCopilot queues a copilot action event for ingest.
func (o *Outbox) EnqueueCopilot(ev CopilotEvent) error {
	return o.enqueue(TaskCopilot, ev)
}

func (o *Outbox) enqueue(kind string, ev any) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s task: %w", kind, err)
	}
	if _, err := o.db.EnqueueOutbox(kind, string(data), ""); err != nil {
		return fmt.Errorf("enqueueing %s task: %w", kind, err)
	}
	return nil
}

// Worker drains the outbox: due tasks are ingested, failures are
// retried with exponential backoff, and tasks that exhaust their
// attempts are parked as dead rather than dropped.
type Worker struct {
	db          *database.DB
	ingestor    *Ingestor
	interval    time.Duration
	maxAttempts int
}

// NewWorker creates an outbox worker.
func NewWorker(db *database.DB, ingestor *Ingestor, interval time.Duration, maxAttempts int) *Worker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Worker{db: db, ingestor: ingestor, interval: interval, maxAttempts: maxAttempts}
}

// Run polls until the context is canceled. It drains once immediately
// so restarts pick up backlog without waiting a full interval.
func (w *Worker) Run(ctx context.Context) {
	w.DrainOnce(time.Now())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.DrainOnce(time.Now())
		}
	}
}

// DrainOnce processes every task due at now and returns how many were
// completed.
func (w *Worker) DrainOnce(now time.Time) int {
	tasks, err := w.db.DueOutboxTasks(database.FormatTime(now), 0)
	if err != nil {
		log.Printf("outbox: listing due tasks: %v", err)
		return 0
	}

	done := 0
	for _, task := range tasks {
		if err := w.process(task); err != nil {
			w.retryOrBury(task, now, err)
			continue
		}
		if err := w.db.MarkOutboxDone(task.ID); err != nil {
			log.Printf("outbox: marking task %d done: %v", task.ID, err)
			continue
		}
		done++
	}
	return done
}

// process dispatches one task through the fallible ingest path so the
// worker sees real errors and can schedule retries. The best-effort
// envelope belongs to synchronous callers, not the queue.
func (w *Worker) process(task database.OutboxTask) error {
	switch task.Kind {
	case TaskExecution:
		var ev ExecutionEvent
		if err := json.Unmarshal([]byte(task.PayloadJSON), &ev); err != nil {
			return fmt.Errorf("decoding execution task: %w", err)
		}
		return w.ingestor.ingestExecution(ev)
	case TaskDismiss:
		var ev ResolutionEvent
		if err := json.Unmarshal([]byte(task.PayloadJSON), &ev); err != nil {
			return fmt.Errorf("decoding dismiss task: %w", err)
		}
		return w.ingestor.ingestResolution(SourceDismiss, OutcomeDismiss, ev)
	case TaskSnooze:
		var ev ResolutionEvent
		if err := json.Unmarshal([]byte(task.PayloadJSON), &ev); err != nil {
			return fmt.Errorf("decoding snooze task: %w", err)
		}
		return w.ingestor.ingestResolution(SourceSnooze, OutcomeSnooze, ev)
	case TaskCopilot:
		var ev CopilotEvent
		if err := json.Unmarshal([]byte(task.PayloadJSON), &ev); err != nil {
			return fmt.Errorf("decoding copilot task: %w", err)
		}
		return w.ingestor.ingestCopilot(ev)
	}
	return fmt.Errorf("unknown outbox task kind %q", task.Kind)
}

func (w *Worker) retryOrBury(task database.OutboxTask, now time.Time, cause error) {
	// Attempts counts tries already burned before this one.
	if task.Attempts+1 >= w.maxAttempts {
		if err := w.db.MarkOutboxDead(task.ID, cause.Error()); err != nil {
			log.Printf("outbox: parking task %d: %v", task.ID, err)
		}
		log.Printf("outbox: task %d (%s) dead after %d attempts: %v", task.ID, task.Kind, task.Attempts+1, cause)
		return
	}
	next := now.Add(backoff(task.Attempts))
	if err := w.db.RescheduleOutbox(task.ID, database.FormatTime(next), cause.Error()); err != nil {
		log.Printf("outbox: rescheduling task %d: %v", task.ID, err)
	}
}

// backoff returns the delay after the given number of prior attempts:
// 30s, 1m, 2m, ... capped at an hour.
func backoff(attempts int) time.Duration {
	d := backoffBase
	for i := 0; i < attempts && d < backoffCap; i++ {
		d *= 2
	}
	if d > backoffCap {
		d = backoffCap
	}
	return d
}
