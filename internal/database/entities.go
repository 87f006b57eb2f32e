package database

import (
	"fmt"
	"time"

	"github.com/snevemoney/nextbest/internal/engine"
)

// InsertLead creates a lead. status of "" defaults to "new".
func (db *DB) InsertLead(name, status string, source *string) (int64, error) {
	if status == "" {
		status = engine.LeadStatusNew
	}
	result, err := db.conn.Exec(
		`INSERT INTO leads (name, status, source) VALUES (?, ?, ?)`,
		name, status, source,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// UpdateLeadStatus moves a lead to a new funnel status.
func (db *DB) UpdateLeadStatus(id int64, status string) error {
	_, err := db.conn.Exec(`UPDATE leads SET status = ? WHERE id = ?`, status, id)
	return err
}

// InsertDeal creates a deal. leadID of 0 means no originating lead.
func (db *DB) InsertDeal(name, stage string, leadID int64) (int64, error) {
	if stage == "" {
		stage = engine.DealStageNew
	}
	var lead any
	if leadID != 0 {
		lead = leadID
	}
	result, err := db.conn.Exec(
		`INSERT INTO deals (name, stage, lead_id) VALUES (?, ?, ?)`,
		name, stage, lead,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// UpdateDealStage advances a deal and restarts its stage clock.
func (db *DB) UpdateDealStage(id int64, stage string) error {
	result, err := db.conn.Exec(
		`UPDATE deals SET stage = ?, stage_changed_at = datetime('now') WHERE id = ?`,
		stage, id,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("deal %d not found", id)
	}
	return nil
}

// InsertSchedule creates a touchpoint. dealID/leadID of 0 mean unset.
func (db *DB) InsertSchedule(dealID, leadID int64, kind, dueAt string) (int64, error) {
	var deal, lead any
	if dealID != 0 {
		deal = dealID
	}
	if leadID != 0 {
		lead = leadID
	}
	result, err := db.conn.Exec(
		`INSERT INTO schedules (deal_id, lead_id, kind, status, due_at) VALUES (?, ?, ?, ?, ?)`,
		deal, lead, kind, engine.ScheduleStatusPending, dueAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CompleteSchedule marks a pending schedule done.
func (db *DB) CompleteSchedule(id int64) error {
	_, err := db.conn.Exec(
		`UPDATE schedules SET status = ? WHERE id = ?`, engine.ScheduleStatusDone, id,
	)
	return err
}

// GetSchedule returns a schedule by id, or nil if absent.
func (db *DB) GetSchedule(id int64) (*Schedule, error) {
	rows, err := db.conn.Query(
		`SELECT id, deal_id, lead_id, kind, status, due_at, created_at FROM schedules WHERE id = ?`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var s Schedule
	if err := rows.Scan(&s.ID, &s.DealID, &s.LeadID, &s.Kind, &s.Status, &s.DueAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSchedules returns all schedules, newest first.
func (db *DB) ListSchedules() ([]Schedule, error) {
	rows, err := db.conn.Query(
		`SELECT id, deal_id, lead_id, kind, status, due_at, created_at FROM schedules ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		var s Schedule
		if err := rows.Scan(&s.ID, &s.DealID, &s.LeadID, &s.Kind, &s.Status, &s.DueAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// InsertProposal attaches a proposal to a deal.
func (db *DB) InsertProposal(dealID int64, status string, sentAt *string) (int64, error) {
	if status == "" {
		status = engine.ProposalStatusDraft
	}
	result, err := db.conn.Exec(
		`INSERT INTO proposals (deal_id, status, sent_at) VALUES (?, ?, ?)`,
		dealID, status, sentAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// BuildSnapshot assembles the read-only context the rule evaluator
// consumes. The evaluator itself never touches storage; this is the
// only place entity rows become snapshot values.
func (db *DB) BuildSnapshot(now time.Time) (engine.Snapshot, error) {
	snap := engine.Snapshot{Now: now}

	dealRows, err := db.conn.Query(
		`SELECT id, lead_id, name, stage, stage_changed_at FROM deals ORDER BY id`,
	)
	if err != nil {
		return snap, fmt.Errorf("loading deals: %w", err)
	}
	defer dealRows.Close()
	for dealRows.Next() {
		var d Deal
		if err := dealRows.Scan(&d.ID, &d.LeadID, &d.Name, &d.Stage, &d.StageChangedAt); err != nil {
			return snap, err
		}
		changed, err := ParseTime(deref(d.StageChangedAt))
		if err != nil {
			return snap, fmt.Errorf("deal %d stage_changed_at: %w", d.ID, err)
		}
		snap.Deals = append(snap.Deals, engine.Deal{
			ID:             d.ID,
			Name:           d.Name,
			Stage:          d.Stage,
			LeadID:         derefID(d.LeadID),
			StageChangedAt: changed,
		})
	}
	if err := dealRows.Err(); err != nil {
		return snap, err
	}

	leadRows, err := db.conn.Query(`SELECT id, name, status, created_at FROM leads ORDER BY id`)
	if err != nil {
		return snap, fmt.Errorf("loading leads: %w", err)
	}
	defer leadRows.Close()
	for leadRows.Next() {
		var l Lead
		if err := leadRows.Scan(&l.ID, &l.Name, &l.Status, &l.CreatedAt); err != nil {
			return snap, err
		}
		created, err := ParseTime(deref(l.CreatedAt))
		if err != nil {
			return snap, fmt.Errorf("lead %d created_at: %w", l.ID, err)
		}
		snap.Leads = append(snap.Leads, engine.Lead{
			ID:        l.ID,
			Name:      l.Name,
			Status:    l.Status,
			CreatedAt: created,
		})
	}
	if err := leadRows.Err(); err != nil {
		return snap, err
	}

	schedRows, err := db.conn.Query(
		`SELECT id, deal_id, lead_id, kind, status, due_at FROM schedules ORDER BY id`,
	)
	if err != nil {
		return snap, fmt.Errorf("loading schedules: %w", err)
	}
	defer schedRows.Close()
	for schedRows.Next() {
		var s Schedule
		if err := schedRows.Scan(&s.ID, &s.DealID, &s.LeadID, &s.Kind, &s.Status, &s.DueAt); err != nil {
			return snap, err
		}
		due, err := ParseTime(s.DueAt)
		if err != nil {
			return snap, fmt.Errorf("schedule %d due_at: %w", s.ID, err)
		}
		snap.Schedules = append(snap.Schedules, engine.Schedule{
			ID:     s.ID,
			DealID: derefID(s.DealID),
			LeadID: derefID(s.LeadID),
			Kind:   s.Kind,
			Status: s.Status,
			DueAt:  due,
		})
	}
	if err := schedRows.Err(); err != nil {
		return snap, err
	}

	propRows, err := db.conn.Query(`SELECT id, deal_id, status, sent_at FROM proposals ORDER BY id`)
	if err != nil {
		return snap, fmt.Errorf("loading proposals: %w", err)
	}
	defer propRows.Close()
	for propRows.Next() {
		var p Proposal
		if err := propRows.Scan(&p.ID, &p.DealID, &p.Status, &p.SentAt); err != nil {
			return snap, err
		}
		sent, err := ParseTime(deref(p.SentAt))
		if err != nil {
			return snap, fmt.Errorf("proposal %d sent_at: %w", p.ID, err)
		}
		snap.Proposals = append(snap.Proposals, engine.Proposal{
			ID:     p.ID,
			DealID: p.DealID,
			Status: p.Status,
			SentAt: sent,
		})
	}
	return snap, propRows.Err()
}

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM leads", &stats.Leads},
		{"SELECT COUNT(*) FROM deals", &stats.Deals},
		{"SELECT COUNT(*) FROM next_actions", &stats.TotalActions},
		{"SELECT COUNT(*) FROM next_actions WHERE status = 'queued'", &stats.QueuedActions},
		{"SELECT COUNT(*) FROM action_executions", &stats.Executions},
		{"SELECT COUNT(*) FROM memory_events", &stats.MemoryEvents},
		{"SELECT COUNT(*) FROM learned_weights", &stats.LearnedWeights},
		{"SELECT COUNT(*) FROM memory_outbox WHERE status = 'queued'", &stats.OutboxQueued},
		{"SELECT COUNT(*) FROM memory_outbox WHERE status = 'dead'", &stats.OutboxDead},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
