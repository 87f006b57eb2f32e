package database

import (
	"database/sql"
	"fmt"
	"strings"
)

const actionColumns = `id, title, priority, score, source_type, scope, dedupe_key,
	created_by_rule, entity_type, entity_id, payload_json, status, snoozed_until,
	created_at, updated_at`

// IsUniqueViolation reports whether err is a sqlite unique-constraint
// failure. Used by the reconciler to fall back from insert to update
// when two evaluation runs race on the same dedupe key.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertAction inserts a new next action. The caller owns dedupe-key
// conflict handling; see IsUniqueViolation.
func (db *DB) InsertAction(a NextAction) (int64, error) {
	status := a.Status
	if status == "" {
		status = ActionStatusQueued
	}
	result, err := db.conn.Exec(
		`INSERT INTO next_actions
			(title, priority, score, source_type, scope, dedupe_key, created_by_rule, entity_type, entity_id, payload_json, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Title, a.Priority, a.Score, a.SourceType, a.Scope, a.DedupeKey,
		a.CreatedByRule, a.EntityType, a.EntityID, a.PayloadJSON, status,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetAction returns a next action by id, or nil if absent.
func (db *DB) GetAction(id int64) (*NextAction, error) {
	row := db.conn.QueryRow(
		"SELECT "+actionColumns+" FROM next_actions WHERE id = ?", id,
	)
	return scanAction(row)
}

// GetActionByDedupeKey returns the action holding a dedupe key, or nil.
func (db *DB) GetActionByDedupeKey(key string) (*NextAction, error) {
	row := db.conn.QueryRow(
		"SELECT "+actionColumns+" FROM next_actions WHERE dedupe_key = ?", key,
	)
	return scanAction(row)
}

// UpdateActionCandidateFields refreshes the mutable candidate fields on
// an existing action. Status and dedupe key are never touched here.
func (db *DB) UpdateActionCandidateFields(id int64, title, priority string, score float64, payloadJSON string) error {
	_, err := db.conn.Exec(
		`UPDATE next_actions
		 SET title = ?, priority = ?, score = ?, payload_json = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		title, priority, score, payloadJSON, id,
	)
	return err
}

// DismissAction moves a queued action to dismissed. Returns false when
// the action was not in queued (already resolved or executed).
func (db *DB) DismissAction(id int64) (bool, error) {
	result, err := db.conn.Exec(
		`UPDATE next_actions
		 SET status = ?, updated_at = datetime('now')
		 WHERE id = ? AND status = ?`,
		ActionStatusDismissed, id, ActionStatusQueued,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// SnoozeAction moves a queued action to snoozed until the given time.
func (db *DB) SnoozeAction(id int64, until string) (bool, error) {
	result, err := db.conn.Exec(
		`UPDATE next_actions
		 SET status = ?, snoozed_until = ?, updated_at = datetime('now')
		 WHERE id = ? AND status = ?`,
		ActionStatusSnoozed, until, id, ActionStatusQueued,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// MarkActionExecuted records that an action was carried out.
func (db *DB) MarkActionExecuted(id int64) error {
	_, err := db.conn.Exec(
		`UPDATE next_actions SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		ActionStatusExecuted, id,
	)
	return err
}

// RequeueExpiredSnoozes returns snoozed actions whose snooze window has
// passed to queued. Active snoozes and dismissed actions stay put.
func (db *DB) RequeueExpiredSnoozes(now string) (int64, error) {
	result, err := db.conn.Exec(
		`UPDATE next_actions
		 SET status = ?, snoozed_until = NULL, updated_at = datetime('now')
		 WHERE status = ? AND snoozed_until IS NOT NULL AND snoozed_until <= ?`,
		ActionStatusQueued, ActionStatusSnoozed, now,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListActions returns actions filtered by scope and/or status, ordered
// the way the dashboard ranks them: score desc, newest first.
func (db *DB) ListActions(scope, status string) ([]NextAction, error) {
	query := "SELECT " + actionColumns + " FROM next_actions"
	var conds []string
	var args []any
	if scope != "" {
		conds = append(conds, "scope = ?")
		args = append(args, scope)
	}
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY score DESC, created_at DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []NextAction
	for rows.Next() {
		var a NextAction
		if err := rows.Scan(
			&a.ID, &a.Title, &a.Priority, &a.Score, &a.SourceType, &a.Scope,
			&a.DedupeKey, &a.CreatedByRule, &a.EntityType, &a.EntityID,
			&a.PayloadJSON, &a.Status, &a.SnoozedUntil, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func scanAction(row *sql.Row) (*NextAction, error) {
	var a NextAction
	err := row.Scan(
		&a.ID, &a.Title, &a.Priority, &a.Score, &a.SourceType, &a.Scope,
		&a.DedupeKey, &a.CreatedByRule, &a.EntityType, &a.EntityID,
		&a.PayloadJSON, &a.Status, &a.SnoozedUntil, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning next action: %w", err)
	}
	return &a, nil
}
