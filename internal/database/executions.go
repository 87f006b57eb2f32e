package database

import "database/sql"

// InsertExecution creates a pending execution record for an action.
func (db *DB) InsertExecution(nextActionID int64, actionKey string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO action_executions (next_action_id, action_key, status) VALUES (?, ?, ?)`,
		nextActionID, actionKey, ExecutionStatusPending,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// FinishExecution stamps an execution record with its terminal status.
func (db *DB) FinishExecution(id int64, status string) error {
	_, err := db.conn.Exec(
		`UPDATE action_executions SET status = ?, finished_at = datetime('now') WHERE id = ?`,
		status, id,
	)
	return err
}

// GetExecution returns an execution record by id, or nil if absent.
func (db *DB) GetExecution(id int64) (*ActionExecution, error) {
	row := db.conn.QueryRow(
		`SELECT id, next_action_id, action_key, status, started_at, finished_at
		 FROM action_executions WHERE id = ?`, id,
	)
	var e ActionExecution
	err := row.Scan(&e.ID, &e.NextActionID, &e.ActionKey, &e.Status, &e.StartedAt, &e.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExecutionsForAction returns all attempts against one action,
// newest first.
func (db *DB) ListExecutionsForAction(nextActionID int64) ([]ActionExecution, error) {
	rows, err := db.conn.Query(
		`SELECT id, next_action_id, action_key, status, started_at, finished_at
		 FROM action_executions WHERE next_action_id = ? ORDER BY id DESC`, nextActionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []ActionExecution
	for rows.Next() {
		var e ActionExecution
		if err := rows.Scan(&e.ID, &e.NextActionID, &e.ActionKey, &e.Status, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}
