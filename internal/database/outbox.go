package database

import "time"

// EnqueueOutbox queues a memory-ingest task. nextAttemptAt of "" means
// due immediately.
func (db *DB) EnqueueOutbox(kind, payloadJSON, nextAttemptAt string) (int64, error) {
	if nextAttemptAt == "" {
		nextAttemptAt = FormatTime(time.Now())
	}
	result, err := db.conn.Exec(
		`INSERT INTO memory_outbox (kind, payload_json, status, next_attempt_at)
		 VALUES (?, ?, ?, ?)`,
		kind, payloadJSON, OutboxStatusQueued, nextAttemptAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// DueOutboxTasks returns queued tasks whose attempt time has arrived,
// oldest first.
func (db *DB) DueOutboxTasks(now string, limit int) ([]OutboxTask, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(
		`SELECT id, kind, payload_json, status, attempts, next_attempt_at, last_error, created_at
		 FROM memory_outbox
		 WHERE status = ? AND next_attempt_at <= ?
		 ORDER BY id LIMIT ?`,
		OutboxStatusQueued, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []OutboxTask
	for rows.Next() {
		var t OutboxTask
		if err := rows.Scan(&t.ID, &t.Kind, &t.PayloadJSON, &t.Status, &t.Attempts, &t.NextAttemptAt, &t.LastError, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MarkOutboxDone completes a task.
func (db *DB) MarkOutboxDone(id int64) error {
	_, err := db.conn.Exec(
		`UPDATE memory_outbox SET status = ? WHERE id = ?`, OutboxStatusDone, id,
	)
	return err
}

// RescheduleOutbox records a failed attempt and sets the next try.
func (db *DB) RescheduleOutbox(id int64, nextAttemptAt, lastError string) error {
	_, err := db.conn.Exec(
		`UPDATE memory_outbox
		 SET attempts = attempts + 1, next_attempt_at = ?, last_error = ?
		 WHERE id = ?`,
		nextAttemptAt, lastError, id,
	)
	return err
}

// MarkOutboxDead parks a task that exhausted its retries.
func (db *DB) MarkOutboxDead(id int64, lastError string) error {
	_, err := db.conn.Exec(
		`UPDATE memory_outbox
		 SET status = ?, attempts = attempts + 1, last_error = ?
		 WHERE id = ?`,
		OutboxStatusDead, lastError, id,
	)
	return err
}
