package database

// InsertMemoryEvent appends one row to the learning audit trail.
// Events are never updated or deleted.
func (db *DB) InsertMemoryEvent(actorUserID, sourceType string, ruleKey, actionKey *string, outcome string, metaJSON *string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO memory_events (actor_user_id, source_type, rule_key, action_key, outcome, meta_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		actorUserID, sourceType, ruleKey, actionKey, outcome, metaJSON,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListMemoryEvents returns the newest events for an actor.
func (db *DB) ListMemoryEvents(actorUserID string, limit int) ([]MemoryEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(
		`SELECT id, actor_user_id, source_type, rule_key, action_key, outcome, meta_json, created_at
		 FROM memory_events WHERE actor_user_id = ? ORDER BY id DESC LIMIT ?`,
		actorUserID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []MemoryEvent
	for rows.Next() {
		var e MemoryEvent
		if err := rows.Scan(&e.ID, &e.ActorUserID, &e.SourceType, &e.RuleKey, &e.ActionKey, &e.Outcome, &e.MetaJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
