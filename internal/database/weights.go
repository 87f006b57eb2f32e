package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Weight bounds. The clamp keeps any single noisy rule from permanently
// dominating or starving future scoring, and guarantees the feedback
// loop cannot drift unbounded.
const (
	WeightFloor = -10.0
	WeightCeil  = 10.0
)

func clampWeight(w float64) float64 {
	if w < WeightFloor {
		return WeightFloor
	}
	if w > WeightCeil {
		return WeightCeil
	}
	return w
}

// GetWeight returns the learned weight row for (actor, kind, key), or
// nil if no event has touched that key yet.
func (db *DB) GetWeight(actorUserID, kind, key string) (*LearnedWeight, error) {
	row := db.conn.QueryRow(
		`SELECT actor_user_id, kind, key, weight, stats_json
		 FROM learned_weights WHERE actor_user_id = ? AND kind = ? AND key = ?`,
		actorUserID, kind, key,
	)
	return scanWeight(row)
}

// ApplyWeightDelta is the single place weights are mutated: it creates
// the row on first touch, accumulates the delta under the clamp, and
// bumps the observation counters.
func (db *DB) ApplyWeightDelta(actorUserID, kind, key string, delta float64, success bool) (*LearnedWeight, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin weight update: %w", err)
	}
	defer tx.Rollback()

	var weight float64
	var statsJSON string
	stats := WeightStats{}
	err = tx.QueryRow(
		`SELECT weight, stats_json FROM learned_weights
		 WHERE actor_user_id = ? AND kind = ? AND key = ?`,
		actorUserID, kind, key,
	).Scan(&weight, &statsJSON)
	exists := err == nil
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("reading weight: %w", err)
	}
	if exists && statsJSON != "" && statsJSON != "{}" {
		if jsonErr := json.Unmarshal([]byte(statsJSON), &stats); jsonErr != nil {
			stats = WeightStats{}
		}
	}

	weight = clampWeight(weight + delta)
	stats.Total++
	if success {
		stats.SuccessCount++
	}
	stats.LastSeenAt = FormatTime(time.Now())

	data, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("encoding weight stats: %w", err)
	}

	if exists {
		_, err = tx.Exec(
			`UPDATE learned_weights SET weight = ?, stats_json = ?
			 WHERE actor_user_id = ? AND kind = ? AND key = ?`,
			weight, string(data), actorUserID, kind, key,
		)
	} else {
		_, err = tx.Exec(
			`INSERT INTO learned_weights (actor_user_id, kind, key, weight, stats_json)
			 VALUES (?, ?, ?, ?, ?)`,
			actorUserID, kind, key, weight, string(data),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("writing weight: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit weight update: %w", err)
	}

	return &LearnedWeight{
		ActorUserID: actorUserID,
		Kind:        kind,
		Key:         key,
		Weight:      weight,
		Stats:       stats,
	}, nil
}

// ListWeights returns all weight rows for an actor, strongest first.
func (db *DB) ListWeights(actorUserID string) ([]LearnedWeight, error) {
	rows, err := db.conn.Query(
		`SELECT actor_user_id, kind, key, weight, stats_json
		 FROM learned_weights WHERE actor_user_id = ? ORDER BY weight DESC, key`,
		actorUserID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weights []LearnedWeight
	for rows.Next() {
		var w LearnedWeight
		var statsJSON string
		if err := rows.Scan(&w.ActorUserID, &w.Kind, &w.Key, &w.Weight, &statsJSON); err != nil {
			return nil, err
		}
		if statsJSON != "" && statsJSON != "{}" {
			if err := json.Unmarshal([]byte(statsJSON), &w.Stats); err != nil {
				w.Stats = WeightStats{}
			}
		}
		weights = append(weights, w)
	}
	return weights, rows.Err()
}

func scanWeight(row *sql.Row) (*LearnedWeight, error) {
	var w LearnedWeight
	var statsJSON string
	err := row.Scan(&w.ActorUserID, &w.Kind, &w.Key, &w.Weight, &statsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if statsJSON != "" && statsJSON != "{}" {
		if err := json.Unmarshal([]byte(statsJSON), &w.Stats); err != nil {
			w.Stats = WeightStats{}
		}
	}
	return &w, nil
}

// ActorWeights adapts the store to the evaluator's read interface,
// scoped to one actor. Lookups that fail or miss read as zero.
type ActorWeights struct {
	db          *DB
	actorUserID string
}

// WeightsFor returns an actor-scoped weight reader.
func (db *DB) WeightsFor(actorUserID string) *ActorWeights {
	return &ActorWeights{db: db, actorUserID: actorUserID}
}

// Weight returns the current weight for (kind, key), or 0.
func (aw *ActorWeights) Weight(kind, key string) float64 {
	w, err := aw.db.GetWeight(aw.actorUserID, kind, key)
	if err != nil || w == nil {
		return 0
	}
	return w.Weight
}
