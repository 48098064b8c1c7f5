package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thesavant42/rulesearch/internal/models"
)

// SaveSnapshot stores the rendered rules of a search in display order.
// A uuid is assigned when s.ID is empty. Returns the snapshot ID.
func (db *DB) SaveSnapshot(s models.Snapshot) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(insertSnapshot,
		s.ID, s.SessionID, string(s.Type), s.Query, s.Account,
		s.CreatedAt.UTC().Format(time.RFC3339), len(s.Rules),
	); err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}

	ruleStmt, err := tx.Prepare(insertSnapshotRule)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer ruleStmt.Close()

	actionStmt, err := tx.Prepare(insertSnapshotAction)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer actionStmt.Close()

	for pos, r := range s.Rules {
		actions, err := json.Marshal(r.Actions)
		if err != nil {
			return "", fmt.Errorf("failed to encode actions of rule %d: %w", r.ID, err)
		}

		active := 0
		if r.Active {
			active = 1
		}

		if _, err := ruleStmt.Exec(
			s.ID, pos, r.ID, r.Title, r.Description, active,
			r.CreatedAt, r.UpdatedAt, string(actions),
		); err != nil {
			return "", fmt.Errorf("failed to insert rule %d: %w", r.ID, err)
		}

		for i, a := range r.Actions {
			if _, err := actionStmt.Exec(s.ID, r.ID, i, a.Field, a.Value.String()); err != nil {
				return "", fmt.Errorf("failed to insert action %d of rule %d: %w", i, r.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.ID, nil
}

// ListSnapshots returns stored snapshots, newest first
func (db *DB) ListSnapshots() ([]models.SnapshotSummary, error) {
	rows, err := db.conn.Query(selectSnapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.SnapshotSummary
	for rows.Next() {
		var s models.SnapshotSummary
		var rt, created string
		if err := rows.Scan(&s.ID, &rt, &s.Query, &s.Account, &created, &s.RowCount); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.Type = models.ResourceType(rt)
		s.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadSnapshotRules returns the rules of a snapshot in their saved order
func (db *DB) LoadSnapshotRules(id string) ([]models.Rule, error) {
	rows, err := db.conn.Query(selectSnapshotRules, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot rules: %w", err)
	}
	defer rows.Close()

	var out []models.Rule
	for rows.Next() {
		var r models.Rule
		var active int
		var actions string
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &active, &r.CreatedAt, &r.UpdatedAt, &actions); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.Active = active != 0
		if actions != "" {
			if err := json.Unmarshal([]byte(actions), &r.Actions); err != nil {
				return nil, fmt.Errorf("failed to decode actions of rule %d: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteSnapshot removes a snapshot and its rows
func (db *DB) DeleteSnapshot(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM snapshot_actions WHERE snapshot_id = ?`,
		`DELETE FROM snapshot_rules WHERE snapshot_id = ?`,
		deleteSnapshot,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
