package db

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    session_id TEXT,
    resource_type TEXT NOT NULL,
    query TEXT,
    account TEXT,
    created_at TEXT NOT NULL,
    row_count INTEGER NOT NULL DEFAULT 0
);
`

const createRulesTable = `
CREATE TABLE IF NOT EXISTS snapshot_rules (
    snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    rule_id INTEGER NOT NULL,
    title TEXT,
    description TEXT,
    active INTEGER NOT NULL DEFAULT 0,
    created_at TEXT,
    updated_at TEXT,
    actions_json TEXT,
    PRIMARY KEY (snapshot_id, position)
);

CREATE INDEX IF NOT EXISTS idx_snapshot_rules_rule ON snapshot_rules(rule_id);
`

// One row per action so stored snapshots can be searched with plain SQL
const createActionsTable = `
CREATE TABLE IF NOT EXISTS snapshot_actions (
    snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    rule_id INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    field TEXT,
    value TEXT,
    PRIMARY KEY (snapshot_id, rule_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_snapshot_actions_field ON snapshot_actions(field);
`

const insertSnapshot = `
INSERT INTO snapshots (id, session_id, resource_type, query, account, created_at, row_count)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

const insertSnapshotRule = `
INSERT INTO snapshot_rules (
    snapshot_id, position, rule_id, title, description, active,
    created_at, updated_at, actions_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertSnapshotAction = `
INSERT OR IGNORE INTO snapshot_actions (snapshot_id, rule_id, idx, field, value)
VALUES (?, ?, ?, ?, ?)
`

const selectSnapshots = `
SELECT id, resource_type, COALESCE(query, ''), COALESCE(account, ''), created_at, row_count
FROM snapshots
ORDER BY created_at DESC
`

const selectSnapshotRules = `
SELECT rule_id, COALESCE(title, ''), COALESCE(description, ''), active,
       COALESCE(created_at, ''), COALESCE(updated_at, ''), COALESCE(actions_json, '')
FROM snapshot_rules
WHERE snapshot_id = ?
ORDER BY position
`

const deleteSnapshot = `DELETE FROM snapshots WHERE id = ?`
