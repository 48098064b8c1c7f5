package models

import "time"

// Snapshot is a saved copy of the rows a search rendered, in display order
type Snapshot struct {
	ID        string // uuid, assigned on save when empty
	SessionID string // search session that produced the rows
	Type      ResourceType
	Query     string // human readable criteria
	Account   string // base URL searched
	CreatedAt time.Time
	Rules     []Rule
}

// SnapshotSummary describes a stored snapshot without its rows
type SnapshotSummary struct {
	ID        string
	Type      ResourceType
	Query     string
	Account   string
	CreatedAt time.Time
	RowCount  int
}
