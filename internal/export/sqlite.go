package export

import (
	"fmt"

	"github.com/thesavant42/rulesearch/internal/db"
	"github.com/thesavant42/rulesearch/internal/models"
)

// DefaultDatabase is the snapshot database used when none is configured
const DefaultDatabase = "rulesearch.db"

// ToSQLite appends a snapshot to the database at path, creating it if needed.
// Returns the snapshot ID.
func ToSQLite(path string, snap models.Snapshot) (string, error) {
	if path == "" {
		path = DefaultDatabase
	}

	database, err := db.New(path)
	if err != nil {
		return "", fmt.Errorf("failed to open snapshot database: %w", err)
	}
	defer database.Close()

	id, err := database.SaveSnapshot(snap)
	if err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	return id, nil
}
