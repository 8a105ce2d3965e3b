package store

import (
	"context"
	"fmt"

	"github.com/vesseldata/vesseldata/internal/auth/token"
	"github.com/vesseldata/vesseldata/internal/store/sqlite"
)

// Store bundles the persisted record store handed to every component.
type Store struct {
	Database     *sqlite.Database
	TokenManager *token.Manager
}

// Initialize opens the backing database. paths may override the default
// locations (key "sqlite"); pass nil for production defaults.
func Initialize(ctx context.Context, paths map[string]string) (*Store, error) {
	dbPath := ""
	if paths != nil {
		dbPath = paths["sqlite"]
	}

	database, err := sqlite.Initialize(dbPath)
	if err != nil {
		return nil, fmt.Errorf("Initialize: failed to initialize database: %w", err)
	}

	return &Store{Database: database}, nil
}

// Close releases the backing database.
func (s *Store) Close() error {
	return s.Database.Close()
}
