package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/vesseldata/vesseldata/internal/store/constants"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Database is the SQLite-backed record store for transfer definitions
// and the voyage context core variables.
type Database struct {
	readDb  *sql.DB
	writeDb *sql.DB
	writeMu sync.Mutex
	dbPath  string
}

// Initialize opens (or creates) the SQLite database at dbPath, applies
// pending migrations, and returns the store handle. Reads and writes go
// through separate connections; the write connection is single-threaded
// and WAL-journaled.
func Initialize(dbPath string) (*Database, error) {
	if dbPath == "" {
		dbPath = filepath.Join(constants.DbBasePath, "transferd.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("Initialize: error creating db directory: %w", err)
	}

	writeDb, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("Initialize: error opening DB: %w", err)
	}
	writeDb.SetMaxOpenConns(1)

	if _, err := writeDb.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("Initialize: error enabling WAL: %w", err)
	}

	readDb, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("Initialize: error opening DB: %w", err)
	}

	database := &Database{
		dbPath:  dbPath,
		readDb:  readDb,
		writeDb: writeDb,
	}

	if err := database.Migrate(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("Initialize: error migrating tables: %w", err)
	}

	return database, nil
}

// Migrate applies any pending schema migrations from the embedded set.
func (d *Database) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("Migrate: error loading embedded migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(d.writeDb, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("Migrate: error preparing driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("Migrate: error preparing migration: %w", err)
	}

	return m.Up()
}

func (d *Database) NewTransaction() (*sql.Tx, error) {
	return d.writeDb.BeginTx(context.Background(), &sql.TxOptions{})
}

// Close shuts down both connections.
func (d *Database) Close() error {
	rerr := d.readDb.Close()
	werr := d.writeDb.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
