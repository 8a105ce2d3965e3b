package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vesseldata/vesseldata/internal/store/types"
	"github.com/vesseldata/vesseldata/internal/syslog"
	"github.com/vesseldata/vesseldata/internal/utils"
	_ "modernc.org/sqlite"
)

const transferColumns = `
    id, name, long_name, category, scope, transfer_type, server, user,
    password, use_ssh_key, ssh_key_file, domain, share, bucket, region,
    source_dir, dest_dir, include_filter, exclude_filter, ignore_filter,
    staleness, remove_source_files, skip_empty_dirs, skip_empty_files,
    sync_to_dest, sync_from_source, use_start_date,
    local_dir_is_mount_point, include_system_files, bandwidth_limit,
    priority, excluded_collection_systems, excluded_extra_directories,
    enable, status, pid, last_run_start, last_run_finish,
    last_run_bytes, last_run_files`

// generateUniqueTransferID produces an unused id from the short name.
func (d *Database) generateUniqueTransferID(t types.TransferDefinition) (string, error) {
	baseID := utils.Slugify(t.Name)
	if baseID == "" {
		return "", fmt.Errorf("invalid name: slugified value is empty")
	}

	for idx := 0; idx < maxIDAttempts; idx++ {
		newID := baseID
		if idx > 0 {
			newID = fmt.Sprintf("%s-%d", baseID, idx)
		}
		var exists int
		err := d.readDb.
			QueryRow("SELECT 1 FROM transfers WHERE id = ? LIMIT 1", newID).
			Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return newID, nil
		}
		if err != nil {
			return "", fmt.Errorf(
				"generateUniqueTransferID: error checking existence: %w", err)
		}
	}
	return "", fmt.Errorf("failed to generate a unique transfer ID after %d attempts",
		maxIDAttempts)
}

const maxIDAttempts = 100

func validateTransfer(t types.TransferDefinition) error {
	if !utils.IsValidName(t.Name) {
		return fmt.Errorf("invalid name (must be non-empty, no whitespace): %q", t.Name)
	}
	if !t.Category.Valid() {
		return fmt.Errorf("invalid category: %q", t.Category)
	}
	if !t.TransferType.Valid() {
		return fmt.Errorf("invalid transfer type: %q", t.TransferType)
	}
	if t.Category == types.CategoryCollectionSystem && !t.Scope.Valid() {
		return fmt.Errorf("invalid cruise/lowering scope: %q", t.Scope)
	}
	if t.SourceDir == "" || t.DestDir == "" {
		return errors.New("sourceDir and destDir are required")
	}
	if !utils.IsValidPathString(t.SourceDir) {
		return fmt.Errorf("invalid sourceDir: %q", t.SourceDir)
	}
	if !utils.IsValidPathString(t.DestDir) {
		return fmt.Errorf("invalid destDir: %q", t.DestDir)
	}
	if t.BandwidthLimit < 0 {
		return fmt.Errorf("bandwidthLimit must be >= 0, got %d", t.BandwidthLimit)
	}
	if t.Staleness < 0 {
		return fmt.Errorf("staleness must be >= 0, got %d", t.Staleness)
	}
	return nil
}

// CreateTransfer inserts a new definition. New definitions always start
// Idle with no owning process regardless of what the caller supplies.
func (d *Database) CreateTransfer(tx *sql.Tx, t types.TransferDefinition) (id string, err error) {
	commitNeeded := false
	if tx == nil {
		tx, err = d.NewTransaction()
		if err != nil {
			return "", fmt.Errorf("CreateTransfer: failed to begin transaction: %w", err)
		}
		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			} else if err != nil {
				if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
					syslog.L.Error(fmt.Errorf("CreateTransfer: rollback failed: %w", rbErr)).Write()
				}
			} else if commitNeeded {
				if cErr := tx.Commit(); cErr != nil {
					err = fmt.Errorf("CreateTransfer: failed to commit transaction: %w", cErr)
					syslog.L.Error(err).Write()
				}
			} else {
				if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
					syslog.L.Error(fmt.Errorf("CreateTransfer: rollback failed: %w", rbErr)).Write()
				}
			}
		}()
	}

	if err = validateTransfer(t); err != nil {
		return "", fmt.Errorf("CreateTransfer: %w", err)
	}

	if t.ID == "" {
		t.ID, err = d.generateUniqueTransferID(t)
		if err != nil {
			return "", fmt.Errorf("CreateTransfer: %w", err)
		}
	} else if !utils.IsValidID(t.ID) {
		return "", fmt.Errorf("CreateTransfer: invalid id string -> %s", t.ID)
	}

	t.Status = types.StatusIdle
	t.PID = 0

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	_, err = tx.Exec(`
        INSERT INTO transfers (`+transferColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
                ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, transferArgs(t)...)
	if err != nil {
		return "", fmt.Errorf("CreateTransfer: error inserting transfer: %w", err)
	}

	commitNeeded = true
	return t.ID, nil
}

// UpdateTransfer replaces every configuration column of an existing
// definition. Live state (status/pid) is deliberately not touched; that
// is owned by UpdateTransferStatus.
func (d *Database) UpdateTransfer(tx *sql.Tx, t types.TransferDefinition) (err error) {
	commitNeeded := false
	if tx == nil {
		tx, err = d.NewTransaction()
		if err != nil {
			return fmt.Errorf("UpdateTransfer: failed to begin transaction: %w", err)
		}
		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			} else if err != nil {
				if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
					syslog.L.Error(fmt.Errorf("UpdateTransfer: rollback failed: %w", rbErr)).Write()
				}
			} else if commitNeeded {
				if cErr := tx.Commit(); cErr != nil {
					err = fmt.Errorf("UpdateTransfer: failed to commit transaction: %w", cErr)
					syslog.L.Error(err).Write()
				}
			} else {
				if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
					syslog.L.Error(fmt.Errorf("UpdateTransfer: rollback failed: %w", rbErr)).Write()
				}
			}
		}()
	}

	if err = validateTransfer(t); err != nil {
		return fmt.Errorf("UpdateTransfer: %w", err)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := tx.Exec(`
        UPDATE transfers SET
            name = ?, long_name = ?, category = ?, scope = ?,
            transfer_type = ?, server = ?, user = ?, password = ?,
            use_ssh_key = ?, ssh_key_file = ?, domain = ?, share = ?,
            bucket = ?, region = ?, source_dir = ?, dest_dir = ?,
            include_filter = ?, exclude_filter = ?, ignore_filter = ?,
            staleness = ?, remove_source_files = ?, skip_empty_dirs = ?,
            skip_empty_files = ?, sync_to_dest = ?, sync_from_source = ?,
            use_start_date = ?, local_dir_is_mount_point = ?,
            include_system_files = ?, bandwidth_limit = ?, priority = ?,
            excluded_collection_systems = ?, excluded_extra_directories = ?,
            enable = ?
        WHERE id = ?
    `, t.Name, t.LongName, string(t.Category), string(t.Scope),
		string(t.TransferType), t.Server, t.User, t.Password,
		t.UseSSHKey, t.SSHKeyFile, t.Domain, t.Share, t.Bucket, t.Region,
		t.SourceDir, t.DestDir, t.IncludeFilter, t.ExcludeFilter,
		t.IgnoreFilter, t.Staleness, t.RemoveSourceFiles, t.SkipEmptyDirs,
		t.SkipEmptyFiles, t.SyncToDest, t.SyncFromSource, t.UseStartDate,
		t.LocalDirIsMountPoint, t.IncludeSystemFiles, t.BandwidthLimit,
		t.Priority, strings.Join(t.ExcludedCollectionSystems, ","),
		strings.Join(t.ExcludedExtraDirectories, ","), t.Enable, t.ID)
	if err != nil {
		return fmt.Errorf("UpdateTransfer: error updating transfer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	commitNeeded = true
	return nil
}

// UpdateTransferStatus is the single write path for the live
// status/pid columns.
func (d *Database) UpdateTransferStatus(id string, status types.TransferStatus, pid int) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec(
		"UPDATE transfers SET status = ?, pid = ? WHERE id = ?",
		string(status), pid, id)
	if err != nil {
		return fmt.Errorf("UpdateTransferStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateTransferRunStats records the outcome summary of a finished run.
func (d *Database) UpdateTransferRunStats(id string, start, finish, bytes, files int64) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	_, err := d.writeDb.Exec(`
        UPDATE transfers SET
            last_run_start = ?, last_run_finish = ?,
            last_run_bytes = ?, last_run_files = ?
        WHERE id = ?
    `, start, finish, bytes, files, id)
	if err != nil {
		return fmt.Errorf("UpdateTransferRunStats: %w", err)
	}
	return nil
}

// DeleteTransfer removes a definition permanently.
func (d *Database) DeleteTransfer(id string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec("DELETE FROM transfers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("DeleteTransfer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetTransfer retrieves a single definition by id.
func (d *Database) GetTransfer(id string) (types.TransferDefinition, error) {
	row := d.readDb.QueryRow(
		"SELECT "+transferColumns+" FROM transfers WHERE id = ?", id)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.TransferDefinition{}, sql.ErrNoRows
		}
		return types.TransferDefinition{}, fmt.Errorf("GetTransfer: %w", err)
	}
	return t, nil
}

// GetAllTransfers returns every definition, ordered by name.
func (d *Database) GetAllTransfers() ([]types.TransferDefinition, error) {
	return d.queryTransfers(
		"SELECT " + transferColumns + " FROM transfers ORDER BY name")
}

// GetTransfersByCategory returns every definition in one category,
// ordered by priority then name.
func (d *Database) GetTransfersByCategory(category types.TransferCategory) ([]types.TransferDefinition, error) {
	return d.queryTransfers(
		"SELECT "+transferColumns+" FROM transfers WHERE category = ? ORDER BY priority, name",
		string(category))
}

func (d *Database) queryTransfers(query string, args ...any) ([]types.TransferDefinition, error) {
	rows, err := d.readDb.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("queryTransfers: %w", err)
	}
	defer rows.Close()

	var transfers []types.TransferDefinition
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("queryTransfers: %w", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queryTransfers: %w", err)
	}
	return transfers, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (types.TransferDefinition, error) {
	var t types.TransferDefinition
	var category, scope, transferType, status string
	var excludedSystems, excludedDirs string

	err := row.Scan(
		&t.ID, &t.Name, &t.LongName, &category, &scope, &transferType,
		&t.Server, &t.User, &t.Password, &t.UseSSHKey, &t.SSHKeyFile,
		&t.Domain, &t.Share, &t.Bucket, &t.Region, &t.SourceDir,
		&t.DestDir, &t.IncludeFilter, &t.ExcludeFilter, &t.IgnoreFilter,
		&t.Staleness, &t.RemoveSourceFiles, &t.SkipEmptyDirs,
		&t.SkipEmptyFiles, &t.SyncToDest, &t.SyncFromSource,
		&t.UseStartDate, &t.LocalDirIsMountPoint, &t.IncludeSystemFiles,
		&t.BandwidthLimit, &t.Priority, &excludedSystems, &excludedDirs,
		&t.Enable, &status, &t.PID, &t.LastRunStart, &t.LastRunFinish,
		&t.LastRunBytes, &t.LastRunFiles,
	)
	if err != nil {
		return types.TransferDefinition{}, err
	}

	t.Category = types.TransferCategory(category)
	t.Scope = types.TransferScope(scope)
	t.TransferType = types.TransferType(transferType)
	t.Status = types.TransferStatus(status)
	t.ExcludedCollectionSystems = splitList(excludedSystems)
	t.ExcludedExtraDirectories = splitList(excludedDirs)
	return t, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func transferArgs(t types.TransferDefinition) []any {
	return []any{
		t.ID, t.Name, t.LongName, string(t.Category), string(t.Scope),
		string(t.TransferType), t.Server, t.User, t.Password,
		t.UseSSHKey, t.SSHKeyFile, t.Domain, t.Share, t.Bucket, t.Region,
		t.SourceDir, t.DestDir, t.IncludeFilter, t.ExcludeFilter,
		t.IgnoreFilter, t.Staleness, t.RemoveSourceFiles, t.SkipEmptyDirs,
		t.SkipEmptyFiles, t.SyncToDest, t.SyncFromSource, t.UseStartDate,
		t.LocalDirIsMountPoint, t.IncludeSystemFiles, t.BandwidthLimit,
		t.Priority, strings.Join(t.ExcludedCollectionSystems, ","),
		strings.Join(t.ExcludedExtraDirectories, ","), t.Enable,
		string(t.Status), t.PID, t.LastRunStart, t.LastRunFinish,
		t.LastRunBytes, t.LastRunFiles,
	}
}
