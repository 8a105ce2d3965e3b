package sqlite

import (
	"fmt"
	"time"

	"github.com/vesseldata/vesseldata/internal/store/constants"
	"github.com/vesseldata/vesseldata/internal/store/types"
)

// GetCoreVar reads one singleton record by name.
func (d *Database) GetCoreVar(name string) (string, error) {
	var value string
	err := d.readDb.
		QueryRow("SELECT value FROM corevars WHERE name = ?", name).
		Scan(&value)
	if err != nil {
		return "", fmt.Errorf("GetCoreVar: error reading %q: %w", name, err)
	}
	return value, nil
}

// SetCoreVar updates one singleton record by name.
func (d *Database) SetCoreVar(name, value string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec(
		"UPDATE corevars SET value = ? WHERE name = ?", value, name)
	if err != nil {
		return fmt.Errorf("SetCoreVar: error updating %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("SetCoreVar: unknown core variable %q", name)
	}
	return nil
}

// GetVoyageContext assembles the voyage context from the singleton
// records. Missing or malformed timestamps are treated as unset.
func (d *Database) GetVoyageContext() (types.VoyageContext, error) {
	rows, err := d.readDb.Query("SELECT name, value FROM corevars")
	if err != nil {
		return types.VoyageContext{}, fmt.Errorf("GetVoyageContext: %w", err)
	}
	defer rows.Close()

	vars := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return types.VoyageContext{}, fmt.Errorf("GetVoyageContext: %w", err)
		}
		vars[name] = value
	}
	if err := rows.Err(); err != nil {
		return types.VoyageContext{}, fmt.Errorf("GetVoyageContext: %w", err)
	}

	ctx := types.VoyageContext{
		CruiseID:      vars[constants.VarCruiseID],
		LoweringID:    vars[constants.VarLoweringID],
		CruiseStart:   parseVarTime(vars[constants.VarCruiseStart]),
		CruiseEnd:     parseVarTime(vars[constants.VarCruiseEnd]),
		LoweringStart: parseVarTime(vars[constants.VarLoweringStart]),
		LoweringEnd:   parseVarTime(vars[constants.VarLoweringEnd]),
		SystemOn:      vars[constants.VarSystemStatus] == "on",
	}
	return ctx, nil
}

// SetVoyageContext writes every singleton record from ctx.
func (d *Database) SetVoyageContext(ctx types.VoyageContext) error {
	systemStatus := "off"
	if ctx.SystemOn {
		systemStatus = "on"
	}

	vars := map[string]string{
		constants.VarCruiseID:      ctx.CruiseID,
		constants.VarLoweringID:    ctx.LoweringID,
		constants.VarCruiseStart:   formatVarTime(ctx.CruiseStart),
		constants.VarCruiseEnd:     formatVarTime(ctx.CruiseEnd),
		constants.VarLoweringStart: formatVarTime(ctx.LoweringStart),
		constants.VarLoweringEnd:   formatVarTime(ctx.LoweringEnd),
		constants.VarSystemStatus:  systemStatus,
	}

	for name, value := range vars {
		if err := d.SetCoreVar(name, value); err != nil {
			return err
		}
	}
	return nil
}

func parseVarTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatVarTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
