package transfer

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/vesseldata/vesseldata/internal/backend/plan"
	"github.com/vesseldata/vesseldata/internal/backend/proc"
	"github.com/vesseldata/vesseldata/internal/store/types"
)

// Check is one named sub-check of a connectivity test.
type Check struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	Info string `json:"info,omitempty"`
}

// Report is the outcome of a Test: an ordered list of sub-checks plus
// an aggregate verdict.
type Report struct {
	Checks []Check `json:"checks"`
	OK     bool    `json:"ok"`
}

func (r *Report) add(name string, err error) bool {
	c := Check{Name: name, OK: err == nil}
	if err != nil {
		c.Info = err.Error()
	}
	r.Checks = append(r.Checks, c)
	return c.OK
}

func (r *Report) finish() Report {
	r.OK = true
	for _, c := range r.Checks {
		if !c.OK {
			r.OK = false
			break
		}
	}
	return *r
}

// FileError records one failed file of an otherwise-continuing copy.
type FileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Result summarizes a finished copy. A run with some Failures is a
// partial success, not an aborted run.
type Result struct {
	BytesMoved int64       `json:"bytesMoved"`
	FilesMoved int64       `json:"filesMoved"`
	Failures   []FileError `json:"failures,omitempty"`
}

// Paths carries the already-resolved source and destination of one run.
type Paths struct {
	SourceDir string
	DestDir   string
}

// Adapter wraps one transfer mechanism behind a uniform contract. It
// receives resolved paths and plans only, never raw filter strings.
type Adapter interface {
	// Test checks reachability, credentials and directory existence.
	// It moves no data.
	Test(ctx context.Context, paths Paths) Report

	// Enumerate lists every candidate entry under the transfer's
	// remote-or-local data directory for the filter engine.
	Enumerate(ctx context.Context, paths Paths) ([]plan.FileInfo, error)

	// Copy executes the plan. started is invoked once the underlying
	// process exists, so the caller can hand its handle to the
	// tracker before blocking on completion.
	Copy(ctx context.Context, p plan.Plan, started func(proc.Handle)) (Result, error)
}

// ForDefinition builds the adapter matching a definition's protocol.
// Ship-to-shore definitions push from the local warehouse outward;
// every other category pulls toward it.
func ForDefinition(def types.TransferDefinition) (Adapter, error) {
	push := def.Category == types.CategoryShipToShore

	switch def.TransferType {
	case types.TransferLocalDir:
		return &localAdapter{def: def}, nil
	case types.TransferRsyncServer:
		return &rsyncAdapter{def: def, push: push}, nil
	case types.TransferSshServer:
		return &sshAdapter{def: def, push: push}, nil
	case types.TransferSmbShare:
		return &smbAdapter{def: def, push: push}, nil
	case types.TransferNfsShare:
		return &nfsAdapter{def: def}, nil
	case types.TransferS3Bucket:
		if !push {
			return nil, errors.Errorf("s3 transfers are ship-to-shore only (definition %s)", def.ID)
		}
		return &s3Adapter{def: def}, nil
	}
	return nil, fmt.Errorf("unknown transfer type %q", def.TransferType)
}
