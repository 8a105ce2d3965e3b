package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/vesseldata/vesseldata/internal/backend/plan"
	"github.com/vesseldata/vesseldata/internal/backend/proc"
	"github.com/vesseldata/vesseldata/internal/store/types"
)

// nfsAdapter mounts an NFS export and reuses the local copy engine.
// The definition's Server field carries "host:/export".
type nfsAdapter struct {
	def types.TransferDefinition
}

func (a *nfsAdapter) Test(ctx context.Context, paths Paths) Report {
	var r Report

	err := a.withMount(ctx, func(mountRoot string) error {
		srcInfo, err := os.Stat(filepath.Join(mountRoot, paths.SourceDir))
		if err == nil && !srcInfo.IsDir() {
			err = errors.Errorf("%s is not a directory on the export", paths.SourceDir)
		}
		r.add("Source Directory Exists", err)
		return nil
	})
	// Mount failure subsumes every later check.
	if err != nil {
		r.Checks = append([]Check{{Name: "Export Mountable", OK: false, Info: err.Error()}}, r.Checks...)
		return r.finish()
	}
	r.Checks = append([]Check{{Name: "Export Mountable", OK: true}}, r.Checks...)

	info, err := os.Stat(paths.DestDir)
	if err == nil && !info.IsDir() {
		err = errors.Errorf("%s is not a directory", paths.DestDir)
	}
	r.add("Destination Directory Exists", err)

	return r.finish()
}

func (a *nfsAdapter) withMount(ctx context.Context, fn func(mountRoot string) error) error {
	mountPoint, err := os.MkdirTemp("", "transferd-nfs-*")
	if err != nil {
		return errors.Wrap(err, "creating nfs mount point")
	}
	defer os.RemoveAll(mountPoint)

	if _, err := runCommand(ctx, time.Minute, "mount", "-t", "nfs", "-o", "soft,timeo=50", a.def.Server, mountPoint); err != nil {
		return fmt.Errorf("mounting nfs export %s: %w", a.def.Server, err)
	}
	defer func() {
		_, _ = runCommand(context.Background(), time.Minute, "umount", "-l", mountPoint)
	}()

	return fn(mountPoint)
}

func (a *nfsAdapter) Enumerate(ctx context.Context, paths Paths) ([]plan.FileInfo, error) {
	var out []plan.FileInfo
	err := a.withMount(ctx, func(mountRoot string) error {
		entries, err := enumerateLocal(ctx, filepath.Join(mountRoot, paths.SourceDir))
		if err != nil {
			return err
		}
		out = entries
		return nil
	})
	return out, err
}

func (a *nfsAdapter) Copy(ctx context.Context, p plan.Plan, started func(proc.Handle)) (Result, error) {
	var res Result
	err := a.withMount(ctx, func(mountRoot string) error {
		mounted := p
		mounted.SourceDir = filepath.Join(mountRoot, p.SourceDir)

		local := &localAdapter{def: a.def}
		var err error
		res, err = local.Copy(ctx, mounted, started)
		return err
	})
	return res, err
}
