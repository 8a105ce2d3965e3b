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

// smbAdapter reaches a CIFS share. Tests go through smbclient so no
// mount is needed to validate credentials; data movement mounts the
// share and reuses the local copy engine.
type smbAdapter struct {
	def  types.TransferDefinition
	push bool
}

func (a *smbAdapter) unc() string {
	return fmt.Sprintf("//%s/%s", a.def.Server, a.def.Share)
}

func (a *smbAdapter) authArgs() []string {
	user := a.def.User
	if a.def.Domain != "" {
		user = a.def.Domain + "\\" + user
	}
	if a.def.Password != "" {
		return []string{"-U", user + "%" + a.def.Password}
	}
	return []string{"-U", user, "-N"}
}

func (a *smbAdapter) Test(ctx context.Context, paths Paths) Report {
	var r Report

	args := append([]string{a.unc()}, a.authArgs()...)
	args = append(args, "-m", "SMB3", "-c", "exit")
	_, err := runCommand(ctx, 30*time.Second, "smbclient", args...)
	if !r.add("Share Reachable", err) {
		return r.finish()
	}
	r.add("Credentials Valid", nil)

	remoteDir := paths.SourceDir
	localDir := paths.DestDir
	if a.push {
		remoteDir = paths.DestDir
		localDir = paths.SourceDir
	}

	args = append([]string{a.unc()}, a.authArgs()...)
	args = append(args, "-m", "SMB3", "-c", "cd "+remoteDir)
	_, err = runCommand(ctx, 30*time.Second, "smbclient", args...)
	r.add("Remote Directory Exists", err)

	info, err := os.Stat(localDir)
	if err == nil && !info.IsDir() {
		err = errors.Errorf("%s is not a directory", localDir)
	}
	r.add("Local Directory Exists", err)

	return r.finish()
}

// withMount mounts the share, runs fn against the mounted view, and
// always unmounts.
func (a *smbAdapter) withMount(ctx context.Context, fn func(mountRoot string) error) error {
	mountPoint, err := os.MkdirTemp("", "transferd-smb-*")
	if err != nil {
		return errors.Wrap(err, "creating smb mount point")
	}
	defer os.RemoveAll(mountPoint)

	opts := fmt.Sprintf("user=%s,pass=%s", a.def.User, a.def.Password)
	if a.def.Domain != "" {
		opts += ",domain=" + a.def.Domain
	}
	if _, err := runCommand(ctx, time.Minute, "mount", "-t", "cifs", a.unc(), mountPoint, "-o", opts); err != nil {
		return errors.Wrap(err, "mounting smb share")
	}
	defer func() {
		_, _ = runCommand(context.Background(), time.Minute, "umount", "-l", mountPoint)
	}()

	return fn(mountPoint)
}

func (a *smbAdapter) Enumerate(ctx context.Context, paths Paths) ([]plan.FileInfo, error) {
	if a.push {
		return enumerateLocal(ctx, paths.SourceDir)
	}

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

func (a *smbAdapter) Copy(ctx context.Context, p plan.Plan, started func(proc.Handle)) (Result, error) {
	var res Result
	err := a.withMount(ctx, func(mountRoot string) error {
		mounted := p
		if a.push {
			mounted.DestDir = filepath.Join(mountRoot, p.DestDir)
		} else {
			mounted.SourceDir = filepath.Join(mountRoot, p.SourceDir)
		}

		local := &localAdapter{def: a.def}
		var err error
		res, err = local.Copy(ctx, mounted, started)
		return err
	})
	return res, err
}
