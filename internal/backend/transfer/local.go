package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/vesseldata/vesseldata/internal/backend/plan"
	"github.com/vesseldata/vesseldata/internal/backend/proc"
	"github.com/vesseldata/vesseldata/internal/store/types"
	"golang.org/x/time/rate"
)

const copyChunkSize = 64 * 1024

// localAdapter moves files between two locally-visible directories with
// an in-process copy loop. It also backs the NFS and SMB adapters once
// their shares are mounted.
type localAdapter struct {
	def types.TransferDefinition
}

func (a *localAdapter) Test(ctx context.Context, paths Paths) Report {
	var r Report

	info, err := os.Stat(paths.SourceDir)
	if err == nil && !info.IsDir() {
		err = errors.Errorf("%s is not a directory", paths.SourceDir)
	}
	r.add("Source Directory Exists", err)

	if a.def.LocalDirIsMountPoint {
		mounted, merr := isMountPoint(paths.SourceDir)
		if merr == nil && !mounted {
			merr = errors.Errorf("%s is not a mounted filesystem", paths.SourceDir)
		}
		r.add("Source Directory Is Mounted", merr)
	}

	info, err = os.Stat(paths.DestDir)
	if err == nil && !info.IsDir() {
		err = errors.Errorf("%s is not a directory", paths.DestDir)
	}
	r.add("Destination Directory Exists", err)

	if err == nil {
		r.add("Destination Writable", writableCheck(paths.DestDir))
	}

	return r.finish()
}

func writableCheck(dir string) error {
	f, err := os.CreateTemp(dir, ".transferd-write-test-*")
	if err != nil {
		return errors.Wrap(err, "destination not writable")
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func (a *localAdapter) Enumerate(ctx context.Context, paths Paths) ([]plan.FileInfo, error) {
	return enumerateLocal(ctx, paths.SourceDir)
}

func enumerateLocal(ctx context.Context, root string) ([]plan.FileInfo, error) {
	var out []plan.FileInfo
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			// Entry vanished mid-walk; instruments do that.
			return nil
		}
		fi := plan.FileInfo{
			Path:    filepath.ToSlash(rel),
			ModTime: info.ModTime(),
			IsDir:   d.IsDir(),
		}
		if !d.IsDir() {
			fi.Size = info.Size()
		}
		out = append(out, fi)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "enumerating %s", root)
	}
	return out, nil
}

func (a *localAdapter) Copy(ctx context.Context, p plan.Plan, started func(proc.Handle)) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if started != nil {
		started(proc.NewCancelHandle(os.Getpid(), cancel))
	}

	limiter := newBandwidthLimiter(a.def.BandwidthLimit)

	var res Result
	for _, dir := range p.Dirs {
		if err := os.MkdirAll(filepath.Join(p.DestDir, filepath.FromSlash(dir)), 0o755); err != nil {
			res.Failures = append(res.Failures, FileError{Path: dir, Err: err.Error()})
		}
	}

	for _, f := range p.Files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		src := filepath.Join(p.SourceDir, filepath.FromSlash(f.Path))
		dst := filepath.Join(p.DestDir, filepath.FromSlash(f.Path))

		n, err := copyFile(ctx, src, dst, limiter)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failures = append(res.Failures, FileError{Path: f.Path, Err: err.Error()})
			continue
		}
		res.BytesMoved += n
		res.FilesMoved++

		if a.def.RemoveSourceFiles {
			if err := os.Remove(src); err != nil {
				res.Failures = append(res.Failures, FileError{Path: f.Path, Err: "remove source: " + err.Error()})
			}
		}
	}

	if a.def.SyncToDest {
		pruneDest(p, &res)
	}

	return res, nil
}

func copyFile(ctx context.Context, src, dst string, limiter *rate.Limiter) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}

	tmp := dst + ".transferd-part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}

	var written int64
	buf := make([]byte, copyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			_ = os.Remove(tmp)
			return written, err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if limiter != nil {
				if werr := limiter.WaitN(ctx, n); werr != nil {
					out.Close()
					_ = os.Remove(tmp)
					return written, werr
				}
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				_ = os.Remove(tmp)
				return written, werr
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			_ = os.Remove(tmp)
			return written, rerr
		}
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return written, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return written, err
	}

	if info, err := os.Stat(src); err == nil {
		_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	return written, nil
}

// newBandwidthLimiter converts a kB/s cap into a byte-rate limiter.
// A zero limit means unlimited and returns nil.
func newBandwidthLimiter(limitKBps int) *rate.Limiter {
	if limitKBps <= 0 {
		return nil
	}
	bytesPerSec := limitKBps * 1024
	burst := copyChunkSize
	if bytesPerSec > burst {
		burst = bytesPerSec
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// pruneDest implements mirror-delete: destination files inside planned
// directories that the plan no longer carries are removed. Deferred
// files still exist at the source, so their previously copied
// destination versions survive until a later run carries them again.
func pruneDest(p plan.Plan, res *Result) {
	keep := make(map[string]bool, len(p.Files)+len(p.Deferred))
	for _, f := range p.Files {
		keep[f.Path] = true
	}
	for _, path := range p.Deferred {
		keep[path] = true
	}

	var stale []string
	_ = filepath.WalkDir(p.DestDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(p.DestDir, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(filepath.Base(rel), ".transferd-") {
			return nil
		}
		if !keep[rel] {
			stale = append(stale, rel)
		}
		return nil
	})

	sort.Strings(stale)
	for _, rel := range stale {
		if err := os.Remove(filepath.Join(p.DestDir, filepath.FromSlash(rel))); err != nil {
			res.Failures = append(res.Failures, FileError{Path: rel, Err: "prune: " + err.Error()})
		}
	}
}
