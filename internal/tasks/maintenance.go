package tasks

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/vesseldata/vesseldata/internal/backend/plan"
	"github.com/vesseldata/vesseldata/internal/store/constants"
	"github.com/vesseldata/vesseldata/internal/store/types"
	"github.com/vesseldata/vesseldata/internal/syslog"
	"github.com/zeebo/xxh3"
)

type md5Entry struct {
	size    int64
	modTime int64
	sum     string
}

// updateMD5Summary rebuilds the cruise-wide checksum manifest. File
// checksums are cached by (size, mtime) so only changed files are
// re-read, and the manifest itself is rewritten only when its content
// fingerprint changed.
func (r *Runner) updateMD5Summary(ctx context.Context, job types.Job) (any, error) {
	vctx, err := r.store.Database.GetVoyageContext()
	if err != nil {
		return nil, err
	}
	if vctx.CruiseID == "" {
		return nil, fmt.Errorf("%w: no active cruise for checksum summary", plan.ErrContextUnavailable)
	}

	root := filepath.Join(r.opts.CruiseDataDir, vctx.CruiseID)
	summaryPath := filepath.Join(root, constants.MD5SummaryFilename)
	md5Path := filepath.Join(root, constants.MD5SummaryMD5Filename)

	type line struct {
		path string
		sum  string
	}
	var lines []line

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if path == summaryPath || path == md5Path {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		sum, err := r.fileMD5(path, info.Size(), info.ModTime())
		if err != nil {
			syslog.L.Error(err).WithField("path", rel).WithMessage("failed to checksum file").Write()
			return nil
		}
		lines = append(lines, line{path: rel, sum: sum})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].path < lines[j].path })

	var buf bytes.Buffer
	for _, l := range lines {
		fmt.Fprintf(&buf, "%s  %s\n", l.sum, l.path)
	}
	content := buf.Bytes()

	if old, err := os.ReadFile(summaryPath); err == nil {
		if xxh3.Hash(old) == xxh3.Hash(content) {
			return map[string]any{"files": len(lines), "changed": false}, nil
		}
	}

	if err := os.WriteFile(summaryPath, content, 0644); err != nil {
		return nil, err
	}
	sum := md5.Sum(content)
	manifest := fmt.Sprintf("%s  %s\n", hex.EncodeToString(sum[:]), constants.MD5SummaryFilename)
	if err := os.WriteFile(md5Path, []byte(manifest), 0644); err != nil {
		return nil, err
	}

	syslog.L.Info().
		WithField("files", len(lines)).
		WithMessage("checksum summary rebuilt").Write()
	return map[string]any{"files": len(lines), "changed": true}, nil
}

func (r *Runner) fileMD5(path string, size int64, modTime time.Time) (string, error) {
	if entry, ok := r.md5Cache.Load(path); ok {
		if entry.size == size && entry.modTime == modTime.UnixNano() {
			return entry.sum, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	sum := hex.EncodeToString(h.Sum(nil))

	r.md5Cache.Store(path, md5Entry{size: size, modTime: modTime.UnixNano(), sum: sum})
	return sum, nil
}

// updateDataDashboard shells out to the dashboard rebuild tool. Its
// exit status resolves this task, but a dashboard failure never touches
// the transfer that triggered it.
func (r *Runner) updateDataDashboard(ctx context.Context, job types.Job) (any, error) {
	if r.opts.DashboardCommand != "" {
		vctx, err := r.store.Database.GetVoyageContext()
		if err != nil {
			return nil, err
		}

		args := append(append([]string{}, r.opts.DashboardArgs...), vctx.CruiseID)
		cmd := exec.CommandContext(ctx, r.opts.DashboardCommand, args...)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return nil, fmt.Errorf("dashboard rebuild failed: %w: %s", err, bytes.TrimSpace(out))
		}
		syslog.L.Info().WithMessage("data dashboard rebuilt").Write()
	}

	if r.dispatcher != nil {
		var def types.TransferDefinition
		if job.TransferID != "" {
			loaded, err := r.store.Database.GetTransfer(job.TransferID)
			if err != nil {
				loaded = types.TransferDefinition{ID: job.TransferID}
			}
			def = loaded
		}
		r.dispatcher.OnComplete(job.Task, def, nil)
	}
	return nil, nil
}

// rebuildCruiseDirectory recreates the warehouse skeleton for the
// active cruise: the cruise root plus the destination directory of
// every enabled inbound transfer.
func (r *Runner) rebuildCruiseDirectory(ctx context.Context, job types.Job) (any, error) {
	vctx, err := r.store.Database.GetVoyageContext()
	if err != nil {
		return nil, err
	}
	if vctx.CruiseID == "" {
		return nil, fmt.Errorf("%w: no active cruise to rebuild", plan.ErrContextUnavailable)
	}

	root := filepath.Join(r.opts.CruiseDataDir, vctx.CruiseID)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}

	transfers, err := r.store.Database.GetAllTransfers()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	created := 0
	for _, def := range transfers {
		if !def.Enable || def.Category == types.CategoryShipToShore {
			continue
		}
		dest, err := plan.ResolveTokens(def.DestDir, vctx, now)
		if err != nil {
			// Lowering-scoped templates resolve only while a lowering is
			// active; skip, don't fail the rebuild.
			continue
		}
		if err := os.MkdirAll(dest, 0755); err != nil {
			syslog.L.Error(err).WithTransfer(def.ID).WithMessage("failed to create destination directory").Write()
			continue
		}
		created++
	}

	syslog.L.Info().
		WithField("cruiseID", vctx.CruiseID).
		WithField("directories", created).
		WithMessage("cruise directory rebuilt").Write()
	return map[string]any{"directories": created}, nil
}

// refreshUsageStats re-measures every local warehouse directory into
// the usage cache.
func (r *Runner) refreshUsageStats(ctx context.Context, job types.Job) (any, error) {
	if r.usage == nil {
		return nil, nil
	}

	vctx, err := r.store.Database.GetVoyageContext()
	if err != nil {
		return nil, err
	}

	roots := make(map[string]string)
	if vctx.CruiseID != "" {
		roots["cruise"] = filepath.Join(r.opts.CruiseDataDir, vctx.CruiseID)
	}

	transfers, err := r.store.Database.GetAllTransfers()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, def := range transfers {
		if !def.Enable {
			continue
		}
		// The local side of a pull is its destination; of a push, its
		// source.
		template := def.DestDir
		if def.Category == types.CategoryShipToShore {
			template = def.SourceDir
		}
		dir, err := plan.ResolveTokens(template, vctx, now)
		if err != nil {
			continue
		}
		roots[def.ID] = dir
	}

	if err := r.usage.Refresh(ctx, roots); err != nil {
		return nil, err
	}
	return nil, nil
}
