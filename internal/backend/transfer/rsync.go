package transfer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vesseldata/vesseldata/internal/backend/plan"
	"github.com/vesseldata/vesseldata/internal/backend/proc"
	"github.com/vesseldata/vesseldata/internal/store/types"
)

// rsync exit codes that still mean data moved: partial transfer due to
// per-file errors (23) and vanished source files (24).
func rsyncPartialExit(code int) bool {
	return code == 23 || code == 24
}

// rsyncAdapter drives an rsync daemon endpoint. push selects whether
// the remote side is the destination (ship to shore) or the source.
type rsyncAdapter struct {
	def  types.TransferDefinition
	push bool
}

func (a *rsyncAdapter) remoteURL(path string) string {
	host := a.def.Server
	if a.def.User != "" {
		host = a.def.User + "@" + host
	}
	return "rsync://" + host + "/" + strings.TrimPrefix(path, "/")
}

// passwordFile writes the daemon password to a private temp file for
// --password-file; rsync refuses world-readable password files.
func (a *rsyncAdapter) passwordFile() (string, func(), error) {
	if a.def.Password == "" {
		return "", func() {}, nil
	}
	f, err := os.CreateTemp("", "transferd-rsync-pass-*")
	if err != nil {
		return "", nil, errors.Wrap(err, "creating rsync password file")
	}
	name := f.Name()
	if err := os.Chmod(name, 0o600); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", nil, err
	}
	if _, err := f.WriteString(a.def.Password + "\n"); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", nil, err
	}
	_ = f.Close()
	return name, func() { _ = os.Remove(name) }, nil
}

func (a *rsyncAdapter) baseArgs(passFile string) []string {
	args := []string{"--contimeout=10"}
	if passFile != "" {
		args = append(args, "--password-file="+passFile)
	}
	return args
}

func (a *rsyncAdapter) Test(ctx context.Context, paths Paths) Report {
	var r Report

	passFile, cleanup, err := a.passwordFile()
	if !r.add("Credentials Prepared", err) {
		return r.finish()
	}
	defer cleanup()

	remoteDir := paths.SourceDir
	localDir := paths.DestDir
	if a.push {
		remoteDir = paths.DestDir
		localDir = paths.SourceDir
	}

	// Listing the module root exercises reachability and auth in one
	// round trip.
	args := append(a.baseArgs(passFile), "--list-only", a.remoteURL(remoteDir)+"/")
	out, err := runCommand(ctx, 30*time.Second, "rsync", args...)
	r.add("Server Reachable", err)
	if err == nil {
		r.add("Remote Directory Exists", nil)
	} else if strings.Contains(out, "auth failed") {
		r.add("Credentials Valid", errors.New("rsync daemon authentication failed"))
	}

	info, err := os.Stat(localDir)
	if err == nil && !info.IsDir() {
		err = errors.Errorf("%s is not a directory", localDir)
	}
	r.add("Local Directory Exists", err)

	return r.finish()
}

func (a *rsyncAdapter) Enumerate(ctx context.Context, paths Paths) ([]plan.FileInfo, error) {
	if a.push {
		return enumerateLocal(ctx, paths.SourceDir)
	}

	passFile, cleanup, err := a.passwordFile()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	args := append(a.baseArgs(passFile), "-r", "--list-only", a.remoteURL(paths.SourceDir)+"/")
	out, err := runCommand(ctx, 10*time.Minute, "rsync", args...)
	if err != nil {
		return nil, errors.Wrap(err, "rsync enumerate")
	}
	return parseRsyncListing(out), nil
}

// parseRsyncListing converts `rsync --list-only` output into candidate
// entries. Lines look like:
//
//	-rw-r--r--      1,234 2024/01/02 03:04:05 dir/file.raw
func parseRsyncListing(out string) []plan.FileInfo {
	var entries []plan.FileInfo
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}
		perms := fields[0]
		if len(perms) < 1 || (perms[0] != '-' && perms[0] != 'd') {
			continue
		}
		size, err := strconv.ParseInt(strings.ReplaceAll(fields[1], ",", ""), 10, 64)
		if err != nil {
			continue
		}
		modTime, err := time.Parse("2006/01/02 15:04:05", fields[2]+" "+fields[3])
		if err != nil {
			continue
		}
		path := strings.Join(fields[4:], " ")
		if path == "." {
			continue
		}
		entries = append(entries, plan.FileInfo{
			Path:    path,
			Size:    size,
			ModTime: modTime,
			IsDir:   perms[0] == 'd',
		})
	}
	return entries
}

func (a *rsyncAdapter) Copy(ctx context.Context, p plan.Plan, started func(proc.Handle)) (Result, error) {
	passFile, cleanup, err := a.passwordFile()
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	filesFrom, ffCleanup, err := writeFilesFrom(p)
	if err != nil {
		return Result{}, err
	}
	defer ffCleanup()

	args := a.copyArgs(p, passFile, filesFrom)
	res, err := runRsync(ctx, args, started)
	if err != nil {
		return res, err
	}

	if derr := a.makeDirs(ctx, p, passFile); derr != nil {
		res.Failures = append(res.Failures, FileError{Err: "creating directories: " + derr.Error()})
	}
	return res, nil
}

// makeDirs replays the plan's directory skeleton in a second,
// non-recursive pass so directories that carry no files still exist on
// the receiving side.
func (a *rsyncAdapter) makeDirs(ctx context.Context, p plan.Plan, passFile string) error {
	if len(p.Dirs) == 0 {
		return nil
	}
	dirsFrom, cleanup, err := writeListFile(p.Dirs)
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = runCommand(ctx, 10*time.Minute, "rsync", a.dirArgs(p, passFile, dirsFrom)...)
	return err
}

func (a *rsyncAdapter) dirArgs(p plan.Plan, passFile, dirsFrom string) []string {
	args := append(a.baseArgs(passFile), "-dt", "--files-from="+dirsFrom)
	if a.push {
		args = append(args, p.SourceDir+"/", a.remoteURL(p.DestDir)+"/")
	} else {
		args = append(args, a.remoteURL(p.SourceDir)+"/", p.DestDir+"/")
	}
	return args
}

func (a *rsyncAdapter) copyArgs(p plan.Plan, passFile, filesFrom string) []string {
	args := append(a.baseArgs(passFile), "-rtv", "--stats", "--files-from="+filesFrom)
	if a.def.BandwidthLimit > 0 {
		args = append(args, fmt.Sprintf("--bwlimit=%d", a.def.BandwidthLimit))
	}
	if a.def.RemoveSourceFiles {
		args = append(args, "--remove-source-files")
	}
	if (a.push && a.def.SyncToDest) || (!a.push && a.def.SyncFromSource) {
		args = append(args, "--delete")
	}

	if a.push {
		args = append(args, p.SourceDir+"/", a.remoteURL(p.DestDir)+"/")
	} else {
		args = append(args, a.remoteURL(p.SourceDir)+"/", p.DestDir+"/")
	}
	return args
}

// writeFilesFrom persists the plan's file list for --files-from so the
// external tool copies exactly what the filter engine resolved.
func writeFilesFrom(p plan.Plan) (string, func(), error) {
	paths := make([]string, 0, len(p.Files))
	for _, file := range p.Files {
		paths = append(paths, file.Path)
	}
	return writeListFile(paths)
}

func writeListFile(lines []string) (string, func(), error) {
	f, err := os.CreateTemp("", "transferd-files-from-*")
	if err != nil {
		return "", nil, errors.Wrap(err, "creating files-from list")
	}
	name := f.Name()
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			_ = f.Close()
			_ = os.Remove(name)
			return "", nil, err
		}
	}
	_ = f.Close()
	return name, func() { _ = os.Remove(name) }, nil
}

// runRsync starts the command in its own process group, reports the
// handle, and translates exit status into the uniform Result shape.
func runRsync(ctx context.Context, args []string, started func(proc.Handle)) (Result, error) {
	cmd := exec.CommandContext(ctx, "rsync", args...)
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{}, errors.Wrap(err, "starting rsync")
	}
	if started != nil {
		started(proc.NewGroupHandle(cmd.Process.Pid))
	}

	runErr := cmd.Wait()

	res := parseRsyncStats(stdout.String())
	res.Failures = parseRsyncErrors(stderr.String())

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && rsyncPartialExit(exitErr.ExitCode()) {
			return res, nil
		}
		return res, errors.Wrapf(runErr, "rsync failed: %s", strings.TrimSpace(stderr.String()))
	}
	return res, nil
}

func parseRsyncStats(out string) Result {
	var res Result
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "Number of regular files transferred:"):
			res.FilesMoved = parseStatNumber(line)
		case strings.HasPrefix(line, "Total transferred file size:"):
			res.BytesMoved = parseStatNumber(line)
		}
	}
	return res
}

func parseStatNumber(line string) int64 {
	parts := strings.Split(line, ":")
	if len(parts) < 2 {
		return 0
	}
	value := strings.Fields(strings.TrimSpace(parts[1]))
	if len(value) == 0 {
		return 0
	}
	n, _ := strconv.ParseInt(strings.ReplaceAll(value[0], ",", ""), 10, 64)
	return n
}

// parseRsyncErrors extracts per-file failures from rsync stderr lines
// of the form `rsync: <op> "<path>" failed: <reason>`.
func parseRsyncErrors(out string) []FileError {
	var failures []FileError
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "rsync:") {
			continue
		}
		path := ""
		if start := strings.Index(line, `"`); start >= 0 {
			if end := strings.Index(line[start+1:], `"`); end >= 0 {
				path = line[start+1 : start+1+end]
			}
		}
		failures = append(failures, FileError{Path: path, Err: line})
	}
	return failures
}

// runCommand executes a short-lived external command and returns its
// combined output.
func runCommand(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), errors.Wrapf(err, "%s: %s", name, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
