package transfer

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/vesseldata/vesseldata/internal/backend/plan"
	"github.com/vesseldata/vesseldata/internal/backend/proc"
	"github.com/vesseldata/vesseldata/internal/store/types"
	"golang.org/x/crypto/ssh"
)

// sshAdapter reaches the remote side over SSH: connectivity tests use a
// direct SSH session, data movement shells out to rsync over ssh.
type sshAdapter struct {
	def  types.TransferDefinition
	push bool
}

func (a *sshAdapter) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if a.def.UseSSHKey {
		keyFile := a.def.SSHKeyFile
		if keyFile == "" {
			return nil, errors.New("ssh key authentication selected but no key file configured")
		}
		key, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read private key")
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "unable to parse private key")
		}
		auth = append(auth, ssh.PublicKeys(signer))
	} else if a.def.Password != "" {
		auth = append(auth, ssh.Password(a.def.Password))
		// Some sshd builds only offer keyboard-interactive.
		auth = append(auth, ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = a.def.Password
			}
			return answers, nil
		}))
	}

	return &ssh.ClientConfig{
		User:            a.def.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}, nil
}

func (a *sshAdapter) dial() (*ssh.Client, error) {
	cfg, err := a.clientConfig()
	if err != nil {
		return nil, err
	}
	addr := a.def.Server
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}
	return ssh.Dial("tcp", addr, cfg)
}

func (a *sshAdapter) Test(ctx context.Context, paths Paths) Report {
	var r Report

	client, err := a.dial()
	if !r.add("Server Reachable", err) {
		return r.finish()
	}
	defer client.Close()
	r.add("Credentials Valid", nil)

	remoteDir := paths.SourceDir
	localDir := paths.DestDir
	if a.push {
		remoteDir = paths.DestDir
		localDir = paths.SourceDir
	}

	session, err := client.NewSession()
	if err != nil {
		r.add("Remote Directory Exists", err)
	} else {
		err = session.Run(fmt.Sprintf("test -d %q", remoteDir))
		_ = session.Close()
		if err != nil {
			err = errors.Errorf("remote directory %s does not exist", remoteDir)
		}
		r.add("Remote Directory Exists", err)
	}

	info, err := os.Stat(localDir)
	if err == nil && !info.IsDir() {
		err = errors.Errorf("%s is not a directory", localDir)
	}
	r.add("Local Directory Exists", err)

	return r.finish()
}

func (a *sshAdapter) remoteSpec(path string) string {
	host := a.def.Server
	if a.def.User != "" {
		host = a.def.User + "@" + host
	}
	return host + ":" + path
}

func (a *sshAdapter) rshArg() string {
	rsh := "ssh -o StrictHostKeyChecking=no -o BatchMode=yes"
	if a.def.UseSSHKey && a.def.SSHKeyFile != "" {
		rsh += " -i " + a.def.SSHKeyFile
	}
	return "-e" + rsh
}

func (a *sshAdapter) Enumerate(ctx context.Context, paths Paths) ([]plan.FileInfo, error) {
	if a.push {
		return enumerateLocal(ctx, paths.SourceDir)
	}

	args := []string{a.rshArg(), "-r", "--list-only", a.remoteSpec(paths.SourceDir) + "/"}
	out, err := runCommand(ctx, 10*time.Minute, "rsync", args...)
	if err != nil {
		return nil, errors.Wrap(err, "ssh enumerate")
	}
	return parseRsyncListing(out), nil
}

func (a *sshAdapter) Copy(ctx context.Context, p plan.Plan, started func(proc.Handle)) (Result, error) {
	filesFrom, cleanup, err := writeFilesFrom(p)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	args := []string{a.rshArg(), "-rtv", "--stats", "--files-from=" + filesFrom}
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
		args = append(args, p.SourceDir+"/", a.remoteSpec(p.DestDir)+"/")
	} else {
		args = append(args, a.remoteSpec(p.SourceDir)+"/", p.DestDir+"/")
	}

	res, err := runRsync(ctx, args, started)
	if err != nil {
		return res, err
	}

	if derr := a.makeDirs(ctx, p); derr != nil {
		res.Failures = append(res.Failures, FileError{Err: "creating directories: " + derr.Error()})
	}
	return res, nil
}

// makeDirs mirrors the plan's directory skeleton without recursing, so
// file-less directories still reach the remote side.
func (a *sshAdapter) makeDirs(ctx context.Context, p plan.Plan) error {
	if len(p.Dirs) == 0 {
		return nil
	}
	dirsFrom, cleanup, err := writeListFile(p.Dirs)
	if err != nil {
		return err
	}
	defer cleanup()

	args := []string{a.rshArg(), "-dt", "--files-from=" + dirsFrom}
	if a.push {
		args = append(args, p.SourceDir+"/", a.remoteSpec(p.DestDir)+"/")
	} else {
		args = append(args, a.remoteSpec(p.SourceDir)+"/", p.DestDir+"/")
	}
	_, err = runCommand(ctx, 10*time.Minute, "rsync", args...)
	return err
}
