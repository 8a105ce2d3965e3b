package syslog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// RunLogger captures the per-run log of one transfer definition: the
// file list and any warnings produced while the run was in flight. The
// file outlives the run so operators can inspect the last run's output.
type RunLogger struct {
	*os.File
	Path       string
	transferID string

	sync.RWMutex
}

var runLoggers = xsync.NewMapOf[string, *RunLogger]()

// OpenRunLogger truncates and reopens the run log for a transfer,
// replacing any logger left over from a previous run.
func OpenRunLogger(logDir, transferID string) *RunLogger {
	if prev, ok := runLoggers.Load(transferID); ok {
		_ = prev.Close()
	}

	logger, _ := runLoggers.Compute(transferID, func(_ *RunLogger, _ bool) (*RunLogger, bool) {
		path := filepath.Join(logDir, fmt.Sprintf("%s_transfer.log", transferID))
		f, err := os.Create(path)
		if err != nil {
			return nil, true
		}
		return &RunLogger{
			File:       f,
			Path:       path,
			transferID: transferID,
		}, false
	})

	return logger
}

func GetExistingRunLogger(transferID string) *RunLogger {
	logger, _ := runLoggers.Load(transferID)
	return logger
}

func (r *RunLogger) Write(message string) {
	r.RLock()
	defer r.RUnlock()

	timestamp := time.Now().UTC().Format(time.RFC3339)
	_, _ = r.File.WriteString(timestamp + " " + message + "\n")
}

// Close detaches the logger but leaves the log file on disk.
func (r *RunLogger) Close() error {
	r.Lock()
	defer r.Unlock()

	runLoggers.Delete(r.transferID)
	return r.File.Close()
}
