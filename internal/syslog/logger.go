package syslog

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// L is the global logger used across the daemon.
var L = func() *Logger {
	logger := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
		w.NoColor = true
	})).With().Timestamp().CallerWithSkipFrameCount(3).Logger()

	return &Logger{zlog: &logger}
}()

type Logger struct {
	zlog *zerolog.Logger
	mu   sync.RWMutex
}

// LogEntry accumulates fields for one log line; nothing is emitted
// until Write is called.
type LogEntry struct {
	logger *Logger

	Level      string
	Err        error
	Message    string
	Fields     map[string]any
	TransferID string
}

// SetOutput swaps the underlying zerolog logger. Used at boot to attach
// the system log writer.
func (l *Logger) SetOutput(zlog *zerolog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zlog = zlog
}

func (l *Logger) newEntry(level string) *LogEntry {
	return &LogEntry{
		logger: l,
		Level:  level,
		Fields: make(map[string]any),
	}
}

func (l *Logger) Info() *LogEntry {
	return l.newEntry("info")
}

func (l *Logger) Warn() *LogEntry {
	return l.newEntry("warn")
}

func (l *Logger) Error(err error) *LogEntry {
	entry := l.newEntry("error")
	entry.Err = err
	return entry
}

func (e *LogEntry) WithMessage(msg string) *LogEntry {
	e.Message = msg
	return e
}

func (e *LogEntry) WithField(key string, value any) *LogEntry {
	e.Fields[key] = value
	return e
}

// WithTransfer tags the entry with a transfer definition id and mirrors
// the line into that transfer's run log, if one is open.
func (e *LogEntry) WithTransfer(id string) *LogEntry {
	e.TransferID = id
	return e
}

// Write finalizes the LogEntry and emits it through the global logger.
func (e *LogEntry) Write() {
	e.logger.mu.RLock()
	defer e.logger.mu.RUnlock()

	if e.TransferID != "" {
		if runLog := GetExistingRunLogger(e.TransferID); runLog != nil {
			line := "[" + e.Level + "]"
			if e.Err != nil {
				line += " " + e.Err.Error()
			}
			if e.Message != "" {
				line += ": " + e.Message
			}
			runLog.Write(line)
		}
		e.Fields["transferId"] = e.TransferID
	}

	switch e.Level {
	case "warn":
		e.logger.zlog.Warn().Fields(e.Fields).Msg(e.Message)
	case "error":
		e.logger.zlog.Error().Err(e.Err).Fields(e.Fields).Msg(e.Message)
	default:
		e.logger.zlog.Info().Fields(e.Fields).Msg(e.Message)
	}
}
