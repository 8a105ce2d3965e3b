//go:build linux

package syslog

import (
	"log/syslog"

	"github.com/rs/zerolog"
)

func init() {
	sysWriter, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, "transferd")
	if err != nil {
		return
	}

	logger := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = zerolog.SyslogLevelWriter(sysWriter)
		w.NoColor = true
	})).With().Timestamp().CallerWithSkipFrameCount(3).Logger()

	L.SetOutput(&logger)
}
