// Package logging sets up the tracker's slog fan-out and the zerolog loggers
// used by the database and influx layers.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// osStdout is the console sink; tests swap it for a pipe.
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}

// ZerologLevel converts a config level name to a zerolog level.
func ZerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewZerolog returns a console-format zerolog logger writing to file, or to
// stdout when file is nil. provider, when set, stamps each event with its
// attributes.
func NewZerolog(file io.Writer, level string, provider ContextProvider) zerolog.Logger {
	out := file
	noColor := true
	if out == nil {
		out = osStdout
		noColor = false
	}

	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}).Level(ZerologLevel(level)).With().Timestamp().Logger()

	if provider != nil {
		logger = logger.Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
			for _, a := range provider() {
				e.Str(a.Key, a.Value.String())
			}
		}))
	}
	return logger
}
