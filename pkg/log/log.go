// Package log configures the process wide zerolog logger from the
// UPNPSTACK_LOG_* environment variables.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLogDir    = "UPNPSTACK_LOG_DIR"
	EnvLogLevel  = "UPNPSTACK_LOG_LEVEL"
	EnvLogStderr = "UPNPSTACK_LOG_STDERR"

	logFileName = "upnpstack.log"
)

var (
	log = zerolog.New(io.Discard)
)

// Logging builds the logger and returns ctx carrying it. The log goes to a
// rotated file in UPNPSTACK_LOG_DIR, or the user cache dir if unset, and to
// stderr instead when UPNPSTACK_LOG_STDERR is set. The returned func closes
// the log file.
func Logging(ctx context.Context) (context.Context, func(), error) {
	cleanup := func() {}
	logDir := os.Getenv(EnvLogDir)
	if logDir == "" {
		if cacheDir, _ := os.UserCacheDir(); cacheDir != "" {
			logDir = filepath.Join(cacheDir, "upnpstack")
			if err := os.Mkdir(logDir, os.ModeDir|0700); err != nil {
				if !os.IsExist(err) {
					logDir = ""
				}
			}
		}
	}

	var output io.Writer = io.Discard
	if logDir != "" {
		if fi, err := os.Stat(logDir); err != nil || !fi.IsDir() {
			return ctx, cleanup, fmt.Errorf("unable to open log file in %s (%s)", logDir, EnvLogDir)
		}
		logFile := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, logFileName),
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		output = logFile
		cleanup = func() {
			logFile.Close()
		}
	}

	if os.Getenv(EnvLogStderr) != "" {
		output = stderrWriter(os.Stderr)
	}

	var (
		levelString = os.Getenv(EnvLogLevel)
		level       = zerolog.InfoLevel
		err         error
	)
	if levelString != "" {
		level, err = zerolog.ParseLevel(levelString)
		if err != nil {
			return ctx, cleanup, fmt.Errorf("unable to parse log level from %s: %s", EnvLogLevel, err.Error())
		}
	}

	logContext := zerolog.New(output).
		Level(level).
		With().
		Timestamp()
	if level == zerolog.DebugLevel || level == zerolog.TraceLevel {
		logContext = logContext.
			Stack().
			Caller()
	}

	log = logContext.Logger()

	ctx = log.WithContext(ctx)
	return ctx, cleanup, nil
}

// stderrWriter pretty prints for terminals and writes JSON otherwise.
func stderrWriter(f *os.File) io.Writer {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
	}
	return f
}

func Logger() *zerolog.Logger {
	return &log
}
