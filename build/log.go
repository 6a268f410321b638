// Package build provides the logging backbone shared by every subsystem of
// the dealer: a rotating log writer that can be pointed at a file and/or
// stdout, plus a registry of per-subsystem loggers that packages bind to at
// startup.
package build

import (
	"fmt"
	"os"
	"sync"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogWriter wraps a rotator.Rotator so it can double as an io.Writer that
// also tees to stdout.
type LogWriter struct {
	mtx       sync.Mutex
	rotator   *rotator.Rotator
	logStdout bool
}

// Write implements io.Writer. It writes to stdout (if enabled) and to the
// underlying rotator (if one has been initialized).
func (w *LogWriter) Write(b []byte) (int, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.logStdout {
		os.Stdout.Write(b)
	}
	if w.rotator != nil {
		return w.rotator.Write(b)
	}
	return len(b), nil
}

// RotatingLogWriter is the root of the logging backend. It owns the shared
// backend (file + stdout) and a registry mapping subsystem tag to logger, so
// that verbosity can be tuned per subsystem at runtime.
type RotatingLogWriter struct {
	mtx        sync.Mutex
	writer     *LogWriter
	backend    slog.Backend
	subsystems map[string]slog.Logger
}

// NewRotatingLogWriter creates a writer that logs to stdout only, until
// InitLogRotator points it at a file as well.
func NewRotatingLogWriter() *RotatingLogWriter {
	w := &LogWriter{logStdout: true}
	return &RotatingLogWriter{
		writer:     w,
		backend:    *slog.NewBackend(w),
		subsystems: make(map[string]slog.Logger),
	}
}

// InitLogRotator initializes the log rotator to write to the passed path,
// rotating when it reaches maxLogFileSize (MB), keeping maxLogFiles old
// copies around.
func (r *RotatingLogWriter) InitLogRotator(logFile string, maxLogFileSize, maxLogFiles int) error {
	rot, err := rotator.New(logFile, int64(maxLogFileSize)*1024, false, maxLogFiles)
	if err != nil {
		return fmt.Errorf("failed to create log rotator: %w", err)
	}

	r.mtx.Lock()
	r.writer.rotator = rot
	r.mtx.Unlock()

	return nil
}

// GenSubLogger returns a fresh logger for the given subsystem tag, bound to
// the shared backend.
func (r *RotatingLogWriter) GenSubLogger(subsystem string) slog.Logger {
	return r.backend.Logger(subsystem)
}

// RegisterSubLogger records the logger for a subsystem so its level can be
// changed later (e.g. from a debuglevel config option or admin command).
func (r *RotatingLogWriter) RegisterSubLogger(subsystem string, logger slog.Logger) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.subsystems[subsystem] = logger
}

// SetLogLevel changes the log level of the named subsystem. An unknown
// subsystem or level is reported as an error.
func (r *RotatingLogWriter) SetLogLevel(subsystem, level string) error {
	r.mtx.Lock()
	logger, ok := r.subsystems[subsystem]
	r.mtx.Unlock()
	if !ok {
		return fmt.Errorf("unknown subsystem %q", subsystem)
	}

	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	logger.SetLevel(lvl)
	return nil
}

// NewSubLogger creates a logger for subsystem, either from the supplied
// generator (once the root writer is ready) or as a disabled placeholder
// logger usable before startup has finished wiring the root writer.
func NewSubLogger(subsystem string, genLogger func(string) slog.Logger) slog.Logger {
	if genLogger == nil {
		return slog.Disabled
	}
	return genLogger(subsystem)
}
