package dealer

import (
	"github.com/decred/slog"
	"github.com/moozedealer/dealer/build"
	"github.com/moozedealer/dealer/signal"
)

// replaceableLogger is a thin wrapper around a logger that is used so the
// logger can be replaced easily without some black pointer magic.
type replaceableLogger struct {
	slog.Logger
	subsystem string
}

// Loggers can not be used before the log rotator has been initialized with a
// log file. This must be performed early during application startup by
// calling InitLogRotator() on the root log writer.
var (
	// pkgLoggers is the list of root-package loggers, tracked so they can
	// be replaced once SetupLoggers runs with the final root logger.
	pkgLoggers []*replaceableLogger

	addPkgLogger = func(subsystem string) *replaceableLogger {
		l := &replaceableLogger{
			Logger:    build.NewSubLogger(subsystem, nil),
			subsystem: subsystem,
		}
		pkgLoggers = append(pkgLoggers, l)
		return l
	}

	// wireLog is the root wiring logger; SetupLoggers hands it to the
	// signal package, which has no logger of its own.
	wireLog = addPkgLogger("WIRE")
)

// SetupLoggers rebinds the root package's own loggers (WIRE) to root and
// hands the wiring logger to the signal package. The other subsystems are
// bound separately, through AddSubLogger.
func SetupLoggers(root *build.RotatingLogWriter) {
	for _, l := range pkgLoggers {
		l.Logger = build.NewSubLogger(l.subsystem, root.GenSubLogger)
		SetSubLogger(root, l.subsystem, l.Logger)
	}

	signal.UseLogger(wireLog)
}

// AddSubLogger is a helper method to conveniently create and register the
// logger of one or more subsystems.
func AddSubLogger(root *build.RotatingLogWriter, subsystem string,
	useLoggers ...func(slog.Logger)) {

	logger := build.NewSubLogger(subsystem, root.GenSubLogger)
	SetSubLogger(root, subsystem, logger, useLoggers...)
}

// SetSubLogger is a helper method to conveniently register the logger of a
// subsystem.
func SetSubLogger(root *build.RotatingLogWriter, subsystem string,
	logger slog.Logger, useLoggers ...func(slog.Logger)) {

	root.RegisterSubLogger(subsystem, logger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}
