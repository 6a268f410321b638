// Package signal provides cooperative shutdown: ShutdownChannel() closes
// exactly once, on RequestShutdown or an OS interrupt. The daemon turns
// that into cancellation of the root context its tasks select on.
package signal

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/decred/slog"
)

var (
	log slog.Logger = slog.Disabled

	once sync.Once

	shutdownChannel = make(chan struct{})
	interceptor     chan os.Signal
)

// UseLogger binds the package-level logger, same pattern as every other
// dealer subsystem.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Intercept installs the OS signal handler. Should be called once from
// main() before spawning any actors.
func Intercept() {
	interceptor = make(chan os.Signal, 1)
	signal.Notify(interceptor, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig, ok := <-interceptor
		if !ok {
			return
		}
		log.Infof("received signal (%v), shutting down", sig)
		RequestShutdown()
	}()
}

// RequestShutdown closes the shutdown channel exactly once. Safe to call
// from multiple goroutines and multiple times.
func RequestShutdown() {
	once.Do(func() {
		close(shutdownChannel)
	})
}

// ShutdownChannel returns the channel that closes when shutdown has been
// requested.
func ShutdownChannel() <-chan struct{} {
	return shutdownChannel
}

// ShuttingDown reports whether shutdown has already been requested.
func ShuttingDown() bool {
	select {
	case <-shutdownChannel:
		return true
	default:
		return false
	}
}
