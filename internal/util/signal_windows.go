//go:build windows

package util

import (
	"errors"
	"os"
)

// ErrGracefulNotSupported reports that the platform cannot signal a process
// to wind down. exec.Cmd treats a Cancel error as a request to wait out
// WaitDelay before killing, which gives a stdin close time to take effect.
var ErrGracefulNotSupported = errors.New("graceful signal not supported on Windows")

// ShutdownSignals lists the signals that request an orderly agent shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal asks a capture or encode process to wind down. Windows
// cannot deliver an interrupt, so the winding down falls to the caller's
// stdin close plus the WaitDelay kill.
func GracefulSignal(_ *os.Process) error {
	return ErrGracefulNotSupported
}
