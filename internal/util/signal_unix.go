//go:build !windows

package util

import (
	"os"
	"syscall"
)

// ShutdownSignals lists the signals that request an orderly agent shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// GracefulSignal asks a capture or encode process to wind down. SIGINT lets
// ffmpeg finalize its output before exiting.
func GracefulSignal(p *os.Process) error {
	return p.Signal(syscall.SIGINT)
}
