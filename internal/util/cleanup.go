// Package util provides shared utility functions used across the capture agent.
package util

import (
	"io"
	"log/slog"
)

// SafeClose closes a resource, logging a close failure instead of returning
// it. Nil closers are ignored.
func SafeClose(closer io.Closer, name string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("close failed", "resource", name, "error", err)
	}
}

// SafeCloseFunc wraps SafeClose for use in a defer.
func SafeCloseFunc(closer io.Closer, name string) func() {
	return func() {
		SafeClose(closer, name)
	}
}
