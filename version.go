package main

// Build identity, stamped via ldflags by the release pipeline. Unstamped
// builds report dev/unknown and never prompt for updates.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)
