package util

import "time"

// humanLayout is the display format used in emails and version output.
const humanLayout = "2006-01-02 15:04:05 MST"

// RFC3339Now returns the current UTC time formatted as RFC3339.
func RFC3339Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// HumanTime returns the current local time in a human-readable form.
func HumanTime() string {
	return time.Now().Format(humanLayout)
}

// FormatHumanTime re-formats an RFC3339 timestamp for display. Timestamps
// that do not parse are returned unchanged.
func FormatHumanTime(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format(humanLayout)
}
