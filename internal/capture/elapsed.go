package capture

import "time"

// Clock supplies the session's notion of now. Tests inject a fake to advance
// time deterministically.
type Clock func() time.Time

// elapsedTracker derives the whole seconds elapsed since the most recent
// transition into recording. Freezing pins the value the instant recording
// ends, whatever the cause; only Reset zeroes it. Guarded by the session
// mutex, so no locking of its own.
type elapsedTracker struct {
	startedAt time.Time
	frozen    int
	running   bool
}

// Start restarts the counter at zero.
func (t *elapsedTracker) Start(now time.Time) {
	t.startedAt = now
	t.frozen = 0
	t.running = true
}

// Freeze stops the counter, keeping the value readable until Reset.
func (t *elapsedTracker) Freeze(now time.Time) {
	if t.running {
		t.frozen = t.Seconds(now)
		t.running = false
	}
}

// Reset zeroes the counter.
func (t *elapsedTracker) Reset() {
	t.startedAt = time.Time{}
	t.frozen = 0
	t.running = false
}

// Seconds reports the elapsed whole seconds.
func (t *elapsedTracker) Seconds(now time.Time) int {
	if t.running {
		return int(now.Sub(t.startedAt) / time.Second)
	}
	return t.frozen
}
