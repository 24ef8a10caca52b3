package util

import "time"

// Backoff produces retry delays that double from an initial value up to a
// ceiling. Not safe for concurrent use.
type Backoff struct {
	next time.Duration
	max  time.Duration
}

// NewBackoff returns a backoff starting at initial and capped at maxDelay.
func NewBackoff(initial, maxDelay time.Duration) *Backoff {
	return &Backoff{next: initial, max: maxDelay}
}

// Next returns the delay to wait now and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next = min(2*b.next, b.max)
	return d
}

// Current peeks at the upcoming delay without advancing.
func (b *Backoff) Current() time.Duration {
	return b.next
}

// Reset restarts the sequence from the given initial delay.
func (b *Backoff) Reset(initial time.Duration) {
	b.next = initial
}
