package util

import "time"

// Backoff yields exponentially growing retry delays.
// It is not safe for concurrent use; each retry loop owns one.
type Backoff struct {
	initial  time.Duration
	maxDelay time.Duration
	next     time.Duration
	attempts int
}

// NewBackoff returns a Backoff starting at initial and doubling up to maxDelay.
func NewBackoff(initial, maxDelay time.Duration) *Backoff {
	return &Backoff{
		initial:  initial,
		maxDelay: maxDelay,
		next:     initial,
	}
}

// Next returns the delay before the next attempt and doubles the one after.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next = min(b.next*2, b.maxDelay)
	b.attempts++
	return d
}

// NextAtLeast is Next raised to floor, such as a server's Retry-After.
// The result never exceeds the maximum delay.
func (b *Backoff) NextAtLeast(floor time.Duration) time.Duration {
	return max(b.Next(), min(floor, b.maxDelay))
}

// Attempts returns how many delays have been handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Reset returns to the initial delay.
func (b *Backoff) Reset() {
	b.next = b.initial
	b.attempts = 0
}
