package loop

import "time"

// backoff tracks the poll interval between cycles. Each Advance returns the
// current interval and grows it by the multiplier, clamped at the ceiling.
// Reset drops back to the base interval.
type backoff struct {
	base       time.Duration
	max        time.Duration
	multiplier float64
	cur        time.Duration
}

func newBackoff(base time.Duration, multiplier float64, max time.Duration) *backoff {
	if multiplier < 1 {
		multiplier = 1
	}
	if max < base {
		max = base
	}
	return &backoff{base: base, max: max, multiplier: multiplier, cur: base}
}

func (b *backoff) Current() time.Duration {
	return b.cur
}

func (b *backoff) Advance() time.Duration {
	cur := b.cur
	next := time.Duration(float64(b.cur) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.cur = next
	return cur
}

func (b *backoff) Reset() {
	b.cur = b.base
}
