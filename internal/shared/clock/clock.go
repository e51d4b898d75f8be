// Package clock provides an injectable time source so that tiering,
// scheduling, and materialization stay deterministic under test.
package clock

import "time"

// Clock is a source of current wall-time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Fixed is a clock pinned to a single instant.
type Fixed struct {
	Instant time.Time
}

func (f Fixed) Now() time.Time { return f.Instant }

// FixedAt returns a clock pinned to t.
func FixedAt(t time.Time) Fixed { return Fixed{Instant: t.UTC()} }
