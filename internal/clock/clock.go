// Package clock provides the monotonic millisecond counter the controller runs on.
//
// Millis wraps at 2^32 like the counter of a 32-bit microcontroller. All interval
// checks must be written as unsigned subtraction (now - since >= interval) so that a
// wrap between the two readings is harmless.
package clock

import (
	"sync"
	"time"
)

// Millis is a point on (or a span of) the monotonic millisecond counter.
type Millis uint32

// Clock is the source of monotonic time.
type Clock interface {
	Now() Millis
}

// Since returns the wraparound-safe span between since and now.
func Since(now, since Millis) Millis { return now - since }

// Due reports whether at least interval has elapsed since last.
func Due(now, last, interval Millis) bool { return now-last >= interval }

// FromDuration converts a duration to Millis, truncating sub-millisecond parts.
func FromDuration(d time.Duration) Millis {
	if d <= 0 {
		return 0
	}
	return Millis(d / time.Millisecond)
}

// Duration converts m to a time.Duration.
func (m Millis) Duration() time.Duration { return time.Duration(m) * time.Millisecond }

// Seconds returns the whole seconds contained in m.
func (m Millis) Seconds() uint32 { return uint32(m) / 1000 }

// System is a Clock backed by Go's monotonic clock, counting from its creation.
type System struct {
	start time.Time
}

// NewSystem starts a counter at zero.
func NewSystem() *System { return &System{start: time.Now()} }

func (s *System) Now() Millis {
	return Millis(uint64(time.Since(s.start) / time.Millisecond))
}

// Manual is a Clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now Millis
}

// NewManual returns a Manual clock reading at.
func NewManual(at Millis) *Manual { return &Manual{now: at} }

func (m *Manual) Now() Millis {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to at.
func (m *Manual) Set(at Millis) {
	m.mu.Lock()
	m.now = at
	m.mu.Unlock()
}

// Advance moves the clock forward by d, wrapping like the hardware counter.
func (m *Manual) Advance(d Millis) Millis {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
	return m.now
}
