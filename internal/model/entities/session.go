package entities

import (
	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
)

// Source tells who asked for a watering session.
type Source int

const (
	SourceAutomatic Source = iota
	SourceManualRemote
)

func (s Source) String() string {
	switch s {
	case SourceAutomatic:
		return "Automatic"
	case SourceManualRemote:
		return "Remote Manual"
	default:
		return "Unknown"
	}
}

// Session is one contiguous pump-on interval.
type Session struct {
	ID        string       `json:"id"`
	Source    Source       `json:"source"`
	StartedAt clock.Millis `json:"started_at_ms"`
	Planned   clock.Millis `json:"planned_ms"`
}

// Elapsed is the wraparound-safe time the pump has been running at now.
func (s Session) Elapsed(now clock.Millis) clock.Millis {
	return clock.Since(now, s.StartedAt)
}

// Expired reports whether the planned duration has been reached.
func (s Session) Expired(now clock.Millis) bool {
	return s.Elapsed(now) >= s.Planned
}

// Remaining clamps at zero once the session has overrun its plan.
func (s Session) Remaining(now clock.Millis) clock.Millis {
	elapsed := s.Elapsed(now)
	if elapsed >= s.Planned {
		return 0
	}
	return s.Planned - elapsed
}
