package messages

import (
	"time"

	"github.com/LeonardoBeccarini/gardenbot/internal/model/entities"
)

// PumpStateChangeEvent is emitted every time the controller drives the pump.
type PumpStateChangeEvent struct {
	BedID     string             `json:"bed_id"`
	SessionID string             `json:"session_id"`
	NewState  entities.PumpState `json:"new_state"`
	Source    string             `json:"source"`
	Duration  time.Duration      `json:"duration"` // planned duration when turning on, 0 when off
	Reason    string             `json:"reason,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
