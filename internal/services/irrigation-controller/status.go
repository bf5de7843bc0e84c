package irrigation_controller

import (
	"sync/atomic"
	"time"

	"github.com/LeonardoBeccarini/gardenbot/internal/model/messages"
)

// StatusView is an immutable copy of the controller state, safe to hand to other
// goroutines.
type StatusView struct {
	BedID       string               `json:"bed_id"`
	Active      bool                 `json:"watering_active"`
	SessionID   string               `json:"session_id,omitempty"`
	Source      string               `json:"source,omitempty"`
	RemainingMs uint32               `json:"remaining_ms"`
	Status      string               `json:"status"`
	LinkUp      bool                 `json:"link_up"`
	BreakerOpen bool                 `json:"breaker_open"`
	LastReading *messages.SensorData `json:"last_reading,omitempty"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// StatusBoard hands the latest StatusView from the loop to the HTTP and gRPC readers.
type StatusBoard struct {
	v atomic.Pointer[StatusView]
}

func NewStatusBoard() *StatusBoard { return &StatusBoard{} }

func (b *StatusBoard) Publish(v StatusView) { b.v.Store(&v) }

// Load returns false until the loop has published once.
func (b *StatusBoard) Load() (StatusView, bool) {
	p := b.v.Load()
	if p == nil {
		return StatusView{}, false
	}
	return *p, true
}
