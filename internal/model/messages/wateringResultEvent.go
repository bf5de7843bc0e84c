package messages

import "time"

// WateringResultEvent closes a session, either at expiry or on an explicit stop.
type WateringResultEvent struct {
	BedID     string    `json:"bed_id"`
	SessionID string    `json:"session_id"`
	Source    string    `json:"source"`
	Status    string    `json:"status"` // "OK" when the planned duration ran out, "STOPPED" otherwise
	Reason    string    `json:"reason"`
	PlannedMs uint32    `json:"planned_ms"`
	ElapsedMs uint32    `json:"elapsed_ms"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	ResultCompleted = "OK"
	ResultStopped   = "STOPPED"
)
