package messages

import (
	"time"
)

// SensorData carries one snapshot of the bed. Climate fields are omitted on a fault.
type SensorData struct {
	BedID       string    `json:"bed_id"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	SoilRaw     *int      `json:"soil_raw,omitempty"`
	LightRaw    *int      `json:"light_raw,omitempty"`
	Fault       string    `json:"fault,omitempty"`
	Trigger     string    `json:"trigger"` // "auto-check" | "status" | "expiry"
	Timestamp   time.Time `json:"timestamp"`
}
