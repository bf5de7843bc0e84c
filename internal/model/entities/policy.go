package entities

// Thresholds holds the site-calibrated limits of the automatic policy.
type Thresholds struct {
	SoilDry         int     `json:"soil_dry_threshold"` // raw counts above this are dry
	MaxTemperatureC float64 `json:"max_temperature_c"`  // no automatic watering above this
	Light           int     `json:"light_threshold"`    // raw counts below this are night
}

// DefaultThresholds are calibrated for a 12-bit ADC.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SoilDry:         2500,
		MaxTemperatureC: 30.0,
		Light:           1000,
	}
}
