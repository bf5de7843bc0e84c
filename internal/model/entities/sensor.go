package entities

import (
	"fmt"
	"math"

	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
)

// PumpState indicates whether the pump relay is driven on or off.
type PumpState string

const (
	PumpOff PumpState = "off"
	PumpOn  PumpState = "on"
)

// SensorSnapshot is one reading of every sensor of the bed. It is recomputed on
// each check and never stored beyond the latest copy.
type SensorSnapshot struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
	ClimateErr  error   // non-nil when temperature/humidity could not be read

	SoilRaw   int   // analog counts, higher is drier
	LightRaw  int   // analog counts, lower is darker
	AnalogErr error // non-nil when soil or light could not be read

	TakenAt clock.Millis
}

// NewClimate validates a temperature/humidity pair. NaN or infinite values are the
// driver's way of signalling a fault.
func NewClimate(temp, hum float64, err error) (float64, float64, error) {
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrClimateFault, err)
	}
	if math.IsNaN(temp) || math.IsNaN(hum) || math.IsInf(temp, 0) || math.IsInf(hum, 0) {
		return 0, 0, ErrClimateFault
	}
	return temp, hum, nil
}

// Valid is true when every sensor produced a usable value.
func (s SensorSnapshot) Valid() bool { return s.ClimateErr == nil && s.AnalogErr == nil }

// ClimateOK is true when temperature and humidity are usable.
func (s SensorSnapshot) ClimateOK() bool { return s.ClimateErr == nil }

// AnalogOK is true when soil and light counts are usable.
func (s SensorSnapshot) AnalogOK() bool { return s.AnalogErr == nil }

// Fault returns the first sensor error, climate first.
func (s SensorSnapshot) Fault() error {
	if s.ClimateErr != nil {
		return s.ClimateErr
	}
	return s.AnalogErr
}

func (s SensorSnapshot) IsSoilDry(th Thresholds) bool { return s.SoilRaw > th.SoilDry }

func (s SensorSnapshot) IsNight(th Thresholds) bool { return s.LightRaw < th.Light }

func (s SensorSnapshot) IsTooHot(th Thresholds) bool { return s.Temperature > th.MaxTemperatureC }
