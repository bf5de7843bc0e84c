package entities

import "errors"

var (
	// ErrClimateFault indicates the temperature/humidity sensor returned no usable value.
	ErrClimateFault = errors.New("temperature/humidity sensor read failed")

	// ErrAnalogFault indicates the soil or light input could not be sampled.
	ErrAnalogFault = errors.New("soil/light sensor read failed")
)
