package irrigation_controller

import "errors"

var (
	ErrAlreadyActive = errors.New("watering already active")
	ErrNotActive     = errors.New("watering not active")
	ErrActuator      = errors.New("pump actuator failed")
	// ErrLinkDown is returned for sends attempted while the remote channel is unavailable.
	ErrLinkDown = errors.New("remote link down")
	// ErrBreakerOpen accompanies ErrLinkDown when the breaker refused the send.
	ErrBreakerOpen = errors.New("remote breaker open")
)
