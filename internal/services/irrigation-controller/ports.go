package irrigation_controller

import (
	"context"
	"fmt"
	"time"

	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
	"github.com/LeonardoBeccarini/gardenbot/internal/model/entities"
	"github.com/LeonardoBeccarini/gardenbot/internal/model/messages"
)

// SensorGateway reads the sensors of the bed. Implementations must honour ctx deadlines.
type SensorGateway interface {
	ReadTemperatureHumidity(ctx context.Context) (temp, hum float64, err error)
	ReadSoilMoisture(ctx context.Context) (int, error)
	ReadLightLevel(ctx context.Context) (int, error)
}

// Actuator drives the pump relay.
type Actuator interface {
	SetPump(ctx context.Context, on bool) error
}

// RemoteChannel is the chat transport. PollInboundCommands never blocks and returns
// at most max commands.
type RemoteChannel interface {
	PollInboundCommands(ctx context.Context, max int) ([]messages.Command, error)
	SendNotification(ctx context.Context, to, text string) error
	SendMenu(ctx context.Context, to, text string, options []string) error
	Connected() bool
	Reconnect(ctx context.Context) error
}

// Notifier sends a notification to the authorized user.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Responder answers the sender of a command.
type Responder interface {
	Reply(ctx context.Context, to, text string) error
	Menu(ctx context.Context, to, text string, options []string) error
}

// EventSink receives the controller's domain events.
type EventSink interface {
	PublishStateChange(ctx context.Context, evt messages.PumpStateChangeEvent) error
	PublishResult(ctx context.Context, evt messages.WateringResultEvent) error
	PublishReading(ctx context.Context, data messages.SensorData) error
}

type nopSink struct{}

func (nopSink) PublishStateChange(context.Context, messages.PumpStateChangeEvent) error { return nil }
func (nopSink) PublishResult(context.Context, messages.WateringResultEvent) error       { return nil }
func (nopSink) PublishReading(context.Context, messages.SensorData) error               { return nil }

// CaptureSnapshot reads every sensor once. Each read gets its own timeout so a hung
// driver cannot stall the loop. Errors are recorded in the snapshot, never returned.
func CaptureSnapshot(ctx context.Context, g SensorGateway, now clock.Millis, timeout time.Duration) entities.SensorSnapshot {
	snap := entities.SensorSnapshot{TakenAt: now}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	temp, hum, err := g.ReadTemperatureHumidity(rctx)
	cancel()
	snap.Temperature, snap.Humidity, snap.ClimateErr = entities.NewClimate(temp, hum, err)

	rctx, cancel = context.WithTimeout(ctx, timeout)
	soil, err := g.ReadSoilMoisture(rctx)
	cancel()
	if err != nil {
		snap.AnalogErr = wrapAnalog("soil", err)
	}
	snap.SoilRaw = soil

	rctx, cancel = context.WithTimeout(ctx, timeout)
	light, err := g.ReadLightLevel(rctx)
	cancel()
	if err != nil && snap.AnalogErr == nil {
		snap.AnalogErr = wrapAnalog("light", err)
	}
	snap.LightRaw = light

	return snap
}

func wrapAnalog(input string, err error) error {
	return fmt.Errorf("%w: %s: %v", entities.ErrAnalogFault, input, err)
}
